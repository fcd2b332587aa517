// Package app wires the services together: config manager, upstream
// client, registry, poller, sinks, live channel, HTTP surface, and the
// background housekeeping. main stays thin.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"dropwatch/internal/adapters/telegram"
	"dropwatch/internal/config"
	"dropwatch/internal/dedupe"
	"dropwatch/internal/eventbus"
	"dropwatch/internal/server"
	"dropwatch/internal/services/broadcast"
	"dropwatch/internal/services/maintenance"
	"dropwatch/internal/services/notify"
	"dropwatch/internal/services/pprof"
	"dropwatch/internal/storage"
	"dropwatch/internal/upstream"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store

	client   *upstream.Client
	registry *watch.Registry
	cache    *dedupe.Cache
	poller   *watch.Poller

	live    *broadcast.Service
	webhook *notify.Webhook
	tgSink  *notify.Telegram

	srv   *server.Server
	maint *maintenance.Service
	prof  *pprof.Service

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	// Telegram adapter backs both the chat sink and the telegram log
	// sink; absent token means both stay disabled.
	var adapter *telegram.Adapter
	if tok := strings.TrimSpace(cfg.Sinks.Telegram.Token); tok != "" {
		adapter, err = telegram.New(tok, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
	}

	var sender logx.Sender
	if adapter != nil {
		sender = adapter
	}
	logs, log := logx.New(logxConfig(cfg), sender)
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	client, err := upstream.New(upstreamConfig(cfg), log.With(logx.String("comp", "upstream")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	bus := eventbus.New()
	clock := watch.SystemClock()

	maxSubs := cfg.Watcher.MaxSubscriptions
	if maxSubs <= 0 {
		maxSubs = watch.DefaultMaxSubscriptions
	}
	registry := watch.NewRegistry(maxSubs, clock)

	var dedupeStore dedupe.Store
	if store != nil {
		dedupeStore = store
	}
	cache := dedupe.New(dedupeConfig(cfg), dedupeStore, log.With(logx.String("comp", "dedupe")))

	live := broadcast.New(broadcastConfig(cfg), bus, log.With(logx.String("comp", "live")))
	webhook := notify.NewWebhook(webhookConfig(cfg), log.With(logx.String("comp", "webhook")))
	var tgSink *notify.Telegram
	if adapter != nil {
		tgSink = notify.NewTelegram(telegramSinkConfig(cfg), adapter, log.With(logx.String("comp", "telegram")))
	}

	sinks := []watch.Sink{live, webhook}
	if tgSink != nil {
		sinks = append(sinks, tgSink)
	}

	var journal watch.DropJournal
	if store != nil {
		journal = store
	}
	poller := watch.NewPoller(pollerConfig(cfg), registry, client, cache, sinks, journal, bus, clock,
		log.With(logx.String("comp", "poller")))

	srv := server.New(serverConfig(cfg), registry, client, live, log.With(logx.String("comp", "http")))

	maint := maintenance.New(maintenanceConfig(cfg), registry, store, log.With(logx.String("comp", "maintenance")))
	prof := pprof.New(pprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		bus:      bus,
		store:    store,
		client:   client,
		registry: registry,
		cache:    cache,
		poller:   poller,
		live:     live,
		webhook:  webhook,
		tgSink:   tgSink,
		srv:      srv,
		maint:    maint,
		prof:     prof,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.stopCh = make(chan struct{})

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(config.Validate)

	// Restore persisted state before anything starts polling.
	if a.store != nil {
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if recs, err := a.store.LoadSubscriptions(rctx); err != nil {
			a.log.Warn("subscription restore failed", logx.Err(err))
		} else if n := a.registry.Restore(recs); n > 0 {
			a.log.Info("subscriptions restored", logx.Int("count", n))
		}
		cancel()
		a.cache.WarmStart(ctx)
	}

	a.cache.Start(ctx)
	a.live.Start(ctx)
	a.poller.Start(ctx)
	if a.maint.Enabled() {
		a.maint.Start(ctx)
	}
	a.prof.Reconfigure(ctx, pprofConfig(a.cfgm.Get()))

	if err := a.srv.Start(ctx); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(ctx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	events, unsub := a.bus.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		a.busTraceLoop(ctx, events)
	}()

	a.log.Info("app started", logx.Int("watches", a.registry.Len()))
	return nil
}

// busTraceLoop drains the internal event bus into the debug log so cycle
// progress and consumer churn are visible without cranking the poller's
// own log level.
func (a *App) busTraceLoop(ctx context.Context, events <-chan eventbus.Event) {
	log := a.log.With(logx.String("comp", "bus"))
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			log.Debug(ev.Type, logx.Time("at", ev.Time), logx.Any("data", ev.Data))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
		// Coalesce bursts: keep only the latest config in the channel.
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					newCfg = newer
				}
			default:
				goto APPLY
			}
		}
	APPLY:
		sections, fields := config.SummarizeConfigChange(lastApplied, newCfg)
		if len(sections) == 0 {
			a.log.Debug("config reload received, but no effective changes detected")
			lastApplied = newCfg
			continue
		}
		lastApplied = newCfg

		a.logs.Apply(logxConfig(newCfg))
		a.poller.Apply(pollerConfig(newCfg))
		a.live.Apply(broadcastConfig(newCfg))
		a.webhook.Apply(webhookConfig(newCfg))
		if a.tgSink != nil {
			a.tgSink.Apply(telegramSinkConfig(newCfg), nil)
		}
		a.srv.Apply(serverConfig(newCfg))
		a.maint.Apply(maintenanceConfig(newCfg))
		a.prof.Reconfigure(ctx, pprofConfig(newCfg))

		// The upstream client and storage driver are fixed for the
		// process lifetime.
		for _, sec := range sections {
			if sec == "upstream" || sec == "storage" {
				a.log.Warn("config section changed but requires restart", logx.String("section", sec))
			}
		}

		a.log.Info("config reloaded",
			append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.stopCh != nil {
		close(a.stopCh)
	}
	a.log.Info("stopping")

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("http", 5*time.Second, func(c context.Context) error { a.srv.Stop(c); return nil })
	step("poller", 5*time.Second, func(c context.Context) error { a.poller.Stop(c); return nil })
	step("live", 2*time.Second, func(c context.Context) error { a.live.Stop(c); return nil })
	step("maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("dedupe", 2*time.Second, func(c context.Context) error { a.cache.Stop(c); return nil })
	step("pprof", 2*time.Second, func(c context.Context) error { a.prof.Stop(c); return nil })

	// Persist the registry so watches survive the restart.
	if a.store != nil {
		step("snapshot", 3*time.Second, func(c context.Context) error {
			return a.store.SaveSubscriptions(c, a.registry.Snapshot())
		})
		step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })
	}

	a.wg.Wait()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

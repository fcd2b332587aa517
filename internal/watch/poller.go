package watch

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"dropwatch/internal/drops"
	"dropwatch/internal/eventbus"
	"dropwatch/internal/storage"
	logx "dropwatch/pkg/logx"
)

const (
	DefaultPollInterval = 15 * time.Second
	// DefaultSlack absorbs scheduler jitter so a cycle that lands a few
	// hundred milliseconds early still counts as due.
	DefaultSlack = 500 * time.Millisecond

	// tickEvery is the due-check granularity of the scheduler loop.
	tickEvery = time.Second
)

type PollerConfig struct {
	Interval time.Duration
	Slack    time.Duration
}

// CycleEvent is the bus payload published after every cycle.
type CycleEvent struct {
	Key      string
	Started  time.Time
	Duration time.Duration
	Entries  int
	Drops    int
	Error    string
}

// Poller drives one detection cycle per subscription at a fixed cadence.
//
// Per subscription, cycles are strictly sequential: the next due check
// happens only after the previous cycle fully finishes. Cycles for
// different subscriptions run independently and may overlap.
type Poller struct {
	mu  sync.Mutex
	cfg PollerConfig

	registry *Registry
	fetcher  TimelineFetcher
	detector *drops.Detector
	dedupe   Deduper
	sinks    []Sink
	journal  DropJournal
	bus      eventbus.Bus
	clock    Clock
	log      logx.Logger

	// lastStart / running are the per-subscription scheduler state:
	// Idle (absent from running) vs Running.
	lastStart map[drops.CharacterKey]time.Time
	running   map[drops.CharacterKey]bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(cfg PollerConfig, registry *Registry, fetcher TimelineFetcher, dedupe Deduper, sinks []Sink, journal DropJournal, bus eventbus.Bus, clock Clock, log logx.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Slack <= 0 {
		cfg.Slack = DefaultSlack
	}
	if clock == nil {
		clock = SystemClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		cfg:       cfg,
		registry:  registry,
		fetcher:   fetcher,
		detector:  drops.NewDetector(),
		dedupe:    dedupe,
		sinks:     sinks,
		journal:   journal,
		bus:       bus,
		clock:     clock,
		log:       log,
		lastStart: map[drops.CharacterKey]time.Time{},
		running:   map[drops.CharacterKey]bool{},
	}
}

// Apply updates cadence settings. Safe during operation; the new interval
// takes effect at the next due check.
func (p *Poller) Apply(cfg PollerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.Interval > 0 {
		p.cfg.Interval = cfg.Interval
	}
	if cfg.Slack > 0 {
		p.cfg.Slack = cfg.Slack
	}
}

func (p *Poller) Start(ctx context.Context) {
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(tickEvery)
		defer t.Stop()
		p.log.Info("poller started",
			logx.Duration("interval", p.cfg.Interval),
			logx.Duration("slack", p.cfg.Slack),
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-t.C:
				p.kickDue(ctx)
			}
		}
	}()
}

// Stop stops scheduling new cycles and waits for in-flight ones.
func (p *Poller) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		if p.stopCh != nil {
			close(p.stopCh)
		}
	})
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// in-flight cycles finish in background
	}
}

// kickDue launches a cycle for every due, idle subscription.
func (p *Poller) kickDue(ctx context.Context) {
	now := p.clock.Now()

	p.mu.Lock()
	interval := p.cfg.Interval
	slack := p.cfg.Slack
	subs := p.registry.List()
	current := make(map[drops.CharacterKey]struct{}, len(subs))
	var due []Subscription
	for _, sub := range subs {
		current[sub.Key] = struct{}{}
		if p.running[sub.Key] {
			continue
		}
		last, seen := p.lastStart[sub.Key]
		if seen && now.Sub(last) < interval-slack {
			continue
		}
		p.running[sub.Key] = true
		p.lastStart[sub.Key] = now
		due = append(due, sub)
	}
	// Drop scheduler state for subscriptions that were removed or evicted,
	// so churn doesn't grow the maps. In-flight cycles keep their running
	// entry until they finish.
	for key := range p.lastStart {
		if _, ok := current[key]; !ok && !p.running[key] {
			delete(p.lastStart, key)
		}
	}
	p.mu.Unlock()

	for _, sub := range due {
		sub := sub
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("panic in poll cycle",
						logx.String("character", sub.Key.String()),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
				}
				p.mu.Lock()
				delete(p.running, sub.Key)
				p.mu.Unlock()
			}()
			p.runCycle(ctx, sub)
		}()
	}
}

// runCycle performs one fetch→detect→dedupe→deliver pass for sub.
// On any upstream failure the subscription's cursor is left untouched so
// the next cycle re-covers the window.
func (p *Poller) runCycle(ctx context.Context, sub Subscription) {
	start := p.clock.Now()
	log := p.log.With(logx.String("character", sub.Key.String()))

	entries, err := p.fetcher.FetchTimeline(ctx, sub.Key.Server, sub.Key.Name, sub.LastChecked, start)
	if err != nil {
		log.Warn("cycle aborted: timeline fetch failed", logx.Err(err))
		p.finishCycle(sub, start, 0, 0, err)
		return
	}

	delivered := 0
	if len(entries) > 0 {
		ids := drops.ItemIDs(entries)
		det, err := p.fetcher.ItemDetails(ctx, ids)
		if err != nil {
			// Same treatment as a failed fetch: without authoritative
			// rarity data we can't safely advance past this window.
			log.Warn("cycle aborted: item detail lookup failed", logx.Err(err))
			p.finishCycle(sub, start, len(entries), 0, err)
			return
		}

		for _, ev := range p.detector.Detect(sub.Key, entries, det) {
			if !p.dedupe.ShouldDeliver(ev.DedupeKey()) {
				continue
			}
			p.deliver(ctx, ev, log)
			delivered++
		}
	}

	p.registry.Advance(sub.Key, start)
	p.finishCycle(sub, start, len(entries), delivered, nil)
	if delivered > 0 {
		log.Info("cycle delivered drops", logx.Int("entries", len(entries)), logx.Int("drops", delivered))
	} else {
		log.Debug("cycle finished", logx.Int("entries", len(entries)))
	}
}

// deliver pushes one event to every sink. A failing sink is logged and
// never blocks the others or the cycle.
func (p *Poller) deliver(ctx context.Context, ev drops.Event, log logx.Logger) {
	var okSinks []string
	for _, sink := range p.sinks {
		if err := sink.Deliver(ctx, ev); err != nil {
			log.Warn("sink delivery failed",
				logx.String("sink", sink.Name()),
				logx.String("item", ev.ItemID),
				logx.Err(err),
			)
			continue
		}
		okSinks = append(okSinks, sink.Name())
	}

	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeDropDetected, Data: ev})
	}
	if p.journal != nil {
		jctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := p.journal.AppendDrop(jctx, storage.DropRecord{
			At:        ev.OccurredAt,
			Character: ev.Character.String(),
			ItemID:    ev.ItemID,
			ItemName:  ev.ItemName,
			Rarity:    ev.Rarity,
			DedupeKey: ev.DedupeKey(),
			Sinks:     strings.Join(okSinks, ","),
		})
		cancel()
		if err != nil {
			log.Debug("drop journal append failed", logx.Err(err))
		}
	}
}

func (p *Poller) finishCycle(sub Subscription, start time.Time, entries, delivered int, err error) {
	if p.bus == nil {
		return
	}
	ev := CycleEvent{
		Key:      sub.Key.String(),
		Started:  start,
		Duration: p.clock.Now().Sub(start),
		Entries:  entries,
		Drops:    delivered,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	p.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleFinished, Data: ev})
}

// Package maintenance runs the periodic housekeeping jobs: persisting
// the subscription registry, evicting idle subscriptions, and pruning
// expired dedup rows from storage. Jobs are registered on a cron
// runner and executed inline with a per-job timeout and panic
// recovery.
package maintenance

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dropwatch/internal/storage"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

const (
	defaultSnapshotSpec = "@every 5m"
	defaultEvictSpec    = "@every 10m"
	defaultCompactSpec  = "0 */6 * * *"

	jobTimeout = 30 * time.Second
)

type Config struct {
	Enabled      bool
	SnapshotSpec string
	EvictSpec    string
	CompactSpec  string
	Timezone     string // IANA TZ, e.g. "Asia/Seoul"

	// IdleEvictAfter <= 0 disables the eviction job.
	IdleEvictAfter time.Duration
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	registry *watch.Registry
	store    storage.Store

	parser cron.Parser
	c      *cron.Cron

	ctx    context.Context
	stopCh chan struct{}
}

func New(cfg Config, registry *watch.Registry, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		registry: registry,
		store:    store,
		log:      log,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	changed := oldTZ != strings.TrimSpace(cfg.Timezone) ||
		s.cfg.SnapshotSpec != cfg.SnapshotSpec ||
		s.cfg.EvictSpec != cfg.EvictSpec ||
		s.cfg.CompactSpec != cfg.CompactSpec
	s.cfg = cfg

	if s.stopCh == nil {
		return
	}
	if changed {
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.ctx = ctx

	s.startCronLocked()
	s.log.Info("maintenance started", logx.String("tz", s.c.Location().String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		select {
		case <-s.c.Stop().Done():
		case <-ctx.Done():
		}
		s.c = nil
	}
	s.log.Info("maintenance stopped")
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.startCronLocked()
	s.log.Info("maintenance restarted", logx.String("tz", s.c.Location().String()))
}

func (s *Service) startCronLocked() {
	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	s.addJobLocked("snapshot", specOr(s.cfg.SnapshotSpec, defaultSnapshotSpec), s.snapshot)
	s.addJobLocked("evict_idle", specOr(s.cfg.EvictSpec, defaultEvictSpec), s.evictIdle)
	s.addJobLocked("compact_dedup", specOr(s.cfg.CompactSpec, defaultCompactSpec), s.compactDedup)

	s.c.Start()
}

func (s *Service) addJobLocked(name, spec string, job func(ctx context.Context) error) {
	_, err := s.c.AddFunc(spec, func() { s.runJob(name, job) })
	if err != nil {
		s.log.Warn("invalid maintenance spec, job skipped",
			logx.String("job", name), logx.String("spec", spec), logx.Err(err))
	}
}

func (s *Service) runJob(name string, job func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("maintenance job panic",
				logx.String("job", name), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, jobTimeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Warn("maintenance job failed", logx.String("job", name), logx.Err(err))
		return
	}
	s.log.Debug("maintenance job ok",
		logx.String("job", name), logx.Duration("took", time.Since(start)))
}

func (s *Service) snapshot(ctx context.Context) error {
	if s.registry == nil || s.store == nil {
		return nil
	}
	return s.store.SaveSubscriptions(ctx, s.registry.Snapshot())
}

func (s *Service) evictIdle(ctx context.Context) error {
	s.mu.Lock()
	idleAfter := s.cfg.IdleEvictAfter
	s.mu.Unlock()
	if s.registry == nil || idleAfter <= 0 {
		return nil
	}
	evicted := s.registry.EvictIdle(idleAfter)
	if len(evicted) > 0 {
		s.log.Info("evicted idle subscriptions", logx.Int("count", len(evicted)))
		if s.store != nil {
			return s.store.SaveSubscriptions(ctx, s.registry.Snapshot())
		}
	}
	return nil
}

func (s *Service) compactDedup(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.PruneDedup(ctx)
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func specOr(spec, def string) string {
	if strings.TrimSpace(spec) == "" {
		return def
	}
	return spec
}

// Package broadcast fans detected drops out to live-channel consumers.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"dropwatch/internal/drops"
	"dropwatch/internal/eventbus"
	logx "dropwatch/pkg/logx"
)

const (
	defaultHeartbeat    = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

type Service struct {
	mu        sync.Mutex
	cfg       Config
	consumers map[string]*consumer

	log logx.Logger
	bus eventbus.Bus

	// hbReset carries a changed heartbeat interval to the ticker loop.
	hbReset chan time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		consumers: map[string]*consumer{},
		log:       log,
		bus:       bus,
		hbReset:   make(chan time.Duration, 1),
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	changed := cfg.HeartbeatInterval > 0 && cfg.HeartbeatInterval != s.cfg.HeartbeatInterval
	if cfg.HeartbeatInterval > 0 {
		s.cfg.HeartbeatInterval = cfg.HeartbeatInterval
	}
	if cfg.WriteTimeout > 0 {
		s.cfg.WriteTimeout = cfg.WriteTimeout
	}
	iv := s.cfg.HeartbeatInterval
	s.mu.Unlock()

	if !changed {
		return
	}
	// Replace any pending reset so the loop only sees the latest value.
	select {
	case <-s.hbReset:
	default:
	}
	select {
	case s.hbReset <- iv:
	default:
	}
}

// Start launches the heartbeat ticker. Heartbeats ride their own timer,
// independent of drop publishes, so consumers can detect liveness on a
// quiet feed.
func (s *Service) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mu.Lock()
		interval := s.cfg.HeartbeatInterval
		s.mu.Unlock()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case iv := <-s.hbReset:
				t.Reset(iv)
			case <-t.C:
				s.heartbeat()
			}
		}
	}()
}

func (s *Service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
		}
	})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	// Close remaining consumers so clients reconnect elsewhere.
	s.mu.Lock()
	conns := make([]*consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		conns = append(conns, c)
	}
	s.consumers = map[string]*consumer{}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

// Register adds a live connection and returns its consumer id.
func (s *Service) Register(conn Conn) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.consumers[id] = &consumer{id: id, conn: conn}
	n := len(s.consumers)
	s.mu.Unlock()

	s.log.Debug("live consumer connected", logx.String("consumer", id), logx.Int("total", n))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeConsumerConnected, Data: id})
	}
	return id
}

// Unregister removes a consumer. Safe to call at any time, including while
// a publish is iterating: publishes work on a snapshot and writing to a
// removed consumer is harmless.
func (s *Service) Unregister(id string) {
	s.mu.Lock()
	c, ok := s.consumers[id]
	if ok {
		delete(s.consumers, id)
	}
	n := len(s.consumers)
	s.mu.Unlock()

	if !ok {
		return
	}
	_ = c.conn.Close()
	s.log.Debug("live consumer disconnected", logx.String("consumer", id), logx.Int("total", n))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeConsumerDropped, Data: id})
	}
}

// Count returns the number of currently registered consumers.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumers)
}

// Publish writes the event to every registered consumer. A write failure
// removes that consumer and never surfaces to the caller.
func (s *Service) Publish(ev drops.Event) {
	msg := Message{Type: "drop", Time: time.Now(), Drop: &ev, DedupeKey: ev.DedupeKey()}
	s.fanout(msg)
}

func (s *Service) heartbeat() {
	s.fanout(Message{Type: "ping", Time: time.Now()})
}

func (s *Service) fanout(msg Message) {
	s.mu.Lock()
	timeout := s.cfg.WriteTimeout
	targets := make([]*consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.write(msg, timeout); err != nil {
			s.log.Debug("live write failed; dropping consumer",
				logx.String("consumer", c.id),
				logx.String("kind", msg.Type),
				logx.Err(err),
			)
			s.Unregister(c.id)
		}
	}
}

// Name and Deliver make the hub usable as a poller sink.
func (s *Service) Name() string { return "live" }

func (s *Service) Deliver(_ context.Context, ev drops.Event) error {
	s.Publish(ev)
	return nil
}

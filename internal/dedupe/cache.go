// Package dedupe implements the TTL reservation set that gives drop
// delivery its at-most-once semantics.
package dedupe

import (
	"context"
	"sync"
	"time"

	logx "dropwatch/pkg/logx"
)

const (
	DefaultTTL = 48 * time.Hour
	// DefaultSweepInterval is deliberately much shorter than the TTL so
	// the live set stays small without rescanning constantly.
	DefaultSweepInterval = 60 * time.Second
)

// Store persists reservations across restarts. Optional; nil disables
// persistence.
type Store interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	LoadDedup(ctx context.Context) (map[string]time.Time, error)
}

type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Cache is a keyed TTL set. ShouldDeliver reserves a key the first time
// it is seen within the TTL window; duplicates within the window are
// suppressed. Expiry is lazy-checked on lookup in addition to the
// background sweep, so a stale record never suppresses a fresh event.
type Cache struct {
	mu   sync.Mutex
	seen map[string]time.Time // key -> expiry

	ttl   time.Duration
	sweep time.Duration
	store Store
	log   logx.Logger

	// now is swappable for tests.
	now func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config, store Store, log logx.Logger) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{
		seen:  map[string]time.Time{},
		ttl:   ttl,
		sweep: sweep,
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// WarmStart loads unexpired reservations from the store so a restart
// doesn't re-deliver drops reported during the previous run.
func (c *Cache) WarmStart(ctx context.Context) {
	if c.store == nil {
		return
	}
	loaded, err := c.store.LoadDedup(ctx)
	if err != nil {
		c.log.Warn("dedupe warm start failed", logx.Err(err))
		return
	}
	now := c.now()
	n := 0
	c.mu.Lock()
	for k, until := range loaded {
		if until.After(now) {
			c.seen[k] = until
			n++
		}
	}
	c.mu.Unlock()
	if n > 0 {
		c.log.Info("dedupe state restored", logx.Int("keys", n))
	}
}

// ShouldDeliver reports whether the event behind key has not been
// delivered within the TTL window, and atomically reserves the key when
// it answers true.
func (c *Cache) ShouldDeliver(key string) bool {
	if key == "" {
		return false
	}
	now := c.now()

	c.mu.Lock()
	until, ok := c.seen[key]
	if ok && until.After(now) {
		c.mu.Unlock()
		return false
	}
	expiry := now.Add(c.ttl)
	c.seen[key] = expiry
	c.mu.Unlock()

	if c.store != nil {
		// Write-through is best-effort; losing it only risks a duplicate
		// after a restart, which the sink consumers tolerate.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.store.PutDedup(ctx, key, expiry); err != nil {
			c.log.Debug("dedupe persist failed", logx.String("key", key), logx.Err(err))
		}
		cancel()
	}
	return true
}

// Len returns the current live-set size (includes not-yet-swept expired keys).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Start launches the background sweep loop.
func (c *Cache) Start(ctx context.Context) {
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.sweep)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-t.C:
				removed := c.sweepExpired()
				if removed > 0 {
					c.log.Debug("dedupe sweep", logx.Int("removed", removed), logx.Int("live", c.Len()))
				}
			}
		}
	}()
}

func (c *Cache) Stop(context.Context) {
	c.stopOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
		}
	})
	c.wg.Wait()
}

func (c *Cache) sweepExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, until := range c.seen {
		if !until.After(now) {
			delete(c.seen, k)
			removed++
		}
	}
	return removed
}

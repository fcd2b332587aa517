package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dropwatch/internal/drops"
	logx "dropwatch/pkg/logx"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Message
	err    error
	closed bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if msg, ok := v.(Message); ok {
		c.frames = append(c.frames, msg)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) got() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.frames))
	copy(out, c.frames)
	return out
}

func testEvent() drops.Event {
	return drops.Event{
		Character:  drops.CharacterKey{Server: "luna", Name: "aria"},
		ItemID:     "it-1",
		ItemName:   "Ancient Blade",
		Rarity:     "ancient",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishFansOutToAllConsumers(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())

	a, b := &fakeConn{}, &fakeConn{}
	s.Register(a)
	s.Register(b)

	s.Publish(testEvent())

	for _, c := range []*fakeConn{a, b} {
		frames := c.got()
		if len(frames) != 1 {
			t.Fatalf("frames = %d, want 1", len(frames))
		}
		if frames[0].Type != "drop" || frames[0].Drop == nil || frames[0].Drop.ItemID != "it-1" {
			t.Fatalf("frame = %+v, want drop payload", frames[0])
		}
		if want := testEvent().DedupeKey(); frames[0].DedupeKey != want {
			t.Fatalf("frame dedupe key = %q, want %q", frames[0].DedupeKey, want)
		}
	}
}

func TestPublishDropsFailingConsumerOnly(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())

	broken := &fakeConn{err: errors.New("write: broken pipe")}
	healthy := &fakeConn{}
	s.Register(broken)
	s.Register(healthy)

	s.Publish(testEvent())

	if got := healthy.got(); len(got) != 1 {
		t.Fatalf("healthy consumer frames = %d, want 1", len(got))
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1 after dropping the broken consumer", s.Count())
	}
	broken.mu.Lock()
	closed := broken.closed
	broken.mu.Unlock()
	if !closed {
		t.Fatal("broken connection must be closed on removal")
	}

	// Later publishes keep flowing to the survivor.
	s.Publish(testEvent())
	if got := healthy.got(); len(got) != 2 {
		t.Fatalf("healthy consumer frames = %d, want 2", len(got))
	}
}

func TestHeartbeatFrames(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	c := &fakeConn{}
	s.Register(c)

	s.heartbeat()

	frames := c.got()
	if len(frames) != 1 || frames[0].Type != "ping" {
		t.Fatalf("frames = %+v, want one ping", frames)
	}
	if frames[0].Drop != nil || frames[0].DedupeKey != "" {
		t.Fatal("ping frames carry no payload")
	}
}

func TestApplyReschedulesHeartbeat(t *testing.T) {
	t.Parallel()
	s := New(Config{HeartbeatInterval: time.Hour}, nil, logx.Nop())
	c := &fakeConn{}
	s.Register(c)

	s.Start(t.Context())
	defer s.Stop(context.Background())

	// Shortening the cadence must take effect without waiting out the
	// old hour-long tick.
	s.Apply(Config{HeartbeatInterval: 5 * time.Millisecond})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range c.got() {
			if f.Type == "ping" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no heartbeat after shortening the interval")
}

func TestUnregisterIdempotent(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	c := &fakeConn{}
	id := s.Register(c)

	s.Unregister(id)
	s.Unregister(id)
	s.Unregister("never-registered")

	if s.Count() != 0 {
		t.Fatalf("Count = %d, want 0", s.Count())
	}
}

func TestStopClosesConsumers(t *testing.T) {
	t.Parallel()
	s := New(Config{HeartbeatInterval: time.Hour}, nil, logx.Nop())
	s.Start(t.Context())
	c := &fakeConn{}
	s.Register(c)

	s.Stop(t.Context())

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		t.Fatal("Stop must close remaining connections")
	}
}

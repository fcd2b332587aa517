package watch

import (
	"errors"
	"sort"
	"sync"
	"time"

	"dropwatch/internal/drops"
	"dropwatch/internal/storage"
)

// DefaultMaxSubscriptions caps registry growth; registration past the cap
// is rejected rather than silently evicting someone else's watch.
const DefaultMaxSubscriptions = 500

var ErrRegistryFull = errors.New("watch: subscription registry is full")

// Registry owns the tracked-character set. All mutation goes through its
// methods; callers never see the internal map.
type Registry struct {
	mu    sync.Mutex
	subs  map[drops.CharacterKey]*Subscription
	max   int
	clock Clock
}

func NewRegistry(maxSubs int, clock Clock) *Registry {
	if maxSubs <= 0 {
		maxSubs = DefaultMaxSubscriptions
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Registry{
		subs:  map[drops.CharacterKey]*Subscription{},
		max:   maxSubs,
		clock: clock,
	}
}

// Upsert registers key (or refreshes an existing registration). A new
// subscription's first window is backdated by lookback so the first cycle
// doesn't see a false-empty window.
func (r *Registry) Upsert(key drops.CharacterKey, lookback time.Duration) (Subscription, error) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subs[key]; ok {
		return *sub, nil
	}
	if len(r.subs) >= r.max {
		return Subscription{}, ErrRegistryFull
	}
	sub := &Subscription{
		Key:         key,
		LastChecked: now.Add(-lookback),
		CreatedAt:   now,
	}
	r.subs[key] = sub
	return *sub, nil
}

func (r *Registry) Remove(key drops.CharacterKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[key]; !ok {
		return false
	}
	delete(r.subs, key)
	return true
}

func (r *Registry) Get(key drops.CharacterKey) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[key]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// List returns a stable-ordered copy of all subscriptions.
func (r *Registry) List() []Subscription {
	r.mu.Lock()
	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Advance moves a subscription's cursor forward. Called by the poller
// only after a fully successful cycle; a failed cycle leaves the cursor
// so the next one re-covers the window.
func (r *Registry) Advance(key drops.CharacterKey, to time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[key]; ok && to.After(sub.LastChecked) {
		sub.LastChecked = to
	}
}

// EvictIdle removes subscriptions whose cursor hasn't advanced for longer
// than idleAfter and returns the evicted keys. idleAfter <= 0 disables.
func (r *Registry) EvictIdle(idleAfter time.Duration) []drops.CharacterKey {
	if idleAfter <= 0 {
		return nil
	}
	cutoff := r.clock.Now().Add(-idleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []drops.CharacterKey
	for key, sub := range r.subs {
		if sub.LastChecked.Before(cutoff) {
			delete(r.subs, key)
			evicted = append(evicted, key)
		}
	}
	return evicted
}

// Snapshot serializes the registry for persistence.
func (r *Registry) Snapshot() []storage.SubscriptionRecord {
	subs := r.List()
	out := make([]storage.SubscriptionRecord, 0, len(subs))
	for _, sub := range subs {
		out = append(out, storage.SubscriptionRecord{
			Key:         sub.Key.String(),
			LastChecked: sub.LastChecked,
			CreatedAt:   sub.CreatedAt,
		})
	}
	return out
}

// Restore loads a snapshot, skipping rows that no longer parse and rows
// past the capacity cap.
func (r *Registry) Restore(recs []storage.SubscriptionRecord) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range recs {
		key, err := drops.ParseKey(rec.Key)
		if err != nil {
			continue
		}
		if len(r.subs) >= r.max {
			break
		}
		if _, exists := r.subs[key]; exists {
			continue
		}
		r.subs[key] = &Subscription{
			Key:         key,
			LastChecked: rec.LastChecked,
			CreatedAt:   rec.CreatedAt,
		}
		n++
	}
	return n
}

package watch

import (
	"context"
	"time"

	"dropwatch/internal/drops"
	"dropwatch/internal/storage"
	"dropwatch/internal/upstream"
)

// Clock abstracts wall-clock time so cycle due-ness is testable without
// real waits.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock returns the process wall clock.
func SystemClock() Clock { return realClock{} }

// Subscription tracks one character. Owned exclusively by the Registry;
// LastChecked is advanced only by the Poller after a successful cycle.
type Subscription struct {
	Key         drops.CharacterKey
	LastChecked time.Time
	CreatedAt   time.Time
}

// TimelineFetcher is the slice of the upstream client the poller needs.
type TimelineFetcher interface {
	FetchTimeline(ctx context.Context, server, character string, from, to time.Time) ([]upstream.LogEntry, error)
	ItemDetails(ctx context.Context, ids []string) (map[string]upstream.ItemDetail, error)
}

// Deduper suppresses re-delivery of already-reported events.
type Deduper interface {
	ShouldDeliver(key string) bool
}

// Sink receives detected drop events. Delivery failures are isolated per
// sink: the poller logs them and moves on.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev drops.Event) error
}

// DropJournal optionally records delivered drops. Nil-able.
type DropJournal interface {
	AppendDrop(ctx context.Context, rec storage.DropRecord) error
}

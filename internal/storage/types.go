package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DropRecord journals one delivered drop event.
// Keep it compact and schema-stable.
type DropRecord struct {
	At        time.Time `json:"at"`
	Character string    `json:"character"`
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"item_name"`
	Rarity    string    `json:"rarity"`
	DedupeKey string    `json:"dedupe_key"`
	Sinks     string    `json:"sinks"` // comma-joined sink names that accepted it
}

// SubscriptionRecord is one row of a registry snapshot.
type SubscriptionRecord struct {
	Key         string    `json:"key"` // "server/name"
	LastChecked time.Time `json:"last_checked"`
	CreatedAt   time.Time `json:"created_at"`
}

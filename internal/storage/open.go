package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "dropwatch/pkg/logx"
)

// Store is the minimal persistence API used by the watcher.
type Store interface {
	AppendDrop(ctx context.Context, rec DropRecord) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	LoadDedup(ctx context.Context) (map[string]time.Time, error)
	PruneDedup(ctx context.Context) error

	SaveSubscriptions(ctx context.Context, subs []SubscriptionRecord) error
	LoadSubscriptions(ctx context.Context) ([]SubscriptionRecord, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

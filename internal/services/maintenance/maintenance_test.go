package maintenance

import (
	"path/filepath"
	"testing"
	"time"

	"dropwatch/internal/drops"
	"dropwatch/internal/storage"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

func TestSpecOr(t *testing.T) {
	t.Parallel()
	if got := specOr("", "@every 5m"); got != "@every 5m" {
		t.Fatalf("specOr empty = %s", got)
	}
	if got := specOr("  ", "@every 5m"); got != "@every 5m" {
		t.Fatalf("specOr blank = %s", got)
	}
	if got := specOr("0 3 * * *", "@every 5m"); got != "0 3 * * *" {
		t.Fatalf("specOr explicit = %s", got)
	}
}

func TestSnapshotJobPersistsRegistry(t *testing.T) {
	t.Parallel()
	store, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "dropwatch.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	registry := watch.NewRegistry(10, nil)
	registry.Upsert(drops.CharacterKey{Server: "luna", Name: "aria"}, time.Minute)

	svc := New(Config{}, registry, store, logx.Nop())
	if err := svc.snapshot(t.Context()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	recs, err := store.LoadSubscriptions(t.Context())
	if err != nil || len(recs) != 1 || recs[0].Key != "luna/aria" {
		t.Fatalf("LoadSubscriptions = %+v, %v", recs, err)
	}
}

func TestEvictIdleDisabled(t *testing.T) {
	t.Parallel()
	registry := watch.NewRegistry(10, nil)
	registry.Upsert(drops.CharacterKey{Server: "luna", Name: "aria"}, 90*24*time.Hour)

	svc := New(Config{IdleEvictAfter: 0}, registry, nil, logx.Nop())
	if err := svc.evictIdle(t.Context()); err != nil {
		t.Fatalf("evictIdle: %v", err)
	}
	if registry.Len() != 1 {
		t.Fatal("eviction ran while disabled")
	}

	svc.Apply(Config{IdleEvictAfter: time.Hour})
	if err := svc.evictIdle(t.Context()); err != nil {
		t.Fatalf("evictIdle: %v", err)
	}
	if registry.Len() != 0 {
		t.Fatal("idle subscription survived eviction")
	}
}

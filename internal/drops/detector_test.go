package drops

import (
	"testing"
	"time"

	"dropwatch/internal/upstream"
)

func TestIsRare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label string
		want  bool
	}{
		{"ancient", true},
		{"Ancient", true},
		{"ANCIENT weapon chest", true},
		{"mythic accessory", true},
		{"고대 무기", true},
		{"  Mythic  ", true},
		{"legendary", false},
		{"rare", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := IsRare(tt.label); got != tt.want {
			t.Errorf("IsRare(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	key := CharacterKey{Server: "luna", Name: "aria"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []upstream.LogEntry{
		{OccurredAt: at, ItemID: "it-1", ItemName: "Old Blade", RarityTag: "rare"},
		{OccurredAt: at, ItemID: "it-2", ItemName: "Chest", RarityTag: "ancient"},
		{OccurredAt: at, ItemID: "", ItemName: "Nameless", RarityTag: "ancient"},
		{OccurredAt: at, ItemID: "it-3", ItemName: "Ring", RarityTag: "mythic"},
	}
	// Detail lookup knows it-1 better than the entry does: it is actually
	// ancient, and carries the display name.
	details := map[string]upstream.ItemDetail{
		"it-1": {ID: "it-1", Name: "Ancient Blade", Grade: "ancient"},
		"it-3": {ID: "it-3", Name: "Plain Ring", Grade: "common"},
	}

	got := NewDetector().Detect(key, entries, details)
	if len(got) != 2 {
		t.Fatalf("Detect returned %d events, want 2: %+v", len(got), got)
	}
	if got[0].ItemID != "it-1" || got[0].ItemName != "Ancient Blade" || got[0].Rarity != "ancient" {
		t.Fatalf("detail lookup should be authoritative, got %+v", got[0])
	}
	if got[1].ItemID != "it-2" {
		t.Fatalf("entry-tag fallback missing, got %+v", got[1])
	}
}

func TestDetectNilDetails(t *testing.T) {
	t.Parallel()
	key := CharacterKey{Server: "luna", Name: "aria"}
	entries := []upstream.LogEntry{
		{ItemID: "it-1", RarityTag: "Mythic"},
	}
	got := NewDetector().Detect(key, entries, nil)
	if len(got) != 1 {
		t.Fatalf("Detect = %+v, want one event", got)
	}
}

func TestItemIDs(t *testing.T) {
	t.Parallel()
	entries := []upstream.LogEntry{
		{ItemID: "b"}, {ItemID: "a"}, {ItemID: "b"}, {ItemID: ""}, {ItemID: "c"},
	}
	got := ItemIDs(entries)
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("ItemIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ItemIDs = %v, want %v", got, want)
		}
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()
	key, err := ParseKey("luna/aria")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if key.Server != "luna" || key.Name != "aria" {
		t.Fatalf("ParseKey = %+v", key)
	}
	if key.String() != "luna/aria" {
		t.Fatalf("String = %s", key.String())
	}

	for _, bad := range []string{"", "luna", "/aria", "luna/"} {
		if _, err := ParseKey(bad); err == nil {
			t.Fatalf("ParseKey(%q) succeeded, want error", bad)
		}
	}
}

func TestDedupeKeyStability(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := Event{
		Character:  CharacterKey{Server: "luna", Name: "aria"},
		ItemID:     "it-1",
		OccurredAt: at,
	}
	want := "luna/aria|it-1|1772366400"
	if got := ev.DedupeKey(); got != want {
		t.Fatalf("DedupeKey = %s, want %s", got, want)
	}
	// Same drop reported with a different rarity label must still collide.
	ev.Rarity = "Ancient"
	if got := ev.DedupeKey(); got != want {
		t.Fatalf("DedupeKey changed with rarity: %s", got)
	}
}

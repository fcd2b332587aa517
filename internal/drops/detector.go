// Package drops classifies activity-log entries into rare-drop events.
package drops

import (
	"strings"

	"dropwatch/internal/upstream"
)

// rarityTokens are the accepted spellings of the target rarity class.
// Matching is case-insensitive substring, so locale variants like
// "Ancient weapon chest" or "고대 무기" classify without an exact-label
// contract with the upstream.
var rarityTokens = []string{"ancient", "mythic", "고대"}

// IsRare reports whether a rarity label names the target class.
func IsRare(label string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return false
	}
	for _, tok := range rarityTokens {
		if strings.Contains(l, tok) {
			return true
		}
	}
	return false
}

// Detector turns fetched log entries into drop events.
//
// Rarity can arrive on two paths: denormalized on the log entry itself,
// or via the batched item-detail lookup. The detail lookup is
// authoritative when it knows the item; the entry's own tag is the
// fallback.
type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// Detect returns the rare subset of entries as Events for the given
// character. details may be nil. Entries without an item identifier are
// malformed, not errors: they are skipped silently. Output order follows
// input order; the presentation layer re-sorts for display.
func (d *Detector) Detect(key CharacterKey, entries []upstream.LogEntry, details map[string]upstream.ItemDetail) []Event {
	var out []Event
	for _, e := range entries {
		if e.ItemID == "" {
			continue
		}

		rarity := e.RarityTag
		name := e.ItemName
		if det, ok := details[e.ItemID]; ok {
			rarity = det.Grade
			if det.Name != "" {
				name = det.Name
			}
		}
		if !IsRare(rarity) {
			continue
		}

		out = append(out, Event{
			Character:  key,
			ItemID:     e.ItemID,
			ItemName:   name,
			Rarity:     rarity,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}

// ItemIDs collects the distinct item identifiers of entries, in first-seen
// order, for the batched detail lookup.
func ItemIDs(entries []upstream.LogEntry) []string {
	seen := make(map[string]bool, len(entries))
	var ids []string
	for _, e := range entries {
		if e.ItemID == "" || seen[e.ItemID] {
			continue
		}
		seen[e.ItemID] = true
		ids = append(ids, e.ItemID)
	}
	return ids
}

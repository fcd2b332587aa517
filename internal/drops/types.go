package drops

import (
	"fmt"
	"strings"
	"time"
)

// CharacterKey uniquely names a tracked character: server + name.
type CharacterKey struct {
	Server string `json:"server"`
	Name   string `json:"name"`
}

func (k CharacterKey) String() string { return k.Server + "/" + k.Name }

func (k CharacterKey) IsZero() bool { return k.Server == "" && k.Name == "" }

// ParseKey parses the "server/name" form used in URLs and snapshots.
func ParseKey(s string) (CharacterKey, error) {
	server, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || server == "" || name == "" {
		return CharacterKey{}, fmt.Errorf("invalid character key %q (want server/name)", s)
	}
	return CharacterKey{Server: server, Name: name}, nil
}

// Event is one detected rare drop: the immutable unit of delivery to
// both the live channel and the webhook sink.
type Event struct {
	Character  CharacterKey `json:"character"`
	ItemID     string       `json:"item_id"`
	ItemName   string       `json:"item_name"`
	Rarity     string       `json:"rarity"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// DedupeKey derives the at-most-once suppression key. Two upstream
// reports of the same physical drop (same character, item and second)
// collapse to one key; the same item dropping again later does not.
func (e Event) DedupeKey() string {
	return fmt.Sprintf("%s|%s|%d", e.Character, e.ItemID, e.OccurredAt.Unix())
}

package upstream

import "time"

// LogEntry is one activity-log row as reported by the game API.
// Entries are transient: fetched once per cycle and handed to the detector.
type LogEntry struct {
	OccurredAt time.Time
	Code       int
	ItemID     string
	ItemName   string
	RarityTag  string
}

// CharacterProfile is the basic profile returned by the character lookup.
type CharacterProfile struct {
	Server string `json:"server"`
	Name   string `json:"name"`
	Level  int    `json:"level,omitempty"`
}

// ItemDetail is one row of the batched item-detail lookup.
type ItemDetail struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Grade string `json:"grade"`
}

// wire structs

type timelinePage struct {
	Timeline struct {
		List []timelineEntry `json:"list"`
		// Next is the opaque next-page pointer. It is usually a string
		// (absolute or relative URL) but the upstream is not trusted to
		// keep it well-typed, so it is decoded loosely.
		Next any `json:"next"`
	} `json:"timeline"`
}

type timelineEntry struct {
	Date     string `json:"date"`
	Code     int    `json:"code"`
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Grade    string `json:"grade"`
}

type itemsResponse struct {
	Items []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Grade string `json:"grade"`
	} `json:"items"`
}

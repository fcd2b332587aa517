package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	logx "dropwatch/pkg/logx"
)

// FetchTimeline returns the activity-log entries for one character in
// (from, to], filtered upstream to the configured event-code allow-list,
// in the order the upstream returned them.
//
// Pages are followed via the response's "next" pointer until the pointer
// is absent, not a string, or maxPages have been fetched. Any transport
// or status error aborts the whole call: pages collected earlier in the
// same call are discarded so the caller never advances its cursor over a
// half-read window.
func (c *Client) FetchTimeline(ctx context.Context, server, character string, from, to time.Time) ([]LogEntry, error) {
	u := c.timelineURL(server, character, from, to)

	var entries []LogEntry
	for page := 0; page < maxPages; page++ {
		var body timelinePage
		if err := c.get(ctx, u, &body); err != nil {
			return nil, fmt.Errorf("timeline page %d: %w", page+1, err)
		}

		for _, raw := range body.Timeline.List {
			e, err := raw.toEntry()
			if err != nil {
				// Row-level garbage is skipped, not fatal.
				c.log.Debug("skipping malformed timeline row", logx.Any("err", err))
				continue
			}
			entries = append(entries, e)
		}

		next, ok := cursorString(body.Timeline.Next)
		if !ok {
			break
		}
		resolved, err := c.resolveCursor(timelinePath(server, character), next)
		if err != nil {
			// Treat like a transient upstream failure: discard and retry
			// the whole window on the next tick.
			return nil, err
		}
		u = resolved
	}
	return entries, nil
}

func (c *Client) timelineURL(server, character string, from, to time.Time) *url.URL {
	u := *c.base
	u.Path = timelinePath(server, character)
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("code", c.codes)
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()
	return &u
}

func timelinePath(server, character string) string {
	return "/api/v1/characters/" + url.PathEscape(server) + "/" + url.PathEscape(character) + "/timeline"
}

// cursorString reports whether the loosely-decoded next pointer is a
// usable cursor. Anything but a non-empty string means "last page".
func cursorString(next any) (string, bool) {
	s, ok := next.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (t timelineEntry) toEntry() (LogEntry, error) {
	when, err := time.Parse(time.RFC3339, t.Date)
	if err != nil {
		return LogEntry{}, fmt.Errorf("bad date %q: %w", t.Date, err)
	}
	return LogEntry{
		OccurredAt: when,
		Code:       t.Code,
		ItemID:     t.ItemID,
		ItemName:   t.ItemName,
		RarityTag:  t.Grade,
	}, nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

func readShort(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}

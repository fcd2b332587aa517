package upstream

import (
	"errors"
	"testing"

	logx "dropwatch/pkg/logx"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:    baseURL,
		APIKey:     "secret",
		RatePerSec: 100,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestResolveCursorVariants(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "https://api.example.com")
	const canonical = "/api/v1/characters/luna/aria/timeline"

	tests := []struct {
		name string
		next string
		want string
	}{
		{
			name: "absolute url keeps its own apikey",
			next: "https://api.example.com/api/v1/characters/luna/aria/timeline?page=2&apikey=other",
			want: "https://api.example.com/api/v1/characters/luna/aria/timeline?apikey=other&page=2",
		},
		{
			name: "relative cursor without credential gets it re-attached",
			next: "?page=2",
			want: "https://api.example.com/api/v1/characters/luna/aria/timeline?apikey=secret&page=2",
		},
		{
			name: "path-style cursor is rebased onto the canonical path",
			next: "/v2/other/path?cursor=abc",
			want: "https://api.example.com/api/v1/characters/luna/aria/timeline?apikey=secret&cursor=abc",
		},
		{
			name: "foreign host is replaced by the canonical one",
			next: "https://evil.example.net/steal?cursor=abc",
			want: "https://api.example.com/api/v1/characters/luna/aria/timeline?apikey=secret&cursor=abc",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.resolveCursor(canonical, tt.next)
			if err != nil {
				t.Fatalf("resolveCursor(%q) error: %v", tt.next, err)
			}
			if got.String() != tt.want {
				t.Fatalf("resolveCursor(%q) = %s, want %s", tt.next, got, tt.want)
			}
		})
	}
}

func TestResolveCursorMalformed(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, "https://api.example.com")

	tests := []struct {
		name string
		next string
	}{
		{name: "invalid url escape", next: "%zz"},
		{name: "broken host literal", next: "https://[::1"},
		{name: "no query at all", next: "/api/v1/characters/luna/aria/timeline"},
		{name: "unparseable query", next: "?a=%zz"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.resolveCursor("/p", tt.next)
			if !errors.Is(err, ErrBadCursor) {
				t.Fatalf("resolveCursor(%q) error = %v, want ErrBadCursor", tt.next, err)
			}
		})
	}
}

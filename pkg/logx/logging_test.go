package logx

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" info ", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.raw, zerolog.InfoLevel); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate long = %q (len %d)", got, len(got))
	}
	if got := truncate(long, 5); got != "xxxxx" {
		t.Fatalf("truncate tiny = %q", got)
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"2026-03-01T12:00:00Z","message":"cycle aborted","character":"luna/aria"}`
	got := formatTelegramJSON([]byte(line))
	if !strings.HasPrefix(got, "[WARN] cycle aborted") {
		t.Fatalf("formatted = %q", got)
	}
	if !strings.Contains(got, "character=luna/aria") {
		t.Fatalf("attr missing: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time attr should be dropped: %q", got)
	}

	// Non-JSON input passes through.
	if got := formatTelegramJSON([]byte("plain panic text")); got != "plain panic text" {
		t.Fatalf("passthrough = %q", got)
	}
}

func TestNopLogger(t *testing.T) {
	t.Parallel()
	l := Nop()
	if l.IsZero() {
		t.Fatal("Nop logger must be usable, not zero")
	}
	// Must not panic with no backing service.
	l.Info("ignored", String("k", "v"), Err(nil))
	l.With(Int("n", 1)).Warn("also ignored")
}

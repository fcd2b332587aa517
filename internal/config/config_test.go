package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"15s", 15 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"48h", 48 * time.Hour, false},
		{"-5s", 0, true},
		{"15", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDurationField(%q) = %v, %v; want %v", tt.raw, got, err, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", 15*time.Second); err != nil || d != 15*time.Second {
		t.Fatalf("empty = %v, %v; want default", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "1m", 15*time.Second); err != nil || d != time.Minute {
		t.Fatalf("explicit = %v, %v; want 1m", d, err)
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestManagerParseYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
upstream:
  base_url: https://api.example.com
  api_key: secret
  event_codes: [504, 505]
watcher:
  poll_interval: 15s
logging:
  console: true
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Upstream.BaseURL != "https://api.example.com" {
		t.Fatalf("base_url = %s", cfg.Upstream.BaseURL)
	}
	if len(cfg.Upstream.EventCodes) != 2 || cfg.Upstream.EventCodes[0] != 504 {
		t.Fatalf("event_codes = %v", cfg.Upstream.EventCodes)
	}
	if cfg.Watcher.PollInterval != "15s" {
		t.Fatalf("poll_interval = %s", cfg.Watcher.PollInterval)
	}
}

func TestManagerParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json",
		`{"upstream":{"base_url":"https://api.example.com","api_key":"k","tyop":true}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestManagerParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.json",
		`{"upstream":{"base_url":"https://api.example.com","api_key":"k"}}{"more":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func validConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL: "https://api.example.com",
			APIKey:  "secret",
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	if err := Validate(t.Context(), validConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil base url", func(c *Config) { c.Upstream.BaseURL = "" }},
		{"relative base url", func(c *Config) { c.Upstream.BaseURL = "/just/a/path" }},
		{"empty api key", func(c *Config) { c.Upstream.APIKey = "  " }},
		{"bad poll interval", func(c *Config) { c.Watcher.PollInterval = "fast" }},
		{"negative ttl", func(c *Config) { c.Dedupe.TTL = "-1h" }},
		{"relative webhook url", func(c *Config) { c.Sinks.Webhook.URL = "hooks/incoming" }},
		{"telegram enabled without token", func(c *Config) {
			c.Sinks.Telegram.Enabled = true
			c.Sinks.Telegram.ChatID = 7
		}},
		{"telegram enabled without chat", func(c *Config) {
			c.Sinks.Telegram.Enabled = true
			c.Sinks.Telegram.Token = "tok"
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(t.Context(), cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSummarizeConfigChangeSections(t *testing.T) {
	t.Parallel()
	oldCfg := validConfig()
	newCfg := validConfig()
	newCfg.Upstream.APIKey = "rotated-sekrit"
	newCfg.Watcher.PollInterval = "30s"
	newCfg.Sinks.Webhook.URL = "https://hooks.example.com/sekrit-path"

	sections, fields := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"upstream": true, "watcher": true, "sinks": true}
	for _, s := range sections {
		delete(want, s)
	}
	if len(want) != 0 {
		t.Fatalf("sections = %v, missing %v", sections, want)
	}

	// Render the attrs and make sure no secret leaked into the log line.
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Info()
	for _, f := range fields {
		f(ev)
	}
	ev.Send()
	line := buf.String()
	if strings.Contains(line, "sekrit") {
		t.Fatalf("secret leaked into log attrs: %s", line)
	}
	if !strings.Contains(line, "api_key_set") || !strings.Contains(line, "webhook_set") {
		t.Fatalf("redacted booleans missing: %s", line)
	}
}

func TestSummarizeConfigChangeNoChanges(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	sections, _ := SummarizeConfigChange(cfg, cfg)
	if len(sections) != 0 {
		t.Fatalf("sections = %v, want none", sections)
	}
}

package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks cross-field constraints that the strict decoder can't.
// It is installed as the Manager's validator so hot-reloads reject bad
// configs before they are published.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Upstream.BaseURL) == "" {
		return errors.New("upstream.base_url is required")
	}
	if u, err := url.Parse(cfg.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url %q is not an absolute URL", cfg.Upstream.BaseURL)
	}
	if strings.TrimSpace(cfg.Upstream.APIKey) == "" {
		return errors.New("upstream.api_key is required")
	}
	if cfg.Upstream.PageLimit < 0 {
		return errors.New("upstream.page_limit must be >= 0")
	}

	durations := []struct {
		path string
		raw  string
	}{
		{"upstream.timeout", cfg.Upstream.Timeout},
		{"watcher.poll_interval", cfg.Watcher.PollInterval},
		{"watcher.slack", cfg.Watcher.Slack},
		{"watcher.initial_lookback", cfg.Watcher.InitialLookback},
		{"watcher.idle_evict_after", cfg.Watcher.IdleEvictAfter},
		{"dedupe.ttl", cfg.Dedupe.TTL},
		{"dedupe.sweep_interval", cfg.Dedupe.SweepInterval},
		{"live.heartbeat_interval", cfg.Live.HeartbeatInterval},
		{"live.write_timeout", cfg.Live.WriteTimeout},
		{"sinks.webhook.timeout", cfg.Sinks.Webhook.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	if wu := strings.TrimSpace(cfg.Sinks.Webhook.URL); wu != "" {
		if u, err := url.Parse(wu); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("sinks.webhook.url %q is not an absolute URL", wu)
		}
	}
	if cfg.Sinks.Telegram.Enabled {
		if strings.TrimSpace(cfg.Sinks.Telegram.Token) == "" {
			return errors.New("sinks.telegram.token is required when the telegram sink is enabled")
		}
		if cfg.Sinks.Telegram.ChatID == 0 {
			return errors.New("sinks.telegram.chat_id is required when the telegram sink is enabled")
		}
	}
	return nil
}

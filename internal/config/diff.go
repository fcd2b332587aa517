package config

import (
	"reflect"
	"strings"

	logx "dropwatch/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging. Secrets (api key, bot token,
// webhook URL) are never included, only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	// Upstream (never log the api key)
	if strings.TrimSpace(oldCfg.Upstream.BaseURL) != strings.TrimSpace(newCfg.Upstream.BaseURL) ||
		oldCfg.Upstream.APIKey != newCfg.Upstream.APIKey ||
		oldCfg.Upstream.PageLimit != newCfg.Upstream.PageLimit ||
		oldCfg.Upstream.RatePerSec != newCfg.Upstream.RatePerSec ||
		strings.TrimSpace(oldCfg.Upstream.Timeout) != strings.TrimSpace(newCfg.Upstream.Timeout) ||
		!reflect.DeepEqual(oldCfg.Upstream.EventCodes, newCfg.Upstream.EventCodes) {
		changed = append(changed, "upstream")
		attrs = append(attrs,
			logx.String("upstream.base_url", strings.TrimSpace(newCfg.Upstream.BaseURL)),
			logx.Bool("upstream.api_key_set", strings.TrimSpace(newCfg.Upstream.APIKey) != ""),
			logx.Int("upstream.page_limit", newCfg.Upstream.PageLimit),
			logx.Int("upstream.rate_per_sec", newCfg.Upstream.RatePerSec),
		)
	}

	if oldCfg.Watcher != newCfg.Watcher {
		changed = append(changed, "watcher")
		attrs = append(attrs,
			logx.String("watcher.poll_interval", newCfg.Watcher.PollInterval),
			logx.String("watcher.slack", newCfg.Watcher.Slack),
			logx.Int("watcher.max_subscriptions", newCfg.Watcher.MaxSubscriptions),
			logx.String("watcher.idle_evict_after", newCfg.Watcher.IdleEvictAfter),
		)
	}

	if oldCfg.Dedupe != newCfg.Dedupe {
		changed = append(changed, "dedupe")
		attrs = append(attrs,
			logx.String("dedupe.ttl", newCfg.Dedupe.TTL),
			logx.String("dedupe.sweep_interval", newCfg.Dedupe.SweepInterval),
		)
	}

	if !reflect.DeepEqual(oldCfg.Live, newCfg.Live) {
		changed = append(changed, "live")
		attrs = append(attrs,
			logx.String("live.heartbeat_interval", newCfg.Live.HeartbeatInterval),
			logx.Int("live.allowed_origins", len(newCfg.Live.AllowedOrigins)),
		)
	}

	// Sinks (never log webhook URL or bot token)
	if oldCfg.Sinks != newCfg.Sinks {
		changed = append(changed, "sinks")
		attrs = append(attrs,
			logx.Bool("sinks.webhook_set", strings.TrimSpace(newCfg.Sinks.Webhook.URL) != ""),
			logx.Bool("sinks.telegram_enabled", newCfg.Sinks.Telegram.Enabled),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
	}
	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure {
		changed = append(changed, "pprof")
	}
	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
	}

	return changed, attrs
}

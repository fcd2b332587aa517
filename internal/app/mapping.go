package app

import (
	"time"

	"dropwatch/internal/config"
	"dropwatch/internal/dedupe"
	"dropwatch/internal/server"
	"dropwatch/internal/services/broadcast"
	"dropwatch/internal/services/maintenance"
	"dropwatch/internal/services/notify"
	"dropwatch/internal/services/pprof"
	"dropwatch/internal/storage"
	"dropwatch/internal/upstream"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

// dur resolves a duration-string config field. Validation already
// rejected unparseable values, so the error path only covers configs
// committed before the validator was installed.
func dur(path, raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault(path, raw, def)
	if err != nil {
		return def
	}
	return d
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Logging.Telegram.ChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: dur("storage.busy_timeout", cfg.Storage.BusyTimeout, 0),
	}
}

func upstreamConfig(cfg *config.Config) upstream.Config {
	return upstream.Config{
		BaseURL:    cfg.Upstream.BaseURL,
		APIKey:     cfg.Upstream.APIKey,
		PageLimit:  cfg.Upstream.PageLimit,
		EventCodes: cfg.Upstream.EventCodes,
		RatePerSec: cfg.Upstream.RatePerSec,
		Timeout:    dur("upstream.timeout", cfg.Upstream.Timeout, 10*time.Second),
	}
}

func dedupeConfig(cfg *config.Config) dedupe.Config {
	return dedupe.Config{
		TTL:           dur("dedupe.ttl", cfg.Dedupe.TTL, dedupe.DefaultTTL),
		SweepInterval: dur("dedupe.sweep_interval", cfg.Dedupe.SweepInterval, dedupe.DefaultSweepInterval),
	}
}

func pollerConfig(cfg *config.Config) watch.PollerConfig {
	return watch.PollerConfig{
		Interval: dur("watcher.poll_interval", cfg.Watcher.PollInterval, watch.DefaultPollInterval),
		Slack:    dur("watcher.slack", cfg.Watcher.Slack, watch.DefaultSlack),
	}
}

func broadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		HeartbeatInterval: dur("live.heartbeat_interval", cfg.Live.HeartbeatInterval, 0),
		WriteTimeout:      dur("live.write_timeout", cfg.Live.WriteTimeout, 0),
	}
}

func webhookConfig(cfg *config.Config) notify.WebhookConfig {
	return notify.WebhookConfig{
		URL:     cfg.Sinks.Webhook.URL,
		Timeout: dur("sinks.webhook.timeout", cfg.Sinks.Webhook.Timeout, 0),
	}
}

func telegramSinkConfig(cfg *config.Config) notify.TelegramConfig {
	return notify.TelegramConfig{
		Enabled: cfg.Sinks.Telegram.Enabled,
		ChatID:  cfg.Sinks.Telegram.ChatID,
	}
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Addr:            cfg.Server.Addr,
		InitialLookback: dur("watcher.initial_lookback", cfg.Watcher.InitialLookback, 5*time.Minute),
		AllowedOrigins:  cfg.Live.AllowedOrigins,
	}
}

func maintenanceConfig(cfg *config.Config) maintenance.Config {
	return maintenance.Config{
		Enabled:        cfg.Maintenance.Enabled,
		SnapshotSpec:   cfg.Maintenance.SnapshotSpec,
		EvictSpec:      cfg.Maintenance.EvictSpec,
		CompactSpec:    cfg.Maintenance.CompactSpec,
		Timezone:       cfg.Maintenance.Timezone,
		IdleEvictAfter: dur("watcher.idle_evict_after", cfg.Watcher.IdleEvictAfter, 0),
	}
}

func pprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}

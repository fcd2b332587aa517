package config

type Config struct {
	Upstream UpstreamConfig `json:"upstream"`
	Watcher  WatcherConfig  `json:"watcher"`
	Dedupe   DedupeConfig   `json:"dedupe"`
	Live     LiveConfig     `json:"live"`
	Sinks    SinksConfig    `json:"sinks"`
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`

	Storage     *StorageConfig    `json:"storage,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Pprof       PprofConfig       `json:"pprof,omitempty"`
}

// UpstreamConfig points at the game activity-log API.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type UpstreamConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`

	// PageLimit is the per-page entry count requested from upstream.
	// Values above the upstream hard maximum are clamped there.
	PageLimit int `json:"page_limit,omitempty"`

	// EventCodes is the allow-list of item-related event-type codes
	// sent as a comma-joined query parameter.
	EventCodes []int `json:"event_codes,omitempty"`

	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// WatcherConfig controls the poll scheduler.
type WatcherConfig struct {
	// PollInterval is the fixed per-subscription cadence (default "15s").
	PollInterval string `json:"poll_interval,omitempty"`

	// Slack absorbs scheduler jitter: a subscription is due when
	// now - lastCycleStart >= PollInterval - Slack (default "500ms").
	Slack string `json:"slack,omitempty"`

	// InitialLookback backdates a new subscription's first window so the
	// first cycle doesn't see a false-empty window (default "5m").
	InitialLookback string `json:"initial_lookback,omitempty"`

	// MaxSubscriptions caps the registry (default 500).
	MaxSubscriptions int `json:"max_subscriptions,omitempty"`

	// IdleEvictAfter removes subscriptions with no successful cycle for
	// this long. "0s" (the default) disables eviction.
	IdleEvictAfter string `json:"idle_evict_after,omitempty"`
}

// DedupeConfig controls at-most-once delivery suppression.
type DedupeConfig struct {
	TTL           string `json:"ttl,omitempty"`            // default "48h"
	SweepInterval string `json:"sweep_interval,omitempty"` // default "60s"
}

// LiveConfig controls the websocket live channel.
type LiveConfig struct {
	HeartbeatInterval string   `json:"heartbeat_interval,omitempty"` // default "30s"
	WriteTimeout      string   `json:"write_timeout,omitempty"`      // default "10s"
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`
}

// SinksConfig configures outbound best-effort delivery.
type SinksConfig struct {
	Webhook  WebhookSink  `json:"webhook,omitempty"`
	Telegram TelegramSink `json:"telegram,omitempty"`
}

// WebhookSink is a single fire-and-forget POST target.
// An empty URL disables the sink.
type WebhookSink struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"` // default "8s"
}

// TelegramSink optionally mirrors drop notifications to a chat.
type TelegramSink struct {
	Enabled bool   `json:"enabled,omitempty"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr,omitempty"` // default ":8080"
}

type LoggingConfig struct {
	Level    string            `json:"level,omitempty"`
	Console  bool              `json:"console"`
	File     LogFileConfig     `json:"file,omitempty"`
	Telegram LogTelegramConfig `json:"telegram,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type LogTelegramConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dropwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// MaintenanceConfig controls background housekeeping jobs.
// Specs are cron expressions or @every descriptors.
type MaintenanceConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	SnapshotSpec string `json:"snapshot_spec,omitempty"` // default "@every 5m"
	EvictSpec    string `json:"evict_spec,omitempty"`    // default "@every 10m"
	CompactSpec  string `json:"compact_spec,omitempty"`  // default "0 */6 * * *"
	Timezone     string `json:"timezone,omitempty"`      // IANA TZ
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

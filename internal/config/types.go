package config

// Config is the whole bot configuration. It is loaded from a JSON or YAML
// file; YAML is coerced to JSON so both formats go through the same strict
// decoder (unknown fields are rejected).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "24h").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Catalog  CatalogConfig  `json:"catalog"`
	Watcher  WatcherConfig  `json:"watcher"`

	// Notifier controls outbound message pacing. If omitted, defaults apply.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is the long-poll timeout for getUpdates (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// CatalogConfig controls the item-shop catalog client.
//
// Defaults (when fields are omitted/zero):
//   - base_url: the public shop endpoint
//   - timeout: "10s"
//   - retry_max: 2
type CatalogConfig struct {
	BaseURL  string `json:"base_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
	RetryMax int    `json:"retry_max,omitempty"`
}

// WatcherConfig controls per-user poll jobs.
type WatcherConfig struct {
	// PollInterval is the period of each user's recurring shop check
	// (default "24h", matching the notification cooldown window).
	PollInterval string `json:"poll_interval,omitempty"`
}

type NotifierConfig struct {
	// RatePerSec caps outbound Telegram messages (default 3).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

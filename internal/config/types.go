package config

// Config is the full bot configuration. Files may be JSON or YAML; both go
// through the same strict decoder, so unknown keys are rejected.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	API           APIConfig           `json:"api"`
	Monitor       MonitorConfig       `json:"monitor"`
	Notifications NotificationsConfig `json:"notifications"`
	Data          DataConfig          `json:"data"`
	History       *HistoryConfig      `json:"history,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// BroadcastChatIDs receive stock/weather change announcements.
	BroadcastChatIDs []int64 `json:"broadcast_chat_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// APIConfig controls the garden API client.
//
// Defaults (when fields are omitted/zero):
//   - base_url: the public growagarden API
//   - timeout: "10s"
//   - retry_max: 3 attempts total
//   - retry_delay: "1s"
type APIConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
}

// MonitorConfig controls the poll cadences. Schedules are cron specs.
type MonitorConfig struct {
	StockSchedule   string `json:"stock_schedule,omitempty"`   // default "*/2 * * * *"
	WeatherSchedule string `json:"weather_schedule,omitempty"` // default "*/1 * * * *"
	FlushSchedule   string `json:"flush_schedule,omitempty"`   // default "*/5 * * * *"
	Timezone        string `json:"timezone,omitempty"`         // IANA TZ; empty = local
}

// NotificationsConfig controls what gets announced and how the async
// delivery pipeline behaves.
//
// StockChanges and WeatherEvents are pointers so "omitted" (default true)
// can be told apart from an explicit false.
type NotificationsConfig struct {
	StockChanges  *bool `json:"stock_changes,omitempty"`
	WeatherEvents *bool `json:"weather_events,omitempty"`

	// MinQuantity is the smallest quantity that counts as "in stock" for
	// announcements. Watchlist matching always requires quantity > 0.
	MinQuantity int `json:"min_quantity,omitempty"`

	// IncreaseOnly suppresses quantity-decrease announcements.
	IncreaseOnly bool `json:"increase_only,omitempty"`

	// DedupWindow suppresses repeated watchlist alerts for the same
	// (subscriber, item) while it stays in stock. "0s" restores
	// re-notification on every cycle. Default "30m".
	DedupWindow string `json:"dedup_window,omitempty"`

	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type DataConfig struct {
	Dir        string `json:"dir"`
	BackupKeep int    `json:"backup_keep,omitempty"` // default 10
}

// HistoryConfig controls the optional notice/dedup persistence.
//
// Example:
//
//	"history": { "driver": "file", "path": "./data/history" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

func (n NotificationsConfig) StockChangesEnabled() bool {
	return n.StockChanges == nil || *n.StockChanges
}

func (n NotificationsConfig) WeatherEventsEnabled() bool {
	return n.WeatherEvents == nil || *n.WeatherEvents
}

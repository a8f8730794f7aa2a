package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler controls the trigger engine (once/interval/cron) and its
	// execution pool.
	Scheduler SchedulerConfig `json:"scheduler"`

	// API controls the local HTTP control surface.
	API APIConfig `json:"api"`

	// Notify controls failure notifications. Omitted means disabled.
	Notify *NotifyConfig `json:"notify,omitempty"`

	// History controls the optional run-history persistence layer.
	// Omitted means in-memory only.
	History *HistoryConfig `json:"history,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Notify  LoggingNotify `json:"notify"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingNotify mirrors high-severity log lines to the configured notifier.
type LoggingNotify struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the scheduler engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "1s"
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is the IANA zone triggers are evaluated in (e.g. "Asia/Jakarta").
	// Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`

	// TickInterval is the due-job check resolution.
	TickInterval string `json:"tick_interval,omitempty"`

	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// DefaultTimeout bounds a single command run. Use "0s" to disable.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// APIConfig controls the HTTP control surface.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8010").
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8010"

	// Server timeouts (Go duration strings). Leave empty for defaults.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// NotifyConfig controls the Telegram failure notifier.
type NotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	// PollTimeout is a Go duration string; the bot only sends, so this mostly
	// affects shutdown latency.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// HistoryConfig controls run-history persistence.
//
// Example:
//
//	"history": { "enabled": true, "path": "./vesper_history.db" }
type HistoryConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Retention caps stored rows; oldest rows are pruned past this count.
	Retention int `json:"retention,omitempty"`
}

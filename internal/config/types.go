package config

// Config is the on-disk configuration. JSON and YAML are both accepted;
// unknown keys are rejected.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Engine    EngineConfig    `json:"engine"`
	Storage   StorageConfig   `json:"storage"`
	Inventory InventoryConfig `json:"inventory"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// EngineConfig tunes the notification engine. Omitted or zero values fall
// back to the engine defaults.
//
// Window and age settings are whole seconds, matching the persisted data
// written by older releases. Timeouts are Go duration strings.
type EngineConfig struct {
	DedupWindowSeconds  int    `json:"dedup_window_seconds,omitempty"`  // default 300
	MaxRetained         int    `json:"max_retained,omitempty"`          // default 50
	RetentionSeconds    int    `json:"retention_seconds,omitempty"`     // default 604800 (7 days)
	ScanIntervalSeconds int    `json:"scan_interval_seconds,omitempty"` // default 900
	SweepSchedule       string `json:"sweep_schedule,omitempty"`        // default "@daily"
	ProbeTimeout        string `json:"probe_timeout,omitempty"`         // default "30s"
	PersistTimeout      string `json:"persist_timeout,omitempty"`       // default "5s"
	ExpiryWindowDays    int    `json:"expiry_window_days,omitempty"`    // default 30
	UrgentExpiryDays    int    `json:"urgent_expiry_days,omitempty"`    // default 7
	DisableProbes       bool   `json:"disable_probes,omitempty"`
	Timezone            string `json:"timezone,omitempty"`
}

// StorageConfig selects the durable slot for the notification snapshot.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./rxalert.db" }
type StorageConfig struct {
	Driver      string      `json:"driver"` // none|file|sqlite|redis|memory
	Path        string      `json:"path,omitempty"`
	Key         string      `json:"key,omitempty"`          // default "pharmacy_notifications"
	BusyTimeout string      `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // never logged
	DB       int    `json:"db,omitempty"`
}

// InventoryConfig selects where stock levels and batches are read from.
type InventoryConfig struct {
	Driver      string `json:"driver"` // none|sqlite|memory
	Path        string `json:"path,omitempty"`
	Fixtures    string `json:"fixtures,omitempty"` // JSON fixtures for the memory driver
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DeliveryConfig controls the async delivery pipeline and its channels.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type DeliveryConfig struct {
	Sinks         []string       `json:"sinks,omitempty"` // desktop, telegram; empty disables delivery
	QueueSize     int            `json:"queue_size,omitempty"`
	RatePerSec    int            `json:"rate_per_sec,omitempty"`
	RetryMax      int            `json:"retry_max,omitempty"`
	RetryBase     string         `json:"retry_base,omitempty"`
	RetryMaxDelay string         `json:"retry_max_delay,omitempty"`
	AutoDismiss   string         `json:"auto_dismiss,omitempty"` // default "5s"
	Desktop       DesktopConfig  `json:"desktop,omitempty"`
	Telegram      TelegramConfig `json:"telegram,omitempty"`
}

type DesktopConfig struct {
	AppName string `json:"app_name,omitempty"` // default "rxalert"
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"` // never logged
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (health, metrics,
// status, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - A non-loopback address needs a token or an explicit allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// Default is the configuration used when no file is given: console logging,
// a file slot next to the working directory and no inventory source.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file", Path: "./rxalert_data"},
	}
}

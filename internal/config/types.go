package config

// Config is the full on-disk configuration.
//
// The file may be JSON or YAML; YAML is coerced to JSON before strict
// decoding, so unknown keys are rejected for both formats. All durations are
// Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Gateway   GatewayConfig   `json:"gateway"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Store     StoreConfig     `json:"store"`
	Dispatch  DispatchConfig  `json:"dispatch"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file"`
}

// HTTPConfig controls the REST surface.
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default ":3000"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// GatewayConfig selects and configures the delivery channel.
//
// Driver values:
//   - "twilio": WhatsApp via the Twilio Messages API
//   - "noop":   accept every send (dev/testing)
type GatewayConfig struct {
	Driver     string `json:"driver"`
	AccountSID string `json:"account_sid,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"` // do not log
	FromNumber string `json:"from_number,omitempty"`

	// SendTimeout bounds a single delivery attempt. Default "10s".
	SendTimeout string `json:"send_timeout,omitempty"`

	// DefaultCountryCode replaces a leading "0" when normalizing recipient
	// numbers to international form. Default "62".
	DefaultCountryCode string `json:"default_country_code,omitempty"`
}

// SchedulerConfig controls the due-reminder scan loop.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval,omitempty"` // default "60s"
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"
}

// StoreConfig controls reminder persistence.
//
// Driver values:
//   - "file":   full-state JSON snapshot, atomically replaced
//   - "sqlite": SQLite database file
type StoreConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`

	// FlushInterval batches snapshot writes after mutations. Default "2s".
	FlushInterval string `json:"flush_interval,omitempty"`

	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DispatchConfig controls delivery fan-out for a due batch.
//
// MaxAttempts is a pointer so "omitted" (default 25) can be distinguished
// from an explicit 0, which means retry forever.
type DispatchConfig struct {
	Workers     int    `json:"workers,omitempty"`      // default 4
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 3
	MaxAttempts *int   `json:"max_attempts,omitempty"` // default 25; 0 = unlimited
	SendTimeout string `json:"send_timeout,omitempty"` // default "10s"
}

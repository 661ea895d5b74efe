package config

import (
	"time"

	"github.com/rickgao/dex-scanner/internal/model"
)

// ScannerConfig is the root configuration for a scanner instance.
type ScannerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	Scanner  EngineConfig   `yaml:"scanner"`
	Tables   []TableConfig  `yaml:"tables"`
	Loader   LoaderConfig   `yaml:"loader"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this scanner.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds scanner API settings.
type APIConfig struct {
	RestURL      string        `yaml:"rest_url"`
	WSURL        string        `yaml:"ws_url"`
	APIKey       string        `yaml:"api_key"` // Optional bearer token
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// StreamConfig holds WebSocket settings shared by every table.
type StreamConfig struct {
	Reconnect          *bool         `yaml:"reconnect"` // Default: true
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// EngineConfig holds synchronization engine settings shared by every table.
type EngineConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	FlashWindow time.Duration `yaml:"flash_window"`
	Strategy    string        `yaml:"strategy"` // visible | mounted
}

// TableConfig describes one scanner table.
type TableConfig struct {
	Name     string       `yaml:"name"`
	Filter   model.Filter `yaml:"filter"`
	Sort     *model.Sort  `yaml:"sort"`     // Default: derived from the filter
	Realtime *bool        `yaml:"realtime"` // Default: true
}

// RealtimeEnabled reports whether the table subscribes to the stream.
func (t TableConfig) RealtimeEnabled() bool {
	return t.Realtime == nil || *t.Realtime
}

// LoaderConfig holds snapshot loader settings.
type LoaderConfig struct {
	InitialPages    int           `yaml:"initial_pages"`
	RefreshInterval time.Duration `yaml:"refresh_interval"` // 0 disables periodic refresh
	Concurrency     int           `yaml:"concurrency"`
	Timeout         time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the optional Postgres connection for price history.
// Persistence is disabled when Postgres.Host is empty.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Postgres.Host != ""
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds the health and Prometheus HTTP server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

package config

import (
	"time"

	"github.com/rickgao/dex-scanner/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "https://api-rs.dexcelerate.com"
	DefaultWSURL              = "wss://api-rs.dexcelerate.com/ws"
	DefaultAPITimeout         = 15 * time.Second
	DefaultMaxRetries         = 2
	DefaultRetryBackoff       = 500 * time.Millisecond
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultStreamBuffer       = 10000
	DefaultDebounce           = 100 * time.Millisecond
	DefaultFlashWindow        = 800 * time.Millisecond
	DefaultStrategy           = "visible"
	DefaultInitialPages       = 1
	DefaultLoaderConcurrency  = 4
	DefaultLoaderTimeout      = 10 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// DefaultTables mirrors the two side-by-side tables of the scanner UI:
// trending by volume and newest pairs by age.
func DefaultTables() []TableConfig {
	volume, age := model.RankVolume, model.RankAge
	desc := model.OrderDesc
	notHP := true
	return []TableConfig{
		{
			Name:   "trending",
			Filter: model.Filter{RankBy: &volume, OrderBy: &desc, IsNotHP: &notHP},
		},
		{
			Name:   "new",
			Filter: model.Filter{RankBy: &age, OrderBy: &desc, IsNotHP: &notHP},
		},
	}
}

func (c *ScannerConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Stream defaults
	if c.Stream.Reconnect == nil {
		reconnect := true
		c.Stream.Reconnect = &reconnect
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBuffer
	}

	// Engine defaults
	if c.Scanner.Debounce == 0 {
		c.Scanner.Debounce = DefaultDebounce
	}
	if c.Scanner.FlashWindow == 0 {
		c.Scanner.FlashWindow = DefaultFlashWindow
	}
	if c.Scanner.Strategy == "" {
		c.Scanner.Strategy = DefaultStrategy
	}

	if len(c.Tables) == 0 {
		c.Tables = DefaultTables()
	}

	// Loader defaults
	if c.Loader.InitialPages == 0 {
		c.Loader.InitialPages = DefaultInitialPages
	}
	if c.Loader.Concurrency == 0 {
		c.Loader.Concurrency = DefaultLoaderConcurrency
	}
	if c.Loader.Timeout == 0 {
		c.Loader.Timeout = DefaultLoaderTimeout
	}

	// Database defaults
	if c.Database.Enabled() {
		applyDBDefaults(&c.Database.Postgres)
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

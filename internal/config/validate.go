package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ScannerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := validateURL("api.rest_url", c.API.RestURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("api.ws_url", c.API.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Stream.ReconnectBaseDelay > c.Stream.ReconnectMaxDelay {
		return fmt.Errorf("stream.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Stream.ReconnectBaseDelay, c.Stream.ReconnectMaxDelay)
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Scanner.Debounce <= 0 {
		return errors.New("scanner.debounce must be > 0")
	}
	switch c.Scanner.Strategy {
	case "visible", "mounted":
	default:
		return fmt.Errorf("scanner.strategy must be visible or mounted, got %q", c.Scanner.Strategy)
	}

	if len(c.Tables) == 0 {
		return errors.New("at least one table is required")
	}
	seen := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		if err := t.validate(fmt.Sprintf("tables[%d]", i)); err != nil {
			return err
		}
		if seen[t.Name] {
			return fmt.Errorf("tables[%d].name %q is duplicated", i, t.Name)
		}
		seen[t.Name] = true
	}

	if c.Loader.InitialPages < 1 {
		return errors.New("loader.initial_pages must be >= 1")
	}
	if c.Loader.Concurrency < 1 {
		return errors.New("loader.concurrency must be >= 1")
	}
	if c.Loader.RefreshInterval < 0 {
		return errors.New("loader.refresh_interval must be >= 0")
	}

	if c.Database.Enabled() {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}

func (t *TableConfig) validate(prefix string) error {
	if t.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if t.Filter.RankBy != nil && !t.Filter.RankBy.Valid() {
		return fmt.Errorf("%s.filter.rank_by %q is not a known rank key", prefix, *t.Filter.RankBy)
	}
	if t.Filter.OrderBy != nil && !validOrder(string(*t.Filter.OrderBy)) {
		return fmt.Errorf("%s.filter.order_by must be asc or desc", prefix)
	}
	if t.Sort != nil {
		if !t.Sort.RankBy.Valid() {
			return fmt.Errorf("%s.sort.rank_by %q is not a known rank key", prefix, t.Sort.RankBy)
		}
		if t.Sort.OrderBy != "" && !validOrder(string(t.Sort.OrderBy)) {
			return fmt.Errorf("%s.sort.order_by must be asc or desc", prefix)
		}
	}
	return nil
}

func validOrder(s string) bool {
	return s == "asc" || s == "desc"
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s must include a host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s, got %q", field, strings.Join(schemes, ", "), u.Scheme)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *BoardConfig) Validate() error {
	if c.App.Key == "" {
		return errors.New("app.key is required")
	}
	if len(c.App.Key) != 32 {
		return fmt.Errorf("app.key must be 32 characters, got %d", len(c.App.Key))
	}
	if c.App.Secret == "" {
		return errors.New("app.secret is required")
	}
	if len(c.App.Secret) != 16 {
		return fmt.Errorf("app.secret must be 16 characters, got %d", len(c.App.Secret))
	}
	if u, err := url.Parse(c.App.CallbackURL); err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("app.callback_url must be an https URL, got %q", c.App.CallbackURL)
	}

	if c.API.RequestsPerMinute < 1 {
		return errors.New("api.requests_per_minute must be >= 1")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if err := c.Stream.validate("stream"); err != nil {
		return err
	}

	for id := range c.Fields {
		if strings.TrimSpace(id) == "" {
			return errors.New("fields contains an empty identifier")
		}
	}

	if c.Display.RefreshInterval <= 0 {
		return errors.New("display.refresh_interval must be > 0")
	}
	for i, col := range c.Display.Columns {
		prefix := fmt.Sprintf("display.columns[%d]", i)
		if col.Field == "" {
			return fmt.Errorf("%s.field is required", prefix)
		}
		if col.Width < 1 {
			return fmt.Errorf("%s.width must be >= 1", prefix)
		}
		if col.Align != "<" && col.Align != ">" {
			return fmt.Errorf("%s.align must be \"<\" or \">\", got %q", prefix, col.Align)
		}
	}

	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}

	if c.Mirror.Enabled {
		if !c.Mirror.Postgres.Enabled() && !c.Mirror.Redis.Enabled() {
			return errors.New("mirror requires mirror.postgres or mirror.redis")
		}
		if c.Mirror.Postgres.Enabled() {
			if err := c.Mirror.Postgres.validate("mirror.postgres"); err != nil {
				return err
			}
		}
	}

	if c.Health.Enabled && (c.Health.Port < 1 || c.Health.Port > 65535) {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	return nil
}

func (s *StreamConfig) validate(prefix string) error {
	if len(s.Equities) == 0 && len(s.Futures) == 0 {
		return fmt.Errorf("%s.equities or %s.futures must list at least one symbol", prefix, prefix)
	}
	for i, sym := range s.Equities {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("%s.equities[%d] is empty", prefix, i)
		}
	}
	for i, sym := range s.Futures {
		if !strings.HasPrefix(sym, "/") {
			return fmt.Errorf("%s.futures[%d] %q must start with \"/\"", prefix, i, sym)
		}
	}
	if s.QueueSize < 1 {
		return fmt.Errorf("%s.queue_size must be >= 1", prefix)
	}
	if s.QueueMaxSize < s.QueueSize {
		return fmt.Errorf("%s.queue_max_size (%d) cannot be below queue_size (%d)", prefix, s.QueueMaxSize, s.QueueSize)
	}
	if s.ReconnectMaxWait < s.ReconnectBaseWait {
		return fmt.Errorf("%s.reconnect_max_wait cannot be below reconnect_base_wait", prefix)
	}
	return nil
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

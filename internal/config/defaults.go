package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultBaseURL           = "https://api.schwabapi.com"
	DefaultAuthorizeURL      = "https://api.schwabapi.com/v1/oauth/authorize"
	DefaultTokenURL          = "https://api.schwabapi.com/v1/oauth/token"
	DefaultCallbackURL       = "https://127.0.0.1"
	DefaultAPITimeout        = 10 * time.Second
	DefaultMaxRetries        = 3
	DefaultRequestsPerMinute = 120
	DefaultTokenPath         = "tokens.json"
	DefaultTokenRefresh      = 29 * time.Minute
	DefaultLoginTimeout      = 10 * time.Second
	DefaultSubscribeTimeout  = 10 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultPingInterval      = 15 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultQueueSize         = 1024
	DefaultQueueMaxSize      = 65536
	DefaultDisplayRefresh    = 500 * time.Millisecond
	DefaultPollInterval      = 5 * time.Second
	DefaultPollTimeout       = 10 * time.Second
	DefaultMirrorInterval    = 1 * time.Second
	DefaultRedisTTL          = 1 * time.Minute
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultHealthPort        = 8089
	DefaultLogLevel          = "info"
)

// DefaultColumns is the board layout used when none is configured.
func DefaultColumns() []ColumnConfig {
	return []ColumnConfig{
		{Field: "Symbol", Header: "Symbol", Width: 10, Align: "<"},
		{Field: "Bid Price", Header: "Bid", Width: 12, Align: ">"},
		{Field: "Ask Price", Header: "Ask", Width: 12, Align: ">"},
		{Field: "Last Price", Header: "Last", Width: 12, Align: ">"},
	}
}

func (c *BoardConfig) applyDefaults() {
	if c.App.CallbackURL == "" {
		c.App.CallbackURL = DefaultCallbackURL
	}

	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.AuthorizeURL == "" {
		c.API.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.API.TokenURL == "" {
		c.API.TokenURL = DefaultTokenURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RequestsPerMinute == 0 {
		c.API.RequestsPerMinute = DefaultRequestsPerMinute
	}

	if c.Auth.TokenPath == "" {
		c.Auth.TokenPath = DefaultTokenPath
	}
	if c.Auth.RefreshInterval == 0 {
		c.Auth.RefreshInterval = DefaultTokenRefresh
	}

	// Stream defaults
	s := &c.Stream
	if s.LoginTimeout == 0 {
		s.LoginTimeout = DefaultLoginTimeout
	}
	if s.SubscribeTimeout == 0 {
		s.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if s.ReconnectBaseWait == 0 {
		s.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if s.ReconnectMaxWait == 0 {
		s.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if s.PingInterval == 0 {
		s.PingInterval = DefaultPingInterval
	}
	if s.PingTimeout == 0 {
		s.PingTimeout = DefaultPingTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.QueueSize == 0 {
		s.QueueSize = DefaultQueueSize
	}
	if s.QueueMaxSize == 0 {
		s.QueueMaxSize = DefaultQueueMaxSize
	}

	// Display defaults
	if c.Display.RefreshInterval == 0 {
		c.Display.RefreshInterval = DefaultDisplayRefresh
	}
	if c.Display.ClearScreen == nil {
		on := true
		c.Display.ClearScreen = &on
	}
	if len(c.Display.Columns) == 0 {
		c.Display.Columns = DefaultColumns()
	}
	for i := range c.Display.Columns {
		col := &c.Display.Columns[i]
		if col.Header == "" {
			col.Header = col.Field
		}
		if col.Align == "" {
			col.Align = ">"
		}
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Mirror defaults
	if c.Mirror.InstanceID == "" {
		c.Mirror.InstanceID = uuid.NewString()
	}
	if c.Mirror.Interval == 0 {
		c.Mirror.Interval = DefaultMirrorInterval
	}
	if c.Mirror.Postgres.Enabled() {
		applyDBDefaults(&c.Mirror.Postgres)
	}
	if c.Mirror.Redis.TTL == 0 {
		c.Mirror.Redis.TTL = DefaultRedisTTL
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
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

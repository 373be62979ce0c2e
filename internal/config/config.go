package config

import "time"

// BoardConfig is the root configuration for a quoteboard process.
type BoardConfig struct {
	App     AppConfig         `yaml:"app"`
	API     APIConfig         `yaml:"api"`
	Auth    AuthConfig        `yaml:"auth"`
	Stream  StreamConfig      `yaml:"stream"`
	Fields  map[string]string `yaml:"fields"` // extra identifier -> name entries
	Display DisplayConfig     `yaml:"display"`
	Poller  PollerConfig      `yaml:"poller"`
	Mirror  MirrorConfig      `yaml:"mirror"`
	Health  HealthConfig      `yaml:"health"`
	Log     LogConfig         `yaml:"log"`
}

// AppConfig holds the registered developer application credentials.
type AppConfig struct {
	Key         string `yaml:"key"`    // 32 chars
	Secret      string `yaml:"secret"` // 16 chars
	CallbackURL string `yaml:"callback_url"`
}

// APIConfig holds REST and OAuth endpoints.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	AuthorizeURL      string        `yaml:"authorize_url"`
	TokenURL          string        `yaml:"token_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// AuthConfig holds token persistence settings.
type AuthConfig struct {
	TokenPath       string        `yaml:"token_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// StreamConfig holds streamer session settings.
type StreamConfig struct {
	Equities          []string      `yaml:"equities"`
	Futures           []string      `yaml:"futures"`
	LoginTimeout      time.Duration `yaml:"login_timeout"`
	SubscribeTimeout  time.Duration `yaml:"subscribe_timeout"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	QueueSize         int           `yaml:"queue_size"`
	QueueMaxSize      int           `yaml:"queue_max_size"`
}

// DisplayConfig holds board rendering settings.
type DisplayConfig struct {
	RefreshInterval time.Duration  `yaml:"refresh_interval"`
	ClearScreen     *bool          `yaml:"clear_screen"`
	Columns         []ColumnConfig `yaml:"columns"`
}

// ColumnConfig describes one board column.
type ColumnConfig struct {
	Field  string `yaml:"field"`
	Header string `yaml:"header"`
	Width  int    `yaml:"width"`
	Align  string `yaml:"align"` // "<" or ">"
}

// PollerConfig holds REST quote poller settings. The poller is a backup: its
// cycles are skipped while the streamer session is logged in.
type PollerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MirrorConfig holds latest-snapshot mirror settings.
type MirrorConfig struct {
	Enabled    bool          `yaml:"enabled"`
	InstanceID string        `yaml:"instance_id"`
	Interval   time.Duration `yaml:"interval"`
	Postgres   DBConfig      `yaml:"postgres"`
	Redis      RedisConfig   `yaml:"redis"`
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

// Enabled reports whether a Postgres sink is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// RedisConfig holds the Redis sink connection.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether a Redis sink is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // empty = stderr
}

// Symbols returns equities then futures, in config order.
func (s StreamConfig) Symbols() []string {
	out := make([]string, 0, len(s.Equities)+len(s.Futures))
	out = append(out, s.Equities...)
	out = append(out, s.Futures...)
	return out
}

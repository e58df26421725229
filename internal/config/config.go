package config

import "time"

// Environment names.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Storage drivers for the notification dedupe store.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Re-notify policies.
const (
	RenotifyNever    = "never"
	RenotifyOnChange = "on_change"
)

// Config is the root configuration for a matchsync engine instance.
type Config struct {
	Environment string           `yaml:"environment" env:"MATCHSYNC_ENVIRONMENT"`
	Server      ServerConfig     `yaml:"server"`
	Connection  ConnectionConfig `yaml:"connection"`
	Rooms       RoomsConfig      `yaml:"rooms"`
	Scores      ScoresConfig     `yaml:"scores"`
	Settlement  SettlementConfig `yaml:"settlement"`
	Storage     StorageConfig    `yaml:"storage"`
	Poller      PollerConfig     `yaml:"poller"`
	Auth        AuthConfig       `yaml:"auth"`
	Log         LogConfig        `yaml:"log"`
}

// ServerConfig holds the realtime and REST endpoints.
type ServerConfig struct {
	WSURL            string        `yaml:"ws_url" env:"MATCHSYNC_WS_URL"`
	RestURL          string        `yaml:"rest_url" env:"MATCHSYNC_REST_URL"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`  // Reconnect if no ping/pong within this window
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
}

// ConnectionConfig holds connection manager settings.
type ConnectionConfig struct {
	ReconnectBaseDelay    time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	MaxRefreshAttempts    int           `yaml:"max_refresh_attempts"`
	ListenerWarnThreshold int           `yaml:"listener_warn_threshold"`
	InboundBufferSize     int           `yaml:"inbound_buffer_size"`
}

// RoomsConfig paces rejoins after a reconnect.
type RoomsConfig struct {
	RejoinRate  float64 `yaml:"rejoin_rate"` // joins per second
	RejoinBurst int     `yaml:"rejoin_burst"`
}

// ScoresConfig holds reducer settings.
type ScoresConfig struct {
	RecentKeysCapacity int `yaml:"recent_keys_capacity"`
}

// SettlementConfig holds orchestrator and dedupe settings.
type SettlementConfig struct {
	RenotifyPolicy   string        `yaml:"renotify_policy" env:"MATCHSYNC_RENOTIFY_POLICY"`
	DedupeRetention  time.Duration `yaml:"dedupe_retention"`
	DedupeStorageKey string        `yaml:"dedupe_storage_key"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver" env:"MATCHSYNC_STORAGE_DRIVER"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds the database file path. ":memory:" is allowed.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"MATCHSYNC_SQLITE_PATH"`
}

// RedisConfig holds a single Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"MATCHSYNC_REDIS_ADDR"`
	Password string `yaml:"password" env:"MATCHSYNC_REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
}

// PostgresConfig is a DBConfig plus the key-value table name.
type PostgresConfig struct {
	DBConfig `yaml:",inline"`
	Table    string `yaml:"table"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" env:"MATCHSYNC_PG_HOST"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password" env:"MATCHSYNC_PG_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PollerConfig holds snapshot poller settings.
type PollerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AuthConfig seeds the in-memory credential store.
type AuthConfig struct {
	AccessToken  string `yaml:"access_token" env:"MATCHSYNC_ACCESS_TOKEN"`
	RefreshToken string `yaml:"refresh_token" env:"MATCHSYNC_REFRESH_TOKEN"`
	UserID       string `yaml:"user_id" env:"MATCHSYNC_USER_ID"`
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level" env:"MATCHSYNC_LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"MATCHSYNC_LOG_FORMAT"` // text | json
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

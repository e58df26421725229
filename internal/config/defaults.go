package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultEnvironment           = EnvDevelopment
	DefaultHandshakeTimeout      = 10 * time.Second
	DefaultPingTimeout           = 30 * time.Second
	DefaultWriteTimeout          = 10 * time.Second
	DefaultRequestTimeout        = 15 * time.Second
	DefaultMaxRetries            = 3
	DefaultReconnectBaseDelay    = 1 * time.Second
	DefaultReconnectMaxDelay     = 30 * time.Second
	DefaultMaxReconnectAttempts  = 5
	DefaultMaxRefreshAttempts    = 2
	DefaultListenerWarnThreshold = 5
	DefaultInboundBufferSize     = 256
	DefaultRejoinRate            = 5.0
	DefaultRejoinBurst           = 2
	DefaultRecentKeysCapacity    = 512
	DefaultRenotifyPolicy        = RenotifyNever
	DefaultDedupeRetention       = 7 * 24 * time.Hour
	DefaultDedupeStorageKey      = "settlement_notified_v1"
	DefaultStorageDriver         = DriverMemory
	DefaultSQLitePath            = "matchsync.db"
	DefaultRedisAddr             = "localhost:6379"
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 4
	DefaultMinConns              = 1
	DefaultKVTable               = "matchsync_kv"
	DefaultPollInterval          = 30 * time.Second
	DefaultPollTimeout           = 10 * time.Second
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
)

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}

	// Server defaults
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.PingTimeout == 0 {
		c.Server.PingTimeout = DefaultPingTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = DefaultRequestTimeout
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = DefaultMaxRetries
	}

	// Connection defaults
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.MaxRefreshAttempts == 0 {
		c.Connection.MaxRefreshAttempts = DefaultMaxRefreshAttempts
	}
	if c.Connection.ListenerWarnThreshold == 0 {
		c.Connection.ListenerWarnThreshold = DefaultListenerWarnThreshold
	}
	if c.Connection.InboundBufferSize == 0 {
		c.Connection.InboundBufferSize = DefaultInboundBufferSize
	}

	// Rooms defaults
	if c.Rooms.RejoinRate == 0 {
		c.Rooms.RejoinRate = DefaultRejoinRate
	}
	if c.Rooms.RejoinBurst == 0 {
		c.Rooms.RejoinBurst = DefaultRejoinBurst
	}

	if c.Scores.RecentKeysCapacity == 0 {
		c.Scores.RecentKeysCapacity = DefaultRecentKeysCapacity
	}

	// Settlement defaults
	if c.Settlement.RenotifyPolicy == "" {
		c.Settlement.RenotifyPolicy = DefaultRenotifyPolicy
	}
	if c.Settlement.DedupeRetention == 0 {
		c.Settlement.DedupeRetention = DefaultDedupeRetention
	}
	if c.Settlement.DedupeStorageKey == "" {
		c.Settlement.DedupeStorageKey = DefaultDedupeStorageKey
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = DefaultRedisAddr
	}
	applyDBDefaults(&c.Storage.Postgres.DBConfig)
	if c.Storage.Postgres.Table == "" {
		c.Storage.Postgres.Table = DefaultKVTable
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
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

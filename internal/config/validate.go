package config

import (
	"errors"
	"fmt"
	"regexp"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("environment must be one of development, staging, production, got %q", c.Environment)
	}

	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}
	if c.Server.MaxRetries < 0 {
		return errors.New("server.max_retries must be >= 0")
	}

	if c.Connection.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.Connection.ReconnectBaseDelay > c.Connection.ReconnectMaxDelay {
		return fmt.Errorf("connection.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Connection.ReconnectBaseDelay, c.Connection.ReconnectMaxDelay)
	}
	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}
	if c.Connection.MaxRefreshAttempts < 1 {
		return errors.New("connection.max_refresh_attempts must be >= 1")
	}
	if c.Connection.InboundBufferSize < 1 {
		return errors.New("connection.inbound_buffer_size must be >= 1")
	}

	if c.Rooms.RejoinRate <= 0 {
		return errors.New("rooms.rejoin_rate must be > 0")
	}
	if c.Rooms.RejoinBurst < 1 {
		return errors.New("rooms.rejoin_burst must be >= 1")
	}

	if c.Scores.RecentKeysCapacity < 1 {
		return errors.New("scores.recent_keys_capacity must be >= 1")
	}

	switch c.Settlement.RenotifyPolicy {
	case RenotifyNever, RenotifyOnChange:
	default:
		return fmt.Errorf("settlement.renotify_policy must be never or on_change, got %q", c.Settlement.RenotifyPolicy)
	}
	if c.Settlement.DedupeRetention <= 0 {
		return errors.New("settlement.dedupe_retention must be > 0")
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.Poller.Enabled {
		if c.Server.RestURL == "" {
			return errors.New("server.rest_url is required when poller is enabled")
		}
		if c.Poller.Interval <= 0 {
			return errors.New("poller.interval must be > 0")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if s.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required")
		}
		return nil
	case DriverRedis:
		if s.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
		if s.Redis.DB < 0 {
			return errors.New("storage.redis.db must be >= 0")
		}
		return nil
	case DriverPostgres:
		if !tableNamePattern.MatchString(s.Postgres.Table) {
			return fmt.Errorf("storage.postgres.table %q is not a valid identifier", s.Postgres.Table)
		}
		return s.Postgres.validate("storage.postgres")
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite, redis or postgres, got %q", s.Driver)
	}
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

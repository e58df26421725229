package connection

import (
	"errors"
	"time"

	"github.com/rickgao/matchsync/internal/config"
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/router"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrNotStarted        = errors.New("manager not started")
	ErrManagerStopped    = errors.New("manager stopped")
	ErrStaleConnection   = errors.New("connection stale (no ping)")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrTransportLost     = errors.New("transport lost")
	ErrServerClosed      = errors.New("closed by server")
	ErrCredentialExpired = errors.New("credential expired")
	ErrRefreshExhausted  = errors.New("credential refresh attempts exhausted")
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
)

// CloseCredentialExpired is the close code the server sends when the
// connection's credential is no longer valid.
const CloseCredentialExpired = 4401

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string
	Token            string // Bearer credential sent on the handshake
	UserAgent        string
	HandshakeTimeout time.Duration
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration
	BufferSize       int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: config.DefaultHandshakeTimeout,
		PingTimeout:      config.DefaultPingTimeout,
		WriteTimeout:     config.DefaultWriteTimeout,
		BufferSize:       config.DefaultInboundBufferSize,
	}
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	URL              string
	UserAgent        string
	HandshakeTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration

	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int // Failed dials per cycle before giving up
	MaxRefreshAttempts   int // Credential refreshes per cycle before giving up

	ListenerWarnThreshold int
	InboundBufferSize     int
	Production            bool // Disables the listener leak warning
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HandshakeTimeout:      config.DefaultHandshakeTimeout,
		PingTimeout:           config.DefaultPingTimeout,
		WriteTimeout:          config.DefaultWriteTimeout,
		ReconnectBaseDelay:    config.DefaultReconnectBaseDelay,
		ReconnectMaxDelay:     config.DefaultReconnectMaxDelay,
		MaxReconnectAttempts:  config.DefaultMaxReconnectAttempts,
		MaxRefreshAttempts:    config.DefaultMaxRefreshAttempts,
		ListenerWarnThreshold: config.DefaultListenerWarnThreshold,
		InboundBufferSize:     config.DefaultInboundBufferSize,
	}
}

// ManagerConfigFrom builds a ManagerConfig from application config.
func ManagerConfigFrom(cfg *config.Config) ManagerConfig {
	return ManagerConfig{
		URL:                   cfg.Server.WSURL,
		HandshakeTimeout:      cfg.Server.HandshakeTimeout,
		PingTimeout:           cfg.Server.PingTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ReconnectBaseDelay:    cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:     cfg.Connection.ReconnectMaxDelay,
		MaxReconnectAttempts:  cfg.Connection.MaxReconnectAttempts,
		MaxRefreshAttempts:    cfg.Connection.MaxRefreshAttempts,
		ListenerWarnThreshold: cfg.Connection.ListenerWarnThreshold,
		InboundBufferSize:     cfg.Connection.InboundBufferSize,
		Production:            cfg.IsProduction(),
	}
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	d := DefaultManagerConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = c.ReconnectBaseDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.MaxRefreshAttempts <= 0 {
		c.MaxRefreshAttempts = d.MaxRefreshAttempts
	}
	if c.ListenerWarnThreshold <= 0 {
		c.ListenerWarnThreshold = d.ListenerWarnThreshold
	}
	if c.InboundBufferSize <= 0 {
		c.InboundBufferSize = d.InboundBufferSize
	}
	return c
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State           model.ConnectionState
	Generation      int64
	Rooms           int
	Listeners       int
	PendingRequests int
	Reconnects      int64 // Cycles started after a lost connection
	Router          router.RouterStats
}

// validTransitions lists the allowed connection state edges.
var validTransitions = map[model.ConnectionState][]model.ConnectionState{
	model.StateDisconnected: {model.StateConnecting},
	model.StateConnecting:   {model.StateConnected, model.StateError, model.StateDisconnected},
	model.StateConnected:    {model.StateReconnecting, model.StateDisconnected, model.StateError},
	model.StateReconnecting: {model.StateConnected, model.StateError, model.StateDisconnected},
	model.StateError:        {model.StateConnecting, model.StateDisconnected},
}

// CanTransition reports whether from → to is an allowed state change.
func CanTransition(from, to model.ConnectionState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Backoff returns the wait before retry number n (1-based): base doubled
// n-1 times, capped at max.
func Backoff(base, max time.Duration, n int) time.Duration {
	wait := base
	for i := 1; i < n; i++ {
		wait *= 2
		if wait >= max || wait <= 0 {
			return max
		}
	}
	if wait > max {
		return max
	}
	return wait
}

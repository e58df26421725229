package router

import (
	"encoding/json"
	"time"
)

// RouterConfig holds configuration for the Router.
type RouterConfig struct {
	BufferSize int // Initial dispatch queue capacity. Default: 256
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		BufferSize: 256,
	}
}

// Kind identifies a decoded message.
type Kind string

const (
	KindAck          Kind = "ack"
	KindRoomJoined   Kind = "room_joined"
	KindRoomLeft     Kind = "room_left"
	KindScoreUpdate  Kind = "score_update"
	KindStatusUpdate Kind = "status_update"
	KindMatchSettled Kind = "match_settled"
	KindQueueExpired Kind = "queue_expired"
	KindPresence     Kind = "presence"
	KindError        Kind = "error"

	// KindState is never on the wire; the connection manager enqueues it.
	KindState Kind = "connection_state"
)

// Server error codes with special handling.
const (
	ErrorCodeCredentialExpired = "credential_expired"
)

// Frame is one raw text frame read from a connection.
type Frame struct {
	Data       []byte
	Generation int64 // Connection generation the frame was read on
	ReceivedAt time.Time
}

// Message is a decoded frame.
//
// Payload holds one of:
//   - Ack                  for KindAck
//   - model.RoomEvent      for KindRoomJoined, KindRoomLeft
//   - model.ScoreDelta     for KindScoreUpdate
//   - model.StatusDelta    for KindStatusUpdate
//   - model.MatchSettled   for KindMatchSettled
//   - model.QueueExpired   for KindQueueExpired
//   - model.PresenceEvent  for KindPresence
//   - model.ServerError    for KindError
//   - model.StateChange    for KindState
type Message struct {
	Kind       Kind
	ID         int64 // Request id, acks only
	Timestamp  time.Time
	Generation int64
	ReceivedAt time.Time
	Payload    any
}

// Ack is the server's reply to a command.
type Ack struct {
	Success bool
	Error   string
}

// Command is an outbound request.
type Command struct {
	ID     int64         `json:"id"`
	Cmd    string        `json:"cmd"`
	Params CommandParams `json:"params"`
}

// CommandParams holds command parameters.
type CommandParams struct {
	MatchID string `json:"match_id,omitempty"`
}

// Outbound command names.
const (
	CmdJoinRoom  = "join_room"
	CmdLeaveRoom = "leave_room"
)

// Wire types for JSON parsing

// envelope is the common shape of every inbound frame.
type envelope struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Msg  json.RawMessage `json:"msg"`
}

type ackWire struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type roomWire struct {
	MatchID string `json:"match_id"`
	UserID  string `json:"user_id,omitempty"`
}

type scoreWire struct {
	EventID    string `json:"event_id"`
	ExternalID string `json:"external_id,omitempty"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	GameTime   string `json:"game_time,omitempty"`
}

type statusWire struct {
	EventID    string `json:"event_id"`
	ExternalID string `json:"external_id,omitempty"`
	Status     string `json:"status"`
	FinalScore *struct {
		Home int `json:"home"`
		Away int `json:"away"`
	} `json:"final_score,omitempty"`
}

type settledWire struct {
	MatchID string `json:"match_id"`
	Picks   []struct {
		PickID string `json:"pick_id"`
		Status string `json:"status"`
	} `json:"picks"`
}

type queueExpiredWire struct {
	QueueID string `json:"queue_id"`
	Reason  string `json:"reason,omitempty"`
}

type presenceWire struct {
	MatchID     string `json:"match_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	IsPresent   bool   `json:"is_present"`
}

type errorWire struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

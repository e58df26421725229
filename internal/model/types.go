package model

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// ConnectionState is the process-wide connectivity state of the engine.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// StateReason explains why a state transition happened.
type StateReason string

const (
	ReasonConnected         StateReason = "connected"
	ReasonConnecting        StateReason = "connecting"
	ReasonTransportLost     StateReason = "transport_lost"
	ReasonServerClosed      StateReason = "server_closed"
	ReasonCredentialExpired StateReason = "credential_expired"
	ReasonRefreshFailed     StateReason = "refresh_failed"
	ReasonAttemptsExhausted StateReason = "attempts_exhausted"
	ReasonIntentional       StateReason = "intentional"
	ReasonLoggedOut         StateReason = "logged_out"
	ReasonNoCredential      StateReason = "no_credential"
)

// StateChange is delivered to connection state listeners.
type StateChange struct {
	From       ConnectionState
	To         ConnectionState
	Generation int64 // Generation after the transition
	Reason     StateReason
	Err        error // Set for transitions into StateError
}

// -----------------------------------------------------------------------------
// Events and Scores
// -----------------------------------------------------------------------------

// EventStatus is the lifecycle status of a sporting event.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventLive      EventStatus = "live"
	EventCompleted EventStatus = "completed"
	EventCanceled  EventStatus = "canceled"
	EventPostponed EventStatus = "postponed"
)

// ParseEventStatus maps a wire status string, including common aliases, to
// an EventStatus. Unknown values map to scheduled.
func ParseEventStatus(s string) EventStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "in_progress", "inprogress", "halftime":
		return EventLive
	case "completed", "complete", "final", "closed":
		return EventCompleted
	case "canceled", "cancelled":
		return EventCanceled
	case "postponed", "delayed", "suspended":
		return EventPostponed
	default:
		return EventScheduled
	}
}

// EventScoreRecord is the current score and status of one tracked event.
type EventScoreRecord struct {
	EventID     string
	ExternalID  string
	HomeScore   int
	AwayScore   int
	GameTime    string // Display clock, e.g. "Q3 04:12" (optional)
	Status      EventStatus
	LastUpdated time.Time
	Final       bool // Scores came from an authoritative completed status
}

// ScoreDelta is an inbound score-update for one event.
type ScoreDelta struct {
	EventID    string
	ExternalID string
	HomeScore  int
	AwayScore  int
	GameTime   string
	Timestamp  time.Time
}

// FinalScore is the authoritative final score attached to a completed status.
type FinalScore struct {
	Home int
	Away int
}

// StatusDelta is an inbound status-update for one event.
type StatusDelta struct {
	EventID    string
	ExternalID string
	Status     EventStatus
	Final      *FinalScore // Only meaningful with Status == EventCompleted
	Timestamp  time.Time
}

// EventSnapshot is a point-in-time REST view of one event in a match.
type EventSnapshot struct {
	EventID    string
	ExternalID string
	HomeScore  int
	AwayScore  int
	GameTime   string
	Status     EventStatus
	UpdatedAt  time.Time
}

// -----------------------------------------------------------------------------
// Picks and Settlement
// -----------------------------------------------------------------------------

// MarketType is the kind of wager a pick is placed on.
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline"
	MarketSpread    MarketType = "spread"
	MarketTotal     MarketType = "total"
	MarketProp      MarketType = "prop"
)

// Outcome is the settlement status of a pick.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomePush    Outcome = "push"
	OutcomeVoid    Outcome = "void"
)

// IsTerminal reports whether the outcome is a settled state.
func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeHit, OutcomeMiss, OutcomePush, OutcomeVoid:
		return true
	}
	return false
}

// ParseOutcome maps a wire outcome string to an Outcome. "won"/"lost" and
// upper-case variants are accepted; unknown values map to pending.
func ParseOutcome(s string) Outcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hit", "won", "win":
		return OutcomeHit
	case "miss", "lost", "loss":
		return OutcomeMiss
	case "push":
		return OutcomePush
	case "void", "voided", "canceled", "cancelled":
		return OutcomeVoid
	default:
		return OutcomePending
	}
}

// TrackedPick is an immutable caller-supplied snapshot of one pick.
type TrackedPick struct {
	ID          string
	EventID     string
	MarketType  MarketType
	Selection   string   // "home"/"away" for moneyline and spread, "over"/"under" for total
	Line        *float64 // Signed spread line or total line; nil for moneyline
	PointValue  int
	PriorStatus Outcome // Status the caller last knew about
	OwnerID     string  // Participant who made the pick (optional)
	Description string  // Display label (optional)
}

// SettlementResult is the locally derived or authoritative outcome of a pick.
type SettlementResult struct {
	PickID        string
	EventID       string
	OwnerID       string
	Status        Outcome
	PriorStatus   Outcome
	PointValue    int
	MarketType    MarketType
	Selection     string
	Line          *float64
	HomeScore     int
	AwayScore     int
	Description   string
	Authoritative bool // Set when the backend settled the pick
	SettledAt     time.Time
}

// SettledPick is one entry of an authoritative match settlement.
type SettledPick struct {
	PickID string
	Status Outcome
}

// MatchSettled is the backend's authoritative settlement of a match.
type MatchSettled struct {
	MatchID   string
	Picks     []SettledPick
	Timestamp time.Time
}

// -----------------------------------------------------------------------------
// Rooms and Presence
// -----------------------------------------------------------------------------

// RoomEvent is a room-joined or room-left notification.
type RoomEvent struct {
	MatchID   string
	UserID    string
	Timestamp time.Time
}

// PresenceEvent reports a match participant's connectivity.
type PresenceEvent struct {
	MatchID     string
	UserID      string
	DisplayName string
	IsPresent   bool
	Timestamp   time.Time
}

// PresenceRecord is the current view of the counterparty's presence.
type PresenceRecord struct {
	IsPresent      bool
	CounterpartyID string
	DisplayName    string
	LastSeen       time.Time
}

// QueueExpired reports that a matchmaking queue entry expired.
type QueueExpired struct {
	QueueID   string
	Reason    string
	Timestamp time.Time
}

// ServerError is a generic error pushed by the server.
type ServerError struct {
	Code      string
	Message   string
	Timestamp time.Time
}

package room

import (
	"sync"

	"github.com/rickgao/matchsync/internal/model"
)

// PresenceTracker keeps the last known presence of the other participant in
// the tracked match. Events from the local user and from other matches are
// ignored; among the rest the newest timestamp wins.
type PresenceTracker struct {
	mu      sync.RWMutex
	selfID  string
	matchID string
	record  model.PresenceRecord
	known   bool
}

// NewPresenceTracker creates a tracker for the local user selfID.
func NewPresenceTracker(selfID string) *PresenceTracker {
	return &PresenceTracker{selfID: selfID}
}

// SetSelf changes the local user id.
func (p *PresenceTracker) SetSelf(selfID string) {
	p.mu.Lock()
	p.selfID = selfID
	p.mu.Unlock()
}

// SetMatch switches the tracked match and forgets prior presence.
func (p *PresenceTracker) SetMatch(matchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.matchID == matchID {
		return
	}
	p.matchID = matchID
	p.record = model.PresenceRecord{}
	p.known = false
}

// Apply records a presence event. It reports whether the record changed.
func (p *PresenceTracker) Apply(ev model.PresenceEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.acceptLocked(ev.MatchID, ev.UserID) {
		return false
	}
	if p.known && ev.Timestamp.Before(p.record.LastSeen) {
		return false
	}

	name := ev.DisplayName
	if name == "" && p.record.CounterpartyID == ev.UserID {
		name = p.record.DisplayName
	}
	p.record = model.PresenceRecord{
		IsPresent:      ev.IsPresent,
		CounterpartyID: ev.UserID,
		DisplayName:    name,
		LastSeen:       ev.Timestamp,
	}
	p.known = true
	return true
}

// ApplyRoom records a room_joined (present) or room_left (absent) event.
func (p *PresenceTracker) ApplyRoom(ev model.RoomEvent, joined bool) bool {
	if ev.UserID == "" {
		return false
	}
	return p.Apply(model.PresenceEvent{
		MatchID:   ev.MatchID,
		UserID:    ev.UserID,
		IsPresent: joined,
		Timestamp: ev.Timestamp,
	})
}

// Get returns the current record and whether any event has been seen.
func (p *PresenceTracker) Get() (model.PresenceRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.record, p.known
}

// Reset forgets presence but keeps the tracked match.
func (p *PresenceTracker) Reset() {
	p.mu.Lock()
	p.record = model.PresenceRecord{}
	p.known = false
	p.mu.Unlock()
}

func (p *PresenceTracker) acceptLocked(matchID, userID string) bool {
	if userID == "" || userID == p.selfID {
		return false
	}
	if p.matchID != "" && matchID != "" && matchID != p.matchID {
		return false
	}
	return true
}

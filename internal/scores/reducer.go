package scores

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/matchsync/internal/model"
)

// DefaultRecentKeys is the default capacity of the duplicate-detection set.
const DefaultRecentKeys = 512

// Reason explains what the reducer did with a delta.
type Reason string

const (
	ReasonApplied   Reason = "applied"
	ReasonDuplicate Reason = "duplicate"
	ReasonStale     Reason = "stale"
	ReasonFinalized Reason = "finalized" // Score update after an authoritative final
)

// Result is the outcome of applying one delta.
type Result struct {
	Record model.EventScoreRecord
	Reason Reason
}

// Applied reports whether the delta changed the stored record.
func (r Result) Applied() bool {
	return r.Reason == ReasonApplied
}

// Stats holds reducer counters.
type Stats struct {
	Events     int
	Applied    int64
	Duplicates int64
	Stale      int64
	Finalized  int64
}

// Reducer owns the event-id → score record map.
type Reducer struct {
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*model.EventScoreRecord
	recent  *recentKeys
	stats   Stats
}

// NewReducer creates a reducer whose duplicate set holds up to capacity keys.
func NewReducer(capacity int, logger *slog.Logger) *Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultRecentKeys
	}
	return &Reducer{
		logger:  logger.With("component", "scores"),
		records: make(map[string]*model.EventScoreRecord),
		recent:  newRecentKeys(capacity),
	}
}

// ApplyScore applies a score-update delta.
func (r *Reducer) ApplyScore(d model.ScoreDelta) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recent.seen(deltaKey("score", d.EventID, d.Timestamp)) {
		return r.reject(d.EventID, ReasonDuplicate)
	}

	rec, exists := r.records[d.EventID]
	if exists {
		if rec.Final {
			return r.reject(d.EventID, ReasonFinalized)
		}
		if !d.Timestamp.After(rec.LastUpdated) {
			return r.reject(d.EventID, ReasonStale)
		}
	} else {
		rec = &model.EventScoreRecord{
			EventID: d.EventID,
			Status:  model.EventLive,
		}
		r.records[d.EventID] = rec
	}

	if d.ExternalID != "" {
		rec.ExternalID = d.ExternalID
	}
	rec.HomeScore = d.HomeScore
	rec.AwayScore = d.AwayScore
	if d.GameTime != "" {
		rec.GameTime = d.GameTime
	}
	rec.LastUpdated = d.Timestamp

	return r.accept(rec)
}

// ApplyStatus applies a status-update delta. A completed status carrying a
// final score is applied even when its timestamp does not advance the record,
// and locks the scores against further score updates.
func (r *Reducer) ApplyStatus(d model.StatusDelta) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recent.seen(deltaKey("status", d.EventID, d.Timestamp)) {
		return r.reject(d.EventID, ReasonDuplicate)
	}

	authoritative := d.Status == model.EventCompleted && d.Final != nil

	rec, exists := r.records[d.EventID]
	if !exists {
		// Placeholder so the status is never lost.
		rec = &model.EventScoreRecord{EventID: d.EventID}
		r.records[d.EventID] = rec
	} else if !d.Timestamp.After(rec.LastUpdated) && (!authoritative || rec.Final) {
		return r.reject(d.EventID, ReasonStale)
	}

	if d.ExternalID != "" {
		rec.ExternalID = d.ExternalID
	}
	rec.Status = d.Status
	if authoritative {
		rec.HomeScore = d.Final.Home
		rec.AwayScore = d.Final.Away
		rec.Final = true
	}
	if d.Timestamp.After(rec.LastUpdated) {
		rec.LastUpdated = d.Timestamp
	}

	return r.accept(rec)
}

// ApplySnapshot feeds a REST snapshot through the same ordering rules as
// stream deltas. A completed snapshot is treated as carrying a final score.
func (r *Reducer) ApplySnapshot(s model.EventSnapshot) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recent.seen(deltaKey("snapshot", s.EventID, s.UpdatedAt)) {
		return r.reject(s.EventID, ReasonDuplicate)
	}

	authoritative := s.Status == model.EventCompleted

	rec, exists := r.records[s.EventID]
	if exists {
		switch {
		case rec.Final && !authoritative:
			return r.reject(s.EventID, ReasonFinalized)
		case !s.UpdatedAt.After(rec.LastUpdated) && (!authoritative || rec.Final):
			return r.reject(s.EventID, ReasonStale)
		}
	} else {
		rec = &model.EventScoreRecord{EventID: s.EventID}
		r.records[s.EventID] = rec
	}

	if s.ExternalID != "" {
		rec.ExternalID = s.ExternalID
	}
	rec.HomeScore = s.HomeScore
	rec.AwayScore = s.AwayScore
	if s.GameTime != "" {
		rec.GameTime = s.GameTime
	}
	rec.Status = s.Status
	rec.Final = rec.Final || authoritative
	if s.UpdatedAt.After(rec.LastUpdated) {
		rec.LastUpdated = s.UpdatedAt
	}

	return r.accept(rec)
}

// Get returns the current record for an event.
func (r *Reducer) Get(eventID string) (model.EventScoreRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[eventID]
	if !ok {
		return model.EventScoreRecord{}, false
	}
	return *rec, true
}

// Snapshot returns a copy of all records.
func (r *Reducer) Snapshot() map[string]model.EventScoreRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]model.EventScoreRecord, len(r.records))
	for id, rec := range r.records {
		out[id] = *rec
	}
	return out
}

// Reset drops all records and the duplicate set.
func (r *Reducer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.records)
	r.recent.reset()
}

// Stats returns reducer counters.
func (r *Reducer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.Events = len(r.records)
	return s
}

func (r *Reducer) accept(rec *model.EventScoreRecord) Result {
	r.stats.Applied++
	return Result{Record: *rec, Reason: ReasonApplied}
}

// reject must be called with the lock held.
func (r *Reducer) reject(eventID string, reason Reason) Result {
	switch reason {
	case ReasonDuplicate:
		r.stats.Duplicates++
	case ReasonStale:
		r.stats.Stale++
	case ReasonFinalized:
		r.stats.Finalized++
	}
	r.logger.Debug("dropped score delta", "event_id", eventID, "reason", reason)

	var rec model.EventScoreRecord
	if cur, ok := r.records[eventID]; ok {
		rec = *cur
	}
	return Result{Record: rec, Reason: reason}
}

func deltaKey(kind, eventID string, ts time.Time) string {
	return fmt.Sprintf("%s|%s|%d", kind, eventID, ts.UnixNano())
}

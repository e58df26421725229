package api

import (
	"time"

	"github.com/rickgao/matchsync/internal/model"
)

// ParseTimestamp parses an ISO 8601 timestamp. Returns the zero time for
// empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}

	return t.UTC()
}

// ToSnapshot converts an APIEvent to a model snapshot. ok is false when the
// event has no id or no usable timestamp.
func (e *APIEvent) ToSnapshot() (snap model.EventSnapshot, ok bool) {
	ts := ParseTimestamp(e.UpdatedAt)
	if e.EventID == "" || ts.IsZero() {
		return model.EventSnapshot{}, false
	}
	return model.EventSnapshot{
		EventID:    e.EventID,
		ExternalID: e.ExternalID,
		HomeScore:  e.HomeScore,
		AwayScore:  e.AwayScore,
		GameTime:   e.GameTime,
		Status:     model.ParseEventStatus(e.Status),
		UpdatedAt:  ts,
	}, true
}

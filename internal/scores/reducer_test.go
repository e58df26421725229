package scores

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/matchsync/internal/model"
)

var t0 = time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func score(id string, home, away, sec int) model.ScoreDelta {
	return model.ScoreDelta{EventID: id, HomeScore: home, AwayScore: away, Timestamp: at(sec)}
}

func TestReducer_ReorderedDeliveryKeepsNewest(t *testing.T) {
	r := NewReducer(16, nil)

	require.True(t, r.ApplyScore(score("evt", 1, 0, 1)).Applied())
	require.True(t, r.ApplyScore(score("evt", 3, 1, 3)).Applied())

	res := r.ApplyScore(score("evt", 2, 1, 2))
	assert.Equal(t, ReasonStale, res.Reason)

	rec, ok := r.Get("evt")
	require.True(t, ok)
	assert.Equal(t, 3, rec.HomeScore)
	assert.Equal(t, 1, rec.AwayScore)
	assert.Equal(t, at(3), rec.LastUpdated)
}

func TestReducer_TimestampNeverDecreases(t *testing.T) {
	orders := [][]int{
		{1, 2, 3, 4},
		{4, 3, 2, 1},
		{2, 4, 1, 3},
		{3, 1, 4, 2},
	}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			r := NewReducer(16, nil)
			var last time.Time
			for _, sec := range order {
				rec := r.ApplyScore(score("evt", sec*10, sec, sec)).Record
				assert.False(t, rec.LastUpdated.Before(last))
				last = rec.LastUpdated
			}

			rec, _ := r.Get("evt")
			assert.Equal(t, at(4), rec.LastUpdated)
			assert.Equal(t, 40, rec.HomeScore)
		})
	}
}

func TestReducer_SameTimestampRejected(t *testing.T) {
	r := NewReducer(16, nil)
	require.True(t, r.ApplyScore(score("evt", 1, 0, 5)).Applied())

	d := score("evt", 9, 9, 5)
	d.GameTime = "Q4"
	res := r.ApplyScore(d)

	// Same (event, timestamp) is caught by the duplicate set first.
	assert.Equal(t, ReasonDuplicate, res.Reason)
	assert.Equal(t, 1, res.Record.HomeScore)
}

func TestReducer_DuplicateAppliedOnce(t *testing.T) {
	r := NewReducer(16, nil)

	d := score("evt", 7, 3, 1)
	assert.True(t, r.ApplyScore(d).Applied())
	assert.Equal(t, ReasonDuplicate, r.ApplyScore(d).Reason)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Applied)
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Equal(t, 1, stats.Events)
}

func TestReducer_DuplicateSetIsBounded(t *testing.T) {
	r := NewReducer(2, nil)

	r.ApplyScore(score("a", 1, 0, 1))
	r.ApplyScore(score("b", 1, 0, 1))
	r.ApplyScore(score("c", 1, 0, 1)) // evicts key for "a"

	assert.Equal(t, 2, r.recent.len())

	// "a" is no longer a known duplicate, but the stale check still rejects it.
	res := r.ApplyScore(score("a", 5, 5, 1))
	assert.Equal(t, ReasonStale, res.Reason)
}

func TestReducer_FinalScoreWinsOverLiveUpdates(t *testing.T) {
	r := NewReducer(16, nil)

	require.True(t, r.ApplyScore(score("evt", 20, 17, 10)).Applied())
	// A live update with a nominally later timestamp lands first.
	require.True(t, r.ApplyScore(score("evt", 21, 17, 12)).Applied())

	res := r.ApplyStatus(model.StatusDelta{
		EventID:   "evt",
		Status:    model.EventCompleted,
		Final:     &model.FinalScore{Home: 24, Away: 17},
		Timestamp: at(11),
	})
	require.True(t, res.Applied())
	assert.Equal(t, 24, res.Record.HomeScore)
	assert.True(t, res.Record.Final)
	assert.Equal(t, at(12), res.Record.LastUpdated)

	// Later-arriving score updates cannot displace the final.
	assert.Equal(t, ReasonFinalized, r.ApplyScore(score("evt", 27, 17, 9)).Reason)
	assert.Equal(t, ReasonFinalized, r.ApplyScore(score("evt", 27, 17, 30)).Reason)

	rec, _ := r.Get("evt")
	assert.Equal(t, 24, rec.HomeScore)
	assert.Equal(t, model.EventCompleted, rec.Status)
}

func TestReducer_CompletedWithoutFinalKeepsScores(t *testing.T) {
	r := NewReducer(16, nil)
	r.ApplyScore(score("evt", 2, 1, 1))

	res := r.ApplyStatus(model.StatusDelta{EventID: "evt", Status: model.EventCompleted, Timestamp: at(2)})
	require.True(t, res.Applied())
	assert.False(t, res.Record.Final)
	assert.Equal(t, 2, res.Record.HomeScore)

	// Without an authoritative final, newer corrections still apply.
	assert.True(t, r.ApplyScore(score("evt", 3, 1, 3)).Applied())
}

func TestReducer_StaleStatusRejected(t *testing.T) {
	r := NewReducer(16, nil)
	r.ApplyScore(score("evt", 2, 1, 5))

	res := r.ApplyStatus(model.StatusDelta{EventID: "evt", Status: model.EventPostponed, Timestamp: at(4)})
	assert.Equal(t, ReasonStale, res.Reason)
	assert.Equal(t, model.EventLive, res.Record.Status)
}

func TestReducer_StatusForUnknownEventCreatesPlaceholder(t *testing.T) {
	r := NewReducer(16, nil)

	res := r.ApplyStatus(model.StatusDelta{EventID: "new", ExternalID: "ext-9", Status: model.EventScheduled, Timestamp: at(1)})
	require.True(t, res.Applied())

	rec, ok := r.Get("new")
	require.True(t, ok)
	assert.Equal(t, 0, rec.HomeScore)
	assert.Equal(t, 0, rec.AwayScore)
	assert.Equal(t, model.EventScheduled, rec.Status)
	assert.Equal(t, "ext-9", rec.ExternalID)
}

func TestReducer_ApplySnapshot(t *testing.T) {
	r := NewReducer(16, nil)

	res := r.ApplySnapshot(model.EventSnapshot{EventID: "evt", HomeScore: 7, AwayScore: 3, Status: model.EventLive, UpdatedAt: at(5)})
	require.True(t, res.Applied())
	assert.Equal(t, model.EventLive, res.Record.Status)

	// Older snapshot is stale.
	assert.Equal(t, ReasonStale, r.ApplySnapshot(model.EventSnapshot{EventID: "evt", HomeScore: 3, Status: model.EventLive, UpdatedAt: at(4)}).Reason)

	// A completed snapshot is final.
	res = r.ApplySnapshot(model.EventSnapshot{EventID: "evt", HomeScore: 10, AwayScore: 3, Status: model.EventCompleted, UpdatedAt: at(9)})
	require.True(t, res.Applied())
	assert.True(t, res.Record.Final)
	assert.Equal(t, ReasonFinalized, r.ApplySnapshot(model.EventSnapshot{EventID: "evt", HomeScore: 11, Status: model.EventLive, UpdatedAt: at(10)}).Reason)
}

func TestReducer_Reset(t *testing.T) {
	r := NewReducer(16, nil)
	d := score("evt", 1, 1, 1)
	r.ApplyScore(d)

	r.Reset()

	_, ok := r.Get("evt")
	assert.False(t, ok)
	assert.Empty(t, r.Snapshot())
	assert.True(t, r.ApplyScore(d).Applied(), "duplicate set is cleared on reset")
}

func TestReducer_LogsWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewReducer(16, logger)

	r.ApplyScore(score("evt", 1, 0, 1))
	r.ApplyScore(score("evt", 1, 0, 1))

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Contains(t, line, `"component":"scores"`)
	assert.Contains(t, line, `"msg":"dropped score delta"`)
}

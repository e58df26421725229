package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rickgao/matchsync/internal/engine"
	"github.com/rickgao/matchsync/internal/model"
)

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(e *engine.Engine, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := e.Snapshot()
		stats := e.Stats()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["connection"] = map[string]any{
			"state":      snap.State,
			"generation": snap.Generation,
			"rooms":      stats.Connection.Rooms,
			"reconnects": stats.Connection.Reconnects,
		}
		switch snap.State {
		case model.StateError:
			health.Status = "unhealthy"
		case model.StateConnected:
		default:
			health.Status = "degraded"
		}

		health.Components["match"] = map[string]any{
			"match_id": snap.MatchID,
			"joined":   snap.Joined,
			"events":   len(snap.Scores),
			"summary":  snap.Summary,
		}
		health.Components["settlement"] = stats.Settlement

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response", "error", err)
		}
	})

	mux.HandleFunc("/debug/scores", func(w http.ResponseWriter, r *http.Request) {
		snap := e.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"match_id": snap.MatchID,
			"count":    len(snap.Scores),
			"scores":   snap.Scores,
			"results":  snap.Results,
			"reducer":  e.Stats().Scores,
		})
	})

	return mux
}

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// RefreshGate ensures at most one credential refresh runs at a time across
// the process. Callers arriving while a refresh is in flight share its result.
type RefreshGate struct {
	refresher Refresher
	logger    *slog.Logger

	group    singleflight.Group
	inflight atomic.Bool
	started  atomic.Int64
	failed   atomic.Int64
}

// NewRefreshGate creates a gate around refresher.
func NewRefreshGate(refresher Refresher, logger *slog.Logger) *RefreshGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshGate{
		refresher: refresher,
		logger:    logger.With("component", "refresh_gate"),
	}
}

// Refresh returns a fresh access token, joining an in-flight refresh if one
// exists. Cancelling ctx abandons the wait but not the shared refresh.
func (g *RefreshGate) Refresh(ctx context.Context) (string, error) {
	ch := g.group.DoChan(refreshKey, func() (any, error) {
		g.inflight.Store(true)
		defer g.inflight.Store(false)

		n := g.started.Add(1)
		g.logger.Info("refreshing credential", "refresh", n)

		token, err := g.refresher.Refresh(context.WithoutCancel(ctx))
		if err != nil {
			g.failed.Add(1)
			g.logger.Error("credential refresh failed", "refresh", n, "error", err)
			return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		if token == "" {
			g.failed.Add(1)
			return "", fmt.Errorf("%w: empty token", ErrRefreshFailed)
		}
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// IsRefreshing reports whether a refresh is currently in flight.
func (g *RefreshGate) IsRefreshing() bool {
	return g.inflight.Load()
}

// Refreshes returns how many refreshes have been started and how many failed.
func (g *RefreshGate) Refreshes() (started, failed int64) {
	return g.started.Load(), g.failed.Load()
}

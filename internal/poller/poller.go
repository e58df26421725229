package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/matchsync/internal/config"
	"github.com/rickgao/matchsync/internal/model"
)

// EventSource fetches the events of a match. *api.Client implements it.
type EventSource interface {
	GetMatchEvents(ctx context.Context, matchID string) ([]model.EventSnapshot, error)
}

// MatchSource provides the currently tracked match. An empty id pauses polling.
type MatchSource interface {
	MatchID() string
}

// MatchSourceFunc is a function adapter for MatchSource.
type MatchSourceFunc func() string

func (f MatchSourceFunc) MatchID() string {
	return f()
}

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleSnapshot(matchID string, snapshot model.EventSnapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(string, model.EventSnapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(matchID string, s model.EventSnapshot) error {
	return f(matchID, s)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 30s)
	Timeout  time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: config.DefaultPollInterval,
		Timeout:  config.DefaultPollTimeout,
	}
}

// ConfigFrom builds a Config from application config.
func ConfigFrom(cfg config.PollerConfig) Config {
	c := DefaultConfig()
	if cfg.Interval > 0 {
		c.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	return c
}

// ErrNoMatch is returned by PollNow when no match is tracked.
var ErrNoMatch = errors.New("no match tracked")

// Stats contains runtime statistics.
type Stats struct {
	Polls  int64
	Events int64
	Errors int64
	Last   time.Time
}

// Poller periodically fetches the tracked match's event snapshots via REST.
type Poller struct {
	cfg     Config
	source  EventSource
	match   MatchSource
	handler SnapshotHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	polls  atomic.Int64
	events atomic.Int64
	errs   atomic.Int64
	last   atomic.Int64 // unix nanos
}

// New creates a new Poller.
func New(cfg Config, source EventSource, match MatchSource, handler SnapshotHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		match:   match,
		handler: handler,
		logger:  logger.With("component", "poller"),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PollNow(p.ctx); err != nil && !errors.Is(err, ErrNoMatch) && p.ctx.Err() == nil {
				p.logger.Warn("snapshot poll failed", "error", err)
			}
		}
	}
}

// PollNow fetches the tracked match once and hands every snapshot to the
// handler. It returns how many snapshots the handler accepted.
func (p *Poller) PollNow(ctx context.Context) (int, error) {
	matchID := p.match.MatchID()
	if matchID == "" {
		return 0, ErrNoMatch
	}

	start := time.Now()
	p.polls.Add(1)
	p.last.Store(start.UnixNano())

	fctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	snaps, err := p.source.GetMatchEvents(fctx, matchID)
	if err != nil {
		p.errs.Add(1)
		return 0, err
	}

	handled := 0
	for _, s := range snaps {
		if p.handler == nil {
			break
		}
		if err := p.handler.HandleSnapshot(matchID, s); err != nil {
			p.errs.Add(1)
			p.logger.Warn("snapshot rejected",
				"match_id", matchID,
				"event_id", s.EventID,
				"error", err,
			)
			continue
		}
		handled++
	}
	p.events.Add(int64(handled))

	p.logger.Debug("poll cycle complete",
		"match_id", matchID,
		"events", len(snaps),
		"handled", handled,
		"duration", time.Since(start),
	)
	return handled, nil
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	s := Stats{
		Polls:  p.polls.Load(),
		Events: p.events.Load(),
		Errors: p.errs.Load(),
	}
	if n := p.last.Load(); n != 0 {
		s.Last = time.Unix(0, n)
	}
	return s
}

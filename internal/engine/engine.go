package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/matchsync/internal/config"
	"github.com/rickgao/matchsync/internal/connection"
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/momentum"
	"github.com/rickgao/matchsync/internal/poller"
	"github.com/rickgao/matchsync/internal/room"
	"github.com/rickgao/matchsync/internal/router"
	"github.com/rickgao/matchsync/internal/scores"
	"github.com/rickgao/matchsync/internal/settlement"
)

var (
	ErrNotStarted = errors.New("engine not started")
	ErrStopped    = errors.New("engine stopped")
)

// Deps are the collaborators an Engine is built on.
type Deps struct {
	Conn   connection.Manager
	Dedupe settlement.Dedupe
	Events poller.EventSource // Optional; nil disables the poller
}

// Options configures an Engine.
type Options struct {
	SelfID     string // Local user id, used to ignore own presence
	RecentKeys int
	Rooms      room.Options
	Settlement settlement.Options
	Momentum   momentum.Options

	PollerEnabled bool
	Poller        poller.Config

	OnSettlement   func(model.SettlementResult)
	OnQueueExpired func(model.QueueExpired)
}

// OptionsFrom builds Options from application config.
func OptionsFrom(cfg *config.Config) (Options, error) {
	policy, err := settlement.ParsePolicy(cfg.Settlement.RenotifyPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		SelfID:        cfg.Auth.UserID,
		RecentKeys:    cfg.Scores.RecentKeysCapacity,
		Rooms:         room.OptionsFrom(cfg.Rooms),
		Settlement:    settlement.Options{Policy: policy},
		Momentum:      momentum.DefaultOptions(),
		PollerEnabled: cfg.Poller.Enabled,
		Poller:        poller.ConfigFrom(cfg.Poller),
	}, nil
}

// Snapshot is a point-in-time view for the UI layer.
type Snapshot struct {
	State         model.ConnectionState
	Generation    int64
	MatchID       string
	Joined        bool
	Scores        map[string]model.EventScoreRecord
	Presence      model.PresenceRecord
	PresenceKnown bool
	Results       []model.SettlementResult
	Summary       settlement.Summary
}

// Stats contains runtime statistics.
type Stats struct {
	Connection connection.ManagerStats
	Scores     scores.Stats
	Settlement settlement.Stats
	Poller     poller.Stats
}

// Engine tracks one match at a time.
type Engine struct {
	conn   connection.Manager
	opts   Options
	logger *slog.Logger

	reducer  *scores.Reducer
	orch     *settlement.Orchestrator
	presence *room.PresenceTracker
	session  *room.Session
	poller   *poller.Poller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subs []string

	// trackMu serializes Track so leave and join of consecutive matches
	// never interleave.
	trackMu sync.Mutex

	mu      sync.RWMutex
	matchID string
	started bool
	stopped bool
}

// New creates an engine over deps.
func New(deps Deps, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Momentum.Window == 0 {
		opts.Momentum = momentum.DefaultOptions()
	}

	e := &Engine{
		conn:     deps.Conn,
		opts:     opts,
		logger:   logger.With("component", "engine"),
		reducer:  scores.NewReducer(opts.RecentKeys, logger),
		presence: room.NewPresenceTracker(opts.SelfID),
		session:  room.NewSession(deps.Conn, opts.Rooms, logger),
	}
	e.orch = settlement.New(deps.Dedupe, opts.Settlement, e.notifySettlement, logger)

	if deps.Events != nil && opts.PollerEnabled {
		e.poller = poller.New(opts.Poller, deps.Events, poller.MatchSourceFunc(e.MatchID),
			poller.SnapshotHandlerFunc(e.handleSnapshot), logger)
	}
	return e
}

// Start subscribes to the connection manager and starts the poller.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	if err := e.session.Start(e.ctx); err != nil {
		return fmt.Errorf("start room session: %w", err)
	}

	e.subs = append(e.subs,
		e.conn.Subscribe(router.KindScoreUpdate, e.onScore),
		e.conn.Subscribe(router.KindStatusUpdate, e.onStatus),
		e.conn.Subscribe(router.KindMatchSettled, e.onSettled),
		e.conn.Subscribe(router.KindPresence, e.onPresence),
		e.conn.Subscribe(router.KindRoomJoined, e.onRoom),
		e.conn.Subscribe(router.KindRoomLeft, e.onRoom),
		e.conn.Subscribe(router.KindQueueExpired, e.onQueueExpired),
		e.conn.Subscribe(router.KindError, e.onServerError),
		e.conn.OnStateChange(e.onStateChange),
	)

	if e.poller != nil {
		if err := e.poller.Start(e.ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	}

	e.logger.Info("engine started", "poller", e.poller != nil)
	return nil
}

// Stop unsubscribes, stops background work and waits for pending persists.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	for _, id := range e.subs {
		e.conn.Unsubscribe(id)
	}
	e.subs = nil
	e.cancel()

	var errs []error
	if e.poller != nil {
		if err := e.poller.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop poller: %w", err))
		}
	}
	if err := e.session.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop room session: %w", err))
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := e.orch.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for settlement persist: %w", err))
	}

	e.logger.Info("engine stopped")
	return errors.Join(errs...)
}

// Reconnect manually restarts the connection from the error or disconnected
// state.
func (e *Engine) Reconnect(ctx context.Context) error {
	return e.conn.Reconnect(ctx)
}

// Track switches to matchID with picks. When the match changes, the old room
// is left and scores, presence and results are cleared. The new room is
// joined now if connected, otherwise on the next connected transition.
func (e *Engine) Track(ctx context.Context, matchID string, picks []model.TrackedPick) error {
	if err := e.checkRunning(); err != nil {
		return err
	}

	e.trackMu.Lock()
	defer e.trackMu.Unlock()

	e.mu.Lock()
	prev := e.matchID
	e.matchID = matchID
	e.mu.Unlock()

	if prev != matchID {
		if prev != "" && e.conn.HasRoom(prev) {
			if err := e.session.Leave(ctx, prev); err != nil {
				e.logger.Warn("leave previous match failed", "match_id", prev, "error", err)
			}
		}
		e.reducer.Reset()
		e.presence.SetMatch(matchID)
		e.orch.SetMatch(matchID)
		e.logger.Info("tracking match", "match_id", matchID, "previous", prev, "picks", len(picks))
	}
	e.orch.SetPicks(picks)

	var joinErr error
	if matchID != "" && !e.conn.HasRoom(matchID) && e.conn.IsConnected() {
		joinErr = e.session.Join(ctx, matchID)
	}

	e.orch.Evaluate(e.reducer)
	return joinErr
}

// UpdatePicks replaces the tracked pick snapshot and re-evaluates.
func (e *Engine) UpdatePicks(picks []model.TrackedPick) []model.SettlementResult {
	e.orch.SetPicks(picks)
	return e.orch.Evaluate(e.reducer)
}

// SetEnabled gates evaluation passes. Enabling runs one pass.
func (e *Engine) SetEnabled(enabled bool) {
	e.orch.SetEnabled(enabled)
	if enabled {
		e.orch.Evaluate(e.reducer)
	}
}

// MatchID returns the tracked match, or "" when none.
func (e *Engine) MatchID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matchID
}

// Snapshot returns the current view of the tracked match.
func (e *Engine) Snapshot() Snapshot {
	matchID := e.MatchID()
	p, known := e.presence.Get()
	return Snapshot{
		State:         e.conn.State(),
		Generation:    e.conn.Generation(),
		MatchID:       matchID,
		Joined:        matchID != "" && e.conn.HasRoom(matchID),
		Scores:        e.reducer.Snapshot(),
		Presence:      p,
		PresenceKnown: known,
		Results:       e.orch.Results(),
		Summary:       e.orch.Summary(),
	}
}

// Stats returns runtime statistics of every component.
func (e *Engine) Stats() Stats {
	s := Stats{
		Connection: e.conn.Stats(),
		Scores:     e.reducer.Stats(),
		Settlement: e.orch.Stats(),
	}
	if e.poller != nil {
		s.Poller = e.poller.Stats()
	}
	return s
}

// Momentum estimates the head-to-head trend from settled results. Results
// owned by localID are the local side; results with any other non-empty
// owner are the counterparty.
func (e *Engine) Momentum(localID string) momentum.Result {
	var in momentum.Input
	for _, r := range e.orch.Results() {
		if r.OwnerID == "" {
			continue
		}
		p := momentum.Pick{Status: r.Status, ResolvedAt: r.SettledAt}
		if r.OwnerID == localID {
			in.Local = append(in.Local, p)
			if r.Status == model.OutcomeHit {
				in.LocalPoints += float64(r.PointValue)
			}
			continue
		}
		in.Counterparty = append(in.Counterparty, p)
		if r.Status == model.OutcomeHit {
			in.CounterpartyPoints += float64(r.PointValue)
		}
	}
	return momentum.Estimate(in, e.opts.Momentum)
}

func (e *Engine) checkRunning() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.stopped:
		return ErrStopped
	case !e.started:
		return ErrNotStarted
	}
	return nil
}

func (e *Engine) notifySettlement(r model.SettlementResult) {
	if e.opts.OnSettlement != nil {
		e.opts.OnSettlement(r)
	}
}

// Package settlement derives pick results from the score stream and notifies
// each pending-to-settled transition exactly once.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/matchsync/internal/config"
	"github.com/rickgao/matchsync/internal/dedup"
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/rules"
)

// Policy decides whether a settled pick notifies again when its status
// is later overwritten.
type Policy string

const (
	// RenotifyNever notifies a (match, pick) at most once.
	RenotifyNever Policy = config.RenotifyNever
	// RenotifyOnChange notifies once per (match, pick, status).
	RenotifyOnChange Policy = config.RenotifyOnChange
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", RenotifyNever:
		return RenotifyNever, nil
	case RenotifyOnChange:
		return RenotifyOnChange, nil
	default:
		return "", fmt.Errorf("unknown renotify policy %q", s)
	}
}

// DefaultFlushTimeout bounds one background persist of the dedupe set.
const DefaultFlushTimeout = 5 * time.Second

// Dedupe is the notification dedupe set. *dedup.Store implements it.
type Dedupe interface {
	Has(key string) bool
	Add(key string) bool
	Flush(ctx context.Context) error
}

// Scores looks up the current record of an event. *scores.Reducer
// implements it.
type Scores interface {
	Get(eventID string) (model.EventScoreRecord, bool)
}

// NotifyFunc receives each notify-eligible result.
type NotifyFunc func(model.SettlementResult)

// Options configures an Orchestrator.
type Options struct {
	Policy       Policy
	FlushTimeout time.Duration
}

// Summary aggregates results by status over the tracked picks.
type Summary struct {
	Total     int
	Pending   int
	Hit       int
	Miss      int
	Push      int
	Void      int
	PointsWon int // Sum of PointValue over hit picks
}

// Stats contains runtime statistics.
type Stats struct {
	Passes      int64
	Notified    int64
	Flushes     int64
	FlushErrors int64
}

// Orchestrator holds the tracked picks of one match and their results.
type Orchestrator struct {
	dedupe       Dedupe
	policy       Policy
	notify       NotifyFunc
	flushTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	matchID string
	picks   []model.TrackedPick
	results map[string]model.SettlementResult
	enabled bool

	wg          sync.WaitGroup
	passes      atomic.Int64
	notified    atomic.Int64
	flushes     atomic.Int64
	flushErrors atomic.Int64
}

// New creates an orchestrator. notify may be nil. Evaluation starts enabled.
func New(dedupe Dedupe, opts Options, notify NotifyFunc, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = RenotifyNever
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if notify == nil {
		notify = func(model.SettlementResult) {}
	}
	return &Orchestrator{
		dedupe:       dedupe,
		policy:       opts.Policy,
		notify:       notify,
		flushTimeout: opts.FlushTimeout,
		logger:       logger.With("component", "settlement"),
		now:          time.Now,
		results:      make(map[string]model.SettlementResult),
		enabled:      true,
	}
}

// SetMatch switches the tracked match. Results are dropped when it changes.
func (o *Orchestrator) SetMatch(matchID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.matchID == matchID {
		return
	}
	o.matchID = matchID
	clear(o.results)
}

// MatchID returns the tracked match.
func (o *Orchestrator) MatchID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.matchID
}

// SetPicks replaces the tracked pick snapshot.
func (o *Orchestrator) SetPicks(picks []model.TrackedPick) {
	o.mu.Lock()
	o.picks = slices.Clone(picks)
	o.mu.Unlock()
}

// SetEnabled gates Evaluate.
func (o *Orchestrator) SetEnabled(enabled bool) {
	o.mu.Lock()
	o.enabled = enabled
	o.mu.Unlock()
}

// Enabled reports whether Evaluate runs.
func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// Reset drops all results and keeps the tracked match and picks.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	clear(o.results)
	o.mu.Unlock()
}

// Evaluate settles every tracked pick whose event is completed or canceled
// and notifies the transitions that are eligible. It returns the notified
// results.
func (o *Orchestrator) Evaluate(scores Scores) []model.SettlementResult {
	o.mu.Lock()
	if !o.enabled {
		o.mu.Unlock()
		return nil
	}
	o.passes.Add(1)

	var out []model.SettlementResult
	for _, p := range o.picks {
		if prev, ok := o.results[p.ID]; ok && prev.Authoritative {
			continue
		}
		rec, ok := scores.Get(p.EventID)
		if !ok {
			continue
		}
		status := outcomeFor(p, rec)
		if !status.IsTerminal() {
			continue
		}

		res := newResult(p, status, rec.HomeScore, rec.AwayScore, false, o.now())
		if o.storeLocked(p, res) {
			out = append(out, o.results[p.ID])
		}
	}
	o.mu.Unlock()

	o.finish(out)
	return out
}

// ApplySettled overlays the backend's authoritative settlement. Authoritative
// results are never replaced by local evaluation.
func (o *Orchestrator) ApplySettled(ms model.MatchSettled) []model.SettlementResult {
	o.mu.Lock()
	if o.matchID != "" && ms.MatchID != o.matchID {
		o.mu.Unlock()
		o.logger.Debug("ignoring settlement for other match", "match_id", ms.MatchID)
		return nil
	}

	at := ms.Timestamp
	if at.IsZero() {
		at = o.now()
	}

	var out []model.SettlementResult
	for _, sp := range ms.Picks {
		if !sp.Status.IsTerminal() {
			continue
		}
		i := slices.IndexFunc(o.picks, func(p model.TrackedPick) bool { return p.ID == sp.PickID })
		if i < 0 {
			o.logger.Debug("settlement for untracked pick", "match_id", ms.MatchID, "pick_id", sp.PickID)
			continue
		}
		p := o.picks[i]

		home, away := 0, 0
		if prev, ok := o.results[p.ID]; ok {
			home, away = prev.HomeScore, prev.AwayScore
		}
		res := newResult(p, sp.Status, home, away, true, at)
		if o.storeLocked(p, res) {
			out = append(out, o.results[p.ID])
		}
	}
	o.mu.Unlock()

	o.finish(out)
	return out
}

func outcomeFor(p model.TrackedPick, rec model.EventScoreRecord) model.Outcome {
	switch rec.Status {
	case model.EventCanceled:
		return model.OutcomeVoid
	case model.EventCompleted:
		return rules.Evaluate(p.MarketType, p.Selection, p.Line, rec.HomeScore, rec.AwayScore)
	default:
		return model.OutcomePending
	}
}

func newResult(p model.TrackedPick, status model.Outcome, home, away int, authoritative bool, at time.Time) model.SettlementResult {
	return model.SettlementResult{
		PickID:        p.ID,
		EventID:       p.EventID,
		OwnerID:       p.OwnerID,
		Status:        status,
		PriorStatus:   p.PriorStatus,
		PointValue:    p.PointValue,
		MarketType:    p.MarketType,
		Selection:     p.Selection,
		Line:          p.Line,
		HomeScore:     home,
		AwayScore:     away,
		Description:   p.Description,
		Authoritative: authoritative,
		SettledAt:     at,
	}
}

// storeLocked merges res and reports whether it should be notified.
func (o *Orchestrator) storeLocked(p model.TrackedPick, res model.SettlementResult) bool {
	prev, had := o.results[p.ID]
	if had && sameResult(prev, res) {
		return false
	}
	if had && prev.Status == res.Status {
		res.SettledAt = prev.SettledAt
	}
	o.results[p.ID] = res

	if had && prev.Status != res.Status {
		o.logger.Info("settlement overwritten",
			"match_id", o.matchID,
			"pick_id", p.ID,
			"from", prev.Status,
			"to", res.Status,
			"authoritative", res.Authoritative,
		)
	}
	return o.eligibleLocked(p, res.Status)
}

func sameResult(a, b model.SettlementResult) bool {
	return a.Status == b.Status &&
		a.HomeScore == b.HomeScore &&
		a.AwayScore == b.AwayScore &&
		a.Authoritative == b.Authoritative
}

// eligibleLocked claims the dedupe key for a transition to status.
func (o *Orchestrator) eligibleLocked(p model.TrackedPick, status model.Outcome) bool {
	base := dedup.Key(o.matchID, p.ID)
	byStatus := dedup.Key(o.matchID, p.ID, string(status))

	switch o.policy {
	case RenotifyOnChange:
		if p.PriorStatus == status {
			return false
		}
		if !o.dedupe.Has(base) {
			o.dedupe.Add(base)
			o.dedupe.Add(byStatus)
			return true
		}
		return o.dedupe.Add(byStatus)

	default:
		if p.PriorStatus != model.OutcomePending {
			return false
		}
		return o.dedupe.Add(base)
	}
}

// finish persists claimed keys in the background and runs the callback.
func (o *Orchestrator) finish(out []model.SettlementResult) {
	if len(out) == 0 {
		return
	}
	o.persist()

	for _, r := range out {
		o.notified.Add(1)
		o.logger.Info("pick settled",
			"pick_id", r.PickID,
			"event_id", r.EventID,
			"status", r.Status,
			"authoritative", r.Authoritative,
		)
		o.notify(r)
	}
}

func (o *Orchestrator) persist() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), o.flushTimeout)
		defer cancel()

		o.flushes.Add(1)
		if err := o.dedupe.Flush(ctx); err != nil {
			o.flushErrors.Add(1)
			o.logger.Warn("failed to persist notified keys", "error", err)
		}
	}()
}

// Wait blocks until background persists finish or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result returns the result for pickID.
func (o *Orchestrator) Result(pickID string) (model.SettlementResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.results[pickID]
	return r, ok
}

// Results returns all results sorted by pick id.
func (o *Orchestrator) Results() []model.SettlementResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]model.SettlementResult, 0, len(o.results))
	for _, r := range o.results {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.SettlementResult) int {
		return strings.Compare(a.PickID, b.PickID)
	})
	return out
}

// Summary counts tracked picks by current status.
func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Summary{Total: len(o.picks)}
	for _, p := range o.picks {
		r, ok := o.results[p.ID]
		if !ok {
			s.Pending++
			continue
		}
		switch r.Status {
		case model.OutcomeHit:
			s.Hit++
			s.PointsWon += r.PointValue
		case model.OutcomeMiss:
			s.Miss++
		case model.OutcomePush:
			s.Push++
		case model.OutcomeVoid:
			s.Void++
		default:
			s.Pending++
		}
	}
	return s
}

// Stats returns current statistics.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Passes:      o.passes.Load(),
		Notified:    o.notified.Load(),
		Flushes:     o.flushes.Load(),
		FlushErrors: o.flushErrors.Load(),
	}
}

// Package momentum estimates which side of a head-to-head match is trending.
package momentum

import (
	"math"
	"sort"
	"time"

	"github.com/rickgao/matchsync/internal/model"
)

// Label is the discrete direction of a momentum score.
type Label string

const (
	LabelLocal        Label = "local"
	LabelCounterparty Label = "counterparty"
	LabelEven         Label = "even"
)

// Method tells callers which signal produced the score.
type Method string

const (
	MethodRecent   Method = "recent"
	MethodFallback Method = "fallback"
)

// Default tuning.
const (
	DefaultWindow      = 6
	DefaultMinResolved = 3
	DefaultThreshold   = 0.15

	recentWeight = 0.7
	pointsWeight = 0.3
)

// Pick is one side's resolved pick.
type Pick struct {
	Status     model.Outcome
	ResolvedAt time.Time
}

// Input holds both sides of the match.
type Input struct {
	Local              []Pick
	Counterparty       []Pick
	LocalPoints        float64
	CounterpartyPoints float64
}

// Options tunes the estimator.
type Options struct {
	Window      int     // Trailing picks considered per side
	MinResolved int     // Resolved picks (both sides) required for MethodRecent
	Threshold   float64 // |score| at or below this is LabelEven
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Window:      DefaultWindow,
		MinResolved: DefaultMinResolved,
		Threshold:   DefaultThreshold,
	}
}

// Result is the estimator output. Score is in [-1, 1]; positive favors the local side.
type Result struct {
	Score            float64
	Label            Label
	Method           Method
	LocalRate        float64
	CounterpartyRate float64
}

// Estimate computes momentum from recent hit rates, blended with point totals.
// With too few resolved picks it falls back to point totals alone.
func Estimate(in Input, opts Options) Result {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	local := window(in.Local, opts.Window)
	counter := window(in.Counterparty, opts.Window)
	points := pointsScore(in.LocalPoints, in.CounterpartyPoints)

	res := Result{
		LocalRate:        hitRate(local),
		CounterpartyRate: hitRate(counter),
	}

	if len(local)+len(counter) < opts.MinResolved {
		res.Method = MethodFallback
		res.Score = clamp(points)
	} else {
		res.Method = MethodRecent
		res.Score = clamp(recentWeight*(res.LocalRate-res.CounterpartyRate) + pointsWeight*points)
	}

	switch {
	case res.Score > opts.Threshold:
		res.Label = LabelLocal
	case res.Score < -opts.Threshold:
		res.Label = LabelCounterparty
	default:
		res.Label = LabelEven
	}
	return res
}

// window returns the most recently resolved picks, newest first.
func window(picks []Pick, n int) []Pick {
	resolved := make([]Pick, 0, len(picks))
	for _, p := range picks {
		switch p.Status {
		case model.OutcomeHit, model.OutcomeMiss, model.OutcomePush:
			resolved = append(resolved, p)
		}
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].ResolvedAt.After(resolved[j].ResolvedAt)
	})
	if len(resolved) > n {
		resolved = resolved[:n]
	}
	return resolved
}

func hitRate(picks []Pick) float64 {
	if len(picks) == 0 {
		return 0
	}
	hits := 0
	for _, p := range picks {
		if p.Status == model.OutcomeHit {
			hits++
		}
	}
	return float64(hits) / float64(len(picks))
}

func pointsScore(local, counter float64) float64 {
	total := math.Abs(local) + math.Abs(counter)
	if total == 0 {
		return 0
	}
	return (local - counter) / total
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

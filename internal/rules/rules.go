// Package rules derives pick outcomes from final scores.
//
// Evaluation is pure and total: every input maps to an outcome and nothing
// panics. Line arithmetic runs on decimals so half-point and quarter-point
// lines compare exactly against integer scores.
package rules

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/matchsync/internal/model"
)

// Selections understood by Evaluate. Matching is case-insensitive.
const (
	SelectionHome  = "home"
	SelectionAway  = "away"
	SelectionOver  = "over"
	SelectionUnder = "under"
)

// Evaluate returns the outcome of a pick given the event's score.
//
// Prop markets and unrecognized selections return OutcomePending: they cannot
// be derived locally and wait for the backend settlement.
func Evaluate(market model.MarketType, selection string, line *float64, homeScore, awayScore int) model.Outcome {
	sel := normalize(selection)

	switch market {
	case model.MarketMoneyline:
		return moneyline(sel, homeScore, awayScore)
	case model.MarketSpread:
		return spread(sel, line, homeScore, awayScore)
	case model.MarketTotal:
		return total(sel, line, homeScore, awayScore)
	default:
		return model.OutcomePending
	}
}

func moneyline(sel string, home, away int) model.Outcome {
	if sel != SelectionHome && sel != SelectionAway {
		return model.OutcomePending
	}
	if home == away {
		return model.OutcomePush
	}
	homeWon := home > away
	if (sel == SelectionHome) == homeWon {
		return model.OutcomeHit
	}
	return model.OutcomeMiss
}

func spread(sel string, line *float64, home, away int) model.Outcome {
	l, ok := lineValue(line)
	if !ok {
		return model.OutcomePending
	}

	var own, other int
	switch sel {
	case SelectionHome:
		own, other = home, away
	case SelectionAway:
		own, other = away, home
	default:
		return model.OutcomePending
	}

	// adjusted margin = own + line - other
	margin := decimal.NewFromInt(int64(own)).Add(l).Sub(decimal.NewFromInt(int64(other)))
	return fromSign(margin.Sign())
}

func total(sel string, line *float64, home, away int) model.Outcome {
	l, ok := lineValue(line)
	if !ok {
		return model.OutcomePending
	}
	if sel != SelectionOver && sel != SelectionUnder {
		return model.OutcomePending
	}

	cmp := decimal.NewFromInt(int64(home) + int64(away)).Cmp(l)
	if cmp == 0 {
		return model.OutcomePush
	}
	if sel == SelectionUnder {
		cmp = -cmp
	}
	return fromSign(cmp)
}

// lineValue converts an optional line. NaN and infinities are not evaluable.
func lineValue(line *float64) (decimal.Decimal, bool) {
	if line == nil || math.IsNaN(*line) || math.IsInf(*line, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(*line), true
}

func fromSign(sign int) model.Outcome {
	switch {
	case sign > 0:
		return model.OutcomeHit
	case sign < 0:
		return model.OutcomeMiss
	default:
		return model.OutcomePush
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

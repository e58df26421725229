package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/rickgao/matchsync/internal/engine"
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/momentum"
)

func pickLabel(r model.SettlementResult) string {
	if r.Description != "" {
		return r.Description
	}
	if r.Line != nil {
		return r.Selection + " " + strconv.FormatFloat(*r.Line, 'f', -1, 64)
	}
	return r.Selection
}

// printSummary renders the tracked match's results and totals.
func printSummary(w io.Writer, snap engine.Snapshot, m momentum.Result) {
	fmt.Fprintf(w, "\nmatch %s (%s, generation %d)\n", snap.MatchID, snap.State, snap.Generation)

	table := tablewriter.NewWriter(w)
	table.Header("Pick", "Event", "Market", "Selection", "Score", "Status", "Points", "Source")
	for _, r := range snap.Results {
		source := "local"
		if r.Authoritative {
			source = "backend"
		}
		points := ""
		if r.Status == model.OutcomeHit {
			points = strconv.Itoa(r.PointValue)
		}
		table.Append(
			r.PickID,
			r.EventID,
			string(r.MarketType),
			pickLabel(r),
			fmt.Sprintf("%d-%d", r.HomeScore, r.AwayScore),
			string(r.Status),
			points,
			source,
		)
	}
	table.Render()

	s := snap.Summary
	fmt.Fprintf(w, "  %d picks: %d hit, %d miss, %d push, %d void, %d pending | %d points won\n",
		s.Total, s.Hit, s.Miss, s.Push, s.Void, s.Pending, s.PointsWon)
	fmt.Fprintf(w, "  momentum: %s (%.2f, %s)\n", m.Label, m.Score, m.Method)
}

package main

import (
	"strings"
	"testing"

	"github.com/rickgao/matchsync/internal/model"
)

const samplePicks = `
match_id: match-1
picks:
  - id: p1
    event_id: e1
    market: spread
    selection: away
    line: 3.5
    points: 10
    owner: me
  - id: p2
    event_id: e2
    market: moneyline
    selection: home
    points: 5
    prior_status: won
`

func TestParsePicks(t *testing.T) {
	matchID, picks, err := parsePicks([]byte(samplePicks), "")
	if err != nil {
		t.Fatalf("parsePicks failed: %v", err)
	}
	if matchID != "match-1" {
		t.Errorf("matchID = %q, want match-1", matchID)
	}
	if len(picks) != 2 {
		t.Fatalf("len(picks) = %d, want 2", len(picks))
	}

	p := picks[0]
	if p.MarketType != model.MarketSpread || p.Line == nil || *p.Line != 3.5 || p.PointValue != 10 || p.OwnerID != "me" {
		t.Errorf("picks[0] = %+v", p)
	}
	if p.PriorStatus != model.OutcomePending {
		t.Errorf("missing prior_status should be pending, got %q", p.PriorStatus)
	}
	if picks[1].Line != nil || picks[1].PriorStatus != model.OutcomeHit {
		t.Errorf("picks[1] = %+v", picks[1])
	}
}

func TestParsePicks_FlagOverridesMatch(t *testing.T) {
	matchID, _, err := parsePicks([]byte(samplePicks), "match-9")
	if err != nil {
		t.Fatalf("parsePicks failed: %v", err)
	}
	if matchID != "match-9" {
		t.Errorf("matchID = %q, want match-9", matchID)
	}
}

func TestParsePicks_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing event", "picks:\n  - id: p1\n    market: total\n", "event_id"},
		{"unknown market", "picks:\n  - id: p1\n    event_id: e1\n    market: parlay\n", "unknown market"},
		{"duplicate id", "picks:\n  - {id: p1, event_id: e1, market: prop}\n  - {id: p1, event_id: e2, market: prop}\n", "duplicate"},
		{"bad yaml", "picks: [", "parse picks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parsePicks([]byte(tt.yaml), "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

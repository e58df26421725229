package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rickgao/matchsync/internal/model"
)

// picksFile is the on-disk list of picks to track.
type picksFile struct {
	MatchID string     `yaml:"match_id"`
	Picks   []pickYAML `yaml:"picks"`
}

type pickYAML struct {
	ID          string   `yaml:"id"`
	EventID     string   `yaml:"event_id"`
	Market      string   `yaml:"market"`
	Selection   string   `yaml:"selection"`
	Line        *float64 `yaml:"line"`
	Points      int      `yaml:"points"`
	PriorStatus string   `yaml:"prior_status"`
	Owner       string   `yaml:"owner"`
	Description string   `yaml:"description"`
}

// loadPicks reads a picks file. The file's match_id is used when matchID is
// empty.
func loadPicks(path, matchID string) (string, []model.TrackedPick, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read picks: %w", err)
	}
	return parsePicks(data, matchID)
}

func parsePicks(data []byte, matchID string) (string, []model.TrackedPick, error) {
	var f picksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("parse picks: %w", err)
	}
	if matchID == "" {
		matchID = f.MatchID
	}

	seen := make(map[string]bool, len(f.Picks))
	picks := make([]model.TrackedPick, 0, len(f.Picks))
	for i, p := range f.Picks {
		if p.ID == "" || p.EventID == "" {
			return "", nil, fmt.Errorf("pick %d: id and event_id are required", i)
		}
		if seen[p.ID] {
			return "", nil, fmt.Errorf("pick %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true

		market := model.MarketType(p.Market)
		switch market {
		case model.MarketMoneyline, model.MarketSpread, model.MarketTotal, model.MarketProp:
		default:
			return "", nil, fmt.Errorf("pick %s: unknown market %q", p.ID, p.Market)
		}

		picks = append(picks, model.TrackedPick{
			ID:          p.ID,
			EventID:     p.EventID,
			MarketType:  market,
			Selection:   p.Selection,
			Line:        p.Line,
			PointValue:  p.Points,
			PriorStatus: model.ParseOutcome(p.PriorStatus),
			OwnerID:     p.Owner,
			Description: p.Description,
		})
	}
	return matchID, picks, nil
}

package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/matchsync/internal/model"
)

// GetMatchEvents returns a snapshot of every event in a match. Events without
// an id or a parseable updated_at are skipped.
func (c *Client) GetMatchEvents(ctx context.Context, matchID string) ([]model.EventSnapshot, error) {
	if matchID == "" {
		return nil, fmt.Errorf("match id is required")
	}

	var resp MatchEventsResponse
	if err := c.get(ctx, "/matches/"+url.PathEscape(matchID)+"/events", nil, &resp); err != nil {
		return nil, fmt.Errorf("get match events: %w", err)
	}

	out := make([]model.EventSnapshot, 0, len(resp.Events))
	for i := range resp.Events {
		snap, ok := resp.Events[i].ToSnapshot()
		if !ok {
			c.logger.Debug("skipping malformed event", "match_id", matchID, "event_id", resp.Events[i].EventID)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

package api

// MatchEventsResponse from GET /matches/{id}/events
type MatchEventsResponse struct {
	MatchID string     `json:"match_id"`
	Events  []APIEvent `json:"events"`
}

// APIEvent is one sporting event's current state.
type APIEvent struct {
	EventID    string `json:"event_id"`
	ExternalID string `json:"external_id"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	GameTime   string `json:"game_time,omitempty"`
	Status     string `json:"status"`
	UpdatedAt  string `json:"updated_at"` // ISO 8601
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse from POST /auth/refresh
type SessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

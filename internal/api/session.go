package api

import (
	"context"
	"fmt"

	"github.com/rickgao/matchsync/internal/auth"
)

// RefreshSession exchanges a refresh token for a new session. The request is
// unauthenticated so a 401 here never recurses into the refresh gate.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*SessionResponse, error) {
	if refreshToken == "" {
		return nil, auth.ErrNoCredential
	}

	var resp SessionResponse
	if err := c.post(ctx, "/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, false, &resp); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh session: empty access token")
	}
	return &resp, nil
}

// TokenStore is the credential store a SessionRefresher reads and updates.
type TokenStore interface {
	RefreshToken() string
	UpdateTokens(accessToken, refreshToken string)
}

// SessionRefresher implements auth.Refresher on top of RefreshSession.
type SessionRefresher struct {
	client *Client
	tokens TokenStore
}

// NewSessionRefresher creates a refresher that stores new tokens in tokens.
func NewSessionRefresher(client *Client, tokens TokenStore) *SessionRefresher {
	return &SessionRefresher{client: client, tokens: tokens}
}

// Refresh implements auth.Refresher.
func (r *SessionRefresher) Refresh(ctx context.Context) (string, error) {
	resp, err := r.client.RefreshSession(ctx, r.tokens.RefreshToken())
	if err != nil {
		return "", err
	}
	r.tokens.UpdateTokens(resp.AccessToken, resp.RefreshToken)
	return resp.AccessToken, nil
}

var _ auth.Refresher = (*SessionRefresher)(nil)

// Package auth defines the credential collaborators the engine depends on and
// the process-wide single-flight refresh gate shared by the websocket and
// REST layers.
package auth

import (
	"context"
	"errors"
)

var (
	// ErrNoCredential is returned when a refresh is requested without a
	// refresh token on hand.
	ErrNoCredential = errors.New("no credential")

	// ErrRefreshFailed wraps refresh service failures.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// CredentialStore provides the current access credential.
type CredentialStore interface {
	// CurrentCredential returns the access token, or "" if there is none.
	CurrentCredential() string

	// WaitUntilReady blocks until the store has finished restoring state.
	WaitUntilReady(ctx context.Context) error

	// IsAuthenticated reports whether a user session is active.
	IsAuthenticated() bool
}

// Refresher exchanges the stored refresh credential for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) (string, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context) (string, error) {
	return f(ctx)
}

// StateObserver reports authentication state flips.
type StateObserver interface {
	// OnAuthStateChange registers fn for every change of IsAuthenticated and
	// returns a function that removes the registration.
	OnAuthStateChange(fn func(authenticated bool)) (cancel func())
}

// Headers returns the request headers that carry token.
func Headers(token string) map[string]string {
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{
		"Authorization": "Bearer " + token,
	}
}

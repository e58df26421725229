package auth

import (
	"context"
	"sync"
)

// MemoryCredentials is an in-process CredentialStore and StateObserver.
type MemoryCredentials struct {
	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	userID        string
	authenticated bool
	ready         chan struct{}
	readyOnce     sync.Once
	nextID        int
	subs          map[int]func(bool)
}

// NewMemoryCredentials creates an empty, not-yet-ready store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{
		ready: make(chan struct{}),
		subs:  make(map[int]func(bool)),
	}
}

// MarkReady releases WaitUntilReady callers.
func (m *MemoryCredentials) MarkReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

// SetSession stores a session, marks the store ready and notifies observers
// if the user was previously logged out.
func (m *MemoryCredentials) SetSession(userID, accessToken, refreshToken string) {
	m.mu.Lock()
	m.userID = userID
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	flipped := !m.authenticated && accessToken != ""
	m.authenticated = accessToken != ""
	subs := m.snapshotSubs()
	m.mu.Unlock()

	m.MarkReady()
	if flipped {
		notify(subs, true)
	}
}

// UpdateTokens replaces the tokens after a refresh. An empty refresh token
// keeps the old one.
func (m *MemoryCredentials) UpdateTokens(accessToken, refreshToken string) {
	m.mu.Lock()
	m.accessToken = accessToken
	if refreshToken != "" {
		m.refreshToken = refreshToken
	}
	m.mu.Unlock()
}

// Logout clears the session and notifies observers.
func (m *MemoryCredentials) Logout() {
	m.mu.Lock()
	was := m.authenticated
	m.accessToken = ""
	m.refreshToken = ""
	m.userID = ""
	m.authenticated = false
	subs := m.snapshotSubs()
	m.mu.Unlock()

	m.MarkReady()
	if was {
		notify(subs, false)
	}
}

// CurrentCredential returns the access token.
func (m *MemoryCredentials) CurrentCredential() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// RefreshToken returns the refresh token.
func (m *MemoryCredentials) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshToken
}

// UserID returns the authenticated user's id.
func (m *MemoryCredentials) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// IsAuthenticated reports whether a session is active.
func (m *MemoryCredentials) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// WaitUntilReady blocks until MarkReady, SetSession or Logout is called.
func (m *MemoryCredentials) WaitUntilReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnAuthStateChange registers fn for authentication flips.
func (m *MemoryCredentials) OnAuthStateChange(fn func(bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *MemoryCredentials) snapshotSubs() []func(bool) {
	out := make([]func(bool), 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(bool), authenticated bool) {
	for _, fn := range subs {
		fn(authenticated)
	}
}

package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestHeaders(t *testing.T) {
	h := Headers("tok")
	if h["Authorization"] != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", h["Authorization"], "Bearer tok")
	}
	if len(Headers("")) != 0 {
		t.Error("empty token should produce no headers")
	}
}

func TestMemoryCredentials_WaitUntilReady(t *testing.T) {
	m := NewMemoryCredentials()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.WaitUntilReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitUntilReady() = %v, want deadline exceeded", err)
	}

	go m.SetSession("user-1", "access", "refresh")
	if err := m.WaitUntilReady(context.Background()); err != nil {
		t.Fatalf("WaitUntilReady() = %v", err)
	}
	if !m.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after SetSession")
	}
	if m.CurrentCredential() != "access" || m.RefreshToken() != "refresh" || m.UserID() != "user-1" {
		t.Errorf("session not stored: %q %q %q", m.CurrentCredential(), m.RefreshToken(), m.UserID())
	}
}

func TestMemoryCredentials_StateChanges(t *testing.T) {
	m := NewMemoryCredentials()

	var got []bool
	cancel := m.OnAuthStateChange(func(a bool) { got = append(got, a) })

	m.SetSession("u", "a1", "r1")
	m.SetSession("u", "a2", "r2") // already authenticated, no flip
	m.Logout()
	m.Logout() // already logged out, no flip

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("state changes = %v, want [true false]", got)
	}

	cancel()
	m.SetSession("u", "a3", "r3")
	if len(got) != 2 {
		t.Errorf("cancelled observer still notified: %v", got)
	}
}

func TestMemoryCredentials_UpdateTokensKeepsRefresh(t *testing.T) {
	m := NewMemoryCredentials()
	m.SetSession("u", "a1", "r1")

	m.UpdateTokens("a2", "")
	if m.CurrentCredential() != "a2" || m.RefreshToken() != "r1" {
		t.Errorf("after UpdateTokens: access=%q refresh=%q", m.CurrentCredential(), m.RefreshToken())
	}
}

func TestRefreshGate_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32

	gate := NewRefreshGate(RefresherFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "fresh", nil
	}), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := gate.Refresh(context.Background())
			if err != nil {
				t.Errorf("Refresh() error: %v", err)
			}
			results <- tok
		}()
	}

	// Let every caller join the in-flight refresh.
	deadline := time.Now().Add(time.Second)
	for !gate.IsRefreshing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !gate.IsRefreshing() {
		t.Fatal("IsRefreshing() = false while refresh blocked")
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for tok := range results {
		if tok != "fresh" {
			t.Errorf("token = %q, want %q", tok, "fresh")
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("refresher called %d times, want 1", n)
	}
	if gate.IsRefreshing() {
		t.Error("IsRefreshing() = true after completion")
	}
}

func TestRefreshGate_Failure(t *testing.T) {
	gate := NewRefreshGate(RefresherFunc(func(ctx context.Context) (string, error) {
		return "", errors.New("revoked")
	}), nil)

	_, err := gate.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("Refresh() = %v, want ErrRefreshFailed", err)
	}

	started, failed := gate.Refreshes()
	if started != 1 || failed != 1 {
		t.Errorf("Refreshes() = %d, %d, want 1, 1", started, failed)
	}
}

func TestRefreshGate_EmptyToken(t *testing.T) {
	gate := NewRefreshGate(RefresherFunc(func(ctx context.Context) (string, error) {
		return "", nil
	}), nil)

	if _, err := gate.Refresh(context.Background()); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("Refresh() = %v, want ErrRefreshFailed", err)
	}
}

func TestRefreshGate_CallerCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	gate := NewRefreshGate(RefresherFunc(func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := gate.Refresh(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Refresh() = %v, want deadline exceeded", err)
	}
}

func TestRefreshGate_SequentialRefreshesRunAgain(t *testing.T) {
	var calls atomic.Int32
	gate := NewRefreshGate(RefresherFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "tok", nil
	}), nil)

	for i := 0; i < 3; i++ {
		if _, err := gate.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() error: %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("refresher called %d times, want 3", calls.Load())
	}
}

package router

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/matchsync/internal/model"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) add(m Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestDefaultRouterConfig(t *testing.T) {
	if cfg := DefaultRouterConfig(); cfg.BufferSize != 256 {
		t.Errorf("BufferSize = %d, want 256", cfg.BufferSize)
	}
}

func TestRouter_StartStop(t *testing.T) {
	input := make(chan Frame)
	r := NewRouter(DefaultRouterConfig(), input, nil, func(Message) {}, slog.Default())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if r.Enqueue(Message{Kind: KindState}) {
		t.Error("Enqueue after Stop returned true")
	}
}

func TestRouter_ControlAndDispatchPaths(t *testing.T) {
	input := make(chan Frame, 10)
	var acks, dispatched collector

	control := func(m Message) bool {
		if m.Kind == KindAck {
			acks.add(m)
			return true
		}
		if IsCredentialExpired(m) {
			acks.add(m)
		}
		return false
	}

	r := NewRouter(DefaultRouterConfig(), input, control, dispatched.add, nil)
	r.Start(context.Background())
	defer r.Stop(context.Background())

	input <- Frame{Data: []byte(`{"id":1,"type":"ack","msg":{"success":true}}`), Generation: 1}
	input <- Frame{Data: []byte(`{"type":"score_update","ts":"2026-02-01T20:00:00Z","msg":{"event_id":"e1","home_score":1}}`), Generation: 1}
	input <- Frame{Data: []byte(`{"type":"error","msg":{"code":"credential_expired"}}`), Generation: 1}

	waitFor(t, func() bool { return r.Stats().Dispatched == 2 })

	if got := acks.snapshot(); len(got) != 2 || got[0].ID != 1 {
		t.Errorf("control saw %d messages, want ack and error", len(got))
	}
	got := dispatched.snapshot()
	if got[0].Kind != KindScoreUpdate || got[1].Kind != KindError {
		t.Errorf("dispatch order = %s, %s", got[0].Kind, got[1].Kind)
	}

	stats := r.Stats()
	if stats.FramesReceived != 3 || stats.Controlled != 1 || stats.Dispatched != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRouter_CountsBadFrames(t *testing.T) {
	input := make(chan Frame, 10)
	var dispatched collector
	r := NewRouter(DefaultRouterConfig(), input, nil, dispatched.add, nil)
	r.Start(context.Background())
	defer r.Stop(context.Background())

	input <- Frame{Data: []byte(`garbage`)}
	input <- Frame{Data: []byte(`{"type":"heartbeat"}`)}
	input <- Frame{Data: []byte(`{"type":"room_joined","msg":{"match_id":"m1"}}`)}

	waitFor(t, func() bool { return len(dispatched.snapshot()) == 1 })

	stats := r.Stats()
	if stats.ParseErrors != 1 || stats.UnknownMessages != 1 {
		t.Errorf("ParseErrors = %d, UnknownMessages = %d, want 1, 1", stats.ParseErrors, stats.UnknownMessages)
	}
}

func TestRouter_EnqueueSharesOrderWithFrames(t *testing.T) {
	input := make(chan Frame)
	var mu sync.Mutex
	var order []Kind

	release := make(chan struct{})
	dispatch := func(m Message) {
		if m.Kind == KindRoomJoined {
			<-release
		}
		mu.Lock()
		order = append(order, m.Kind)
		mu.Unlock()
	}

	r := NewRouter(DefaultRouterConfig(), input, nil, dispatch, nil)
	r.Start(context.Background())
	defer r.Stop(context.Background())

	input <- Frame{Data: []byte(`{"type":"room_joined","msg":{"match_id":"m1"}}`)}
	waitFor(t, func() bool { return r.Stats().Queue.Popped == 1 })

	r.Enqueue(Message{Kind: KindState, Payload: model.StateChange{To: model.StateReconnecting}})
	input <- Frame{Data: []byte(`{"type":"room_left","msg":{"match_id":"m1"}}`)}
	waitFor(t, func() bool { return r.Stats().Queue.Pushed == 3 })
	close(release)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})
	if order[0] != KindRoomJoined || order[1] != KindState || order[2] != KindRoomLeft {
		t.Errorf("order = %v", order)
	}
}

func TestRouter_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	input := make(chan Frame, 2)
	var dispatched collector
	first := true
	dispatch := func(m Message) {
		if first {
			first = false
			panic("listener bug")
		}
		dispatched.add(m)
	}

	r := NewRouter(DefaultRouterConfig(), input, nil, dispatch, nil)
	r.Start(context.Background())
	defer r.Stop(context.Background())

	input <- Frame{Data: []byte(`{"type":"room_joined","msg":{"match_id":"m1"}}`)}
	input <- Frame{Data: []byte(`{"type":"room_left","msg":{"match_id":"m1"}}`)}

	waitFor(t, func() bool { return len(dispatched.snapshot()) == 1 })
}

func TestRouter_StopDrainsQueue(t *testing.T) {
	input := make(chan Frame)
	var dispatched collector
	r := NewRouter(RouterConfig{BufferSize: 1}, input, nil, func(m Message) {
		time.Sleep(time.Millisecond)
		dispatched.add(m)
	}, nil)
	r.Start(context.Background())

	for i := 0; i < 10; i++ {
		r.Enqueue(Message{Kind: KindState})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if n := len(dispatched.snapshot()); n != 10 {
		t.Errorf("dispatched %d messages before stop, want 10", n)
	}
}

package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ControlFunc handles a message on the route goroutine. Returning true
// consumes the message; false also queues it for dispatch.
type ControlFunc func(Message) bool

// DispatchFunc handles a queued message on the dispatch goroutine.
type DispatchFunc func(Message)

// Router decodes frames and delivers them through control and dispatch paths.
type Router interface {
	// Start begins routing frames from the input channel.
	Start(ctx context.Context) error

	// Stop drains queued messages and shuts down.
	Stop(ctx context.Context) error

	// Enqueue queues a locally produced message for dispatch.
	Enqueue(msg Message) bool

	// Stats returns current router statistics.
	Stats() RouterStats
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	FramesReceived  int64
	Controlled      int64
	Dispatched      int64
	ParseErrors     int64
	UnknownMessages int64
	Queue           QueueStats
}

type router struct {
	cfg      RouterConfig
	logger   *slog.Logger
	input    <-chan Frame
	control  ControlFunc
	dispatch DispatchFunc
	queue    *Queue[Message]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	received    atomic.Int64
	controlled  atomic.Int64
	dispatched  atomic.Int64
	parseErrors atomic.Int64
	unknown     atomic.Int64
}

// NewRouter creates a router reading frames from input. control may be nil.
func NewRouter(cfg RouterConfig, input <-chan Frame, control ControlFunc, dispatch DispatchFunc, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultRouterConfig().BufferSize
	}
	if control == nil {
		control = func(Message) bool { return false }
	}

	return &router{
		cfg:      cfg,
		logger:   logger.With("component", "router"),
		input:    input,
		control:  control,
		dispatch: dispatch,
		queue:    NewQueue[Message](cfg.BufferSize),
	}
}

// Start begins routing and dispatching.
func (r *router) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.routeLoop(ctx)
	go r.dispatchLoop()

	r.logger.Debug("router started", "buffer", r.cfg.BufferSize)
	return nil
}

// Stop stops routing, lets the dispatch goroutine drain, and waits for both.
func (r *router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Debug("router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("router stop timed out", "queued", r.queue.Len())
		return ctx.Err()
	}
}

// Enqueue queues msg for dispatch.
func (r *router) Enqueue(msg Message) bool {
	return r.queue.Push(msg)
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	return RouterStats{
		FramesReceived:  r.received.Load(),
		Controlled:      r.controlled.Load(),
		Dispatched:      r.dispatched.Load(),
		ParseErrors:     r.parseErrors.Load(),
		UnknownMessages: r.unknown.Load(),
		Queue:           r.queue.Stats(),
	}
}

func (r *router) routeLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-r.input:
			if !ok {
				r.logger.Debug("input channel closed")
				return
			}
			r.route(f)
		}
	}
}

func (r *router) route(f Frame) {
	r.received.Add(1)

	msg, err := Decode(f)
	if err != nil {
		if errors.Is(err, ErrUnknownType) {
			r.unknown.Add(1)
			r.logger.Debug("skipping message", "error", err)
			return
		}
		r.parseErrors.Add(1)
		r.logger.Warn("failed to decode frame", "error", err, "generation", f.Generation)
		return
	}

	if r.control(msg) {
		r.controlled.Add(1)
		return
	}
	r.queue.Push(msg)
}

func (r *router) dispatchLoop() {
	defer r.wg.Done()

	for {
		msg, ok := r.queue.Pop()
		if !ok {
			return
		}
		r.deliver(msg)
	}
}

func (r *router) deliver(msg Message) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("dispatch handler panicked", "kind", msg.Kind, "panic", p)
		}
	}()
	r.dispatch(msg)
	r.dispatched.Add(1)
}

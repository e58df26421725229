package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/matchsync/internal/auth"
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/router"
	"github.com/rickgao/matchsync/internal/version"
)

// Manager owns the process's connection to the match server.
type Manager interface {
	// Start begins routing and observing auth state. It does not connect.
	Start(ctx context.Context) error

	// Stop disconnects and shuts down, draining queued messages to listeners.
	Stop(ctx context.Context) error

	// Connect runs a connect cycle and blocks until it yields a connection
	// or gives up. It is a no-op while connecting, connected or reconnecting.
	Connect(ctx context.Context) error

	// Reconnect manually restarts from the error or disconnected state.
	Reconnect(ctx context.Context) error

	// Disconnect closes the connection intentionally.
	Disconnect()

	// Send issues a command and waits for its acknowledgment.
	Send(ctx context.Context, cmd, matchID string) (router.Ack, error)

	State() model.ConnectionState
	Generation() int64
	IsConnected() bool

	// Subscribe registers fn for messages of kind and returns an id for
	// Unsubscribe. Listeners run on one goroutine in registration order.
	Subscribe(kind router.Kind, fn func(router.Message)) string

	// OnStateChange registers fn for connection state changes.
	OnStateChange(fn func(model.StateChange)) string

	// Unsubscribe removes exactly the registration with id.
	Unsubscribe(id string) bool

	AddRoom(matchID string)
	RemoveRoom(matchID string) bool
	HasRoom(matchID string) bool
	Rooms() []string

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

type listener struct {
	id string
	fn func(router.Message)
}

// manager implements the Manager interface.
type manager struct {
	cfg      ManagerConfig
	creds    auth.CredentialStore
	gate     *auth.RefreshGate
	observer auth.StateObserver
	logger   *slog.Logger

	frames    chan router.Frame
	router    router.Router
	newClient func(ClientConfig, *slog.Logger) Client

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	authCancel func()

	// Connection state, guarded by mu
	mu          sync.RWMutex
	state       model.ConnectionState
	generation  int64
	client      Client
	cycle       int64 // Bumped whenever a connect cycle starts or is abandoned
	cycleCancel context.CancelFunc
	rooms       map[string]struct{}
	started     bool
	stopped     bool
	reconnects  int64

	listenersMu sync.RWMutex
	listeners   map[router.Kind][]listener
	listenerIdx map[string]router.Kind

	// Ack waiters live at manager scope so they survive a reconnect.
	pendingMu sync.Mutex
	pending   map[int64]chan router.Ack
	nextID    atomic.Int64
}

// NewManager creates a connection manager. gate and observer may be nil;
// without a gate an expired credential ends the cycle in error.
func NewManager(cfg ManagerConfig, creds auth.CredentialStore, gate *auth.RefreshGate, observer auth.StateObserver, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}

	m := &manager{
		cfg:         cfg,
		creds:       creds,
		gate:        gate,
		observer:    observer,
		logger:      logger.With("component", "connection"),
		frames:      make(chan router.Frame, cfg.InboundBufferSize),
		newClient:   NewClient,
		state:       model.StateDisconnected,
		rooms:       make(map[string]struct{}),
		listeners:   make(map[router.Kind][]listener),
		listenerIdx: make(map[string]router.Kind),
		pending:     make(map[int64]chan router.Ack),
	}
	m.router = router.NewRouter(
		router.RouterConfig{BufferSize: cfg.InboundBufferSize},
		m.frames,
		m.control,
		m.dispatch,
		logger,
	)
	return m
}

// Start begins the connection manager.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if err := m.router.Start(m.ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	if m.observer != nil {
		m.authCancel = m.observer.OnAuthStateChange(m.onAuthStateChange)
	}

	m.logger.Info("connection manager started", "url", m.cfg.URL)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.logger.Info("stopping connection manager")
	m.stopped = true
	c := m.detachLocked()
	m.transitionLocked(model.StateDisconnected, model.ReasonIntentional, nil)
	m.mu.Unlock()

	if m.authCancel != nil {
		m.authCancel()
	}
	if c != nil {
		c.Close()
	}
	m.cancel()

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	if err := m.router.Stop(ctx); err != nil {
		return fmt.Errorf("stop router: %w", err)
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// Connect starts a connect cycle unless one is active.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	switch m.state {
	case model.StateConnecting, model.StateConnected, model.StateReconnecting:
		m.mu.Unlock()
		return nil
	}
	cycle, cycleCtx := m.beginCycleLocked()
	m.transitionLocked(model.StateConnecting, model.ReasonConnecting, nil)
	m.mu.Unlock()

	return m.establish(ctx, cycle, cycleCtx, false)
}

// Reconnect restarts the connect cycle with a fresh attempt budget.
func (m *manager) Reconnect(ctx context.Context) error {
	m.logger.Info("manual reconnect", "state", m.State())
	return m.Connect(ctx)
}

// Disconnect closes the connection and cancels any connect cycle.
func (m *manager) Disconnect() {
	m.disconnect(model.ReasonIntentional)
}

func (m *manager) disconnect(reason model.StateReason) {
	m.mu.Lock()
	c := m.detachLocked()
	m.transitionLocked(model.StateDisconnected, reason, nil)
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

func (m *manager) onAuthStateChange(authenticated bool) {
	if !authenticated {
		m.logger.Info("credential revoked, disconnecting")
		m.disconnect(model.ReasonLoggedOut)
		return
	}

	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if err := m.Connect(m.ctx); err != nil {
			m.logger.Debug("connect after sign-in failed", "error", err)
		}
	}()
}

// establish dials until connected, fatal failure, or cancellation. It only
// mutates state while cycle is still current.
func (m *manager) establish(ctx context.Context, cycle int64, cycleCtx context.Context, needRefresh bool) error {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(cycleCtx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	if err := m.creds.WaitUntilReady(ctx); err != nil {
		m.abandon(cycle)
		return err
	}

	refreshes := 0
	failures := 0
	for {
		if needRefresh {
			if refreshes >= m.cfg.MaxRefreshAttempts {
				m.transitionCycle(cycle, model.StateError, model.ReasonRefreshFailed, ErrRefreshExhausted)
				return ErrRefreshExhausted
			}
			refreshes++
			if err := m.refresh(ctx); err != nil {
				if ctx.Err() != nil {
					m.abandon(cycle)
					return ctx.Err()
				}
				m.transitionCycle(cycle, model.StateError, model.ReasonRefreshFailed, err)
				return err
			}
			needRefresh = false
		}

		token := m.creds.CurrentCredential()
		if token == "" || !m.creds.IsAuthenticated() {
			m.logger.Info("no credential, staying disconnected")
			m.transitionCycle(cycle, model.StateDisconnected, model.ReasonNoCredential, nil)
			return auth.ErrNoCredential
		}

		c := m.newClient(m.clientConfig(token), m.logger)
		err := c.Connect(ctx)
		if err == nil {
			if m.attach(cycle, c) {
				return nil
			}
			c.Close()
			return ErrNotConnected
		}
		if ctx.Err() != nil {
			m.abandon(cycle)
			return ctx.Err()
		}

		if errors.Is(err, ErrCredentialExpired) {
			m.logger.Warn("handshake rejected credential", "error", err)
			needRefresh = true
			continue
		}

		failures++
		if failures >= m.cfg.MaxReconnectAttempts {
			err = fmt.Errorf("%w: %w", ErrAttemptsExhausted, err)
			m.transitionCycle(cycle, model.StateError, model.ReasonAttemptsExhausted, err)
			return err
		}

		wait := Backoff(m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay, failures)
		m.logger.Warn("connection attempt failed",
			"attempt", failures,
			"retry_in", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			m.abandon(cycle)
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *manager) refresh(ctx context.Context) error {
	if m.gate == nil {
		return auth.ErrRefreshFailed
	}
	_, err := m.gate.Refresh(ctx)
	return err
}

// attach installs c as the live connection if cycle is still current.
func (m *manager) attach(cycle int64, c Client) bool {
	m.mu.Lock()
	if m.cycle != cycle || m.stopped {
		m.mu.Unlock()
		return false
	}
	m.generation++
	gen := m.generation
	m.client = c
	m.transitionLocked(model.StateConnected, model.ReasonConnected, nil)
	m.wg.Add(1)
	m.mu.Unlock()

	go m.pump(c, gen)
	return true
}

// abandon moves a cancelled cycle to disconnected unless it was superseded.
func (m *manager) abandon(cycle int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cycle != cycle {
		return
	}
	m.transitionLocked(model.StateDisconnected, model.ReasonIntentional, nil)
}

// pump forwards frames from c, tagged with its generation, to the router.
func (m *manager) pump(c Client, gen int64) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-c.Done():
			return
		case tm := <-c.Messages():
			if !m.forward(tm, gen) {
				return
			}
		case err := <-c.Errors():
			m.drain(c, gen)
			m.handleDisconnect(gen, err)
			return
		}
	}
}

func (m *manager) forward(tm TimestampedMessage, gen int64) bool {
	select {
	case m.frames <- router.Frame{Data: tm.Data, Generation: gen, ReceivedAt: tm.ReceivedAt}:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *manager) drain(c Client, gen int64) {
	for {
		select {
		case tm := <-c.Messages():
			if !m.forward(tm, gen) {
				return
			}
		default:
			return
		}
	}
}

// handleDisconnect reacts to the loss of the connection with generation gen.
func (m *manager) handleDisconnect(gen int64, err error) {
	m.mu.Lock()
	if gen != m.generation || m.client == nil || m.state != model.StateConnected {
		m.mu.Unlock()
		return
	}
	c := m.client
	m.client = nil

	if errors.Is(err, ErrServerClosed) {
		m.transitionLocked(model.StateError, model.ReasonServerClosed, err)
		m.mu.Unlock()
		c.Close()
		return
	}

	reason := model.ReasonTransportLost
	needRefresh := false
	if errors.Is(err, ErrCredentialExpired) {
		reason = model.ReasonCredentialExpired
		needRefresh = true
	}

	m.reconnects++
	cycle, cycleCtx := m.beginCycleLocked()
	m.transitionLocked(model.StateReconnecting, reason, err)
	m.wg.Add(1)
	m.mu.Unlock()

	c.Close()

	go func() {
		defer m.wg.Done()
		if err := m.establish(m.ctx, cycle, cycleCtx, needRefresh); err != nil {
			m.logger.Warn("reconnect failed", "error", err)
		}
	}()
}

// control runs on the route goroutine ahead of dispatch.
func (m *manager) control(msg router.Message) bool {
	if msg.Kind == router.KindAck {
		m.resolve(msg)
		return true
	}
	if router.IsCredentialExpired(msg) {
		m.logger.Warn("server reported credential expired", "generation", msg.Generation)
		m.handleDisconnect(msg.Generation, ErrCredentialExpired)
	}
	return false
}

func (m *manager) resolve(msg router.Message) {
	ack, _ := msg.Payload.(router.Ack)

	m.pendingMu.Lock()
	ch, ok := m.pending[msg.ID]
	delete(m.pending, msg.ID)
	m.pendingMu.Unlock()

	if !ok {
		m.logger.Debug("ack without waiter", "id", msg.ID)
		return
	}
	ch <- ack
}

// dispatch runs on the dispatch goroutine.
func (m *manager) dispatch(msg router.Message) {
	m.listenersMu.RLock()
	ls := slices.Clone(m.listeners[msg.Kind])
	m.listenersMu.RUnlock()

	for _, l := range ls {
		m.call(l, msg)
	}
}

func (m *manager) call(l listener, msg router.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panic", "kind", msg.Kind, "listener", l.id, "panic", r)
		}
	}()
	l.fn(msg)
}

// Send issues cmd for matchID and waits for the acknowledgment.
func (m *manager) Send(ctx context.Context, cmd, matchID string) (router.Ack, error) {
	m.mu.RLock()
	c := m.client
	connected := m.state == model.StateConnected
	m.mu.RUnlock()

	if !connected || c == nil {
		return router.Ack{}, ErrNotConnected
	}

	id := m.nextID.Add(1)
	ch := make(chan router.Ack, 1)

	m.pendingMu.Lock()
	m.pending[id] = ch
	m.pendingMu.Unlock()

	defer func() {
		m.pendingMu.Lock()
		delete(m.pending, id)
		m.pendingMu.Unlock()
	}()

	data, err := router.EncodeCommand(router.Command{
		ID:     id,
		Cmd:    cmd,
		Params: router.CommandParams{MatchID: matchID},
	})
	if err != nil {
		return router.Ack{}, fmt.Errorf("encode %s: %w", cmd, err)
	}
	if err := c.Send(data); err != nil {
		return router.Ack{}, fmt.Errorf("send %s: %w", cmd, err)
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return router.Ack{}, context.Cause(ctx)
	case <-m.ctx.Done():
		return router.Ack{}, ErrManagerStopped
	}
}

// State returns the current connection state.
func (m *manager) State() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Generation returns the number of connections established so far.
func (m *manager) Generation() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// IsConnected reports whether the state is connected.
func (m *manager) IsConnected() bool {
	return m.State() == model.StateConnected
}

// Subscribe registers a listener for kind.
func (m *manager) Subscribe(kind router.Kind, fn func(router.Message)) string {
	id := uuid.NewString()

	m.listenersMu.Lock()
	m.listeners[kind] = append(m.listeners[kind], listener{id: id, fn: fn})
	m.listenerIdx[id] = kind
	n := len(m.listeners[kind])
	m.listenersMu.Unlock()

	if !m.cfg.Production && n > m.cfg.ListenerWarnThreshold {
		m.logger.Warn("possible listener leak",
			"kind", kind,
			"listeners", n,
			"threshold", m.cfg.ListenerWarnThreshold,
		)
	}
	return id
}

// OnStateChange registers a connection state listener.
func (m *manager) OnStateChange(fn func(model.StateChange)) string {
	return m.Subscribe(router.KindState, func(msg router.Message) {
		if sc, ok := msg.Payload.(model.StateChange); ok {
			fn(sc)
		}
	})
}

// Unsubscribe removes the listener with id.
func (m *manager) Unsubscribe(id string) bool {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	kind, ok := m.listenerIdx[id]
	if !ok {
		return false
	}
	delete(m.listenerIdx, id)

	ls := m.listeners[kind]
	kept := make([]listener, 0, len(ls))
	for _, l := range ls {
		if l.id != id {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(m.listeners, kind)
	} else {
		m.listeners[kind] = kept
	}
	return true
}

// AddRoom records membership of matchID.
func (m *manager) AddRoom(matchID string) {
	m.mu.Lock()
	m.rooms[matchID] = struct{}{}
	m.mu.Unlock()
}

// RemoveRoom drops membership of matchID.
func (m *manager) RemoveRoom(matchID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[matchID]
	delete(m.rooms, matchID)
	return ok
}

// HasRoom reports membership of matchID.
func (m *manager) HasRoom(matchID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[matchID]
	return ok
}

// Rooms returns the sorted room membership.
func (m *manager) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.rooms))
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	s := ManagerStats{
		State:      m.state,
		Generation: m.generation,
		Rooms:      len(m.rooms),
		Reconnects: m.reconnects,
	}
	m.mu.RUnlock()

	m.listenersMu.RLock()
	s.Listeners = len(m.listenerIdx)
	m.listenersMu.RUnlock()

	m.pendingMu.Lock()
	s.PendingRequests = len(m.pending)
	m.pendingMu.Unlock()

	s.Router = m.router.Stats()
	return s
}

func (m *manager) clientConfig(token string) ClientConfig {
	return ClientConfig{
		URL:              m.cfg.URL,
		Token:            token,
		UserAgent:        m.cfg.UserAgent,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		PingTimeout:      m.cfg.PingTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.InboundBufferSize,
	}
}

// beginCycleLocked supersedes any running cycle and starts a new one.
func (m *manager) beginCycleLocked() (int64, context.Context) {
	if m.cycleCancel != nil {
		m.cycleCancel()
	}
	m.cycle++
	ctx, cancel := context.WithCancel(m.ctx)
	m.cycleCancel = cancel
	return m.cycle, ctx
}

// detachLocked cancels any cycle and releases the live client.
func (m *manager) detachLocked() Client {
	m.cycle++
	if m.cycleCancel != nil {
		m.cycleCancel()
		m.cycleCancel = nil
	}
	c := m.client
	m.client = nil
	return c
}

func (m *manager) transitionCycle(cycle int64, to model.ConnectionState, reason model.StateReason, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cycle != cycle {
		return false
	}
	return m.transitionLocked(to, reason, err)
}

// transitionLocked applies a state change and queues it for listeners.
// Queueing under mu keeps listener order equal to transition order.
func (m *manager) transitionLocked(to model.ConnectionState, reason model.StateReason, err error) bool {
	from := m.state
	if from == to {
		return false
	}
	if !CanTransition(from, to) {
		m.logger.Warn("invalid state transition", "from", from, "to", to, "reason", reason)
		return false
	}
	m.state = to

	attrs := []any{"from", from, "to", to, "reason", reason, "generation", m.generation}
	if err != nil {
		m.logger.Warn("connection state changed", append(attrs, "error", err)...)
	} else {
		m.logger.Info("connection state changed", attrs...)
	}

	now := time.Now()
	m.router.Enqueue(router.Message{
		Kind:       router.KindState,
		Timestamp:  now,
		ReceivedAt: now,
		Generation: m.generation,
		Payload: model.StateChange{
			From:       from,
			To:         to,
			Generation: m.generation,
			Reason:     reason,
			Err:        err,
		},
	})
	return true
}

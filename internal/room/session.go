package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/matchsync/internal/config"
	"github.com/rickgao/matchsync/internal/connection"
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/router"
)

// Fixed protocol timeouts.
const (
	JoinTimeout         = 5 * time.Second
	LeaveCleanupTimeout = 10 * time.Second
)

var (
	ErrNotConnected     = connection.ErrNotConnected
	ErrJoinTimeout      = errors.New("join timed out")
	ErrJoinAborted      = errors.New("join aborted")
	ErrConnectionCycled = errors.New("connection cycled during join")
	ErrJoinRejected     = errors.New("join rejected")
	ErrLeaveFailed      = errors.New("leave failed")
)

// Conn is the part of the connection manager a session uses.
type Conn interface {
	IsConnected() bool
	Generation() int64
	Send(ctx context.Context, cmd, matchID string) (router.Ack, error)
	OnStateChange(fn func(model.StateChange)) string
	Unsubscribe(id string) bool
	AddRoom(matchID string)
	RemoveRoom(matchID string) bool
	HasRoom(matchID string) bool
	Rooms() []string
}

// Options configures rejoin pacing.
type Options struct {
	RejoinRate  float64 // Rejoins per second
	RejoinBurst int
}

// OptionsFrom builds Options from application config.
func OptionsFrom(cfg config.RoomsConfig) Options {
	return Options{RejoinRate: cfg.RejoinRate, RejoinBurst: cfg.RejoinBurst}
}

// Session joins and leaves match rooms over a Conn and rejoins every member
// room after a reconnect.
type Session struct {
	conn    Conn
	logger  *slog.Logger
	limiter *rate.Limiter

	joinTimeout  time.Duration
	leaveCleanup time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subID  string

	mu       sync.Mutex
	cleanups map[string]*time.Timer
}

// NewSession creates a session over conn.
func NewSession(conn Conn, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RejoinRate <= 0 {
		opts.RejoinRate = config.DefaultRejoinRate
	}
	if opts.RejoinBurst <= 0 {
		opts.RejoinBurst = config.DefaultRejoinBurst
	}
	return &Session{
		conn:         conn,
		logger:       logger.With("component", "room"),
		limiter:      rate.NewLimiter(rate.Limit(opts.RejoinRate), opts.RejoinBurst),
		joinTimeout:  JoinTimeout,
		leaveCleanup: LeaveCleanupTimeout,
		cleanups:     make(map[string]*time.Timer),
	}
}

// Start subscribes to connection state changes for rejoin.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.subID = s.conn.OnStateChange(s.onStateChange)
	return nil
}

// Stop cancels pending rejoins and cleanup timers.
func (s *Session) Stop(ctx context.Context) error {
	if s.subID != "" {
		s.conn.Unsubscribe(s.subID)
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	for id, t := range s.cleanups {
		t.Stop()
		delete(s.cleanups, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join joins matchID and records membership once acknowledged. It fails
// with ErrConnectionCycled if the connection generation moved while the
// request was in flight, even when the server accepted it.
func (s *Session) Join(ctx context.Context, matchID string) error {
	if !s.conn.IsConnected() {
		return ErrNotConnected
	}
	if ctx.Err() != nil {
		return fmt.Errorf("join %s: %w: %w", matchID, ErrJoinAborted, context.Cause(ctx))
	}

	gen := s.conn.Generation()
	jctx, cancel := context.WithTimeoutCause(ctx, s.joinTimeout, ErrJoinTimeout)
	defer cancel()

	ack, err := s.conn.Send(jctx, router.CmdJoinRoom, matchID)
	if err != nil {
		switch {
		case errors.Is(err, ErrJoinTimeout):
			return fmt.Errorf("join %s: %w", matchID, ErrJoinTimeout)
		case ctx.Err() != nil:
			return fmt.Errorf("join %s: %w: %w", matchID, ErrJoinAborted, err)
		default:
			return fmt.Errorf("join %s: %w", matchID, err)
		}
	}
	if !ack.Success {
		return fmt.Errorf("join %s: %w: %s", matchID, ErrJoinRejected, ack.Error)
	}
	if now := s.conn.Generation(); now != gen {
		s.logger.Warn("join acknowledged across reconnect",
			"match_id", matchID,
			"generation", gen,
			"current", now,
		)
		return fmt.Errorf("join %s: %w", matchID, ErrConnectionCycled)
	}

	s.stopCleanup(matchID)
	s.conn.AddRoom(matchID)
	s.logger.Info("joined room", "match_id", matchID, "generation", gen)
	return nil
}

// Leave leaves matchID. Membership is dropped on acknowledgment, or by a
// safety timer if the acknowledgment never arrives.
func (s *Session) Leave(ctx context.Context, matchID string) error {
	if !s.conn.IsConnected() {
		s.stopCleanup(matchID)
		s.conn.RemoveRoom(matchID)
		s.logger.Debug("left room locally", "match_id", matchID)
		return nil
	}

	s.scheduleCleanup(matchID)

	lctx, cancel := context.WithTimeout(ctx, s.leaveCleanup)
	defer cancel()

	ack, err := s.conn.Send(lctx, router.CmdLeaveRoom, matchID)
	if err != nil {
		s.logger.Warn("leave failed", "match_id", matchID, "error", err)
		return fmt.Errorf("leave %s: %w: %w", matchID, ErrLeaveFailed, err)
	}
	if !ack.Success {
		s.logger.Warn("leave rejected", "match_id", matchID, "error", ack.Error)
		return fmt.Errorf("leave %s: %w: %s", matchID, ErrLeaveFailed, ack.Error)
	}

	s.stopCleanup(matchID)
	s.conn.RemoveRoom(matchID)
	s.logger.Info("left room", "match_id", matchID)
	return nil
}

func (s *Session) scheduleCleanup(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.cleanups[matchID]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.leaveCleanup, func() {
		s.mu.Lock()
		current := s.cleanups[matchID] == t
		if current {
			delete(s.cleanups, matchID)
		}
		s.mu.Unlock()

		if current && s.conn.RemoveRoom(matchID) {
			s.logger.Warn("forced room cleanup", "match_id", matchID)
		}
	})
	s.cleanups[matchID] = t
}

func (s *Session) stopCleanup(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.cleanups[matchID]; ok {
		t.Stop()
		delete(s.cleanups, matchID)
	}
}

func (s *Session) onStateChange(sc model.StateChange) {
	if sc.To != model.StateConnected {
		return
	}
	rooms := s.conn.Rooms()
	if len(rooms) == 0 || s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.rejoin(sc.Generation, rooms)
	}()
}

// rejoin re-issues join for rooms on generation gen. A room whose rejoin
// fails is dropped from membership; a newer generation ends the batch since
// its own connected transition rejoins what is left.
func (s *Session) rejoin(gen int64, rooms []string) {
	s.logger.Info("rejoining rooms", "rooms", len(rooms), "generation", gen)

	for _, matchID := range rooms {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		if s.conn.Generation() != gen {
			s.logger.Debug("rejoin superseded", "generation", gen)
			return
		}
		if !s.conn.HasRoom(matchID) {
			continue
		}
		if err := s.Join(s.ctx, matchID); err != nil {
			if errors.Is(err, ErrConnectionCycled) || s.conn.Generation() != gen {
				s.logger.Debug("rejoin interrupted by reconnect", "match_id", matchID, "error", err)
				return
			}
			s.conn.RemoveRoom(matchID)
			s.logger.Warn("rejoin failed, dropping room", "match_id", matchID, "error", err)
		}
	}
}

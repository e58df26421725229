package engine

import (
	"github.com/rickgao/matchsync/internal/model"
	"github.com/rickgao/matchsync/internal/router"
)

// Message handlers run on the connection manager's dispatch goroutine and
// must not block on acknowledgments.

func (e *Engine) onScore(msg router.Message) {
	d, ok := msg.Payload.(model.ScoreDelta)
	if !ok {
		return
	}
	if res := e.reducer.ApplyScore(d); res.Applied() {
		e.orch.Evaluate(e.reducer)
	}
}

func (e *Engine) onStatus(msg router.Message) {
	d, ok := msg.Payload.(model.StatusDelta)
	if !ok {
		return
	}
	if res := e.reducer.ApplyStatus(d); res.Applied() {
		e.orch.Evaluate(e.reducer)
	}
}

func (e *Engine) onSettled(msg router.Message) {
	ms, ok := msg.Payload.(model.MatchSettled)
	if !ok {
		return
	}
	e.orch.ApplySettled(ms)
}

func (e *Engine) onPresence(msg router.Message) {
	if ev, ok := msg.Payload.(model.PresenceEvent); ok {
		e.presence.Apply(ev)
	}
}

func (e *Engine) onRoom(msg router.Message) {
	if ev, ok := msg.Payload.(model.RoomEvent); ok {
		e.presence.ApplyRoom(ev, msg.Kind == router.KindRoomJoined)
	}
}

func (e *Engine) onQueueExpired(msg router.Message) {
	q, ok := msg.Payload.(model.QueueExpired)
	if !ok {
		return
	}
	e.logger.Info("queue expired", "queue_id", q.QueueID, "reason", q.Reason)
	if e.opts.OnQueueExpired != nil {
		e.opts.OnQueueExpired(q)
	}
}

func (e *Engine) onServerError(msg router.Message) {
	if se, ok := msg.Payload.(model.ServerError); ok {
		e.logger.Warn("server error", "code", se.Code, "message", se.Message)
	}
}

func (e *Engine) onStateChange(sc model.StateChange) {
	switch {
	case sc.Reason == model.ReasonLoggedOut:
		e.clearLive()
	case sc.To == model.StateConnected:
		e.joinTracked(sc.Generation)
	}
}

// clearLive drops live state on logout. The tracked match and picks are
// kept so the next sign-in rejoins.
func (e *Engine) clearLive() {
	for _, matchID := range e.conn.Rooms() {
		e.conn.RemoveRoom(matchID)
	}
	e.reducer.Reset()
	e.presence.Reset()
	e.orch.Reset()
	e.logger.Info("cleared live state after logout")
}

// joinTracked joins the tracked match on gen if it is not already a member.
// Members are rejoined by the room session.
func (e *Engine) joinTracked(gen int64) {
	matchID := e.MatchID()
	if matchID == "" || e.conn.HasRoom(matchID) {
		return
	}

	e.mu.RLock()
	if e.stopped || e.ctx == nil {
		e.mu.RUnlock()
		return
	}
	ctx := e.ctx
	e.wg.Add(1)
	e.mu.RUnlock()

	go func() {
		defer e.wg.Done()
		if err := e.session.Join(ctx, matchID); err != nil {
			e.logger.Warn("join tracked match failed",
				"match_id", matchID,
				"generation", gen,
				"error", err,
			)
		}
	}()
}

// handleSnapshot feeds a poller snapshot into the reducer. Snapshots for a
// match that is no longer tracked are dropped.
func (e *Engine) handleSnapshot(matchID string, s model.EventSnapshot) error {
	if matchID != e.MatchID() {
		return nil
	}
	if res := e.reducer.ApplySnapshot(s); res.Applied() {
		e.orch.Evaluate(e.reducer)
	}
	return nil
}

// Package engine composes the live match pipeline for one tracked match.
//
// An Engine subscribes to the connection manager's message stream and feeds
// score and status deltas into the reducer, settlement into the orchestrator,
// and presence into the presence tracker. Room membership for the tracked
// match is handled by a room.Session, and an optional snapshot poller catches
// up on deltas lost while the socket was down.
//
// The engine does not own the connection manager: callers start, connect and
// stop it themselves.
package engine

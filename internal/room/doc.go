// Package room implements per-match room membership on top of the
// connection manager and tracks the counterparty's presence in that room.
//
// Joins are fenced by connection generation: an acknowledgment that arrives
// after the connection cycled is rejected, and the rejoin that follows the
// new connected transition restores membership.
package room

// Package poller implements the snapshot catch-up poller.
//
// While a match is tracked the poller:
//   - GETs the match's events over REST on a fixed interval
//   - Hands every event snapshot to a handler, normally the score reducer
//   - Recovers score and status deltas missed while the socket was down
//
// Reducer ordering makes replays of already-applied snapshots harmless.
package poller

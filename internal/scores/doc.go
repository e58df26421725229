// Package scores implements the score stream reducer.
//
// The reducer:
//   - Keeps one EventScoreRecord per tracked event
//   - Drops exact repeat deltas using a bounded recent-keys set
//   - Drops deltas whose timestamp does not advance the stored record
//   - Lets a completed status with a final score override live score updates
//   - Creates placeholder records for status updates on unknown events
package scores

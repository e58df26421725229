// Package model defines shared data types used across the match sync engine.
//
// Conventions:
//   - Timestamps: time.Time in UTC, parsed from RFC 3339 wire values
//   - Scores: integer points, home side first
//   - IDs: opaque strings assigned by the backend (match, event, pick)
package model

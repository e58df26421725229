// Package dedup remembers which settlement notifications were already shown.
//
// The whole set is stored as one JSON document under a single key of a
// kvstore.Store:
//
//	[{"key":"match-1|pick-9","inserted_at":1767225600000}, ...]
//
// Entries older than the retention window (7 days by default) are pruned on
// Load and on every Flush. Membership checks are served from memory.
package dedup

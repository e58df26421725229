// Package router decodes realtime frames and hands them to the engine.
//
// Two paths leave the router:
//   - control: acknowledgments and credential errors, handled synchronously
//     on the route goroutine so request waiters are never stuck behind
//     listener callbacks
//   - dispatch: every other message, queued in a growable FIFO and delivered
//     one at a time on a single dispatch goroutine
//
// Connection state changes are enqueued on the same FIFO, so listeners see
// messages and state transitions in one order.
package router

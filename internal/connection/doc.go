// Package connection maintains the single WebSocket connection to the match
// server.
//
// The Manager:
//   - Runs connect cycles with exponential backoff and a bounded attempt count
//   - Refreshes an expired credential through the shared auth.RefreshGate
//   - Stamps every frame with a connection generation for fencing
//   - Stops retrying when the server closes the connection deliberately
//   - Disconnects when the credential store reports a logout
//   - Fans out decoded messages and state changes to registered listeners
package connection

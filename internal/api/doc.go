// Package api is the REST request layer.
//
// Endpoints:
//   - GET  /matches/{id}/events  snapshot of every event in a match
//   - POST /auth/refresh         exchange a refresh token for a new session
//
// Authenticated requests carry a bearer token from an auth.CredentialStore.
// A 401 triggers one refresh through the shared auth.RefreshGate followed by
// a single retry; 429 and 5xx responses retry with jittered backoff.
package api

// Package repositories implements SQLite persistence for genrescope.
//
// Only browser sessions are persisted; analysis results are computed per request and never stored.
//
// Key Implementations:
//   - [SessionRepository] : [models.Repository] for [models.Session] with soft deletes
//   - [SessionStore] : session lifecycle used by the HTTP server (start, token lookup, refresh, end, expiry)
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories

// Package models defines domain entities and persistence interfaces for genrescope.
//
// The package contains two categories of types:
//
// 1. Analysis payloads: plain structs serialized straight to CLI, TUI and HTTP clients
//   - [Playlist] : Basic playlist metadata from the catalog
//   - [TrackRecord] : A playlist track with its artists and resolved genres
//   - [GenreCounts] : Frequency-ranked genre tallies that keep their order in JSON
//   - [Analysis] : The complete result of analyzing one playlist
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [Session] : A signed-in browser session holding one user's catalog token
//
// Analysis results are never persisted; only sessions are.
// All persistent entities implement the [Model] interface providing ID generation, timestamps, validation, and soft delete support.
// The [Repository] interface defines standard CRUD operations for database access.
package models

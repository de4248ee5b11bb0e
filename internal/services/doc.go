// Package services defines the [Service] interface for music catalog providers and implements it for Spotify.
//
// # Service Interface
//
// Providers expose the signed-in user's playlists through a common abstraction. [OAuthService] extends it with the
// authorization code flow used by the CLI login command and the HTTP backend.
//
// # Spotify Implementation
//
// [SpotifyService] is a small hand-written Web API client. It uses OAuth2 with automatic token refresh: the
// [oauth2.Client] refreshes expired tokens using the refresh token, and each new token is passed to the callback set
// with [SpotifyService.SetTokenRefreshCallback] so callers can persist it.
//
// [SpotifyService.WithToken] clones the service for another user. The HTTP backend builds one clone per request from
// the session's stored token, so no credential is shared between sessions.
//
// # Catalog Endpoints
//
// The analysis pipeline consumes three calls:
//   - [SpotifyService.PlaylistItems] : first page of a playlist, 100 items, tracks only
//   - [SpotifyService.NextPlaylistItems] : follows the absolute next URL of a page
//   - [SpotifyService.SeveralArtists] : up to 50 artists per call, nil for unavailable ids
//
// Outbound requests are paced by an optional [rate.Limiter] shared by all clones. Failed requests are never retried.
//
// # Error Handling
//
// Services use sentinel errors from the shared package. Every remote failure matches [shared.ErrAPIRequest]; the
// status code adds a more specific kind:
//   - 401 : [shared.ErrTokenExpired]
//   - 403 : [shared.ErrAuthFailed]
//   - 404 : [shared.ErrPlaylistNotFound]
//   - 429 : [shared.ErrRateLimited]
//   - 502, 503 : [shared.ErrServiceUnavailable]
//
// Calls made before authentication fail with [shared.ErrNotAuthenticated] without touching the network.
package services

// Package server provides HTTP routing, middleware, and OAuth callback handling shared by the CLI and the web backend.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers Go 1.22 method patterns ("GET /api/analyze/{id}") on an [http.ServeMux],
// so path wildcards are read with [http.Request.PathValue] and method mismatches are answered by the mux.
//
// # Middleware
//
//   - [RequestLogger] logs one line per request with a request id
//   - [Recover] converts panics into 500 responses
//   - [CORS] answers preflights and sets credentialed CORS headers for configured origins
//
// CORS and request logging wrap the router itself (not individual routes) so that preflights and unmatched paths
// pass through them too.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the single-use callback of the CLI login flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel. It only processes one callback to prevent replay attacks.
//
// # Lifecycle
//
// [New] applies request timeouts and [Run] serves until the context is cancelled, then shuts down gracefully.
package server

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/genrescope/internal/analysis"
	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/server"
	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
)

type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user,omitempty"`
}

type playlistsResponse struct {
	Playlists []services.SpotifyPlaylist `json:"playlists"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Index reports that the backend is up.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "genrescope backend is running"})
}

// Login starts the OAuth flow: it stores a random state in a short-lived cookie and redirects to Spotify.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		a.writeError(w, fmt.Errorf("failed to generate state token: %w", err))
		return
	}

	a.setCookie(w, stateCookie, state, time.Now().Add(stateCookieTTL))
	http.Redirect(w, r, a.provider.GetAuthURL(state), http.StatusFound)
}

// Callback completes the OAuth flow, starts a session and redirects to the dashboard.
func (a *App) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || !server.ValidState(cookie.Value, query.Get("state")) {
		a.logger.Warn("rejected oauth callback", "reason", "state mismatch")
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid state parameter"})
		return
	}
	a.clearCookie(w, stateCookie)

	code := query.Get("code")
	if code == "" {
		a.logger.Warn("authorization denied", "error", query.Get("error"))
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Authorization failed"})
		return
	}

	token, err := a.provider.Exchange(r.Context(), code)
	if err != nil {
		a.logger.Error("token exchange failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Detail: "Token exchange failed"})
		return
	}

	displayName := ""
	if catalog, err := a.provider.Catalog(r.Context(), token, nil); err == nil {
		if user, err := catalog.UserProfile(r.Context()); err == nil {
			displayName = user.DisplayName
		} else {
			a.logger.Warn("failed to fetch user profile", "error", err)
		}
	}

	session, err := a.sessions.Start(token, displayName)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.logger.Info("session started", "session", session.ID(), "user", displayName)
	a.setCookie(w, a.cookieName, session.ID(), session.ExpiresAt())
	http.Redirect(w, r, a.frontendURL+"/dashboard", http.StatusFound)
}

// Logout ends the current session, if any, and clears the cookie.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(a.cookieName); err == nil {
		if err := a.sessions.End(cookie.Value); err != nil {
			a.writeError(w, err)
			return
		}
		a.logger.Info("session ended", "session", cookie.Value)
	}

	a.clearCookie(w, a.cookieName)
	writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
}

// Status reports whether the request carries a live session and whose it is.
func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	catalog, session, err := a.session(r)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
			return
		}
		a.writeError(w, err)
		return
	}

	user, err := catalog.UserProfile(r.Context())
	if err != nil {
		if services.IsAuthError(err) {
			a.endOnAuthError(w, session, err)
			writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
			return
		}
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Authenticated: true, User: user.DisplayName})
}

// Playlists lists every playlist of the signed-in user.
func (a *App) Playlists(w http.ResponseWriter, r *http.Request) {
	catalog, session, err := a.session(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	playlists, err := catalog.AllUserPlaylists(r.Context())
	if err != nil {
		a.endOnAuthError(w, session, err)
		a.writeError(w, err)
		return
	}
	if playlists == nil {
		playlists = []services.SpotifyPlaylist{}
	}

	writeJSON(w, http.StatusOK, playlistsResponse{Playlists: playlists})
}

// Analyze runs the genre analysis for the playlist in the path.
func (a *App) Analyze(w http.ResponseWriter, r *http.Request) {
	catalog, session, err := a.session(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.analyzer(catalog, session).Analyze(r.Context(), r.PathValue("id"), nil)
	if err != nil {
		a.endOnAuthError(w, session, err)
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *App) analyzer(catalog Catalog, session *models.Session) *analysis.Analyzer {
	analyzer := analysis.NewAnalyzer(catalog, shared.WithLogger(a.logger, "session", session.ID()))
	analyzer.SetConcurrency(a.concurrency)
	return analyzer
}

// writeError maps err to a status code and writes it as {"detail": ...}.
func (a *App) writeError(w http.ResponseWriter, err error) {
	status, detail := errorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrTokenExpired):
		return http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, shared.ErrPlaylistNotFound):
		return http.StatusNotFound, "Playlist not found"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, "Rate limited by Spotify, try again later"
	case errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway, "Spotify request failed"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

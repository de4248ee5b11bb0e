// Package web implements the genrescope HTTP backend consumed by the browser dashboard.
//
// # Routes
//
//	GET /                  → liveness message
//	GET /login             → OAuth initiation (state cookie + redirect to Spotify)
//	GET /callback          → OAuth completion, starts a session, redirects to the dashboard
//	GET /logout            → ends the session
//	GET /api/status        → {"authenticated": bool, "user": display name}
//	GET /api/playlists     → {"playlists": [...]} with every page of the user's playlists
//	GET /api/analyze/{id}  → analysis JSON
//
// # Sessions
//
// Each signed-in browser holds a session cookie. The session row stores that user's Spotify token;
// every request builds its own catalog client from it, and refreshed tokens are written back to the row.
// There is no process-wide credential.
//
// # Errors
//
// Failures are reported as {"detail": "..."}: 401 without a live session, 404 for unknown playlists,
// 429 when the catalog rate limits, 502 for other catalog failures.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrescope/internal/analysis"
	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/repositories"
	"github.com/desertthunder/genrescope/internal/server"
	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
	"golang.org/x/oauth2"
)

const (
	DefaultSessionCookie = "genrescope_session"
	stateCookie          = "genrescope_oauth_state"
	stateCookieTTL       = 10 * time.Minute
)

// Catalog is the per-session view of the catalog used by the handlers.
type Catalog interface {
	analysis.Catalog
	UserProfile(ctx context.Context) (*services.SpotifyUser, error)
	AllUserPlaylists(ctx context.Context) ([]services.SpotifyPlaylist, error)
}

// Provider runs the OAuth flow and builds per-session catalog clients.
type Provider interface {
	GetAuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Catalog(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) (Catalog, error)
}

type spotifyProvider struct {
	*services.SpotifyService
}

// NewSpotifyProvider adapts svc into a [Provider]. Session clients share its OAuth config and rate limiter.
func NewSpotifyProvider(svc *services.SpotifyService) Provider {
	return spotifyProvider{svc}
}

func (p spotifyProvider) Catalog(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) (Catalog, error) {
	return p.WithToken(ctx, token, onRefresh)
}

// Options configures an [App].
type Options struct {
	Provider       Provider
	Sessions       *repositories.SessionStore
	Logger         *log.Logger
	FrontendURL    string
	AllowedOrigins []string
	CookieName     string
	CallbackPath   string
	Concurrency    int
}

// App serves the backend routes.
type App struct {
	provider     Provider
	sessions     *repositories.SessionStore
	logger       *log.Logger
	frontendURL  string
	origins      []string
	cookieName   string
	callbackPath string
	secure       bool
	concurrency  int
}

// NewApp creates an [App]. Provider and Sessions are required.
func NewApp(opts Options) (*App, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("%w: provider", shared.ErrMissingArgument)
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("%w: session store", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultSessionCookie
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/callback"
	}

	frontendURL := strings.TrimRight(opts.FrontendURL, "/")
	return &App{
		provider:     opts.Provider,
		sessions:     opts.Sessions,
		logger:       opts.Logger,
		frontendURL:  frontendURL,
		origins:      server.TrimOrigins(opts.AllowedOrigins),
		cookieName:   opts.CookieName,
		callbackPath: opts.CallbackPath,
		secure:       strings.HasPrefix(frontendURL, "https://"),
		concurrency:  max(1, opts.Concurrency),
	}, nil
}

// Handler returns the complete HTTP handler: routes behind panic recovery, wrapped in CORS and request logging.
func (a *App) Handler() http.Handler {
	router := server.NewBasicRouter()
	router.Use(server.Recover(a.logger))

	router.HandleFunc(http.MethodGet, "/{$}", a.Index)
	router.HandleFunc(http.MethodGet, "/login", a.Login)
	router.HandleFunc(http.MethodGet, a.callbackPath, a.Callback)
	router.HandleFunc(http.MethodGet, "/logout", a.Logout)
	router.HandleFunc(http.MethodGet, "/api/status", a.Status)
	router.HandleFunc(http.MethodGet, "/api/playlists", a.Playlists)
	router.HandleFunc(http.MethodGet, "/api/analyze/{id}", a.Analyze)

	return server.RequestLogger(a.logger)(server.CORS(a.origins)(router))
}

// session resolves the request's session into a catalog client. Refreshed tokens are stored back on the session.
func (a *App) session(r *http.Request) (Catalog, *models.Session, error) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil, shared.ErrNotAuthenticated
	}

	session, err := a.sessions.Get(cookie.Value)
	if err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
		}
		return nil, nil, err
	}

	id := session.ID()
	catalog, err := a.provider.Catalog(r.Context(), session.Token(), func(token *oauth2.Token) {
		if err := a.sessions.Refresh(id, token); err != nil {
			a.logger.Warn("failed to store refreshed token", "session", id, "error", err)
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	return catalog, session, nil
}

// endOnAuthError tears the session down when the catalog rejected its credential.
func (a *App) endOnAuthError(w http.ResponseWriter, session *models.Session, err error) {
	if session == nil || !services.IsAuthError(err) {
		return
	}
	if endErr := a.sessions.End(session.ID()); endErr != nil {
		a.logger.Warn("failed to end session", "session", session.ID(), "error", endErr)
	}
	a.clearCookie(w, a.cookieName)
}

func (a *App) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *App) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

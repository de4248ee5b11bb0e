package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/repositories"
	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
	tu "github.com/desertthunder/genrescope/internal/testing"
	"golang.org/x/oauth2"
)

type fakeProvider struct {
	catalog     *tu.FakeCatalog
	token       *oauth2.Token
	exchangeErr error
	refresh     *oauth2.Token

	mu     sync.Mutex
	codes  []string
	tokens []*oauth2.Token
}

func (p *fakeProvider) GetAuthURL(state string) string {
	return "https://accounts.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	p.codes = append(p.codes, code)
	p.mu.Unlock()
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.token, nil
}

func (p *fakeProvider) Catalog(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) (Catalog, error) {
	p.mu.Lock()
	p.tokens = append(p.tokens, token)
	p.mu.Unlock()
	if p.refresh != nil && onRefresh != nil {
		onRefresh(p.refresh)
	}
	return p.catalog, nil
}

type testApp struct {
	handler  http.Handler
	store    *repositories.SessionStore
	provider *fakeProvider
}

func newTestApp(t *testing.T, catalog *tu.FakeCatalog) *testApp {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	store := repositories.NewSessionStore(repositories.NewSessionRepository(db), time.Hour)
	provider := &fakeProvider{catalog: catalog, token: &oauth2.Token{AccessToken: "fresh", RefreshToken: "refresh"}}

	app, err := NewApp(Options{
		Provider:       provider,
		Sessions:       store,
		FrontendURL:    "http://localhost:5173/",
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{handler: app.Handler(), store: store, provider: provider}
}

// signIn starts a session directly and returns its cookie.
func (ta *testApp) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	session, err := ta.store.Start(&oauth2.Token{AccessToken: "abc", RefreshToken: "def"}, "alice")
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	return &http.Cookie{Name: DefaultSessionCookie, Value: session.ID()}
}

func (ta *testApp) get(target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func threeTrackCatalog() *tu.FakeCatalog {
	return &tu.FakeCatalog{
		PlaylistID: "p1",
		Pages: [][]*services.SpotifyPlaylistItem{
			{
				tu.Item("t1", "Song 1", tu.ArtistRef("a1", "A1")),
				tu.Item("t2", "Song 2", tu.ArtistRef("a2", "A2")),
			},
			{
				tu.Item("t3", "Song 3", tu.ArtistRef("a1", "A1"), tu.ArtistRef("a3", "A3")),
			},
		},
		Artists: map[string]*services.SpotifyArtist{
			"a1": tu.Artist("a1", "pop", "rock"),
			"a2": tu.Artist("a2", "rock"),
			"a3": tu.Artist("a3", "jazz"),
		},
		Playlists: []services.SpotifyPlaylist{
			tu.Playlist("p1", "Road Trip", 3),
			tu.Playlist("p2", "Focus", 12),
		},
	}
}

func TestNewApp(t *testing.T) {
	if _, err := NewApp(Options{}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument without provider, got %v", err)
	}
	if _, err := NewApp(Options{Provider: &fakeProvider{}}); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument without session store, got %v", err)
	}
}

func TestIndex(t *testing.T) {
	ta := newTestApp(t, threeTrackCatalog())

	rec := ta.get("/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}

	if rec := ta.get("/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestLoginFlow(t *testing.T) {
	t.Run("login redirects with state cookie", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())

		rec := ta.get("/login")
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}

		state := findCookie(rec, stateCookie)
		if state == nil || state.Value == "" {
			t.Fatal("expected state cookie")
		}
		if !state.HttpOnly {
			t.Error("state cookie should be HttpOnly")
		}

		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatalf("invalid redirect: %v", err)
		}
		if loc.Query().Get("state") != state.Value {
			t.Errorf("redirect state %q does not match cookie %q", loc.Query().Get("state"), state.Value)
		}
	})

	t.Run("callback starts session", func(t *testing.T) {
		catalog := threeTrackCatalog()
		catalog.User = &services.SpotifyUser{ID: "u1", DisplayName: "Alice"}
		ta := newTestApp(t, catalog)

		state := findCookie(ta.get("/login"), stateCookie)
		rec := ta.get("/callback?code=the-code&state="+url.QueryEscape(state.Value), state)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Location"); got != "http://localhost:5173/dashboard" {
			t.Errorf("expected dashboard redirect, got %q", got)
		}

		cookie := findCookie(rec, DefaultSessionCookie)
		if cookie == nil || cookie.Value == "" {
			t.Fatal("expected session cookie")
		}

		session, err := ta.store.Get(cookie.Value)
		if err != nil {
			t.Fatalf("session should exist: %v", err)
		}
		if session.DisplayName() != "Alice" {
			t.Errorf("expected display name Alice, got %q", session.DisplayName())
		}
		if session.Token().AccessToken != "fresh" {
			t.Errorf("expected exchanged token to be stored, got %q", session.Token().AccessToken)
		}
		if len(ta.provider.codes) != 1 || ta.provider.codes[0] != "the-code" {
			t.Errorf("expected code to be exchanged once, got %v", ta.provider.codes)
		}
	})

	tests := []struct {
		name       string
		query      string
		withCookie bool
		exchange   error
		wantStatus int
	}{
		{name: "state mismatch", query: "code=c&state=forged", withCookie: true, wantStatus: http.StatusBadRequest},
		{name: "missing state cookie", query: "code=c&state=%s", withCookie: false, wantStatus: http.StatusBadRequest},
		{name: "denied", query: "error=access_denied&state=%s", withCookie: true, wantStatus: http.StatusBadRequest},
		{name: "exchange failure", query: "code=c&state=%s", withCookie: true, exchange: errors.New("invalid_grant"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, threeTrackCatalog())
			ta.provider.exchangeErr = tt.exchange

			state := findCookie(ta.get("/login"), stateCookie)
			query := tt.query
			if strings.Contains(query, "%s") {
				query = fmt.Sprintf(query, url.QueryEscape(state.Value))
			}

			var cookies []*http.Cookie
			if tt.withCookie {
				cookies = append(cookies, state)
			}

			rec := ta.get("/callback?"+query, cookies...)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if findCookie(rec, DefaultSessionCookie) != nil {
				t.Error("no session cookie expected on failure")
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())

		rec := ta.get("/api/status")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := rec.Body.String(); strings.TrimSpace(got) != `{"authenticated":false}` {
			t.Errorf("unexpected body %s", got)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())

		rec := ta.get("/api/status", &http.Cookie{Name: DefaultSessionCookie, Value: "gone"})
		if body := decode[statusResponse](t, rec); body.Authenticated {
			t.Error("unknown session must not be authenticated")
		}
	})

	t.Run("signed in", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())

		rec := ta.get("/api/status", ta.signIn(t))
		body := decode[statusResponse](t, rec)
		if !body.Authenticated || body.User != "Test User" {
			t.Errorf("expected authenticated Test User, got %+v", body)
		}
	})

	t.Run("rejected credential ends session", func(t *testing.T) {
		catalog := threeTrackCatalog()
		catalog.ProfileErr = fmt.Errorf("%w: %w: status 401", shared.ErrAPIRequest, shared.ErrTokenExpired)
		ta := newTestApp(t, catalog)
		cookie := ta.signIn(t)

		rec := ta.get("/api/status", cookie)
		if body := decode[statusResponse](t, rec); body.Authenticated {
			t.Error("expected unauthenticated status")
		}
		if _, err := ta.store.Get(cookie.Value); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("session should be ended, got %v", err)
		}
	})
}

func TestPlaylists(t *testing.T) {
	t.Run("requires session", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())

		rec := ta.get("/api/playlists")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decode[errorResponse](t, rec); body.Detail != "Not authenticated" {
			t.Errorf("expected Not authenticated, got %q", body.Detail)
		}
	})

	t.Run("lists raw playlists", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())

		rec := ta.get("/api/playlists", ta.signIn(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		body := decode[map[string][]map[string]any](t, rec)
		playlists := body["playlists"]
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}
		if playlists[0]["name"] != "Road Trip" {
			t.Errorf("expected Road Trip first, got %v", playlists[0]["name"])
		}
		tracks, _ := playlists[1]["tracks"].(map[string]any)
		if tracks["total"] != float64(12) {
			t.Errorf("expected tracks.total 12, got %v", tracks["total"])
		}
	})

	t.Run("empty list", func(t *testing.T) {
		catalog := threeTrackCatalog()
		catalog.Playlists = nil
		ta := newTestApp(t, catalog)

		rec := ta.get("/api/playlists", ta.signIn(t))
		if got := strings.TrimSpace(rec.Body.String()); got != `{"playlists":[]}` {
			t.Errorf("expected empty array, got %s", got)
		}
	})
}

func TestAnalyze(t *testing.T) {
	t.Run("end to end", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())

		rec := ta.get("/api/analyze/p1", ta.signIn(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		result := decode[models.Analysis](t, rec)
		if result.Metrics != (models.Metrics{TotalTracks: 3, UniqueArtists: 3, TotalGenres: 3}) {
			t.Errorf("unexpected metrics %+v", result.Metrics)
		}

		want := []models.GenreCount{{Genre: "rock", Count: 3}, {Genre: "pop", Count: 2}, {Genre: "jazz", Count: 1}}
		if len(result.GenreCounts) != len(want) {
			t.Fatalf("expected %d genres, got %v", len(want), result.GenreCounts)
		}
		for i, gc := range want {
			if result.GenreCounts[i] != gc {
				t.Errorf("rank %d: expected %+v, got %+v", i, gc, result.GenreCounts[i])
			}
		}

		if !strings.Contains(rec.Body.String(), `"genre_counts":{"rock":3,"pop":2,"jazz":1}`) {
			t.Errorf("genre_counts should be an ordered object, got %s", rec.Body.String())
		}
	})

	t.Run("session token is used and refresh stored", func(t *testing.T) {
		ta := newTestApp(t, threeTrackCatalog())
		ta.provider.refresh = &oauth2.Token{AccessToken: "rotated"}
		cookie := ta.signIn(t)

		if rec := ta.get("/api/analyze/p1", cookie); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		if len(ta.provider.tokens) != 1 || ta.provider.tokens[0].AccessToken != "abc" {
			t.Errorf("expected the session token to build the client, got %v", ta.provider.tokens)
		}

		token, err := ta.store.Token(cookie.Value)
		if err != nil {
			t.Fatalf("failed to read token: %v", err)
		}
		if token.AccessToken != "rotated" || token.RefreshToken != "def" {
			t.Errorf("expected rotated token with kept refresh token, got %+v", token)
		}
	})

	tests := []struct {
		name       string
		path       string
		configure  func(*tu.FakeCatalog)
		signIn     bool
		wantStatus int
	}{
		{name: "no session", path: "/api/analyze/p1", wantStatus: http.StatusUnauthorized},
		{name: "unknown playlist", path: "/api/analyze/zzz", signIn: true, wantStatus: http.StatusNotFound},
		{
			name: "rate limited", path: "/api/analyze/p1", signIn: true, wantStatus: http.StatusTooManyRequests,
			configure: func(c *tu.FakeCatalog) {
				c.PageErr = fmt.Errorf("%w: %w: status 429", shared.ErrAPIRequest, shared.ErrRateLimited)
				c.PageErrAt = 1
			},
		},
		{
			name: "artist lookup failure", path: "/api/analyze/p1", signIn: true, wantStatus: http.StatusBadGateway,
			configure: func(c *tu.FakeCatalog) {
				c.ArtistErr = fmt.Errorf("%w: status 500", shared.ErrAPIRequest)
			},
		},
		{
			name: "expired credential", path: "/api/analyze/p1", signIn: true, wantStatus: http.StatusUnauthorized,
			configure: func(c *tu.FakeCatalog) {
				c.PageErr = fmt.Errorf("%w: %w: status 401", shared.ErrAPIRequest, shared.ErrTokenExpired)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := threeTrackCatalog()
			if tt.configure != nil {
				tt.configure(catalog)
			}
			ta := newTestApp(t, catalog)

			var cookies []*http.Cookie
			if tt.signIn {
				cookies = append(cookies, ta.signIn(t))
			}

			rec := ta.get(tt.path, cookies...)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if body := decode[errorResponse](t, rec); body.Detail == "" {
				t.Error("expected a detail message")
			}
		})
	}
}

func TestLogout(t *testing.T) {
	ta := newTestApp(t, threeTrackCatalog())
	cookie := ta.signIn(t)

	rec := ta.get("/logout", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cleared := findCookie(rec, DefaultSessionCookie); cleared == nil || cleared.MaxAge >= 0 {
		t.Error("expected session cookie to be cleared")
	}

	if body := decode[statusResponse](t, ta.get("/api/status", cookie)); body.Authenticated {
		t.Error("session should be gone after logout")
	}
	if rec := ta.get("/api/playlists", cookie); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}

	if rec := ta.get("/logout"); rec.Code != http.StatusOK {
		t.Errorf("logout without a session should succeed, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ta := newTestApp(t, threeTrackCatalog())

	req := httptest.NewRequest(http.MethodOptions, "/api/playlists", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials to be allowed")
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrNotAuthenticated, http.StatusUnauthorized},
		{fmt.Errorf("%w: %w", shared.ErrAPIRequest, shared.ErrTokenExpired), http.StatusUnauthorized},
		{fmt.Errorf("%w: playlist id", shared.ErrMissingArgument), http.StatusBadRequest},
		{fmt.Errorf("%w: %w", shared.ErrAPIRequest, shared.ErrPlaylistNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: %w", shared.ErrAPIRequest, shared.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("%w: %w", shared.ErrAPIRequest, shared.ErrServiceUnavailable), http.StatusBadGateway},
		{fmt.Errorf("%w: %w", shared.ErrAPIRequest, shared.ErrAuthFailed), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/genrescope/internal/shared"
	"golang.org/x/oauth2"
)

func testCredentials() map[string]string {
	return map[string]string{
		"client_id":     "test_client_id",
		"client_secret": "test_client_secret",
	}
}

// newTestService returns a service authenticated with token "test_token" whose API calls go to handler.
func newTestService(t *testing.T, handler func(ts *httptest.Server) http.HandlerFunc) (*SpotifyService, *httptest.Server) {
	t.Helper()

	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(ts)(w, r)
	}))
	t.Cleanup(ts.Close)

	srv, err := NewSpotifyService(testCredentials())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.SetBaseURL(ts.URL)

	if err := srv.Authenticate(context.Background(), map[string]string{"access_token": "test_token"}); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	return srv, ts
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			credentials := testCredentials()
			credentials["redirect_uri"] = "http://localhost:9999/callback"

			srv, err := NewSpotifyService(credentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
			if srv.config.RedirectURL != "http://localhost:9999/callback" {
				t.Errorf("expected configured redirect URI, got %s", srv.config.RedirectURL)
			}
			if srv.Authenticated() {
				t.Error("new service should not be authenticated")
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "test_client_secret"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "test_client_id"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			srv, err := NewSpotifyService(testCredentials())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if srv.config.RedirectURL != DefaultRedirectURI {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})
	})

	t.Run("Get AuthURL", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.GetAuthURL("test_state")
		if !strings.Contains(authURL, "accounts.spotify.com") {
			t.Error("auth URL should contain Spotify domain")
		}
		if !strings.Contains(authURL, "test_client_id") {
			t.Error("auth URL should contain client_id")
		}
		if !strings.Contains(authURL, "test_state") {
			t.Error("auth URL should contain state")
		}
		if !strings.Contains(authURL, "playlist-read-private") {
			t.Error("auth URL should request playlist scopes")
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		t.Run("Missing Credentials", func(t *testing.T) {
			err := srv.Authenticate(context.Background(), map[string]string{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
			if srv.Authenticated() {
				t.Error("failed authentication should leave service unauthenticated")
			}
		})

		t.Run("WithAccessToken", func(t *testing.T) {
			err := srv.Authenticate(context.Background(), map[string]string{"access_token": "test_access_token"})
			if err != nil {
				t.Errorf("expected no error with access token, got %v", err)
			}

			if !srv.Authenticated() {
				t.Fatal("expected service to be authenticated")
			}
			if srv.Token().AccessToken != "test_access_token" {
				t.Errorf("expected access token to be 'test_access_token', got %s", srv.Token().AccessToken)
			}
		})

		t.Run("OAuthenticate rejects empty token", func(t *testing.T) {
			err := srv.OAuthenticate(context.Background(), &oauth2.Token{})
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	})

	t.Run("Service Interface", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		var _ Service = srv
		var _ OAuthService = srv
	})

	t.Run("SetTokenRefreshCallback", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		t.Run("sets callback successfully", func(t *testing.T) {
			srv.SetTokenRefreshCallback(func(token *oauth2.Token) {})
			if srv.onTokenRefresh == nil {
				t.Error("expected callback to be set")
			}
		})

		t.Run("can set nil callback", func(t *testing.T) {
			srv.SetTokenRefreshCallback(nil)
			if srv.onTokenRefresh != nil {
				t.Error("expected callback to be nil")
			}
		})

		t.Run("refresh updates token and notifies", func(t *testing.T) {
			var got *oauth2.Token
			srv.SetTokenRefreshCallback(func(token *oauth2.Token) { got = token })

			srv.tokenRefreshed(&oauth2.Token{AccessToken: "refreshed"})

			if got == nil || got.AccessToken != "refreshed" {
				t.Errorf("expected callback with refreshed token, got %+v", got)
			}
			if srv.Token().AccessToken != "refreshed" {
				t.Errorf("expected service token to be updated, got %s", srv.Token().AccessToken)
			}
		})
	})

	t.Run("SetRateLimit", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		srv.SetRateLimit(5)
		if srv.limiter == nil {
			t.Fatal("expected limiter to be set")
		}
		if srv.limiter.Burst() != 5 {
			t.Errorf("expected burst 5, got %d", srv.limiter.Burst())
		}

		srv.SetRateLimit(0.5)
		if srv.limiter.Burst() != 1 {
			t.Errorf("expected burst 1 for fractional rate, got %d", srv.limiter.Burst())
		}

		srv.SetRateLimit(0)
		if srv.limiter != nil {
			t.Error("expected limiter to be disabled")
		}
	})

	t.Run("WithToken", func(t *testing.T) {
		var (
			mu   sync.Mutex
			seen []string
		)
		srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				seen = append(seen, r.Header.Get("Authorization"))
				mu.Unlock()
				writeJSON(t, w, SpotifyUser{ID: "u", DisplayName: "User"})
			}
		})
		srv.SetRateLimit(100)

		clone, err := srv.WithToken(context.Background(), &oauth2.Token{AccessToken: "other_token"}, nil)
		if err != nil {
			t.Fatalf("WithToken() error = %v", err)
		}

		if clone.limiter != srv.limiter {
			t.Error("clone should share the rate limiter")
		}
		if _, err := clone.UserProfile(context.Background()); err != nil {
			t.Fatalf("clone request failed: %v", err)
		}
		if _, err := srv.UserProfile(context.Background()); err != nil {
			t.Fatalf("original request failed: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(seen) != 2 || seen[0] != "Bearer other_token" || seen[1] != "Bearer test_token" {
			t.Errorf("unexpected authorization headers: %v", seen)
		}
	})
}

func TestSpotifyCatalog(t *testing.T) {
	t.Run("Unauthenticated", func(t *testing.T) {
		srv, err := NewSpotifyService(testCredentials())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		_, err = srv.PlaylistItems(context.Background(), "p1")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("PlaylistItems and NextPlaylistItems", func(t *testing.T) {
		srv, ts := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/playlists/p1/tracks" {
					http.NotFound(w, r)
					return
				}
				if got := r.Header.Get("Authorization"); got != "Bearer test_token" {
					t.Errorf("expected bearer token, got %q", got)
				}

				if r.URL.Query().Get("offset") == "" {
					if r.URL.Query().Get("limit") != "100" || r.URL.Query().Get("additional_types") != "track" {
						t.Errorf("unexpected first page query: %s", r.URL.RawQuery)
					}
					next := ts.URL + "/playlists/p1/tracks?offset=100&limit=100"
					fmt.Fprintf(w, `{"items":[{"track":{"id":"t1","name":"One","type":"track","artists":[{"id":"a1","name":"A"}],"album":{"images":[{"url":"http://img/1"}]}}},{"track":null}],"total":3,"next":%q}`, next)
					return
				}
				fmt.Fprint(w, `{"items":[{"track":{"id":"t2","name":"Two","type":"track","artists":[],"album":{"images":[]}}}],"total":3,"next":null}`)
			}
		})

		first, err := srv.PlaylistItems(context.Background(), "p1")
		if err != nil {
			t.Fatalf("PlaylistItems() error = %v", err)
		}
		if len(first.Items) != 2 || first.Items[1].Track != nil {
			t.Fatalf("unexpected first page: %+v", first.Items)
		}
		if first.Items[0].Track.Album.Images[0].URL != "http://img/1" {
			t.Errorf("unexpected album image: %+v", first.Items[0].Track.Album)
		}
		if first.Next == nil || !strings.HasPrefix(*first.Next, ts.URL) {
			t.Fatalf("expected next cursor, got %v", first.Next)
		}

		second, err := srv.NextPlaylistItems(context.Background(), *first.Next)
		if err != nil {
			t.Fatalf("NextPlaylistItems() error = %v", err)
		}
		if len(second.Items) != 1 || second.Next != nil {
			t.Errorf("unexpected second page: %+v", second)
		}
	})

	t.Run("NextPlaylistItems refuses foreign host", func(t *testing.T) {
		var calls atomic.Int32
		srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }
		})

		_, err := srv.NextPlaylistItems(context.Background(), "https://evil.example.com/v1/playlists/p1/tracks?offset=100")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if calls.Load() != 0 {
			t.Error("no request should be made for a foreign cursor")
		}
	})

	t.Run("PlaylistItems requires id", func(t *testing.T) {
		srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {}
		})
		if _, err := srv.PlaylistItems(context.Background(), " "); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("SeveralArtists", func(t *testing.T) {
		srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/artists" || r.URL.Query().Get("ids") != "a1,a2" {
					t.Errorf("unexpected request: %s", r.URL)
				}
				fmt.Fprint(w, `{"artists":[{"id":"a1","name":"A","genres":["indie","folk"]},null]}`)
			}
		})

		artists, err := srv.SeveralArtists(context.Background(), []string{"a1", "a2"})
		if err != nil {
			t.Fatalf("SeveralArtists() error = %v", err)
		}
		if len(artists) != 2 {
			t.Fatalf("expected 2 positional entries, got %d", len(artists))
		}
		if artists[0] == nil || len(artists[0].Genres) != 2 {
			t.Errorf("unexpected first artist: %+v", artists[0])
		}
		if artists[1] != nil {
			t.Errorf("expected nil for unavailable artist, got %+v", artists[1])
		}
	})

	t.Run("SeveralArtists bounds", func(t *testing.T) {
		srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {}
		})

		if _, err := srv.SeveralArtists(context.Background(), nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty ids, got %v", err)
		}

		ids := make([]string, MaxArtistsPerRequest+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("a%d", i)
		}
		if _, err := srv.SeveralArtists(context.Background(), ids); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for %d ids, got %v", len(ids), err)
		}
	})

	t.Run("GetPlaylists", func(t *testing.T) {
		srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Query().Get("offset") {
				case "0":
					fmt.Fprintf(w, `{"items":[{"id":"p1","name":"First","tracks":{"total":3},"images":[{"url":"http://img/p1"}],"owner":{"display_name":"Ada"}}],"next":%q}`, ts.URL+"/me/playlists?offset=1")
				case "1":
					fmt.Fprint(w, `{"items":[{"id":"p2","name":"Second","tracks":{"total":0},"images":[]}],"next":null}`)
				default:
					t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
				}
			}
		})

		playlists, err := srv.GetPlaylists(context.Background())
		if err != nil {
			t.Fatalf("GetPlaylists() error = %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}
		if playlists[0].TrackCount != 3 || playlists[0].Owner != "Ada" || playlists[0].Image == nil {
			t.Errorf("unexpected first playlist: %+v", playlists[0])
		}
		if playlists[1].Image != nil {
			t.Errorf("expected nil image for playlist without images, got %v", *playlists[1].Image)
		}
	})

	t.Run("Status mapping", func(t *testing.T) {
		tests := []struct {
			status int
			want   error
		}{
			{http.StatusUnauthorized, shared.ErrTokenExpired},
			{http.StatusForbidden, shared.ErrAuthFailed},
			{http.StatusNotFound, shared.ErrPlaylistNotFound},
			{http.StatusTooManyRequests, shared.ErrRateLimited},
			{http.StatusServiceUnavailable, shared.ErrServiceUnavailable},
			{http.StatusInternalServerError, shared.ErrAPIRequest},
		}

		for _, tt := range tests {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
					return func(w http.ResponseWriter, r *http.Request) {
						w.Header().Set("Retry-After", "3")
						w.WriteHeader(tt.status)
						fmt.Fprintf(w, `{"error":{"status":%d,"message":"boom"}}`, tt.status)
					}
				})

				_, err := srv.PlaylistItems(context.Background(), "p1")
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
				if !errors.Is(err, shared.ErrAPIRequest) {
					t.Errorf("every remote failure should match ErrAPIRequest, got %v", err)
				}
				if !strings.Contains(err.Error(), "boom") {
					t.Errorf("expected catalog message in error, got %v", err)
				}
			})
		}
	})

	t.Run("Decode failure", func(t *testing.T) {
		srv, _ := newTestService(t, func(ts *httptest.Server) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "{not json") }
		})

		if _, err := srv.UserProfile(context.Background()); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestSpotifyRefreshFailure(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Refresh token revoked"}`)
	}))
	defer tokenServer.Close()

	var apiCalls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
	}))
	defer api.Close()

	srv, err := NewSpotifyService(testCredentials())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.SetBaseURL(api.URL)
	srv.config.Endpoint.TokenURL = tokenServer.URL

	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)}
	if err := srv.OAuthenticate(context.Background(), expired); err != nil {
		t.Fatalf("OAuthenticate failed: %v", err)
	}

	_, err = srv.UserProfile(context.Background())
	if !errors.Is(err, shared.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired for a failed refresh, got %v", err)
	}
	if !IsAuthError(err) {
		t.Error("failed refresh should be reported as an auth error")
	}
	if apiCalls.Load() != 0 {
		t.Errorf("no API request should be sent without a token, got %d", apiCalls.Load())
	}
}

func TestRefreshableTokenSource(t *testing.T) {
	t.Run("calls callback on first token fetch", func(t *testing.T) {
		var captured *oauth2.Token

		source := &refreshableTokenSource{
			source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}},
			callback: func(token *oauth2.Token) { captured = token },
		}

		token, err := source.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if captured == nil || captured.AccessToken != "test_token" {
			t.Errorf("expected captured token to be 'test_token', got %+v", captured)
		}
		if token.AccessToken != "test_token" {
			t.Errorf("expected returned token to be 'test_token', got %s", token.AccessToken)
		}
	})

	t.Run("calls callback only when token changes", func(t *testing.T) {
		callCount := 0
		mockSource := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}

		source := &refreshableTokenSource{
			source:   mockSource,
			last:     "token1",
			callback: func(token *oauth2.Token) { callCount++ },
		}

		source.Token()
		source.Token()
		if callCount != 0 {
			t.Errorf("expected no callback for the initial token, got %d", callCount)
		}

		mockSource.token = &oauth2.Token{AccessToken: "token2"}
		token2, _ := source.Token()
		source.Token()

		if callCount != 1 {
			t.Errorf("expected callback called once, got %d", callCount)
		}
		if token2.AccessToken != "token2" {
			t.Errorf("expected new token, got %s", token2.AccessToken)
		}
	})

	t.Run("handles nil callback gracefully", func(t *testing.T) {
		source := &refreshableTokenSource{
			source: &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}},
		}

		token, err := source.Token()
		if err != nil {
			t.Fatalf("expected no error with nil callback, got %v", err)
		}
		if token.AccessToken != "test_token" {
			t.Error("expected token to be returned despite nil callback")
		}
	})

	t.Run("propagates source errors", func(t *testing.T) {
		source := &refreshableTokenSource{
			source: &mockTokenSource{err: errors.New("token source error")},
			callback: func(token *oauth2.Token) {
				t.Error("callback should not be called on error")
			},
		}

		token, err := source.Token()
		if err == nil || !strings.Contains(err.Error(), "token source error") {
			t.Errorf("expected source error, got %v", err)
		}
		if token != nil {
			t.Error("expected nil token on error")
		}
	})
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(fmt.Errorf("%w: %w", shared.ErrAPIRequest, shared.ErrTokenExpired)) {
		t.Error("expired token should be an auth error")
	}
	if !IsAuthError(shared.ErrNotAuthenticated) {
		t.Error("missing credential should be an auth error")
	}
	if IsAuthError(shared.ErrRateLimited) {
		t.Error("rate limiting is not an auth error")
	}
}

// mockTokenSource implements [oauth2.TokenSource] for testing
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

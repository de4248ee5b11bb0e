// Spotify Web API implementation of [Service] and the catalog consumed by the analysis pipeline.
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	DefaultRedirectURI = "http://127.0.0.1:8000/callback"

	// MaxArtistsPerRequest is the most ids the several-artists endpoint accepts.
	MaxArtistsPerRequest = 50

	playlistItemsPageSize = 100
	playlistsPageSize     = 50
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a track as embedded in a playlist item.
//
// Type is "track" or "episode"; local files carry artists without ids.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
	URI        string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
//
// Genres is only populated by the artist endpoints, never on artists embedded in tracks.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylistItem is one entry of a playlist. Track is nil for removed or unavailable tracks.
type SpotifyPlaylistItem struct {
	AddedAt string        `json:"added_at"`
	IsLocal bool          `json:"is_local"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPlaylistItemsPage is one page of playlist items. Next is the absolute URL of the following page.
type SpotifyPlaylistItemsPage struct {
	Items  []*SpotifyPlaylistItem `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

type playlistTracksRef struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents playlist metadata.
type SpotifyPlaylist struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Owner       Owner             `json:"owner"`
	Public      bool              `json:"public"`
	Tracks      playlistTracksRef `json:"tracks"`
	Images      []SpotifyImage    `json:"images"`
	URI         string            `json:"uri"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items    []SpotifyPlaylist `json:"items"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
}

// Model converts the catalog playlist into a [models.Playlist].
func (p SpotifyPlaylist) Model() models.Playlist {
	playlist := models.Playlist{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Owner:       p.Owner.DisplayName,
		TrackCount:  p.Tracks.Total,
		Public:      p.Public,
	}
	if len(p.Images) > 0 {
		img := p.Images[0].URL
		playlist.Image = &img
	}
	return playlist
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements [OAuthService] for Spotify API interactions.
//
// Uses [oauth2] for authentication with automatic token refresh and a shared [rate.Limiter] to pace outbound requests.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter

	mu             sync.RWMutex
	token          *oauth2.Token
	onTokenRefresh func(*oauth2.Token)
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"playlist-read-private",
			"playlist-read-collaborative",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// SetBaseURL points API calls at a different host, e.g. an [httptest.Server].
func (s *SpotifyService) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimRight(baseURL, "/")
}

// SetRateLimit paces outbound API requests to rps per second. rps <= 0 disables pacing.
func (s *SpotifyService) SetRateLimit(rps float64) {
	if rps <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// SetTokenRefreshCallback registers fn to be called whenever the client obtains a new access token.
func (s *SpotifyService) SetTokenRefreshCallback(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenRefresh = fn
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the OAuth2 configuration, used by the CLI callback handler.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// Exchange trades an authorization code for a token without changing the service's own credential.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Authenticate performs OAuth2 authentication with Spotify. Expects either an "access_token" or "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		return s.OAuthenticate(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.Exchange(ctx, authCode)
		if err != nil {
			return err
		}
		return s.OAuthenticate(ctx, token)
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// OAuthenticate installs token as the service credential.
//
// Requests go through an [oauth2] client that refreshes the token when it expires; refreshed tokens are reported to the
// callback set with [SpotifyService.SetTokenRefreshCallback].
func (s *SpotifyService) OAuthenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidCredentials)
	}

	source := &refreshableTokenSource{
		source:   s.config.TokenSource(context.WithoutCancel(ctx), token),
		last:     token.AccessToken,
		callback: s.tokenRefreshed,
	}

	s.mu.Lock()
	s.token = token
	s.httpClient = oauth2.NewClient(context.WithoutCancel(ctx), source)
	s.mu.Unlock()
	return nil
}

// WithToken returns a copy of the service authenticated as a different user.
//
// The copy shares the OAuth2 config, base URL and rate limiter, but not the credential; onRefresh may be nil.
func (s *SpotifyService) WithToken(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) (*SpotifyService, error) {
	clone := &SpotifyService{
		config:         s.config,
		httpClient:     http.DefaultClient,
		baseURL:        s.baseURL,
		limiter:        s.limiter,
		onTokenRefresh: onRefresh,
	}
	if err := clone.OAuthenticate(ctx, token); err != nil {
		return nil, err
	}
	return clone, nil
}

// Authenticated reports whether a credential is installed.
func (s *SpotifyService) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil
}

// Token returns the most recent access token, or nil when unauthenticated.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *SpotifyService) tokenRefreshed(token *oauth2.Token) {
	s.mu.Lock()
	s.token = token
	cb := s.onTokenRefresh
	s.mu.Unlock()

	if cb != nil {
		cb(token)
	}
}

func (s *SpotifyService) client() *http.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpClient
}

// doRequest performs an authenticated GET against the Spotify API.
//
// endpoint is either a path relative to the base URL or an absolute URL previously returned by the API (a page cursor).
// Absolute URLs must point at the base URL so the bearer token is never sent elsewhere.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	if !s.Authenticated() {
		return shared.ErrNotAuthenticated
	}

	apiURL := s.baseURL + endpoint
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if !strings.HasPrefix(endpoint, s.baseURL+"/") {
			return fmt.Errorf("%w: refusing to follow cursor outside %s", shared.ErrAPIRequest, s.baseURL)
		}
		apiURL = endpoint
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrAPIRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: %w: token refresh failed: %v", shared.ErrAPIRequest, shared.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}

	return nil
}

// statusError maps a non-2xx response to a sentinel error. Every result also matches [shared.ErrAPIRequest].
func statusError(resp *http.Response) error {
	var body spotifyErrorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	msg = fmt.Sprintf("status %d: %s", resp.StatusCode, msg)

	var kind error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = shared.ErrTokenExpired
	case http.StatusForbidden:
		kind = shared.ErrAuthFailed
	case http.StatusNotFound:
		kind = shared.ErrPlaylistNotFound
	case http.StatusTooManyRequests:
		kind = shared.ErrRateLimited
		if after := resp.Header.Get("Retry-After"); after != "" {
			msg += " (retry after " + after + "s)"
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		kind = shared.ErrServiceUnavailable
	default:
		return fmt.Errorf("%w: %s", shared.ErrAPIRequest, msg)
	}
	return fmt.Errorf("%w: %w: %s", shared.ErrAPIRequest, kind, msg)
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// PlaylistItems retrieves the first page of a playlist's items, tracks only.
func (s *SpotifyService) PlaylistItems(ctx context.Context, playlistID string) (*SpotifyPlaylistItemsPage, error) {
	if strings.TrimSpace(playlistID) == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprint(playlistItemsPageSize))
	q.Set("additional_types", "track")
	endpoint := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), q.Encode())

	var page SpotifyPlaylistItemsPage
	if err := s.doRequest(ctx, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// NextPlaylistItems follows a page's next URL.
func (s *SpotifyService) NextPlaylistItems(ctx context.Context, nextURL string) (*SpotifyPlaylistItemsPage, error) {
	var page SpotifyPlaylistItemsPage
	if err := s.doRequest(ctx, nextURL, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SeveralArtists retrieves 1 to [MaxArtistsPerRequest] artists by id.
//
// The result is positional: unknown or unavailable artists are nil entries.
func (s *SpotifyService) SeveralArtists(ctx context.Context, artistIDs []string) ([]*SpotifyArtist, error) {
	if len(artistIDs) == 0 {
		return nil, fmt.Errorf("%w: no artist IDs provided", shared.ErrInvalidArgument)
	}
	if len(artistIDs) > MaxArtistsPerRequest {
		return nil, fmt.Errorf("%w: maximum %d artist IDs allowed, got %d", shared.ErrInvalidArgument, MaxArtistsPerRequest, len(artistIDs))
	}

	endpoint := "/artists?ids=" + url.QueryEscape(strings.Join(artistIDs, ","))

	var response struct {
		Artists []*SpotifyArtist `json:"artists"`
	}
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Artists, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > playlistsPageSize {
		limit = playlistsPageSize
	}

	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedPlaylists
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// AllUserPlaylists retrieves every page of the current user's playlists.
func (s *SpotifyService) AllUserPlaylists(ctx context.Context) ([]SpotifyPlaylist, error) {
	var all []SpotifyPlaylist
	offset := 0

	for {
		response, err := s.UserPlaylists(ctx, playlistsPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, response.Items...)

		if response.Next == nil || len(response.Items) == 0 {
			break
		}
		offset += len(response.Items)
	}

	return all, nil
}

// Playlist retrieves a playlist's metadata by ID.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	if strings.TrimSpace(playlistID) == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	endpoint := fmt.Sprintf("/playlists/%s?fields=%s", url.PathEscape(playlistID), url.QueryEscape("id,name,description,owner,public,images,uri,tracks.total"))

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, endpoint, &playlist); err != nil {
		return nil, err
	}

	return &playlist, nil
}

// Service interface implementation

// GetPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	items, err := s.AllUserPlaylists(ctx)
	if err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, 0, len(items))
	for _, sp := range items {
		playlists = append(playlists, sp.Model())
	}
	return playlists, nil
}

// GetPlaylist retrieves a specific playlist by ID.
func (s *SpotifyService) GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	sp, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	playlist := sp.Model()
	return &playlist, nil
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports each new access token to callback.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}

// IsAuthError reports whether err means the user must sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrTokenExpired)
}

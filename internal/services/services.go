// package services defines interface Service for interacting with HTTP APIs
//
// Spotify
package services

import (
	"context"

	"github.com/desertthunder/genrescope/internal/models"
	"golang.org/x/oauth2"
)

// Service defines the interface for music catalog providers that expose a user's playlists.
type Service interface {
	// Authenticate performs OAuth or API key authentication with the service.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// Authenticated reports whether a credential is installed.
	Authenticated() bool

	// GetPlaylists retrieves all playlists for the authenticated user.
	GetPlaylists(ctx context.Context) ([]models.Playlist, error)

	// GetPlaylist retrieves a specific playlist by ID.
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// OAuthService extends [Service] for providers using the OAuth2 authorization code flow.
type OAuthService interface {
	Service

	// GetAuthURL returns the provider's authorization URL carrying state.
	GetAuthURL(state string) string

	// GetOAuthConfig returns the OAuth2 configuration.
	GetOAuthConfig() *oauth2.Config

	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// OAuthenticate installs token as the service credential.
	OAuthenticate(ctx context.Context, token *oauth2.Token) error
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/genrescope/internal/server"
	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const oauthTimeout = 2 * time.Minute

// authStatus is the `auth status --json` document.
type authStatus struct {
	Authenticated bool      `json:"authenticated"`
	DisplayName   string    `json:"display_name,omitempty"`
	Expiry        time.Time `json:"expiry,omitzero"`
}

// AuthLogin performs the OAuth2 authorization code flow for Spotify.
//
// Starts a local HTTP server on the redirect URI, opens the browser for user authorization, and saves the exchanged token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: set client_id and client_secret in %s or SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET",
			shared.ErrMissingCredentials, r.configPath)
	}

	token, err := r.doOAuth(ctx, r.spotify, !cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}
	r.spotify.SetTokenRefreshCallback(r.onTokenRefresh)
	if err := r.spotify.OAuthenticate(ctx, token); err != nil {
		return fmt.Errorf("failed to authenticate with new token: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	if user, err := r.spotify.UserProfile(ctx); err == nil {
		r.writePlain("✓ Signed in as %s\n", user.DisplayName)
	} else {
		r.logger.Warn("failed to fetch profile", "error", err)
	}
	r.writePlain("✓ Token saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: genrescope playlists\n")

	return nil
}

// AuthStatus reports whether a saved token exists and still works.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")

	status, err := r.authStatus(ctx)
	if err != nil {
		return err
	}

	if useJSON {
		return r.writeJSON(status, false)
	}
	if !status.Authenticated {
		return r.writePlain("✗ Not signed in. Run 'genrescope auth login'.\n")
	}

	r.writePlain("✓ Signed in as %s\n", status.DisplayName)
	if !status.Expiry.IsZero() {
		r.writePlain("Access token expires: %s\n", status.Expiry.Local().Format(time.RFC1123))
	}
	return nil
}

func (r *Runner) authStatus(ctx context.Context) (*authStatus, error) {
	catalog, err := r.requireCatalog(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return &authStatus{}, nil
		}
		return nil, err
	}

	user, err := catalog.UserProfile(ctx)
	if err != nil {
		if services.IsAuthError(err) {
			r.logger.Warn("saved token rejected", "error", err)
			return &authStatus{}, nil
		}
		return nil, err
	}

	status := &authStatus{Authenticated: true, DisplayName: user.DisplayName}
	if r.spotify != nil {
		if token := r.spotify.Token(); token != nil {
			status.Expiry = token.Expiry
		}
	}
	return status, nil
}

// AuthLogout removes the saved token from the config file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.Credentials.Spotify.Token() == nil {
		return r.writePlain("Not signed in.\n")
	}

	r.config.Credentials.Spotify.ClearToken()
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.logger.Info("token removed", "path", r.configPath)
	return r.writePlain("✓ Signed out\n")
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, openBrowser bool) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	redirectURI := oauthSrv.GetOAuthConfig().RedirectURL
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}

	authURL := oauthSrv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv, redirectURI, state)
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Handler(oauthHandler)

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Run(srvCtx, server.New(u.Host, router), r.logger)
	}()

	if openBrowser {
		r.writePlain("→ Opening browser for %s authorization...\n", oauthSrv.Name())
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			openBrowser = false
		}
	}
	if !openBrowser {
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(oauthTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped")
		}
		return nil, fmt.Errorf("callback server: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, oauthTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	stop()
	if err := <-serverErrors; err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}

// reauthHint points the user at `auth login` when err means the saved token no longer works.
func reauthHint(err error) error {
	if services.IsAuthError(err) {
		return fmt.Errorf("%w (run 'genrescope auth login' to sign in again)", err)
	}
	return err
}

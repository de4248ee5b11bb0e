package main

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/desertthunder/genrescope/internal/repositories"
	"github.com/desertthunder/genrescope/internal/server"
	"github.com/desertthunder/genrescope/internal/shared"
	"github.com/desertthunder/genrescope/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP backend until interrupted.
//
// Sessions live in the sqlite database; expired ones are purged at startup.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: set client_id and client_secret in %s or SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET",
			shared.ErrMissingCredentials, r.configPath)
	}

	cfg := r.config.Server
	host := cmp.Or(cmd.String("host"), cfg.Host)
	port := cmp.Or(cmd.Int("port"), cfg.Port)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessions := repositories.NewSessionStore(repositories.NewSessionRepository(db), cfg.SessionDuration())
	if n, err := sessions.Purge(); err != nil {
		r.logger.Warn("failed to purge expired sessions", "error", err)
	} else if n > 0 {
		r.logger.Info("purged expired sessions", "count", n)
	}

	app, err := web.NewApp(web.Options{
		Provider:       web.NewSpotifyProvider(r.spotify),
		Sessions:       sessions,
		Logger:         r.logger,
		FrontendURL:    cfg.FrontendURL,
		AllowedOrigins: cfg.AllowedOrigins,
		CookieName:     cfg.SessionCookie,
		CallbackPath:   server.CallbackPath(r.config.Credentials.Spotify.RedirectURI),
		Concurrency:    r.config.Analysis.Concurrency,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting server", "addr", addr, "frontend", cfg.FrontendURL)
	return server.Run(ctx, server.New(addr, app.Handler()), r.logger)
}

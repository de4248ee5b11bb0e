package main

import (
	"cmp"
	"context"
	"errors"
	"os"

	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	configPath := cmp.Or(os.Getenv("GENRESCOPE_CONFIG"), defaultConfigPath)
	config := shared.DefaultConfig()
	if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
		config = loadedConfig
	} else if !errors.Is(err, shared.ErrMissingConfig) {
		logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
	}

	if err := config.ApplyEnv(".env"); err != nil {
		logger.Warn("failed to apply environment", "error", err)
	}

	if level, err := shared.ParseLogLevel(config.Log.Level); err != nil {
		logger.Warn("unknown log level, using info", "level", config.Log.Level)
	} else {
		shared.SetLogLevel(logger, level)
	}

	var spotifyService *services.SpotifyService
	if svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map()); err == nil {
		svc.SetRateLimit(config.Analysis.RateLimit)
		spotifyService = svc
	} else {
		logger.Debug("spotify client not configured", "error", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Spotify:    spotifyService,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "genrescope",
		Usage:    "Break a Spotify playlist down by the genres of its artists",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatal("application error", "error", err)
	}
}

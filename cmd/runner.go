package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrescope/internal/analysis"
	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Catalog is the part of the Spotify client the commands read from.
type Catalog interface {
	analysis.Catalog

	GetPlaylists(ctx context.Context) ([]models.Playlist, error)
	UserProfile(ctx context.Context) (*services.SpotifyUser, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    *services.SpotifyService
	catalog    Catalog
	logger     *log.Logger
	output     io.Writer

	mu sync.Mutex // guards token writes to config
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Catalog defaults to Spotify; tests set it to read from a fake.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    *services.SpotifyService
	Catalog    Catalog
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Catalog == nil && opts.Spotify != nil {
		opts.Catalog = opts.Spotify
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		catalog:    opts.Catalog,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, analyzeCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// requireCatalog returns an authenticated catalog, installing the token saved by `auth login` on first use.
func (r *Runner) requireCatalog(ctx context.Context) (Catalog, error) {
	if r.catalog == nil {
		return nil, fmt.Errorf("%w: set client_id and client_secret in %s or SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET",
			shared.ErrMissingCredentials, r.configPath)
	}

	if !r.catalog.Authenticated() && r.spotify != nil {
		token := r.config.Credentials.Spotify.Token()
		if token == nil {
			return nil, fmt.Errorf("%w: run 'genrescope auth login' first", shared.ErrNotAuthenticated)
		}
		r.spotify.SetTokenRefreshCallback(r.onTokenRefresh)
		if err := r.spotify.OAuthenticate(ctx, token); err != nil {
			return nil, err
		}
	}

	if !r.catalog.Authenticated() {
		return nil, fmt.Errorf("%w: run 'genrescope auth login' first", shared.ErrNotAuthenticated)
	}
	return r.catalog, nil
}

// saveTokens stores token in the config and writes the config file, when one is set.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.logger.Debug("token saved", "path", r.configPath, "expiry", token.Expiry)
	return nil
}

// onTokenRefresh is the refresh callback installed on the Spotify client.
func (r *Runner) onTokenRefresh(token *oauth2.Token) {
	if err := r.saveTokens(token); err != nil {
		r.logger.Warn("failed to save refreshed token", "error", err)
	}
}

func (r *Runner) newAnalyzer(catalog Catalog, concurrency int) *analysis.Analyzer {
	analyzer := analysis.NewAnalyzer(catalog, r.logger)
	analyzer.SetConcurrency(concurrency)
	return analyzer
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) error {
	rule := "═══════════════════════════════════════\n"
	return r.writePlain("%s%v\n%s", rule, title, rule)
}

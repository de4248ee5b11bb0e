package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/genrescope/internal/analysis"
	"github.com/desertthunder/genrescope/internal/formatter"
	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/shared"
	"github.com/urfave/cli/v3"
)

// Analyze runs the genre analysis for one playlist and prints or exports the result.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	playlistID := strings.TrimSpace(cmd.String("id"))
	output := cmd.String("output")
	top := cmd.Int("top")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if playlistID == "" {
		return fmt.Errorf("%w: --id flag is required", shared.ErrMissingArgument)
	}
	if top < 0 {
		return fmt.Errorf("%w: --top must not be negative", shared.ErrInvalidArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	concurrency := r.config.Analysis.Concurrency
	if cmd.IsSet("concurrency") {
		concurrency = cmd.Int("concurrency")
	}

	catalog, err := r.requireCatalog(ctx)
	if err != nil {
		return err
	}

	result, err := r.runAnalysis(ctx, catalog, playlistID, concurrency)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", reauthHint(err))
	}

	if useJSON {
		return r.writeJSON(result, pretty)
	}

	switch {
	case output == "-":
		data, err := formatter.Export(result, format, top)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	case format == formatter.FormatTable:
		if output != "" {
			return fmt.Errorf("%w: table output cannot be written to a file, pick another --format", shared.ErrInvalidArgument)
		}
		return r.writeTable(result, top)
	default:
		files, err := formatter.WriteExport(result, format, output)
		if err != nil {
			return err
		}
		for _, f := range files {
			r.logger.Info("export written", "format", format, "path", f)
			r.writePlain("✓ Wrote %s\n", f)
		}
		return r.writePlain("%s\n", formatter.Summary(result.Metrics))
	}
}

// runAnalysis drives the pipeline, logging each progress update.
func (r *Runner) runAnalysis(ctx context.Context, catalog Catalog, playlistID string, concurrency int) (*models.Analysis, error) {
	progress := make(chan analysis.ProgressUpdate, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase)
		}
	}()

	result, err := r.newAnalyzer(catalog, concurrency).Analyze(ctx, playlistID, progress)
	close(progress)
	<-done

	return result, err
}

func (r *Runner) writeTable(result *models.Analysis, top int) error {
	if err := r.writePlainHeader("Genres of playlist " + result.PlaylistID); err != nil {
		return err
	}
	if len(result.GenreCounts) == 0 {
		return r.writePlain("No genres found for this playlist's artists.\n%s\n", formatter.Summary(result.Metrics))
	}
	if err := formatter.WriteTable(r.output, result, top); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	if hidden := len(result.GenreCounts) - len(result.GenreCounts.Top(top)); hidden > 0 {
		return r.writePlain("… and %d more genres (use --top 0 to show all)\n", hidden)
	}
	return nil
}

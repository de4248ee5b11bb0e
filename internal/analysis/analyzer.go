package analysis

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/shared"
)

// Catalog is the remote catalog consumed by [Analyzer].
type Catalog interface {
	PlaylistSource
	ArtistLookup

	// Authenticated reports whether the catalog holds a credential.
	Authenticated() bool
}

// Analyzer runs the genre analysis pipeline for one catalog credential.
type Analyzer struct {
	catalog     Catalog
	logger      *log.Logger
	concurrency int
}

// NewAnalyzer creates an [Analyzer] over catalog. A nil logger discards output.
func NewAnalyzer(catalog Catalog, logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Analyzer{catalog: catalog, logger: logger, concurrency: 1}
}

// SetConcurrency sets how many artist batches may be in flight at once.
func (a *Analyzer) SetConcurrency(n int) {
	a.concurrency = max(1, n)
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Analyze fetches every item of the playlist, resolves artist genres and returns the ranked genre profile.
//
// It fails with [shared.ErrNotAuthenticated] before any remote call when the catalog has no credential.
// Any remote failure fails the analysis; there is no partial result. progress may be nil.
func (a *Analyzer) Analyze(ctx context.Context, playlistID string, progress chan<- ProgressUpdate) (*models.Analysis, error) {
	if a.catalog == nil || !a.catalog.Authenticated() {
		return nil, shared.ErrNotAuthenticated
	}

	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	logger := shared.WithLogger(a.logger, "playlist", playlistID)
	start := time.Now()

	projector := NewProjector()
	fetched, pages := 0, 0
	for page, err := range Pages(ctx, PlaylistItemPages(a.catalog, playlistID)) {
		if err != nil {
			logger.Error("failed to fetch playlist items", "page", pages+1, "error", err)
			return nil, fmt.Errorf("failed to fetch playlist items: %w", err)
		}
		pages++
		fetched += len(page.Items)
		projector.Add(page.Items...)
		sendProgress(progress, fetchTracksUpdate(fetched, page.Total))
	}
	logger.Debug("fetched playlist", "pages", pages, "items", fetched, "skipped", projector.Skipped())

	artists := projector.Artists()
	resolver := &Resolver{
		Lookup:      a.catalog,
		Concurrency: a.concurrency,
		OnBatch: func(done, total int) {
			sendProgress(progress, resolveArtistsUpdate(done, total, artists.Len()))
		},
	}

	index, err := resolver.Resolve(ctx, artists.IDs())
	if err != nil {
		logger.Error("failed to resolve artists", "artists", artists.Len(), "error", err)
		return nil, fmt.Errorf("failed to resolve artists: %w", err)
	}
	logger.Debug("resolved artists", "artists", artists.Len(), "found", len(index))

	sendProgress(progress, aggregateGenresUpdate(len(projector.Records())))
	tracks, table := Aggregate(projector.Records(), index)

	result := &models.Analysis{
		PlaylistID:  playlistID,
		Metrics:     Summarize(tracks, artists.Len(), table),
		GenreCounts: table.Ranked(),
		Tracks:      tracks,
	}
	if result.Tracks == nil {
		result.Tracks = []models.TrackRecord{}
	}

	logger.Info("analysis complete",
		"tracks", result.Metrics.TotalTracks,
		"artists", result.Metrics.UniqueArtists,
		"genres", result.Metrics.TotalGenres,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	sendProgress(progress, completeUpdate(result))
	return result, nil
}

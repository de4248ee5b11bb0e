package analysis

import (
	"fmt"

	"github.com/desertthunder/genrescope/internal/models"
)

// ProgressUpdate represents a progress event during an analysis.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data; *models.Analysis for [Complete]
}

// Pipeline phase enumeration
type Phase int

const (
	FetchTracks Phase = iota
	ResolveArtists
	AggregateGenres
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchTracks:
		return "fetch_tracks"
	case ResolveArtists:
		return "resolve_artists"
	case AggregateGenres:
		return "aggregate_genres"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchTracksUpdate(fetched, total int) ProgressUpdate {
	msg := fmt.Sprintf("Fetched %d tracks...", fetched)
	if total > 0 {
		msg = fmt.Sprintf("Fetched %d of %d tracks...", fetched, total)
	}
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    fetched,
		Total:   total,
		Message: msg,
	}
}

func resolveArtistsUpdate(done, total, artists int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveArtists,
		Step:    done,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving genres for %d artists...", done, total, artists),
	}
}

func aggregateGenresUpdate(tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AggregateGenres,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Tallying genres across %d tracks...", tracks),
	}
}

func completeUpdate(a *models.Analysis) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✓ %d tracks, %d artists, %d genres", a.Metrics.TotalTracks, a.Metrics.UniqueArtists, a.Metrics.TotalGenres),
		Data:    a,
	}
}

package analysis

import (
	"slices"

	"github.com/desertthunder/genrescope/internal/models"
)

// GenreFrequencyTable counts how many tracks carry each genre.
type GenreFrequencyTable struct {
	counts map[string]int
	order  []string
}

func NewGenreFrequencyTable() *GenreFrequencyTable {
	return &GenreFrequencyTable{counts: make(map[string]int)}
}

// Add increments the count for genre, recording when it was first seen.
func (t *GenreFrequencyTable) Add(genre string) {
	if _, ok := t.counts[genre]; !ok {
		t.order = append(t.order, genre)
	}
	t.counts[genre]++
}

func (t *GenreFrequencyTable) Count(genre string) int { return t.counts[genre] }

// Len returns the number of distinct genres.
func (t *GenreFrequencyTable) Len() int { return len(t.order) }

// Ranked returns the genres by count, highest first. Equal counts keep first-seen order.
func (t *GenreFrequencyTable) Ranked() models.GenreCounts {
	ranked := make(models.GenreCounts, 0, len(t.order))
	for _, g := range t.order {
		ranked = append(ranked, models.GenreCount{Genre: g, Count: t.counts[g]})
	}
	slices.SortStableFunc(ranked, func(a, b models.GenreCount) int {
		return b.Count - a.Count
	})
	return ranked
}

// Aggregate assigns each track the union of its artists' genres and counts every genre once per track.
//
// The input slice is not modified. Artists missing from index contribute nothing.
func Aggregate(tracks []models.TrackRecord, index ArtistGenreIndex) ([]models.TrackRecord, *GenreFrequencyTable) {
	table := NewGenreFrequencyTable()
	out := slices.Clone(tracks)

	for i := range out {
		genres := []string{}
		seen := make(map[string]struct{})

		for _, id := range out[i].ArtistIDs {
			for _, g := range index[id] {
				if _, ok := seen[g]; ok {
					continue
				}
				seen[g] = struct{}{}
				genres = append(genres, g)
			}
		}

		out[i].Genres = genres
		for _, g := range genres {
			table.Add(g)
		}
	}

	return out, table
}

// Summarize computes the analysis metrics.
func Summarize(tracks []models.TrackRecord, uniqueArtists int, table *GenreFrequencyTable) models.Metrics {
	return models.Metrics{
		TotalTracks:   len(tracks),
		UniqueArtists: uniqueArtists,
		TotalGenres:   table.Len(),
	}
}

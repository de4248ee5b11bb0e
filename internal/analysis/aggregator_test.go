package analysis

import (
	"slices"
	"testing"

	"github.com/desertthunder/genrescope/internal/models"
)

func track(id string, artistIDs ...string) models.TrackRecord {
	return models.TrackRecord{ID: id, Name: id, Artists: artistIDs, ArtistIDs: artistIDs, Genres: []string{}}
}

func TestAggregate(t *testing.T) {
	t.Run("union semantics", func(t *testing.T) {
		index := ArtistGenreIndex{
			"x": {"rock"},
			"y": {"rock", "jazz"},
		}

		tracks, table := Aggregate([]models.TrackRecord{track("t1", "x", "y")}, index)

		if !slices.Equal(tracks[0].Genres, []string{"rock", "jazz"}) {
			t.Errorf("expected genres [rock jazz], got %v", tracks[0].Genres)
		}
		if table.Count("rock") != 1 {
			t.Errorf("rock should count once for the track, got %d", table.Count("rock"))
		}
		if table.Count("jazz") != 1 {
			t.Errorf("expected jazz count 1, got %d", table.Count("jazz"))
		}
	})

	t.Run("missing artists contribute nothing", func(t *testing.T) {
		index := ArtistGenreIndex{"x": {"indie"}}

		tracks, table := Aggregate([]models.TrackRecord{track("t1", "gone"), track("t2", "x", "gone")}, index)

		if tracks[0].Genres == nil || len(tracks[0].Genres) != 0 {
			t.Errorf("expected empty genres for t1, got %v", tracks[0].Genres)
		}
		if !slices.Equal(tracks[1].Genres, []string{"indie"}) {
			t.Errorf("expected [indie] for t2, got %v", tracks[1].Genres)
		}
		if table.Len() != 1 {
			t.Errorf("expected 1 genre, got %d", table.Len())
		}
	})

	t.Run("input is not modified", func(t *testing.T) {
		in := []models.TrackRecord{track("t1", "x")}
		Aggregate(in, ArtistGenreIndex{"x": {"indie"}})
		if len(in[0].Genres) != 0 {
			t.Errorf("input genres mutated: %v", in[0].Genres)
		}
	})
}

func TestGenreFrequencyTableRanked(t *testing.T) {
	t.Run("ties keep first-seen order", func(t *testing.T) {
		index := ArtistGenreIndex{
			"j": {"jazz"},
			"p": {"pop"},
			"r": {"rock"},
		}
		tracks := []models.TrackRecord{
			track("t1", "j", "p", "r"),
			track("t2", "j", "p", "r"),
			track("t3", "j", "p", "r"),
			track("t4", "p", "r"),
			track("t5", "p", "r"),
		}

		_, table := Aggregate(tracks, index)
		want := models.GenreCounts{{Genre: "pop", Count: 5}, {Genre: "rock", Count: 5}, {Genre: "jazz", Count: 3}}
		if got := table.Ranked(); !slices.Equal(got, want) {
			t.Errorf("Ranked() = %v, want %v", got, want)
		}
	})

	t.Run("stable for reversed encounter order", func(t *testing.T) {
		table := NewGenreFrequencyTable()
		for _, g := range []string{"rock", "pop", "rock", "pop", "jazz"} {
			table.Add(g)
		}

		got := table.Ranked()
		if got[0].Genre != "rock" || got[1].Genre != "pop" || got[2].Genre != "jazz" {
			t.Errorf("expected rock, pop, jazz, got %v", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		table := NewGenreFrequencyTable()
		if got := table.Ranked(); got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil ranking, got %v", got)
		}
	})
}

func TestSummarize(t *testing.T) {
	tracks, table := Aggregate([]models.TrackRecord{track("t1", "x"), track("t2", "y")}, ArtistGenreIndex{
		"x": {"indie"},
		"y": {"indie", "folk"},
	})

	got := Summarize(tracks, 2, table)
	want := models.Metrics{TotalTracks: 2, UniqueArtists: 2, TotalGenres: 2}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

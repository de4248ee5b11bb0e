package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TrackRecord is one playlist track normalized for analysis.
//
// Artists and ArtistIDs are not parallel: artists without a catalog id appear in Artists only.
type TrackRecord struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Artists   []string `json:"artists"`
	ArtistIDs []string `json:"artist_ids"`
	Image     *string  `json:"image"`
	Genres    []string `json:"genres"`
}

// HasGenre reports whether genre was assigned to the track.
func (t TrackRecord) HasGenre(genre string) bool {
	for _, g := range t.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// GenreCount is a genre with the number of tracks carrying it.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// GenreCounts is a ranked genre tally.
//
// It marshals as a JSON object whose keys appear in slice order, so clients that
// iterate the object see the most frequent genre first.
type GenreCounts []GenreCount

// Get returns the count for genre and whether it is present.
func (gc GenreCounts) Get(genre string) (int, bool) {
	for _, c := range gc {
		if c.Genre == genre {
			return c.Count, true
		}
	}
	return 0, false
}

// Top returns at most n entries; n <= 0 returns all.
func (gc GenreCounts) Top(n int) GenreCounts {
	if n <= 0 || n >= len(gc) {
		return gc
	}
	return gc[:n]
}

func (gc GenreCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range gc {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Genre)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", c.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (gc *GenreCounts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*gc = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("genre counts: expected object, got %v", tok)
	}

	out := GenreCounts{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		genre, ok := tok.(string)
		if !ok {
			return fmt.Errorf("genre counts: expected string key, got %v", tok)
		}

		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("genre counts: %q: %w", genre, err)
		}
		out = append(out, GenreCount{Genre: genre, Count: count})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*gc = out
	return nil
}

// Metrics summarizes an analysis.
type Metrics struct {
	TotalTracks   int `json:"total_tracks"`   // tracks kept after skipping empty entries
	UniqueArtists int `json:"unique_artists"` // distinct artist ids
	TotalGenres   int `json:"total_genres"`   // distinct genres
}

// Analysis is the result of analyzing one playlist.
type Analysis struct {
	PlaylistID  string        `json:"playlist_id"`
	Metrics     Metrics       `json:"metrics"`
	GenreCounts GenreCounts   `json:"genre_counts"`
	Tracks      []TrackRecord `json:"tracks"`
}

// Share returns the fraction of tracks tagged with a genre counted count times.
func (a *Analysis) Share(count int) float64 {
	if a.Metrics.TotalTracks == 0 {
		return 0
	}
	return float64(count) / float64(a.Metrics.TotalTracks)
}

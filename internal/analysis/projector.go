package analysis

import (
	"slices"

	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/services"
)

// ArtistSet is a set of artist ids that remembers first-seen order.
type ArtistSet struct {
	ids  []string
	seen map[string]struct{}
}

func NewArtistSet() *ArtistSet {
	return &ArtistSet{seen: make(map[string]struct{})}
}

// Add inserts id and reports whether it was new. Empty ids are ignored.
func (s *ArtistSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s *ArtistSet) Has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *ArtistSet) Len() int { return len(s.ids) }

// IDs returns a copy of the ids in first-seen order.
func (s *ArtistSet) IDs() []string { return slices.Clone(s.ids) }

// Projector turns raw playlist items into [models.TrackRecord] values, collecting artist ids along the way.
//
// Items are fed with Add, one page at a time if desired.
type Projector struct {
	records []models.TrackRecord
	artists *ArtistSet
	skipped int
}

func NewProjector() *Projector {
	return &Projector{artists: NewArtistSet()}
}

// Add projects items and appends the resulting records.
//
// Items without a track, non-track items (podcast episodes) and tracks without artists are skipped.
// Artists without an id keep their name but are left out of ArtistIDs and the artist set.
func (p *Projector) Add(items ...*services.SpotifyPlaylistItem) {
	for _, item := range items {
		record, ok := projectItem(item)
		if !ok {
			p.skipped++
			continue
		}
		for _, id := range record.ArtistIDs {
			p.artists.Add(id)
		}
		p.records = append(p.records, record)
	}
}

// Records returns the projected tracks in playlist order.
func (p *Projector) Records() []models.TrackRecord { return p.records }

// Artists returns the distinct artist ids seen so far.
func (p *Projector) Artists() *ArtistSet { return p.artists }

// Skipped returns how many items were dropped.
func (p *Projector) Skipped() int { return p.skipped }

// Project is the one-shot form of [Projector].
func Project(items []*services.SpotifyPlaylistItem) ([]models.TrackRecord, *ArtistSet) {
	p := NewProjector()
	p.Add(items...)
	return p.Records(), p.Artists()
}

func projectItem(item *services.SpotifyPlaylistItem) (models.TrackRecord, bool) {
	if item == nil || item.Track == nil {
		return models.TrackRecord{}, false
	}

	track := item.Track
	if track.Type != "" && track.Type != "track" {
		return models.TrackRecord{}, false
	}
	if len(track.Artists) == 0 {
		return models.TrackRecord{}, false
	}

	record := models.TrackRecord{
		ID:        track.ID,
		Name:      track.Name,
		Artists:   make([]string, 0, len(track.Artists)),
		ArtistIDs: make([]string, 0, len(track.Artists)),
		Genres:    []string{},
	}
	for _, artist := range track.Artists {
		if artist.ID != "" {
			record.ArtistIDs = append(record.ArtistIDs, artist.ID)
		}
		record.Artists = append(record.Artists, artist.Name)
	}

	if len(track.Album.Images) > 0 && track.Album.Images[0].URL != "" {
		img := track.Album.Images[0].URL
		record.Image = &img
	}

	return record, true
}

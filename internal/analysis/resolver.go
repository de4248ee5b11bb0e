package analysis

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/genrescope/internal/services"
	"golang.org/x/sync/errgroup"
)

// MaxArtistBatch is the most artist ids sent in one lookup.
const MaxArtistBatch = services.MaxArtistsPerRequest

// ArtistLookup resolves a batch of artist ids. The result is positional and may hold nil entries.
type ArtistLookup interface {
	SeveralArtists(ctx context.Context, ids []string) ([]*services.SpotifyArtist, error)
}

// ArtistGenreIndex maps an artist id to its deduplicated genres.
//
// Artists the catalog returned as null have no entry.
type ArtistGenreIndex map[string][]string

// Batches splits ids into consecutive, disjoint batches of at most size ids.
// A size outside 1..[MaxArtistBatch] uses [MaxArtistBatch].
func Batches(ids []string, size int) [][]string {
	if size <= 0 || size > MaxArtistBatch {
		size = MaxArtistBatch
	}

	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for batch := range slices.Chunk(ids, size) {
		batches = append(batches, batch)
	}
	return batches
}

// Resolver looks up genres for a set of artists in batches.
type Resolver struct {
	Lookup ArtistLookup

	// Concurrency is the number of batches in flight. Values <= 1 resolve batches one after another.
	Concurrency int

	// OnBatch, when set, is called after each completed batch. Calls are serialized.
	OnBatch func(done, total int)
}

func NewResolver(lookup ArtistLookup) *Resolver {
	return &Resolver{Lookup: lookup}
}

// Resolve returns the genre index for ids.
//
// Duplicate and empty ids are dropped before batching, so each artist is requested once and exactly
// ceil(n/[MaxArtistBatch]) lookups are made for n distinct ids. Any failed lookup fails the whole call.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (ArtistGenreIndex, error) {
	set := NewArtistSet()
	for _, id := range ids {
		set.Add(id)
	}

	batches := Batches(set.IDs(), MaxArtistBatch)
	results := make([][]*services.SpotifyArtist, len(batches))

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		if r.OnBatch == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		r.OnBatch(done, len(batches))
	}

	if r.Concurrency <= 1 {
		for i, batch := range batches {
			artists, err := r.lookup(ctx, i, batch)
			if err != nil {
				return nil, err
			}
			results[i] = artists
			report()
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.Concurrency)

		for i, batch := range batches {
			g.Go(func() error {
				artists, err := r.lookup(gctx, i, batch)
				if err != nil {
					return err
				}
				results[i] = artists
				report()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	index := make(ArtistGenreIndex, set.Len())
	for _, artists := range results {
		for _, artist := range artists {
			if artist == nil || artist.ID == "" {
				continue
			}
			index[artist.ID] = uniqueStrings(artist.Genres)
		}
	}
	return index, nil
}

func (r *Resolver) lookup(ctx context.Context, i int, batch []string) ([]*services.SpotifyArtist, error) {
	artists, err := r.Lookup.SeveralArtists(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("artist batch %d (%d ids): %w", i+1, len(batch), err)
	}
	return artists, nil
}

// uniqueStrings drops repeated values, keeping first occurrences in order. The result is never nil.
func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

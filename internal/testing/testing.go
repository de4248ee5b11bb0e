// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
)

const fakeCursorPrefix = "fake://page/"

// FakeCatalog is an in-memory playlist catalog that records every call.
//
// Pages are served in order for whichever playlist id is requested (or only PlaylistID, when set).
// Artists missing from the Artists map come back as nil entries, like unavailable catalog artists.
type FakeCatalog struct {
	PlaylistID      string
	Pages           [][]*services.SpotifyPlaylistItem
	Artists         map[string]*services.SpotifyArtist
	Playlists       []services.SpotifyPlaylist
	User            *services.SpotifyUser
	Unauthenticated bool

	PageErr     error // returned by the PageErrAt-th page request (0-based)
	PageErrAt   int
	ArtistErr   error // returned by the ArtistErrAt-th artist lookup (0-based)
	ArtistErrAt int
	ProfileErr  error

	mu          sync.Mutex
	pageCalls   int
	artistCalls [][]string
}

func (f *FakeCatalog) Authenticated() bool { return !f.Unauthenticated }

func (f *FakeCatalog) PlaylistItems(ctx context.Context, playlistID string) (*services.SpotifyPlaylistItemsPage, error) {
	if f.PlaylistID != "" && playlistID != f.PlaylistID {
		return nil, fmt.Errorf("%w: %w: %s", shared.ErrAPIRequest, shared.ErrPlaylistNotFound, playlistID)
	}
	return f.page(ctx, 0)
}

func (f *FakeCatalog) NextPlaylistItems(ctx context.Context, nextURL string) (*services.SpotifyPlaylistItemsPage, error) {
	idx, err := strconv.Atoi(strings.TrimPrefix(nextURL, fakeCursorPrefix))
	if err != nil || !strings.HasPrefix(nextURL, fakeCursorPrefix) {
		return nil, fmt.Errorf("%w: unexpected cursor %q", shared.ErrAPIRequest, nextURL)
	}
	return f.page(ctx, idx)
}

func (f *FakeCatalog) page(ctx context.Context, idx int) (*services.SpotifyPlaylistItemsPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	call := f.pageCalls
	f.pageCalls++
	f.mu.Unlock()

	if f.PageErr != nil && call == f.PageErrAt {
		return nil, f.PageErr
	}

	total := 0
	for _, p := range f.Pages {
		total += len(p)
	}

	page := &services.SpotifyPlaylistItemsPage{Total: total}
	if idx < len(f.Pages) {
		page.Items = f.Pages[idx]
	}
	if idx+1 < len(f.Pages) {
		next := fakeCursorPrefix + strconv.Itoa(idx+1)
		page.Next = &next
	}
	return page, nil
}

func (f *FakeCatalog) SeveralArtists(ctx context.Context, ids []string) ([]*services.SpotifyArtist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 || len(ids) > services.MaxArtistsPerRequest {
		return nil, fmt.Errorf("%w: %d artist ids", shared.ErrInvalidArgument, len(ids))
	}

	f.mu.Lock()
	call := len(f.artistCalls)
	f.artistCalls = append(f.artistCalls, slices.Clone(ids))
	f.mu.Unlock()

	if f.ArtistErr != nil && call == f.ArtistErrAt {
		return nil, f.ArtistErr
	}

	out := make([]*services.SpotifyArtist, len(ids))
	for i, id := range ids {
		out[i] = f.Artists[id]
	}
	return out, nil
}

func (f *FakeCatalog) AllUserPlaylists(ctx context.Context) ([]services.SpotifyPlaylist, error) {
	if f.Unauthenticated {
		return nil, shared.ErrNotAuthenticated
	}
	if f.PageErr != nil {
		return nil, f.PageErr
	}
	return f.Playlists, nil
}

func (f *FakeCatalog) GetPlaylists(ctx context.Context) ([]models.Playlist, error) {
	raw, err := f.AllUserPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	playlists := make([]models.Playlist, 0, len(raw))
	for _, p := range raw {
		playlists = append(playlists, p.Model())
	}
	return playlists, nil
}

func (f *FakeCatalog) UserProfile(ctx context.Context) (*services.SpotifyUser, error) {
	if f.Unauthenticated {
		return nil, shared.ErrNotAuthenticated
	}
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	if f.User == nil {
		return &services.SpotifyUser{ID: "user", DisplayName: "Test User"}, nil
	}
	return f.User, nil
}

// PageCalls returns the number of page requests made.
func (f *FakeCatalog) PageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls
}

// ArtistCalls returns the id batches passed to SeveralArtists, in call order.
func (f *FakeCatalog) ArtistCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.artistCalls)
}

// Item builds a playlist item for a track with the given artists.
func Item(id, name string, artists ...services.SpotifyArtist) *services.SpotifyPlaylistItem {
	return &services.SpotifyPlaylistItem{
		Track: &services.SpotifyTrack{ID: id, Name: name, Type: "track", Artists: artists},
	}
}

// ArtistRef builds an artist reference as embedded in a track.
func ArtistRef(id, name string) services.SpotifyArtist {
	return services.SpotifyArtist{ID: id, Name: name}
}

// Playlist builds playlist metadata as listed by the catalog.
func Playlist(id, name string, tracks int) services.SpotifyPlaylist {
	p := services.SpotifyPlaylist{ID: id, Name: name, Owner: services.Owner{ID: "user", DisplayName: "Test User"}}
	p.Tracks.Total = tracks
	return p
}

// Artist builds a full artist record with genres.
func Artist(id string, genres ...string) *services.SpotifyArtist {
	return &services.SpotifyArtist{ID: id, Name: strings.ToUpper(id), Genres: genres}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

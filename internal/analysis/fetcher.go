package analysis

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
)

// ErrCursorLoop is returned when a paginated source hands back a cursor it already returned.
var ErrCursorLoop = errors.New("pagination cursor repeated")

// Page is one page of a cursor-paginated listing. An empty Next marks the last page.
type Page[T any] struct {
	Items []T
	Next  string
	Total int // total items reported by the source, 0 when unknown
}

// PageFunc fetches the page at cursor. The empty cursor requests the first page.
type PageFunc[T any] func(ctx context.Context, cursor string) (*Page[T], error)

// Pages returns a lazy sequence of pages in source order.
//
// Every range over the sequence starts again from the first page. Iteration stops after the page without a next
// cursor, or after yielding the first error.
func Pages[T any](ctx context.Context, fetch PageFunc[T]) iter.Seq2[*Page[T], error] {
	return func(yield func(*Page[T], error) bool) {
		seen := make(map[string]struct{})
		cursor := ""

		for {
			page, err := fetch(ctx, cursor)
			if err != nil {
				yield(nil, err)
				return
			}
			if page == nil {
				page = &Page[T]{}
			}
			if !yield(page, nil) || page.Next == "" {
				return
			}

			if _, ok := seen[page.Next]; ok {
				yield(nil, fmt.Errorf("%w: %w: %s", shared.ErrAPIRequest, ErrCursorLoop, page.Next))
				return
			}
			seen[page.Next] = struct{}{}
			cursor = page.Next
		}
	}
}

// FetchAll follows every page and returns all items in order.
//
// A failed page fails the whole fetch; no partial result is returned.
func FetchAll[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var all []T
	for page, err := range Pages(ctx, fetch) {
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
	}
	return all, nil
}

// PlaylistSource lists playlist items a page at a time.
type PlaylistSource interface {
	PlaylistItems(ctx context.Context, playlistID string) (*services.SpotifyPlaylistItemsPage, error)
	NextPlaylistItems(ctx context.Context, nextURL string) (*services.SpotifyPlaylistItemsPage, error)
}

// PlaylistItemPages adapts source into a [PageFunc] over one playlist's items.
func PlaylistItemPages(source PlaylistSource, playlistID string) PageFunc[*services.SpotifyPlaylistItem] {
	return func(ctx context.Context, cursor string) (*Page[*services.SpotifyPlaylistItem], error) {
		var (
			raw *services.SpotifyPlaylistItemsPage
			err error
		)
		if cursor == "" {
			raw, err = source.PlaylistItems(ctx, playlistID)
		} else {
			raw, err = source.NextPlaylistItems(ctx, cursor)
		}
		if err != nil {
			return nil, err
		}

		page := &Page[*services.SpotifyPlaylistItem]{Items: raw.Items, Total: raw.Total}
		if raw.Next != nil {
			page.Next = *raw.Next
		}
		return page, nil
	}
}

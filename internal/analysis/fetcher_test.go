package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/desertthunder/genrescope/internal/services"
	"github.com/desertthunder/genrescope/internal/shared"
	tu "github.com/desertthunder/genrescope/internal/testing"
)

// slicePages serves pages of ints with cursors "c1", "c2", ... and counts calls.
func slicePages(pages [][]int, calls *int) PageFunc[int] {
	return func(ctx context.Context, cursor string) (*Page[int], error) {
		*calls++
		idx := 0
		if cursor != "" {
			if _, err := fmt.Sscanf(cursor, "c%d", &idx); err != nil {
				return nil, fmt.Errorf("bad cursor %q", cursor)
			}
		}
		page := &Page[int]{}
		if idx < len(pages) {
			page.Items = pages[idx]
		}
		if idx+1 < len(pages) {
			page.Next = fmt.Sprintf("c%d", idx+1)
		}
		return page, nil
	}
}

func TestFetchAll(t *testing.T) {
	t.Run("pagination transparency", func(t *testing.T) {
		tests := []struct {
			name  string
			pages [][]int
		}{
			{name: "single page", pages: [][]int{{1, 2, 3, 4, 5}}},
			{name: "even pages", pages: [][]int{{1, 2}, {3, 4}, {5}}},
			{name: "one per page", pages: [][]int{{1}, {2}, {3}, {4}, {5}}},
			{name: "empty page in the middle", pages: [][]int{{1, 2}, {}, {3, 4, 5}}},
			{name: "empty playlist", pages: [][]int{{}}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				calls := 0
				got, err := FetchAll(context.Background(), slicePages(tt.pages, &calls))
				if err != nil {
					t.Fatalf("FetchAll() error = %v", err)
				}

				want := slices.Concat(tt.pages...)
				if len(got) != len(want) || !slices.Equal(got, want) {
					t.Errorf("FetchAll() = %v, want %v", got, want)
				}
				if calls != len(tt.pages) {
					t.Errorf("expected %d page requests, got %d", len(tt.pages), calls)
				}
			})
		}
	})

	t.Run("page failure returns no partial result", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		fetch := func(ctx context.Context, cursor string) (*Page[int], error) {
			calls++
			if cursor == "second" {
				return nil, boom
			}
			return &Page[int]{Items: []int{1, 2}, Next: "second"}, nil
		}

		got, err := FetchAll(context.Background(), fetch)
		if !errors.Is(err, boom) {
			t.Fatalf("expected page error, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil result on failure, got %v", got)
		}
		if calls != 2 {
			t.Errorf("expected 2 page requests, got %d", calls)
		}
	})

	t.Run("repeated cursor", func(t *testing.T) {
		fetch := func(ctx context.Context, cursor string) (*Page[int], error) {
			return &Page[int]{Items: []int{1}, Next: "same"}, nil
		}

		_, err := FetchAll(context.Background(), fetch)
		if !errors.Is(err, ErrCursorLoop) {
			t.Errorf("expected ErrCursorLoop, got %v", err)
		}
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("cursor loop should be a remote failure, got %v", err)
		}
	})

	t.Run("nil page ends iteration", func(t *testing.T) {
		fetch := func(ctx context.Context, cursor string) (*Page[int], error) { return nil, nil }

		got, err := FetchAll(context.Background(), fetch)
		if err != nil || len(got) != 0 {
			t.Errorf("FetchAll() = %v, %v", got, err)
		}
	})
}

func TestPages(t *testing.T) {
	t.Run("lazy", func(t *testing.T) {
		calls := 0
		_ = Pages(context.Background(), slicePages([][]int{{1}, {2}}, &calls))
		if calls != 0 {
			t.Errorf("no page should be fetched before ranging, got %d calls", calls)
		}
	})

	t.Run("restartable", func(t *testing.T) {
		calls := 0
		seq := Pages(context.Background(), slicePages([][]int{{1, 2}, {3}}, &calls))

		collect := func() []int {
			var out []int
			for page, err := range seq {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				out = append(out, page.Items...)
			}
			return out
		}

		first, second := collect(), collect()
		if !slices.Equal(first, []int{1, 2, 3}) || !slices.Equal(first, second) {
			t.Errorf("expected identical full passes, got %v and %v", first, second)
		}
		if calls != 4 {
			t.Errorf("expected each pass to refetch both pages, got %d calls", calls)
		}
	})

	t.Run("early break stops fetching", func(t *testing.T) {
		calls := 0
		for range Pages(context.Background(), slicePages([][]int{{1}, {2}, {3}}, &calls)) {
			break
		}
		if calls != 1 {
			t.Errorf("expected 1 page request after break, got %d", calls)
		}
	})
}

func TestPlaylistItemPages(t *testing.T) {
	catalog := &tu.FakeCatalog{
		PlaylistID: "p1",
		Pages: [][]*services.SpotifyPlaylistItem{
			{tu.Item("t1", "One", tu.ArtistRef("a", "A")), nil},
			{tu.Item("t2", "Two", tu.ArtistRef("b", "B"))},
		},
	}

	items, err := FetchAll(context.Background(), PlaylistItemPages(catalog, "p1"))
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 raw items including the null entry, got %d", len(items))
	}
	if items[0].Track.ID != "t1" || items[1] != nil || items[2].Track.ID != "t2" {
		t.Errorf("items out of order: %+v", items)
	}
	if catalog.PageCalls() != 2 {
		t.Errorf("expected 2 page calls, got %d", catalog.PageCalls())
	}

	_, err = FetchAll(context.Background(), PlaylistItemPages(catalog, "missing"))
	if !errors.Is(err, shared.ErrPlaylistNotFound) {
		t.Errorf("expected ErrPlaylistNotFound, got %v", err)
	}
}

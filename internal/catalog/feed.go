package catalog

import (
	"context"
	"sync"

	"github.com/alexjbarnes/reel-sync/internal/models"
)

// PageFunc fetches one page of results.
type PageFunc func(ctx context.Context, page int) (*Page, error)

// Feed accumulates successive result pages for infinite scrolling. Movies
// that reappear on a later page are kept once, at their first position.
// Safe for concurrent use.
type Feed struct {
	fetch PageFunc

	mu         sync.Mutex
	movies     []models.FavoriteRecord
	seen       map[string]struct{}
	nextPage   int
	totalPages int
}

// NewFeed creates a feed that starts at page 1.
func NewFeed(fetch PageFunc) *Feed {
	return &Feed{
		fetch:      fetch,
		seen:       make(map[string]struct{}),
		nextPage:   1,
		totalPages: -1,
	}
}

// More reports whether another page is available. It is true before the
// first fetch.
func (f *Feed) More() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.totalPages < 0 || f.nextPage <= f.totalPages
}

// Next fetches the next page and returns the movies it added. A failed
// fetch leaves the feed unchanged so the same page can be retried. Once
// every page has been read it returns nil, nil.
func (f *Feed) Next(ctx context.Context) ([]models.FavoriteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.totalPages >= 0 && f.nextPage > f.totalPages {
		return nil, nil
	}

	p, err := f.fetch(ctx, f.nextPage)
	if err != nil {
		return nil, err
	}

	f.totalPages = p.TotalPages
	f.nextPage++

	var added []models.FavoriteRecord

	for _, m := range p.Results {
		if _, dup := f.seen[m.Key()]; dup {
			continue
		}

		f.seen[m.Key()] = struct{}{}
		f.movies = append(f.movies, m)
		added = append(added, m)
	}

	return added, nil
}

// Movies returns every movie loaded so far.
func (f *Feed) Movies() []models.FavoriteRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.FavoriteRecord, len(f.movies))
	copy(out, f.movies)

	return out
}

// Package source implements one fetcher per external job API.
//
// A fetcher knows its API's request shape (auth, pagination, filters) and
// returns normalized jobs for a {page, limit} window. Network and HTTP errors
// are returned to the caller untouched so retry policy lives in the syncer.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobmate/aggregator-service/internal/model"
)

// ErrUnknownSource is returned when a registry lookup misses.
var ErrUnknownSource = errors.New("unknown source")

// Fetcher is the capability every source provides.
type Fetcher interface {
	Name() model.Source
	// RateLimit is the minimum delay before and between calls.
	RateLimit() time.Duration
	Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error)
}

// Registry is the ordered table of fetchers the syncer iterates.
type Registry struct {
	order  []Fetcher
	byName map[model.Source]Fetcher
}

// NewRegistry keeps the given order; a later fetcher with a duplicate name
// replaces the earlier one in place.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{byName: make(map[model.Source]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

// Register adds f, or replaces the fetcher already registered under its name.
func (r *Registry) Register(f Fetcher) {
	if _, exists := r.byName[f.Name()]; exists {
		for i, cur := range r.order {
			if cur.Name() == f.Name() {
				r.order[i] = f
			}
		}
	} else {
		r.order = append(r.order, f)
	}
	r.byName[f.Name()] = f
}

// Get looks a fetcher up by source name.
func (r *Registry) Get(name model.Source) (Fetcher, error) {
	f, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return f, nil
}

// Names returns the registered source names in order.
func (r *Registry) Names() []model.Source {
	names := make([]model.Source, 0, len(r.order))
	for _, f := range r.order {
		names = append(names, f.Name())
	}
	return names
}

// base carries what every HTTP-backed fetcher shares.
type base struct {
	name      model.Source
	rateLimit time.Duration
	// BaseURL is the API root; tests point it at an httptest server.
	BaseURL string
	client  *apiClient
}

func (b *base) Name() model.Source       { return b.name }
func (b *base) RateLimit() time.Duration { return b.rateLimit }

// window slices a fully fetched result list down to the requested page, for
// APIs that have no native pagination.
func window(jobs []model.Job, p model.FetchParams) []model.Job {
	start := (p.Page - 1) * p.Limit
	if start >= len(jobs) || p.Limit <= 0 {
		return nil
	}
	end := min(start+p.Limit, len(jobs))
	return jobs[start:end]
}

// truncate caps a native page at the requested limit.
func truncate(jobs []model.Job, limit int) []model.Job {
	if limit > 0 && len(jobs) > limit {
		return jobs[:limit]
	}
	return jobs
}

// nativeWindow maps a {page, limit} window onto an API whose page size is
// fixed at size. firstPage is the API's index for its first page. Every
// request after the first waits on p.Throttle.
func nativeWindow(
	ctx context.Context,
	p model.FetchParams,
	size, firstPage int,
	get func(ctx context.Context, page int) ([]json.RawMessage, error),
) ([]json.RawMessage, error) {
	if p.Limit <= 0 {
		return nil, nil
	}
	offset := (p.Page - 1) * p.Limit
	page, skip := offset/size, offset%size

	var out []json.RawMessage
	for calls := 0; len(out) < p.Limit; calls++ {
		if calls > 0 {
			if err := p.Throttle(ctx); err != nil {
				return nil, err
			}
		}
		items, err := get(ctx, page+firstPage)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page+firstPage, err)
		}
		if skip < len(items) {
			out = append(out, items[skip:]...)
		}
		skip = 0
		if len(items) < size {
			break // last page
		}
		page++
	}
	if len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

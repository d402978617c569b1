package source

import (
	"context"
	"fmt"
	"time"

	"jobmate/aggregator-service/internal/apify"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/normalize"
)

// ApifyFetcher runs an Apify actor synchronously. Actors have no paging and
// every run is billed per result, so a sync gets one run: page 1 asks for
// limit items and later pages are empty. Bulk imports go through
// apify.Loader instead.
type ApifyFetcher struct {
	actor  apify.Actor
	query  apify.Query
	client *apify.Client
}

// NewApifyFetcher binds the named actor to a fixed search query.
func NewApifyFetcher(client *apify.Client, actorName string, q apify.Query) (*ApifyFetcher, error) {
	actor, err := apify.LookupActor(actorName)
	if err != nil {
		return nil, err
	}
	return &ApifyFetcher{actor: actor, query: q, client: client}, nil
}

func (f *ApifyFetcher) Name() model.Source { return f.actor.Source }

// RateLimit is generous since each call starts a paid actor run.
func (f *ApifyFetcher) RateLimit() time.Duration { return 5 * time.Second }

func (f *ApifyFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	if !f.client.Configured() {
		return nil, fmt.Errorf("%s: apify token not configured", f.actor.Name)
	}
	if p.Page > 1 || p.Limit <= 0 {
		return nil, nil
	}
	q := f.query
	q.MaxItems = p.Limit

	items, err := f.client.RunSyncGetItems(ctx, f.actor.ActorID, f.actor.Input(q))
	if err != nil {
		return nil, err
	}
	return truncate(normalize.All(f.actor.Normalize, items), p.Limit), nil
}

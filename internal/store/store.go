// Package store persists normalized jobs. Postgres is the production
// backend; MemoryStore serves tests and local dry runs.
package store

import (
	"context"
	"time"

	"jobmate/aggregator-service/internal/model"
)

// Store is the persistence contract the batch processor relies on. Each
// operation is treated as atomic per row.
type Store interface {
	// UpsertJobs inserts or fully updates jobs keyed by (source, external_id).
	// It is all-or-nothing: on error nothing from jobs is stored and both
	// counts are zero.
	UpsertJobs(ctx context.Context, jobs []model.Job) (created, updated int, err error)
	// MarkStale flags active jobs published before cutoff as stale.
	MarkStale(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteExpired removes stale jobs published before cutoff that no user
	// has saved or applied to.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Package batch commits normalized, deduplicated jobs to storage in fixed
// chunks and runs the stale/expired lifecycle.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/store"
)

const (
	// ChunkSize is the number of jobs upserted per store round trip.
	ChunkSize = 50
	// MaxDescriptionLength guards row size; longer descriptions are cut.
	MaxDescriptionLength = 5000

	DefaultStaleDays  = 60
	DefaultExpireDays = 90

	ellipsis = "..."
)

// Result aggregates one BatchUpsert call.
type Result struct {
	Created int
	Updated int
	Errors  []string
}

// Processor wraps a Store with chunking and lifecycle policy.
type Processor struct {
	store store.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewProcessor returns a Processor writing to s.
func NewProcessor(s store.Store, log logrus.FieldLogger) *Processor {
	return &Processor{
		store: s,
		log:   log.WithField("component", "batch"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// BatchUpsert writes jobs in chunks of ChunkSize, in order. A failing chunk
// is logged and recorded, and the remaining chunks still run.
func (p *Processor) BatchUpsert(ctx context.Context, jobs []model.Job) Result {
	var res Result
	for start := 0; start < len(jobs); start += ChunkSize {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("upsert cancelled: %v", err))
			break
		}
		end := min(start+ChunkSize, len(jobs))

		chunk := make([]model.Job, 0, end-start)
		for _, j := range jobs[start:end] {
			j.Description = TruncateDescription(j.Description)
			j.DescriptionHTML = TruncateDescription(j.DescriptionHTML)
			chunk = append(chunk, j)
		}

		created, updated, err := p.store.UpsertJobs(ctx, chunk)
		if err != nil {
			// A failed chunk stored nothing, whatever counts came with it.
			p.log.WithFields(logrus.Fields{"offset": start, "size": len(chunk), "err": err}).
				Error("chunk upsert failed — continuing")
			res.Errors = append(res.Errors, fmt.Sprintf("chunk %d-%d: %v", start, end-1, err))
			continue
		}
		res.Created += created
		res.Updated += updated
	}
	return res
}

// TruncateDescription cuts s to MaxDescriptionLength characters, the last
// three being the ellipsis.
func TruncateDescription(s string) string {
	if len(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= MaxDescriptionLength {
		return s
	}
	return string(runes[:MaxDescriptionLength-len(ellipsis)]) + ellipsis
}

// MarkStaleJobs flags active jobs published more than days ago. days <= 0
// uses DefaultStaleDays.
func (p *Processor) MarkStaleJobs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultStaleDays
	}
	n, err := p.store.MarkStale(ctx, p.cutoff(days))
	if err != nil {
		return 0, err
	}
	p.log.WithFields(logrus.Fields{"days": days, "marked": n}).Info("marked stale jobs")
	return n, nil
}

// CleanupExpiredJobs deletes stale jobs published more than days ago that no
// user has saved or applied to. days <= 0 uses DefaultExpireDays.
func (p *Processor) CleanupExpiredJobs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultExpireDays
	}
	n, err := p.store.DeleteExpired(ctx, p.cutoff(days))
	if err != nil {
		return 0, err
	}
	p.log.WithFields(logrus.Fields{"days": days, "deleted": n}).Info("cleaned up expired jobs")
	return n, nil
}

func (p *Processor) cutoff(days int) time.Time {
	return p.now().AddDate(0, 0, -days)
}

// Package syncer runs the end-to-end sync of external sources:
// fetch (paginated, throttled, retried) → deduplicate → batch upsert.
//
// Sources are processed one at a time and pages within a source are fetched
// sequentially. Every failure is converted into a model.SyncResult; nothing
// here returns an error to the caller.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"jobmate/aggregator-service/internal/batch"
	"jobmate/aggregator-service/internal/dedupe"
	"jobmate/aggregator-service/internal/events"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/source"
)

const (
	// MaxPageSize caps the limit requested from a fetcher per page.
	MaxPageSize = 100
	// MaxRetries is the retry budget of one SyncSource call, shared by all
	// its pages.
	MaxRetries = 2

	DefaultMaxJobs     = 1000
	DefaultSinceDays   = 2
	IncrementalMaxJobs = 100
	TopSourcesMaxJobs  = 200

	backoffBase = time.Second
)

// TopSources are refreshed by the frequent, cheap sync cycle.
var TopSources = []model.Source{
	model.SourceRemotive,
	model.SourceRemoteOK,
	model.SourceArbeitnow,
	model.SourceHimalayas,
	model.SourceJobicy,
}

// Options selects what one SyncSource call fetches.
type Options struct {
	Source      model.Source `json:"source" validate:"required"`
	Incremental bool         `json:"incremental"`
	// SinceDays bounds the incremental window; 0 means DefaultSinceDays.
	SinceDays int `json:"sinceDays" validate:"omitempty,min=1,max=365"`
	// MaxJobs caps the jobs collected; 0 means DefaultMaxJobs.
	MaxJobs int `json:"maxJobs" validate:"omitempty,min=1,max=10000"`
}

func (o Options) withDefaults() Options {
	if o.SinceDays <= 0 {
		o.SinceDays = DefaultSinceDays
	}
	if o.MaxJobs <= 0 {
		o.MaxJobs = DefaultMaxJobs
	}
	return o
}

// Upserter commits jobs; *batch.Processor satisfies it.
type Upserter interface {
	BatchUpsert(ctx context.Context, jobs []model.Job) batch.Result
}

// Syncer orchestrates source syncs.
type Syncer struct {
	registry *source.Registry
	upserter Upserter
	pub      events.Publisher
	log      logrus.FieldLogger

	// Now and Sleep are replaceable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// New wires a Syncer. A nil pub discards events.
func New(registry *source.Registry, upserter Upserter, pub events.Publisher, log logrus.FieldLogger) *Syncer {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Syncer{
		registry: registry,
		upserter: upserter,
		pub:      pub,
		log:      log.WithField("component", "syncer"),
		Now:      func() time.Time { return time.Now().UTC() },
		Sleep:    sleepCtx,
	}
}

// SyncSource runs one source end to end and reports the outcome.
func (s *Syncer) SyncSource(ctx context.Context, opts Options) model.SyncResult {
	start := s.Now()
	opts = opts.withDefaults()
	res := model.SyncResult{
		Source: opts.Source,
		RunID:  uuid.NewString(),
		Errors: []string{},
	}
	log := s.log.WithFields(logrus.Fields{"source": opts.Source, "runId": res.RunID})

	s.run(ctx, opts, &res, log)

	res.DurationMS = s.Now().Sub(start).Milliseconds()
	entry := log.WithFields(logrus.Fields{
		"fetched":     res.JobsFetched,
		"created":     res.JobsCreated,
		"updated":     res.JobsUpdated,
		"skipped":     res.JobsSkipped,
		"duration_ms": res.DurationMS,
	})
	if res.Success {
		entry.Info("source sync done")
	} else {
		entry.WithField("errors", res.Errors).Error("source sync failed")
	}
	s.pub.Publish(ctx, events.ChannelJobsSynced, events.NewJobsSynced(res))
	return res
}

func (s *Syncer) run(ctx context.Context, opts Options, res *model.SyncResult, log logrus.FieldLogger) {
	f, err := s.registry.Get(opts.Source)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return
	}
	log.WithFields(logrus.Fields{
		"incremental": opts.Incremental,
		"since_days":  opts.SinceDays,
		"max_jobs":    opts.MaxJobs,
	}).Info("source sync started")

	jobs, err := s.fetchPaginated(ctx, f, opts, log)
	if err != nil {
		// Whatever was collected before retries ran out is still synced.
		if len(jobs) == 0 || ctx.Err() != nil {
			res.Errors = append(res.Errors, err.Error())
			return
		}
		log.WithError(err).Warn("pagination cut short — syncing partial results")
		res.Errors = append(res.Errors, err.Error())
	}

	res.JobsFetched = len(jobs)
	if len(jobs) == 0 {
		res.Success = true
		return
	}

	unique := dedupe.DeduplicateJobs(jobs)
	res.JobsSkipped = len(jobs) - len(unique)

	br := s.upserter.BatchUpsert(ctx, unique)
	res.JobsCreated = br.Created
	res.JobsUpdated = br.Updated
	res.Errors = append(res.Errors, br.Errors...)
	// A sync that wrote nothing because every chunk failed is a failure.
	res.Success = len(br.Errors) == 0 || br.Created+br.Updated > 0
}

// fetchPaginated collects up to opts.MaxJobs jobs. A non-nil error means
// pagination stopped early; the jobs collected until then are returned with it.
func (s *Syncer) fetchPaginated(ctx context.Context, f source.Fetcher, opts Options, log logrus.FieldLogger) ([]model.Job, error) {
	var (
		all     []model.Job
		retries int
		limiter *rate.Limiter
	)
	if d := f.RateLimit(); d > 0 {
		// One limiter per call, shared with the fetcher so requests it makes
		// inside a single Fetch are spaced too.
		limiter = rate.NewLimiter(rate.Every(d), 1)
		limiter.Allow() // empty the bucket so the first call waits too
	}
	cutoff := s.Now().AddDate(0, 0, -opts.SinceDays)

	for page := 1; len(all) < opts.MaxJobs; {
		limit := min(MaxPageSize, opts.MaxJobs-len(all))

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return all, fmt.Errorf("throttle: %w", err)
			}
		}

		params := model.FetchParams{Page: page, Limit: limit}
		if limiter != nil {
			params.Wait = limiter.Wait
		}
		jobs, err := f.Fetch(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			if retries >= MaxRetries {
				return all, fmt.Errorf("page %d: giving up after %d retries: %w", page, MaxRetries, err)
			}
			delay := backoffBase << retries
			retries++
			log.WithFields(logrus.Fields{"page": page, "attempt": retries, "backoff": delay.String()}).
				WithError(err).Warn("page fetch failed — retrying")
			if err := s.Sleep(ctx, delay); err != nil {
				return all, err
			}
			continue
		}

		if len(jobs) == 0 {
			break
		}
		got := len(jobs)
		if opts.Incremental {
			jobs = publishedSince(jobs, cutoff)
			if len(jobs) == 0 {
				log.WithField("page", page).Debug("page is older than the window — stopping")
				break
			}
		}
		if room := opts.MaxJobs - len(all); len(jobs) > room {
			jobs = jobs[:room]
		}
		all = append(all, jobs...)

		if got < limit {
			break
		}
		page++
	}
	return all, nil
}

// publishedSince keeps jobs published at or after cutoff. Undated jobs are
// kept.
func publishedSince(jobs []model.Job, cutoff time.Time) []model.Job {
	out := jobs[:0:0]
	for _, j := range jobs {
		if j.PublishedAt == nil || !j.PublishedAt.Before(cutoff) {
			out = append(out, j)
		}
	}
	return out
}

// SyncAllSources syncs every registered source in registration order.
// Incremental runs cover DefaultSinceDays with IncrementalMaxJobs per
// source; full runs take DefaultMaxJobs per source.
func (s *Syncer) SyncAllSources(ctx context.Context, incremental bool) []model.SyncResult {
	opts := Options{MaxJobs: DefaultMaxJobs}
	if incremental {
		opts = Options{Incremental: true, SinceDays: DefaultSinceDays, MaxJobs: IncrementalMaxJobs}
	}
	return s.syncEach(ctx, s.registry.Names(), opts, "all")
}

// SyncTopSources is the frequent refresh: TopSources only, incremental.
func (s *Syncer) SyncTopSources(ctx context.Context) []model.SyncResult {
	opts := Options{Incremental: true, SinceDays: DefaultSinceDays, MaxJobs: TopSourcesMaxJobs}
	return s.syncEach(ctx, TopSources, opts, "top")
}

func (s *Syncer) syncEach(ctx context.Context, names []model.Source, opts Options, label string) []model.SyncResult {
	s.log.WithFields(logrus.Fields{"set": label, "sources": len(names), "incremental": opts.Incremental}).
		Info("sync cycle started")

	results := make([]model.SyncResult, 0, len(names))
	var ok, created, updated int
	for _, name := range names {
		o := opts
		o.Source = name
		r := s.SyncSource(ctx, o)
		if r.Success {
			ok++
		}
		created += r.JobsCreated
		updated += r.JobsUpdated
		results = append(results, r)
	}

	s.log.WithFields(logrus.Fields{
		"set":       label,
		"succeeded": ok,
		"failed":    len(names) - ok,
		"created":   created,
		"updated":   updated,
	}).Info("sync cycle complete")
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

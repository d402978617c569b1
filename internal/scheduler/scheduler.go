// Package scheduler wires up the cron jobs that keep the job store fresh:
// a frequent incremental refresh of the top sources, a nightly full sync of
// every source, and the stale/expired maintenance pass.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/model"
)

// Syncer is the part of syncer.Syncer the scheduler drives.
type Syncer interface {
	SyncTopSources(ctx context.Context) []model.SyncResult
	SyncAllSources(ctx context.Context, incremental bool) []model.SyncResult
}

// Maintainer is the part of batch.Processor the scheduler drives.
type Maintainer interface {
	MarkStaleJobs(ctx context.Context, days int) (int64, error)
	CleanupExpiredJobs(ctx context.Context, days int) (int64, error)
}

// Specs are the cron expressions of the three jobs.
type Specs struct {
	Incremental string
	Full        string
	Maintenance string
}

// Options tunes the maintenance pass and startup behaviour.
type Options struct {
	StaleAfterDays  int
	ExpireAfterDays int
	// RunOnStart fires one incremental sync right after Start so the store
	// is populated without waiting for the first tick.
	RunOnStart bool
}

// Scheduler wraps robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	syncer     Syncer
	maintainer Maintainer
	specs      Specs
	opts       Options
	log        logrus.FieldLogger
}

// New builds a Scheduler. Overlapping runs of the same job are skipped.
func New(syncer Syncer, maintainer Maintainer, specs Specs, opts Options, log logrus.FieldLogger) *Scheduler {
	log = log.WithField("component", "scheduler")
	cronLog := cron.PrintfLogger(log)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		syncer:     syncer,
		maintainer: maintainer,
		specs:      specs,
		opts:       opts,
		log:        log,
	}
}

// Start registers the jobs and starts the cron loop. ctx is handed to every
// job run; cancel it to abort in-flight syncs.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"incremental", s.specs.Incremental, s.RunIncremental},
		{"full", s.specs.Full, s.RunFull},
		{"maintenance", s.specs.Maintenance, s.RunMaintenance},
	}
	for _, j := range jobs {
		run := j.run
		if _, err := s.cron.AddFunc(j.spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc %s (%q): %w", j.name, j.spec, err)
		}
	}

	s.cron.Start()
	s.log.WithFields(logrus.Fields{
		"incremental": s.specs.Incremental,
		"full":        s.specs.Full,
		"maintenance": s.specs.Maintenance,
	}).Info("cron started")

	if s.opts.RunOnStart {
		go s.RunIncremental(ctx)
	}
	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("cron stopped")
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// RunIncremental refreshes the top sources.
func (s *Scheduler) RunIncremental(ctx context.Context) {
	s.logCycle("incremental", s.syncer.SyncTopSources(ctx))
}

// RunFull syncs every registered source without a date window.
func (s *Scheduler) RunFull(ctx context.Context) {
	s.logCycle("full", s.syncer.SyncAllSources(ctx, false))
}

// RunMaintenance marks old jobs stale, then deletes expired ones.
func (s *Scheduler) RunMaintenance(ctx context.Context) {
	marked, err := s.maintainer.MarkStaleJobs(ctx, s.opts.StaleAfterDays)
	if err != nil {
		s.log.WithError(err).Error("mark stale failed")
	}
	deleted, err := s.maintainer.CleanupExpiredJobs(ctx, s.opts.ExpireAfterDays)
	if err != nil {
		s.log.WithError(err).Error("cleanup expired failed")
	}
	s.log.WithFields(logrus.Fields{"marked_stale": marked, "deleted": deleted}).Info("maintenance complete")
}

func (s *Scheduler) logCycle(kind string, results []model.SyncResult) {
	var failed []model.Source
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r.Source)
		}
	}
	entry := s.log.WithFields(logrus.Fields{"cycle": kind, "sources": len(results)})
	if len(failed) > 0 {
		entry.WithField("failed", failed).Warn("sync cycle finished with failures")
		return
	}
	entry.Info("sync cycle finished")
}

package apify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/batch"
	"jobmate/aggregator-service/internal/dedupe"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/normalize"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultRunTimeout   = 30 * time.Minute
	datasetPageSize     = 1000
	saveTimeout         = 5 * time.Second
)

// Upserter commits jobs; *batch.Processor satisfies it.
type Upserter interface {
	BatchUpsert(ctx context.Context, jobs []model.Job) batch.Result
}

// sweeper is implemented by status stores that expire entries manually.
type sweeper interface {
	Sweep() int
}

// Loader starts actor runs and imports their datasets in the background.
// It owns the goroutines it launches; Close cancels and waits for them.
type Loader struct {
	client   *Client
	statuses StatusStore
	upserter Upserter
	log      logrus.FieldLogger

	PollInterval time.Duration
	RunTimeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewLoader wires a Loader. The caller must Close it.
func NewLoader(client *Client, statuses StatusStore, upserter Upserter, log logrus.FieldLogger) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		client:       client,
		statuses:     statuses,
		upserter:     upserter,
		log:          log.WithField("component", "apify-loader"),
		PollInterval: DefaultPollInterval,
		RunTimeout:   DefaultRunTimeout,
		ctx:          ctx,
		cancel:       cancel,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// StartLoad starts actorName with q and returns the Apify run id. The
// dataset import continues in the background; poll Status for progress.
func (l *Loader) StartLoad(ctx context.Context, actorName string, q Query) (string, error) {
	actor, err := LookupActor(actorName)
	if err != nil {
		return "", err
	}
	if s, ok := l.statuses.(sweeper); ok {
		if n := s.Sweep(); n > 0 {
			l.log.WithField("removed", n).Debug("swept expired load statuses")
		}
	}

	run, err := l.client.StartRun(ctx, actor.ActorID, actor.Input(q))
	if err != nil {
		return "", err
	}

	st := LoadStatus{
		RunID:     run.ID,
		ActorName: actor.Name,
		Status:    StatusQueued,
		Errors:    []string{},
		StartedAt: l.now(),
	}
	if err := l.statuses.Save(ctx, st); err != nil {
		return "", err
	}
	l.log.WithFields(logrus.Fields{"runId": run.ID, "actor": actor.Name}).Info("load queued")

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.ProcessLoad(l.ctx, run.ID)
	}()
	return run.ID, nil
}

// ProcessLoad drives one run from queued to a terminal state and returns
// the final status. Every failure ends in StatusFailed with the message in
// Errors; nothing is returned as an error.
func (l *Loader) ProcessLoad(ctx context.Context, runID string) LoadStatus {
	log := l.log.WithField("runId", runID)

	st, err := l.statuses.Get(ctx, runID)
	if err != nil {
		log.WithError(err).Error("load status missing")
		return LoadStatus{RunID: runID, Status: StatusFailed, Errors: []string{err.Error()}}
	}
	actor, err := LookupActor(st.ActorName)
	if err != nil {
		return l.fail(ctx, st, err)
	}

	if err := st.advance(StatusRunning, 10); err != nil {
		return l.fail(ctx, st, err)
	}
	l.save(ctx, st)

	run, err := l.waitForRun(ctx, &st)
	if err != nil {
		return l.fail(ctx, st, err)
	}
	if run.Status != RunSucceeded {
		return l.fail(ctx, st, fmt.Errorf("actor run ended with status %s", run.Status))
	}

	if err := st.advance(StatusProcessing, 60); err != nil {
		return l.fail(ctx, st, err)
	}
	l.save(ctx, st)

	items, err := l.readDataset(ctx, run.DefaultDatasetID)
	if err != nil {
		return l.fail(ctx, st, err)
	}
	jobs := normalize.All(actor.Normalize, items)
	st.JobsFetched = len(jobs)
	st.setProgress(75)
	l.save(ctx, st)

	unique := dedupe.DeduplicateJobs(jobs)
	res := l.upserter.BatchUpsert(ctx, unique)
	st.JobsSynced = res.Created + res.Updated
	st.Errors = append(st.Errors, res.Errors...)

	st.EstimatedCost = run.UsageTotalUSD
	if st.EstimatedCost == 0 {
		st.EstimatedCost = actor.EstimateCost(len(items))
	}

	if err := st.advance(StatusCompleted, 100); err != nil {
		return l.fail(ctx, st, err)
	}
	done := l.now()
	st.CompletedAt = &done
	l.save(ctx, st)

	log.WithFields(logrus.Fields{
		"actor":    st.ActorName,
		"fetched":  st.JobsFetched,
		"synced":   st.JobsSynced,
		"skipped":  len(jobs) - len(unique),
		"cost_usd": st.EstimatedCost,
	}).Info("load completed")
	return st
}

// waitForRun polls the run until it finishes, the timeout passes, or ctx is
// cancelled. Progress creeps from 10 towards 50 while waiting.
func (l *Loader) waitForRun(ctx context.Context, st *LoadStatus) (*Run, error) {
	deadline := l.now().Add(l.RunTimeout)
	for {
		run, err := l.client.GetRun(ctx, st.RunID)
		if err != nil {
			return nil, err
		}
		if run.Finished() {
			return run, nil
		}
		if l.now().After(deadline) {
			return nil, fmt.Errorf("run did not finish within %s (last status %s)", l.RunTimeout, run.Status)
		}
		if st.Progress < 50 {
			st.setProgress(st.Progress + 5)
			l.save(ctx, *st)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.PollInterval):
		}
	}
}

func (l *Loader) readDataset(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for offset := 0; ; offset += datasetPageSize {
		items, err := l.client.DatasetItems(ctx, datasetID, offset, datasetPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < datasetPageSize {
			return all, nil
		}
	}
}

func (l *Loader) fail(ctx context.Context, st LoadStatus, err error) LoadStatus {
	l.log.WithFields(logrus.Fields{"runId": st.RunID, "actor": st.ActorName}).
		WithError(err).Error("load failed")
	st.Errors = append(st.Errors, err.Error())
	if !IsTerminal(st.Status) {
		st.Status = StatusFailed
	}
	done := l.now()
	st.CompletedAt = &done
	l.save(ctx, st)
	return st
}

// save writes st even when ctx is already cancelled, so a shutdown still
// leaves the final state readable.
func (l *Loader) save(ctx context.Context, st LoadStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := l.statuses.Save(ctx, st); err != nil {
		l.log.WithField("runId", st.RunID).WithError(err).Warn("could not save load status")
	}
}

// Status returns the current status of a run.
func (l *Loader) Status(ctx context.Context, runID string) (LoadStatus, error) {
	return l.statuses.Get(ctx, runID)
}

// List returns all live load statuses, newest first.
func (l *Loader) List(ctx context.Context) ([]LoadStatus, error) {
	return l.statuses.List(ctx)
}

// Close cancels in-flight loads and waits for their goroutines.
func (l *Loader) Close() {
	l.cancel()
	l.wg.Wait()
}

// Wait blocks until every background load has returned.
func (l *Loader) Wait() {
	l.wg.Wait()
}

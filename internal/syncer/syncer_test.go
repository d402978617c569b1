package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/batch"
	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/source"
	"jobmate/aggregator-service/internal/store"
	"jobmate/aggregator-service/internal/syncer"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var errNetwork = errors.New("connection reset by peer")

// fakeFetcher serves pages from a function and records every request.
type fakeFetcher struct {
	name  model.Source
	rate  time.Duration
	pages func(call int, p model.FetchParams) ([]model.Job, error)
	// pagesCtx replaces pages for fetchers that need ctx, e.g. to throttle.
	pagesCtx func(ctx context.Context, call int, p model.FetchParams) ([]model.Job, error)

	mu    sync.Mutex
	calls []model.FetchParams
}

func (f *fakeFetcher) Name() model.Source       { return f.name }
func (f *fakeFetcher) RateLimit() time.Duration { return f.rate }

func (f *fakeFetcher) Fetch(ctx context.Context, p model.FetchParams) ([]model.Job, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, p)
	f.mu.Unlock()
	if f.pagesCtx != nil {
		return f.pagesCtx(ctx, call, p)
	}
	return f.pages(call, p)
}

func (f *fakeFetcher) limits() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Limit
	}
	return out
}

func jobsFor(src model.Source, page, n int, published *time.Time) []model.Job {
	jobs := make([]model.Job, n)
	for i := range jobs {
		id := fmt.Sprintf("p%d_%d", page, i)
		jobs[i] = model.Job{
			ID:          model.JobID(src, id),
			ExternalID:  id,
			Source:      src,
			Title:       "Engineer " + id,
			Company:     "Acme",
			PublishedAt: published,
		}
	}
	return jobs
}

// endless always returns a full page.
func endless(src model.Source) func(int, model.FetchParams) ([]model.Job, error) {
	return func(_ int, p model.FetchParams) ([]model.Job, error) {
		return jobsFor(src, p.Page, p.Limit, nil), nil
	}
}

func failing(int, model.FetchParams) ([]model.Job, error) { return nil, errNetwork }

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (r *recordingPublisher) Publish(_ context.Context, channel string, _ any) {
	r.mu.Lock()
	r.channels = append(r.channels, channel)
	r.mu.Unlock()
}

type harness struct {
	syncer *syncer.Syncer
	mem    *store.MemoryStore
	sleeps []time.Duration
	pub    *recordingPublisher
}

func newHarness(fetchers ...source.Fetcher) *harness {
	h := &harness{mem: store.NewMemoryStore(), pub: &recordingPublisher{}}
	h.syncer = syncer.New(source.NewRegistry(fetchers...), batch.NewProcessor(h.mem, quietLogger()), h.pub, quietLogger())
	h.syncer.Sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func equalInts(a, b []int) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// ── Pagination ─────────────────────────────────────────────────────────────

func TestSyncSource_StopsAtMaxJobs(t *testing.T) {
	f := &fakeFetcher{name: model.SourceArbeitnow, pages: endless(model.SourceArbeitnow)}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceArbeitnow, MaxJobs: 250})

	if !res.Success || res.JobsFetched != 250 || res.JobsCreated != 250 {
		t.Fatalf("result = %+v", res)
	}
	if got := f.limits(); !equalInts(got, []int{100, 100, 50}) {
		t.Errorf("requested limits = %v, want [100 100 50]", got)
	}
	if h.mem.Len() != 250 {
		t.Errorf("store holds %d jobs, want 250", h.mem.Len())
	}
}

func TestSyncSource_StopsOnShortPage(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		if call == 0 {
			return jobsFor(model.SourceRemotive, p.Page, p.Limit, nil), nil
		}
		return jobsFor(model.SourceRemotive, p.Page, 30, nil), nil
	}}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})
	if res.JobsFetched != 130 || len(f.limits()) != 2 {
		t.Errorf("fetched %d in %d calls, want 130 in 2", res.JobsFetched, len(f.limits()))
	}
}

func TestSyncSource_StopsOnEmptyPage(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		if call < 2 {
			return jobsFor(model.SourceRemotive, p.Page, p.Limit, nil), nil
		}
		return nil, nil
	}}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})
	if res.JobsFetched != 200 || len(f.limits()) != 3 {
		t.Errorf("fetched %d in %d calls, want 200 in 3", res.JobsFetched, len(f.limits()))
	}
}

func TestSyncSource_PagesAreOneBased(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: endless(model.SourceRemotive)}
	h := newHarness(f)
	h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive, MaxJobs: 300})

	for i, c := range f.calls {
		if c.Page != i+1 {
			t.Errorf("call %d requested page %d, want %d", i, c.Page, i+1)
		}
	}
}

// ── Incremental window ─────────────────────────────────────────────────────

func TestSyncSource_IncrementalFiltersAndStops(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-12 * time.Hour)
	old := now.AddDate(0, 0, -10)

	f := &fakeFetcher{name: model.SourceHimalayas, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		if call == 0 {
			var jobs []model.Job
			jobs = append(jobs, jobsFor(model.SourceHimalayas, 1, 60, &recent)...)
			jobs = append(jobs, jobsFor(model.SourceHimalayas, 2, 20, nil)...) // undated
			jobs = append(jobs, jobsFor(model.SourceHimalayas, 3, 20, &old)...)
			return jobs, nil
		}
		return jobsFor(model.SourceHimalayas, 4, p.Limit, &old), nil
	}}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{
		Source: model.SourceHimalayas, Incremental: true, SinceDays: 2, MaxJobs: 100,
	})

	if res.JobsFetched != 80 {
		t.Errorf("JobsFetched = %d, want 80 (60 recent + 20 undated)", res.JobsFetched)
	}
	if got := f.limits(); !equalInts(got, []int{100, 20}) {
		t.Errorf("requested limits = %v, want [100 20]", got)
	}
	if _, ok := h.mem.Get(model.SourceHimalayas, "p3_0"); ok {
		t.Error("job outside the window was stored")
	}
	if _, ok := h.mem.Get(model.SourceHimalayas, "p2_0"); !ok {
		t.Error("undated job should be kept")
	}
}

// ── Retries ────────────────────────────────────────────────────────────────

func TestSyncSource_RetriesWithBackoff(t *testing.T) {
	f := &fakeFetcher{name: model.SourceJobicy, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		if call < 2 {
			return nil, errNetwork
		}
		return jobsFor(model.SourceJobicy, p.Page, 10, nil), nil
	}}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceJobicy})
	if !res.Success || res.JobsFetched != 10 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if fmt.Sprint(h.sleeps) != fmt.Sprint(want) {
		t.Errorf("backoff sleeps = %v, want %v", h.sleeps, want)
	}
	for _, c := range f.calls {
		if c.Page != 1 {
			t.Errorf("retry moved to page %d, want page 1", c.Page)
		}
	}
}

func TestSyncSource_RetryExhaustionKeepsPartialResults(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemoteOK, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		if call == 0 {
			return jobsFor(model.SourceRemoteOK, p.Page, p.Limit, nil), nil
		}
		return nil, errNetwork
	}}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemoteOK})

	if !res.Success {
		t.Fatalf("partial sync should succeed: %+v", res)
	}
	if res.JobsFetched != 100 || res.JobsCreated != 100 {
		t.Errorf("fetched=%d created=%d, want 100/100", res.JobsFetched, res.JobsCreated)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], errNetwork.Error()) {
		t.Errorf("Errors = %v, want the exhausted page error", res.Errors)
	}
	if n := len(f.limits()); n != 1+1+syncer.MaxRetries {
		t.Errorf("fetch calls = %d, want %d", n, 1+1+syncer.MaxRetries)
	}
}

// The retry budget is per call, not per page.
func TestSyncSource_RetryBudgetIsShared(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemoteOK, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		switch call {
		case 0, 2, 4: // page 1 fails, page 2 fails, page 3 fails
			return nil, errNetwork
		}
		return jobsFor(model.SourceRemoteOK, p.Page, p.Limit, nil), nil
	}}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemoteOK})
	if res.JobsFetched != 200 {
		t.Errorf("JobsFetched = %d, want 200", res.JobsFetched)
	}
	if len(h.sleeps) != syncer.MaxRetries {
		t.Errorf("slept %d times, want %d", len(h.sleeps), syncer.MaxRetries)
	}
}

// ── Failure results ────────────────────────────────────────────────────────

func TestSyncSource_AlwaysFailingSource(t *testing.T) {
	f := &fakeFetcher{name: model.SourceFindWork, pages: failing}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceFindWork})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], errNetwork.Error()) {
		t.Errorf("Errors = %v", res.Errors)
	}
	if res.JobsFetched != 0 || res.JobsCreated != 0 {
		t.Errorf("counts should be zero: %+v", res)
	}
}

func TestSyncSource_UnknownSource(t *testing.T) {
	h := newHarness()
	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: "monster"})
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "unknown source") {
		t.Errorf("Errors = %v", res.Errors)
	}
	if res.RunID == "" {
		t.Error("RunID should be set even on failure")
	}
}

func TestSyncSource_ZeroJobs(t *testing.T) {
	f := &fakeFetcher{name: model.SourceTheMuse, pages: func(int, model.FetchParams) ([]model.Job, error) { return nil, nil }}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceTheMuse})
	if !res.Success || res.JobsFetched != 0 || res.JobsCreated != 0 || res.JobsUpdated != 0 || res.JobsSkipped != 0 {
		t.Errorf("result = %+v, want trivial success", res)
	}
}

func TestSyncSource_CountsSkippedDuplicates(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: func(int, model.FetchParams) ([]model.Job, error) {
		jobs := jobsFor(model.SourceRemotive, 1, 3, nil)
		dup := jobs[0]
		dup.ExternalID, dup.ID = "other", model.JobID(model.SourceRemotive, "other")
		dup.Title = strings.ToUpper(dup.Title) + "!"
		return append(jobs, dup), nil
	}}
	h := newHarness(f)

	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})
	if res.JobsFetched != 4 || res.JobsSkipped != 1 || res.JobsCreated != 3 {
		t.Errorf("fetched=%d skipped=%d created=%d, want 4/1/3", res.JobsFetched, res.JobsSkipped, res.JobsCreated)
	}
}

func TestSyncSource_SecondRunUpdates(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: func(int, model.FetchParams) ([]model.Job, error) {
		return jobsFor(model.SourceRemotive, 1, 5, nil), nil
	}}
	h := newHarness(f)

	h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})
	res := h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})
	if res.JobsCreated != 0 || res.JobsUpdated != 5 {
		t.Errorf("created=%d updated=%d, want 0/5", res.JobsCreated, res.JobsUpdated)
	}
}

func TestSyncSource_CancelledContext(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: endless(model.SourceRemotive)}
	h := newHarness(f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.rate = time.Hour
	res := h.syncer.SyncSource(ctx, syncer.Options{Source: model.SourceRemotive})
	if res.Success {
		t.Error("Success = true for a cancelled sync")
	}
	if len(f.limits()) != 0 {
		t.Errorf("fetcher called %d times after cancellation", len(f.limits()))
	}
}

func TestSyncSource_HonorsRateLimit(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, rate: 40 * time.Millisecond, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		if call == 0 {
			return jobsFor(model.SourceRemotive, p.Page, p.Limit, nil), nil
		}
		return nil, nil
	}}
	h := newHarness(f)

	start := time.Now()
	h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})
	// One wait before the first call and one between the two calls.
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("elapsed %v, want at least two rate-limit delays", elapsed)
	}
}

// A fetcher that issues two HTTP requests per Fetch must space them with the
// same limiter that spaces Fetch calls.
func TestSyncSource_RateLimitCoversRequestsInsideFetch(t *testing.T) {
	const gap = 30 * time.Millisecond
	var (
		mu    sync.Mutex
		stamp []time.Time
	)
	request := func() {
		mu.Lock()
		stamp = append(stamp, time.Now())
		mu.Unlock()
	}
	f := &fakeFetcher{name: model.SourceTheMuse, rate: gap}
	f.pagesCtx = func(ctx context.Context, call int, p model.FetchParams) ([]model.Job, error) {
		request()
		if err := p.Throttle(ctx); err != nil {
			return nil, err
		}
		request()
		if call == 0 {
			return jobsFor(model.SourceTheMuse, p.Page, p.Limit, nil), nil
		}
		return nil, nil
	}
	h := newHarness(f)
	h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceTheMuse})

	if len(stamp) != 4 {
		t.Fatalf("requests = %d, want 4", len(stamp))
	}
	// Allow a little timer slack below the declared gap.
	for i := 1; i < len(stamp); i++ {
		if d := stamp[i].Sub(stamp[i-1]); d < gap-5*time.Millisecond {
			t.Errorf("request %d followed request %d after %v, want at least %v", i, i-1, d, gap)
		}
	}
}

// rollbackStore reports the rows it scanned before failing, as a batch
// driver does, although the transaction stored none of them.
type rollbackStore struct{ *store.MemoryStore }

func (rollbackStore) UpsertJobs(_ context.Context, jobs []model.Job) (int, int, error) {
	return len(jobs) - 1, 0, errors.New("duplicate key value violates unique constraint")
}

func TestSyncSource_RolledBackUpsertIsFailure(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: func(call int, p model.FetchParams) ([]model.Job, error) {
		return jobsFor(model.SourceRemotive, p.Page, 30, nil), nil
	}}
	s := syncer.New(source.NewRegistry(f), batch.NewProcessor(rollbackStore{store.NewMemoryStore()}, quietLogger()), nil, quietLogger())

	res := s.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})
	if res.Success {
		t.Error("Success = true although nothing was stored")
	}
	if res.JobsCreated != 0 || res.JobsUpdated != 0 {
		t.Errorf("created/updated = %d/%d, want 0/0", res.JobsCreated, res.JobsUpdated)
	}
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestSyncSource_PublishesEvent(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: failing}
	h := newHarness(f)
	h.syncer.SyncSource(context.Background(), syncer.Options{Source: model.SourceRemotive})

	if len(h.pub.channels) != 1 || h.pub.channels[0] != "EVENT_JOBS_SYNCED" {
		t.Errorf("published %v, want one EVENT_JOBS_SYNCED", h.pub.channels)
	}
}

// ── SyncAllSources / SyncTopSources ────────────────────────────────────────

func TestSyncAllSources_IsolatesFailures(t *testing.T) {
	a := &fakeFetcher{name: model.SourceRemotive, pages: endless(model.SourceRemotive)}
	b := &fakeFetcher{name: model.SourceRemoteOK, pages: failing}
	c := &fakeFetcher{name: model.SourceArbeitnow, pages: endless(model.SourceArbeitnow)}
	h := newHarness(a, b, c)

	results := h.syncer.SyncAllSources(context.Background(), true)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantSuccess := []bool{true, false, true}
	wantSource := []model.Source{model.SourceRemotive, model.SourceRemoteOK, model.SourceArbeitnow}
	for i, r := range results {
		if r.Success != wantSuccess[i] || r.Source != wantSource[i] {
			t.Errorf("results[%d] = %s success=%v, want %s success=%v", i, r.Source, r.Success, wantSource[i], wantSuccess[i])
		}
	}
	if results[1].RunID == results[0].RunID {
		t.Error("each source sync should get its own RunID")
	}
}

func TestSyncAllSources_ModeCaps(t *testing.T) {
	f := &fakeFetcher{name: model.SourceRemotive, pages: endless(model.SourceRemotive)}
	h := newHarness(f)

	inc := h.syncer.SyncAllSources(context.Background(), true)
	if inc[0].JobsFetched != syncer.IncrementalMaxJobs {
		t.Errorf("incremental fetched %d, want %d", inc[0].JobsFetched, syncer.IncrementalMaxJobs)
	}

	full := h.syncer.SyncAllSources(context.Background(), false)
	if full[0].JobsFetched != syncer.DefaultMaxJobs {
		t.Errorf("full fetched %d, want %d", full[0].JobsFetched, syncer.DefaultMaxJobs)
	}
}

func TestSyncTopSources(t *testing.T) {
	var fetchers []source.Fetcher
	byName := map[model.Source]*fakeFetcher{}
	for _, name := range append([]model.Source{model.SourceUSAJobs}, syncer.TopSources...) {
		f := &fakeFetcher{name: name, pages: endless(name)}
		byName[name] = f
		fetchers = append(fetchers, f)
	}
	h := newHarness(fetchers...)

	results := h.syncer.SyncTopSources(context.Background())
	if len(results) != len(syncer.TopSources) {
		t.Fatalf("got %d results, want %d", len(results), len(syncer.TopSources))
	}
	for i, r := range results {
		if r.Source != syncer.TopSources[i] {
			t.Errorf("results[%d].Source = %s, want %s", i, r.Source, syncer.TopSources[i])
		}
		if r.JobsFetched != syncer.TopSourcesMaxJobs {
			t.Errorf("%s fetched %d, want %d", r.Source, r.JobsFetched, syncer.TopSourcesMaxJobs)
		}
	}
	if n := len(byName[model.SourceUSAJobs].limits()); n != 0 {
		t.Errorf("non-top source fetched %d times", n)
	}
}

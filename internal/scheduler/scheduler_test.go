package scheduler_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/model"
	"jobmate/aggregator-service/internal/scheduler"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeSyncer struct {
	mu   sync.Mutex
	top  int
	all  []bool
	done chan struct{}
}

func (f *fakeSyncer) SyncTopSources(context.Context) []model.SyncResult {
	f.mu.Lock()
	f.top++
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return []model.SyncResult{{Source: model.SourceRemotive, Success: true}}
}

func (f *fakeSyncer) SyncAllSources(_ context.Context, incremental bool) []model.SyncResult {
	f.mu.Lock()
	f.all = append(f.all, incremental)
	f.mu.Unlock()
	return []model.SyncResult{{Source: model.SourceRemoteOK, Success: false}}
}

type fakeMaintainer struct {
	staleDays, expireDays []int
	staleErr              error
}

func (f *fakeMaintainer) MarkStaleJobs(_ context.Context, days int) (int64, error) {
	f.staleDays = append(f.staleDays, days)
	return 3, f.staleErr
}

func (f *fakeMaintainer) CleanupExpiredJobs(_ context.Context, days int) (int64, error) {
	f.expireDays = append(f.expireDays, days)
	return 1, nil
}

var specs = scheduler.Specs{Incremental: "@every 2h", Full: "0 3 * * *", Maintenance: "30 4 * * *"}

// ── Start / Stop ───────────────────────────────────────────────────────────

func TestStart_RegistersJobs(t *testing.T) {
	s := scheduler.New(&fakeSyncer{}, &fakeMaintainer{}, specs, scheduler.Options{}, quietLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if n := s.Entries(); n != 3 {
		t.Errorf("Entries = %d, want 3", n)
	}
}

func TestStart_InvalidSpec(t *testing.T) {
	bad := specs
	bad.Full = "at midnight"
	s := scheduler.New(&fakeSyncer{}, &fakeMaintainer{}, bad, scheduler.Options{}, quietLogger())
	if err := s.Start(context.Background()); err == nil {
		s.Stop()
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestStart_RunOnStart(t *testing.T) {
	fs := &fakeSyncer{done: make(chan struct{})}
	s := scheduler.New(fs, &fakeMaintainer{}, specs, scheduler.Options{RunOnStart: true}, quietLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	select {
	case <-fs.done:
	case <-time.After(2 * time.Second):
		t.Fatal("incremental sync did not run on start")
	}
}

// ── Job bodies ─────────────────────────────────────────────────────────────

func TestRunFull_IsNotIncremental(t *testing.T) {
	fs := &fakeSyncer{}
	s := scheduler.New(fs, &fakeMaintainer{}, specs, scheduler.Options{}, quietLogger())
	s.RunFull(context.Background())

	if len(fs.all) != 1 || fs.all[0] {
		t.Errorf("SyncAllSources calls = %v, want [false]", fs.all)
	}
}

func TestRunMaintenance_PassesThresholds(t *testing.T) {
	fm := &fakeMaintainer{}
	s := scheduler.New(&fakeSyncer{}, fm, specs, scheduler.Options{StaleAfterDays: 45, ExpireAfterDays: 120}, quietLogger())
	s.RunMaintenance(context.Background())

	if len(fm.staleDays) != 1 || fm.staleDays[0] != 45 {
		t.Errorf("MarkStaleJobs days = %v, want [45]", fm.staleDays)
	}
	if len(fm.expireDays) != 1 || fm.expireDays[0] != 120 {
		t.Errorf("CleanupExpiredJobs days = %v, want [120]", fm.expireDays)
	}
}

// A failed stale pass must not skip the cleanup pass.
func TestRunMaintenance_ContinuesAfterError(t *testing.T) {
	fm := &fakeMaintainer{staleErr: errors.New("db down")}
	s := scheduler.New(&fakeSyncer{}, fm, specs, scheduler.Options{}, quietLogger())
	s.RunMaintenance(context.Background())

	if len(fm.expireDays) != 1 {
		t.Error("cleanup did not run after mark-stale failed")
	}
}

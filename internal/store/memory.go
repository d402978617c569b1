package store

import (
	"context"
	"sync"
	"time"

	"jobmate/aggregator-service/internal/model"
)

// StoredJob is a job row plus the bookkeeping columns the sync owns.
type StoredJob struct {
	model.Job
	SyncStatus   model.SyncStatus
	IsActive     bool
	ViewCount    int
	LastSyncedAt *time.Time
	SavedBy      int
	Applications int
}

// MemoryStore is a mutex-guarded Store keyed by (source, external id).
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*StoredJob
	now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*StoredJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func memKey(source model.Source, externalID string) string {
	return string(source) + "\x00" + externalID
}

func (m *MemoryStore) UpsertJobs(_ context.Context, jobs []model.Job) (created, updated int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, j := range jobs {
		key := memKey(j.Source, j.ExternalID)
		if row, ok := m.jobs[key]; ok {
			j.CreatedAt = row.CreatedAt
			j.UpdatedAt = now
			row.Job = j
			row.LastSyncedAt = &now
			row.SyncStatus = model.SyncStatusActive
			updated++
			continue
		}
		j.CreatedAt, j.UpdatedAt = now, now
		m.jobs[key] = &StoredJob{
			Job:          j,
			SyncStatus:   model.SyncStatusActive,
			IsActive:     true,
			LastSyncedAt: &now,
		}
		created++
	}
	return created, updated, nil
}

func (m *MemoryStore) MarkStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, row := range m.jobs {
		if row.SyncStatus == model.SyncStatusActive && publishedBefore(row.Job, cutoff) {
			row.SyncStatus = model.SyncStatusStale
			row.UpdatedAt = m.now()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, row := range m.jobs {
		if row.SyncStatus != model.SyncStatusStale || !publishedBefore(row.Job, cutoff) {
			continue
		}
		if row.SavedBy > 0 || row.Applications > 0 {
			continue
		}
		delete(m.jobs, key)
		n++
	}
	return n, nil
}

// publishedBefore treats a missing date like SQL NULL: never before anything.
func publishedBefore(j model.Job, cutoff time.Time) bool {
	return j.PublishedAt != nil && j.PublishedAt.Before(cutoff)
}

// Get returns a copy of the stored row.
func (m *MemoryStore) Get(source model.Source, externalID string) (StoredJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.jobs[memKey(source, externalID)]
	if !ok {
		return StoredJob{}, false
	}
	return *row, true
}

// Len returns the number of stored jobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Put writes a row as-is, bypassing upsert bookkeeping.
func (m *MemoryStore) Put(row StoredJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[memKey(row.Source, row.ExternalID)] = &row
}

// AddSave records a user save against a stored job.
func (m *MemoryStore) AddSave(source model.Source, externalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.jobs[memKey(source, externalID)]
	if ok {
		row.SavedBy++
	}
	return ok
}

// AddApplication records a user application against a stored job.
func (m *MemoryStore) AddApplication(source model.Source, externalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.jobs[memKey(source, externalID)]
	if ok {
		row.Applications++
	}
	return ok
}

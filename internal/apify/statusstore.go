package apify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusTTL is how long a load status stays readable after its last write.
const StatusTTL = time.Hour

// ErrNotFound is returned for a run id with no (live) status.
var ErrNotFound = errors.New("load status not found")

// StatusStore keeps load statuses keyed by run id.
type StatusStore interface {
	Save(ctx context.Context, s LoadStatus) error
	Get(ctx context.Context, runID string) (LoadStatus, error)
	// List returns live statuses, most recently started first.
	List(ctx context.Context) ([]LoadStatus, error)
}

// ─── Memory ──────────────────────────────────────────────────────────────────

type memEntry struct {
	status  LoadStatus
	savedAt time.Time
}

// MemoryStatusStore is a process-local StatusStore. Entries older than the
// TTL are hidden on read and dropped by Sweep.
type MemoryStatusStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStatusStore returns an empty store with StatusTTL.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{
		entries: make(map[string]memEntry),
		ttl:     StatusTTL,
		now:     time.Now,
	}
}

func (m *MemoryStatusStore) Save(_ context.Context, s LoadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Errors = append([]string(nil), s.Errors...)
	m.entries[s.RunID] = memEntry{status: s, savedAt: m.now()}
	return nil
}

func (m *MemoryStatusStore) Get(_ context.Context, runID string) (LoadStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[runID]
	if !ok || m.expired(e) {
		return LoadStatus{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return e.status, nil
}

func (m *MemoryStatusStore) List(_ context.Context) ([]LoadStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LoadStatus, 0, len(m.entries))
	for _, e := range m.entries {
		if !m.expired(e) {
			out = append(out, e.status)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryStatusStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// SetClock replaces the store's time source.
func (m *MemoryStatusStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStatusStore) expired(e memEntry) bool {
	return m.now().Sub(e.savedAt) > m.ttl
}

// ─── Redis ───────────────────────────────────────────────────────────────────

const redisKeyPrefix = "aggregator:apify:load:"

// RedisStatusStore keeps each status as a JSON string with a TTL, plus a
// sorted set of run ids scored by start time for listing.
type RedisStatusStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStatusStore wraps an already-verified client.
func NewRedisStatusStore(rdb redis.Cmdable) *RedisStatusStore {
	return &RedisStatusStore{rdb: rdb, ttl: StatusTTL}
}

func statusKey(runID string) string { return redisKeyPrefix + runID }

func indexKey() string { return redisKeyPrefix + "index" }

func (r *RedisStatusStore) Save(ctx context.Context, s LoadStatus) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal load status: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, statusKey(s.RunID), b, r.ttl)
		p.ZAdd(ctx, indexKey(), redis.Z{Score: float64(s.StartedAt.UnixMilli()), Member: s.RunID})
		p.Expire(ctx, indexKey(), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save load status %s: %w", s.RunID, err)
	}
	return nil
}

func (r *RedisStatusStore) Get(ctx context.Context, runID string) (LoadStatus, error) {
	b, err := r.rdb.Get(ctx, statusKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return LoadStatus{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return LoadStatus{}, fmt.Errorf("get load status %s: %w", runID, err)
	}
	var s LoadStatus
	if err := json.Unmarshal(b, &s); err != nil {
		return LoadStatus{}, fmt.Errorf("decode load status %s: %w", runID, err)
	}
	return s, nil
}

func (r *RedisStatusStore) List(ctx context.Context) ([]LoadStatus, error) {
	ids, err := r.rdb.ZRevRange(ctx, indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list load statuses: %w", err)
	}
	if len(ids) == 0 {
		return []LoadStatus{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = statusKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list load statuses: %w", err)
	}

	out := make([]LoadStatus, 0, len(vals))
	var gone []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			gone = append(gone, ids[i])
			continue
		}
		var s LoadStatus
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	// Expired keys leave their ids behind in the index.
	if len(gone) > 0 {
		r.rdb.ZRem(ctx, indexKey(), gone...)
	}
	return out, nil
}

func sortNewestFirst(s []LoadStatus) {
	sort.Slice(s, func(i, j int) bool { return s[i].StartedAt.After(s[j].StartedAt) })
}

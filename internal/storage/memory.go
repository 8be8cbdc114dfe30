package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"skywatch/internal/astro"
)

type memoryValue struct {
	value []byte
	exp   time.Time
}

// Memory is a process-local implementation of the storage interfaces, used when no database is
// configured and in tests. Values are copied on the way in and out.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	values  map[string]memoryValue
	history map[string][]HistoryEntry
	charts  map[string]astro.Chart
	users   map[string]struct{}
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:     func() time.Time { return time.Now().UTC() },
		values:  make(map[string]memoryValue),
		history: make(map[string][]HistoryEntry),
		charts:  make(map[string]astro.Chart),
		users:   make(map[string]struct{}),
	}
}

// WithClock overrides the clock used for TTL evaluation.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Get implements KeyValueStore.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(v.exp) {
		delete(m.values, key)
		return nil, false, nil
	}
	return append([]byte(nil), v.value...), true, nil
}

// Set implements KeyValueStore.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = memoryValue{value: append([]byte(nil), value...), exp: m.now().Add(ttl)}
	return nil
}

// PurgeExpired implements ExpiredPurger.
func (m *Memory) PurgeExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var purged int64
	for k, v := range m.values {
		if !now.Before(v.exp) {
			delete(m.values, k)
			purged++
		}
	}
	return purged, nil
}

func historyKey(userID, module string) string { return userID + "\x00" + module }

// AppendAndTrim implements HistoryStore.
func (m *Memory) AppendAndTrim(ctx context.Context, entry HistoryEntry, retention time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := historyKey(entry.UserID, entry.Module)
	entries := append(m.history[key], entry)
	cutoff := m.now().Add(-retention)
	kept := entries[:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	m.history[key] = kept
	return nil
}

// ListHistoryBetween implements HistoryStore.
func (m *Memory) ListHistoryBetween(ctx context.Context, userID, module string, from, to time.Time) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]HistoryEntry, 0)
	for _, e := range m.history[historyKey(userID, module)] {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListRecentHistory implements HistoryStore.
func (m *Memory) ListRecentHistory(ctx context.Context, userID, module string, limit int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.history[historyKey(userID, module)]
	out := make([]HistoryEntry, len(src))
	copy(out, src)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ReferenceChart implements ChartStore.
func (m *Memory) ReferenceChart(ctx context.Context, userID, module string) (astro.Chart, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.charts[historyKey(userID, module)]
	if !ok {
		return nil, false, nil
	}
	out := make(astro.Chart, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out, true, nil
}

// UpsertReferenceChart implements ChartWriter.
func (m *Memory) UpsertReferenceChart(ctx context.Context, userID, module string, chart astro.Chart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := make(astro.Chart, len(chart))
	for k, v := range chart {
		c[k] = v
	}
	m.charts[historyKey(userID, module)] = c
	m.users[userID] = struct{}{}
	return nil
}

// ListUserIDs implements UserLister.
func (m *Memory) ListUserIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.users))
	for id := range m.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ KeyValueStore = (*Memory)(nil)
	_ HistoryStore  = (*Memory)(nil)
	_ ChartStore    = (*Memory)(nil)
	_ ChartWriter   = (*Memory)(nil)
	_ UserLister    = (*Memory)(nil)
	_ ExpiredPurger = (*Memory)(nil)
	_ Backend       = (*Memory)(nil)
)

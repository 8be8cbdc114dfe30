package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skywatch/internal/astro"
	"skywatch/internal/metrics"
	"skywatch/internal/storage"
	"skywatch/internal/tracking"
)

// countingModule records fetches per user and fails for a chosen user.
type countingModule struct {
	failUser string

	mu       sync.Mutex
	perUser  map[string]int
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newCountingModule(failUser string) *countingModule {
	return &countingModule{failUser: failUser, perUser: map[string]int{}}
}

func (m *countingModule) Name() string            { return "probe" }
func (m *countingModule) Interval() time.Duration { return time.Minute }

func (m *countingModule) Fetch(_ context.Context, at time.Time) (tracking.Snapshot, error) {
	return tracking.NewSnapshot(at, "test", map[string]any{"ok": true})
}

func (m *countingModule) Detect(tracking.Snapshot, *tracking.Snapshot) []tracking.Event { return nil }

func (m *countingModule) Compare(_ context.Context, userID string, _ tracking.Snapshot) (json.RawMessage, []tracking.Event, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	m.perUser[userID]++
	m.mu.Unlock()

	if userID == m.failUser {
		return nil, nil, errors.New("chart store down")
	}
	return json.RawMessage(`{}`), nil, nil
}

func (m *countingModule) calls(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perUser[userID]
}

func userList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user-%02d", i)
	}
	return out
}

func newTestService(t *testing.T, module tracking.Module, store storage.UserLister, opts Options) *Service {
	t.Helper()
	mem := storage.NewMemory()
	tracker := tracking.NewTracker(module, tracking.Deps{Cache: mem, History: mem}, tracking.Options{}, zerolog.Nop())
	return New(opts, nil, tracking.NewRegistry(tracker), store, metrics.New(), zerolog.Nop())
}

func TestRefreshAllIsolatesFailuresAndBatches(t *testing.T) {
	module := newCountingModule("user-07")
	svc := newTestService(t, module, nil, Options{})

	users := userList(23)
	report := svc.RefreshAll(context.Background(), users)

	assert.Equal(t, Report{Users: 23, Succeeded: 22, Failed: 1}, report)
	for _, u := range users {
		assert.Equal(t, 1, module.calls(u), u)
	}
	assert.LessOrEqual(t, module.peak.Load(), int32(defaultBatchSize))
	assert.Greater(t, module.peak.Load(), int32(1))
}

func TestRefreshUserJoinsModuleErrors(t *testing.T) {
	svc := newTestService(t, newCountingModule("bad"), nil, Options{})

	err := svc.RefreshUser(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update probe")
	assert.Contains(t, err.Error(), "chart store down")
}

func TestSweepUsesStoreUsers(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	for _, u := range []string{"ann", "bob"} {
		require.NoError(t, mem.UpsertReferenceChart(ctx, u, "natal", astro.Chart{astro.Sun: {Sign: "Aries", Longitude: 10}}))
	}

	module := newCountingModule("")
	svc := newTestService(t, module, mem, Options{})
	require.NoError(t, svc.Sweep(ctx, time.Now()))

	assert.Equal(t, 1, module.calls("ann"))
	assert.Equal(t, 1, module.calls("bob"))
}

func TestSweepPrefersConfiguredUsers(t *testing.T) {
	mem := storage.NewMemory()
	require.NoError(t, mem.UpsertReferenceChart(context.Background(), "ann", "natal", astro.Chart{}))

	module := newCountingModule("")
	svc := newTestService(t, module, mem, Options{Users: []string{"carol"}})
	require.NoError(t, svc.Sweep(context.Background(), time.Now()))

	assert.Equal(t, 0, module.calls("ann"))
	assert.Equal(t, 1, module.calls("carol"))
}

type lockedStore struct {
	*storage.Memory
	acquired bool
	err      error
	unlocked bool
}

func (l *lockedStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.unlocked = true }, true, nil
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	store := &lockedStore{Memory: storage.NewMemory()}
	module := newCountingModule("")
	svc := newTestService(t, module, store, Options{Users: []string{"ann"}, LockKey: 42})

	require.NoError(t, svc.Sweep(context.Background(), time.Now()))
	assert.Equal(t, 0, module.calls("ann"))
}

func TestSweepReleasesLock(t *testing.T) {
	store := &lockedStore{Memory: storage.NewMemory(), acquired: true}
	module := newCountingModule("")
	svc := newTestService(t, module, store, Options{Users: []string{"ann"}, LockKey: 42})

	require.NoError(t, svc.Sweep(context.Background(), time.Now()))
	assert.Equal(t, 1, module.calls("ann"))
	assert.True(t, store.unlocked)
}

func TestSweepLockError(t *testing.T) {
	store := &lockedStore{Memory: storage.NewMemory(), err: errors.New("pool closed")}
	svc := newTestService(t, newCountingModule(""), store, Options{Users: []string{"ann"}, LockKey: 42})

	err := svc.Sweep(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire advisory lock")
}

func TestRunRequiresScheduler(t *testing.T) {
	svc := newTestService(t, newCountingModule(""), nil, Options{})
	require.Error(t, svc.Run(context.Background()))
}

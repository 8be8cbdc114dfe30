package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skywatch/internal/storage"
	"skywatch/internal/synthesis"
)

type solarFixture struct {
	tracker *Tracker
	weather *fakeWeather
	sink    *fakeSink
	store   *storage.Memory
	clock   *testClock
}

func newSolarFixture(kp float64) solarFixture {
	clock := &testClock{t: testEpoch}
	store := storage.NewMemory().WithClock(clock.now)
	weather := &fakeWeather{kp: kp}
	sink := &fakeSink{}
	module := NewSolarModule(weather, SolarOptions{Interval: 15 * time.Minute}, zerolog.Nop())
	tracker := NewTracker(module, Deps{Cache: store, History: store, Sink: sink}, Options{}, zerolog.Nop()).
		WithClock(clock.now)
	return solarFixture{tracker: tracker, weather: weather, sink: sink, store: store, clock: clock}
}

func TestUpdateIsIdempotentWithinInterval(t *testing.T) {
	f := newSolarFixture(3)
	ctx := context.Background()

	first, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, f.weather.fetches())

	f.clock.advance(5 * time.Minute)
	f.weather.setKp(8)
	second, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.weather.fetches(), "second update within the interval must not fetch")

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestUpdateRefetchesAfterInterval(t *testing.T) {
	f := newSolarFixture(3)
	ctx := context.Background()

	_, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	f.clock.advance(15 * time.Minute)
	res, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.weather.fetches())
	assert.Equal(t, f.clock.t, res.UpdatedAt)
	assert.Equal(t, f.clock.t, res.CurrentData.Timestamp)

	history, err := f.store.ListRecentHistory(ctx, "u1", SolarModuleName, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestKpJumpFiresSolarStorm(t *testing.T) {
	f := newSolarFixture(4)
	ctx := context.Background()

	first, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, first.SignificantEvents)

	f.clock.advance(20 * time.Minute)
	f.weather.setKp(8)
	res, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, res.SignificantEvents, "solar_storm")

	var cmp SolarComparison
	require.NoError(t, json.Unmarshal(res.Comparison, &cmp))
	assert.Equal(t, "high", cmp.SensitivityLevel)
	assert.Equal(t, "G4", cmp.StormLevel)

	require.Len(t, f.sink.calls, 1)
	assert.Equal(t, synthesis.TriggerSolarStorm, f.sink.calls[0].trigger)
	assert.True(t, f.sink.calls[0].background)
	assert.Equal(t, "u1", f.sink.calls[0].userID)
}

func TestRecoveryAfterOutageIsNotAKpRise(t *testing.T) {
	f := newSolarFixture(1)
	ctx := context.Background()

	_, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)

	f.clock.advance(20 * time.Minute)
	f.weather.setErr(errors.New("swpc down"))
	outage, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, fallbackSource, outage.CurrentData.Source)
	assert.Empty(t, outage.SignificantEvents)

	f.clock.advance(20 * time.Minute)
	f.weather.setErr(nil)
	f.weather.setKp(3)
	recovered, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, solarSource, recovered.CurrentData.Source)
	assert.Empty(t, recovered.SignificantEvents)
	assert.Empty(t, f.sink.triggers())
}

func TestUnavailableCacheDoesNotFailUpdate(t *testing.T) {
	clock := &testClock{t: testEpoch}
	history := storage.NewMemory().WithClock(clock.now)
	cache := &brokenCache{}
	weather := &fakeWeather{kp: 3}
	module := NewSolarModule(weather, SolarOptions{Interval: 15 * time.Minute}, zerolog.Nop())
	tracker := NewTracker(module, Deps{Cache: cache, History: history}, Options{}, zerolog.Nop()).WithClock(clock.now)
	ctx := context.Background()

	res, err := tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SolarModuleName, res.Module)
	assert.Equal(t, solarSource, res.CurrentData.Source)

	// Nothing could be cached, so the next update fetches again.
	_, err = tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, weather.fetches())
	assert.Positive(t, cache.reads)
	assert.Positive(t, cache.writes)

	entries, err := history.ListRecentHistory(ctx, "u1", SolarModuleName, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, ok := tracker.LastResult(ctx, "u1")
	assert.False(t, ok)
}

func TestSinkErrorDoesNotFailUpdate(t *testing.T) {
	f := newSolarFixture(8)
	f.sink.err = errors.New("queue unavailable")

	res, err := f.tracker.Update(context.Background(), "u1")
	require.NoError(t, err)
	assert.Contains(t, res.SignificantEvents, "solar_storm")
	assert.Equal(t, []synthesis.Trigger{synthesis.TriggerSolarStorm}, f.sink.triggers())
}

func TestMalformedTimestampFallsThrough(t *testing.T) {
	f := newSolarFixture(2)
	ctx := context.Background()

	_, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, cacheKey(SolarModuleName, "u1", "last_update"), []byte(`"not-a-time"`), time.Hour))

	_, err = f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.weather.fetches())
}

func TestMissingCachedResultForcesFetch(t *testing.T) {
	f := newSolarFixture(2)
	ctx := context.Background()

	require.NoError(t, f.store.Set(ctx, cacheKey(SolarModuleName, "u1", "last_update"), []byte(`"`+testEpoch.Format(time.RFC3339)+`"`), time.Hour))
	_, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.weather.fetches())
}

func TestUsersAreCachedIndependently(t *testing.T) {
	f := newSolarFixture(2)
	ctx := context.Background()

	_, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)
	_, err = f.tracker.Update(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, f.weather.fetches())
}

func TestProviderErrorPropagates(t *testing.T) {
	clock := &testClock{t: testEpoch}
	store := storage.NewMemory().WithClock(clock.now)
	sky := &fakeSky{err: errors.New("ephemeris offline")}
	module := NewLunarModule(sky, store, LunarOptions{}, zerolog.Nop())
	tracker := NewTracker(module, Deps{Cache: store, History: store}, Options{}, zerolog.Nop()).WithClock(clock.now)

	_, err := tracker.Update(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ephemeris offline")

	_, ok := tracker.LastResult(context.Background(), "u1")
	assert.False(t, ok)
}

func TestRegistryUnknownModule(t *testing.T) {
	f := newSolarFixture(1)
	reg := NewRegistry(f.tracker)

	got, err := reg.Get(SolarModuleName)
	require.NoError(t, err)
	assert.Same(t, f.tracker, got)

	_, err = reg.Get("tarot")
	assert.ErrorIs(t, err, ErrUnknownModule)
	assert.Equal(t, []string{SolarModuleName}, reg.Names())
}

func TestResultDigestUsesCachedResults(t *testing.T) {
	f := newSolarFixture(8)
	ctx := context.Background()
	_, err := f.tracker.Update(ctx, "u1")
	require.NoError(t, err)

	digest := NewResultDigest(NewRegistry(f.tracker))
	raw, err := digest.Synthesize(ctx, "u1", synthesis.TriggerSolarStorm)
	require.NoError(t, err)
	assert.Equal(t, 1, f.weather.fetches())

	var d Digest
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.Equal(t, "u1", d.UserID)
	assert.Equal(t, synthesis.TriggerSolarStorm, d.Trigger)
	require.Contains(t, d.Modules, SolarModuleName)
	assert.Equal(t, []string{"solar:solar_storm"}, d.Highlights)
}

func TestEventTriggers(t *testing.T) {
	assert.Equal(t, []synthesis.Trigger{synthesis.TriggerSolarStorm}, SolarStormEvent{}.Triggers())
	assert.Equal(t, []synthesis.Trigger{synthesis.TriggerPhaseChange}, LunarPhaseEvent{}.Triggers())
	assert.Equal(t, []synthesis.Trigger{synthesis.TriggerExactTransit}, ExactTransitEvent{}.Triggers())
	assert.Empty(t, VoidOfCourseEvent{}.Triggers())
}

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

	"skywatch/internal/astro"
	"skywatch/internal/fetcher"
	"skywatch/internal/storage"
	"skywatch/internal/synthesis"
)

func solarSnapshot(t *testing.T, kp float64, xClass bool) Snapshot {
	t.Helper()
	snap, err := NewSnapshot(testEpoch, solarSource, SolarData{KpIndex: kp, HasXClassFlare: xClass, StormLevel: StormLevel(kp)})
	require.NoError(t, err)
	return snap
}

func TestSolarDetect(t *testing.T) {
	m := NewSolarModule(&fakeWeather{}, SolarOptions{}, zerolog.Nop())

	cases := []struct {
		name string
		prev *Snapshot
		cur  Snapshot
		want bool
	}{
		{name: "kp 7 without history", cur: solarSnapshot(t, 7, false), want: true},
		{name: "kp 5 without history", cur: solarSnapshot(t, 5, false)},
		{name: "rise of three", prev: ptr(solarSnapshot(t, 2, false)), cur: solarSnapshot(t, 5, false), want: true},
		{name: "rise of two", prev: ptr(solarSnapshot(t, 4, false)), cur: solarSnapshot(t, 6, false)},
		{name: "x-class flare", cur: solarSnapshot(t, 1, true), want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := m.Detect(tc.cur, tc.prev)
			if tc.want {
				require.Len(t, events, 1)
				assert.Equal(t, "solar_storm", events[0].Tag())
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestSolarFetchFallback(t *testing.T) {
	m := NewSolarModule(&fakeWeather{err: errors.New("swpc down")}, SolarOptions{}, zerolog.Nop())

	snap, err := m.Fetch(context.Background(), testEpoch)
	require.NoError(t, err)
	assert.Equal(t, fallbackSource, snap.Source)
	assert.Equal(t, testEpoch, snap.Timestamp)

	var data SolarData
	require.NoError(t, snap.Decode(&data))
	assert.Zero(t, data.KpIndex)
	assert.False(t, data.IsStorm)
	assert.Empty(t, data.RecentFlares)
	assert.Empty(t, m.Detect(snap, nil))
}

func TestSolarFetchKeepsRecentFlares(t *testing.T) {
	weather := &fakeWeather{kp: 5.33, flares: []fetcher.Flare{
		{Class: "X2.1", PeakTime: testEpoch.Add(-48 * time.Hour)},
		{Class: "C4.0", PeakTime: testEpoch.Add(-6 * time.Hour)},
		{Class: "M1.5", PeakTime: testEpoch.Add(-2 * time.Hour)},
	}}
	m := NewSolarModule(weather, SolarOptions{}, zerolog.Nop())

	snap, err := m.Fetch(context.Background(), testEpoch)
	require.NoError(t, err)

	var data SolarData
	require.NoError(t, snap.Decode(&data))
	assert.Equal(t, 5.33, data.KpIndex)
	assert.Equal(t, "G1", data.StormLevel)
	assert.True(t, data.IsStorm)
	assert.Len(t, data.RecentFlares, 2)
	assert.Equal(t, "M1.5", data.StrongestFlare)
	assert.False(t, data.HasXClassFlare)
}

func TestSensitivityBands(t *testing.T) {
	assert.Equal(t, "low", Sensitivity(3.67))
	assert.Equal(t, "moderate", Sensitivity(4))
	assert.Equal(t, "moderate", Sensitivity(5.67))
	assert.Equal(t, "high", Sensitivity(6))
}

func TestAuroraOutlook(t *testing.T) {
	assert.InDelta(t, 90, GeomagneticLatitude(dipolePoleLat, dipolePoleLon), 1e-6)

	tromso, err := Aurora(69.65, 18.96, 1)
	require.NoError(t, err)
	assert.InDelta(t, 67.4, tromso.GeomagneticLatitude, 1)
	require.NotNil(t, tromso.MinKp)
	assert.Equal(t, 0.0, *tromso.MinKp)
	assert.Equal(t, "likely", tromso.Visibility)

	equator, err := Aurora(0, 0, 9)
	require.NoError(t, err)
	assert.Nil(t, equator.MinKp)
	assert.Equal(t, "very unlikely", equator.Visibility)
	assert.Zero(t, equator.Probability)

	_, err = Aurora(91, 0, 3)
	assert.Error(t, err)
	_, err = Aurora(0, -181, 3)
	assert.Error(t, err)
}

func TestMinKpForAurora(t *testing.T) {
	kp, ok := MinKpForAurora(60.5)
	require.True(t, ok)
	assert.Equal(t, 3.0, kp)

	kp, ok = MinKpForAurora(-62.5)
	require.True(t, ok)
	assert.Equal(t, 2.0, kp)

	_, ok = MinKpForAurora(48.0)
	assert.False(t, ok)
}

func TestFetchLocationAwareUsesLiveKp(t *testing.T) {
	m := NewSolarModule(&fakeWeather{kp: 7}, SolarOptions{}, zerolog.Nop())
	out, err := m.FetchLocationAware(context.Background(), 69.65, 18.96)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out.CurrentKp)
	assert.Equal(t, "G3", out.StormLevel)
	assert.Equal(t, solarSource, out.Source)

	_, err = m.FetchLocationAware(context.Background(), -95, 0)
	assert.Error(t, err)
}

func lunarSnapshot(t *testing.T, phase float64, void bool) Snapshot {
	t.Helper()
	snap, err := NewSnapshot(testEpoch, ephemerisSource, LunarData{
		PhaseAngle:     phase,
		PhaseName:      astro.PhaseName(phase),
		IsNewMoon:      astro.IsNewMoon(phase),
		IsFullMoon:     astro.IsFullMoon(phase),
		IsVoidOfCourse: void,
		MoonSign:       "Aries",
	})
	require.NoError(t, err)
	return snap
}

func TestLunarPhaseCrossingFiresOnce(t *testing.T) {
	m := NewLunarModule(&fakeSky{}, storage.NewMemory(), LunarOptions{}, zerolog.Nop())

	before := lunarSnapshot(t, 179, false)
	after := lunarSnapshot(t, 181, false)
	later := lunarSnapshot(t, 190, false)

	events := m.Detect(after, &before)
	require.Len(t, events, 1)
	assert.Equal(t, LunarPhaseEvent{Phase: "Full Moon"}, events[0])

	assert.Empty(t, m.Detect(later, &after), "phase event must not repeat while the band holds")
	assert.Empty(t, m.Detect(after, nil))
}

func TestLunarVoidTransitionHasNoTrigger(t *testing.T) {
	m := NewLunarModule(&fakeSky{}, storage.NewMemory(), LunarOptions{}, zerolog.Nop())

	prev := lunarSnapshot(t, 100, false)
	cur := lunarSnapshot(t, 101, true)
	events := m.Detect(cur, &prev)
	require.Len(t, events, 1)
	assert.Equal(t, "void_of_course", events[0].Tag())
	assert.Empty(t, events[0].Triggers())
}

func newVoidSky(sunLon float64) *fakeSky {
	lon := map[astro.Body]float64{astro.Moon: 28}
	for _, b := range astro.VoidAspectBodies {
		lon[b] = 100
	}
	lon[astro.Sun] = sunLon
	return &fakeSky{lon: lon, speed: map[astro.Body]float64{astro.Moon: 0.55}, moonDist: 384400}
}

func TestLunarFetchVoidOfCourse(t *testing.T) {
	m := NewLunarModule(newVoidSky(100), storage.NewMemory(), LunarOptions{}, zerolog.Nop())

	snap, err := m.Fetch(context.Background(), testEpoch)
	require.NoError(t, err)
	var data LunarData
	require.NoError(t, snap.Decode(&data))

	assert.Equal(t, "Aries", data.MoonSign)
	assert.True(t, data.IsVoidOfCourse)
	require.NotNil(t, data.NextIngress)
	assert.Equal(t, "Taurus", data.NextSign)
	assert.WithinDuration(t, testEpoch.Add(2*time.Hour*100/55), *data.NextIngress, 2*time.Minute)
}

func TestLunarFetchAspectBeforeIngressIsNotVoid(t *testing.T) {
	// Sun at 149: the Moon trines it at 29 Aries before leaving the sign.
	m := NewLunarModule(newVoidSky(149), storage.NewMemory(), LunarOptions{}, zerolog.Nop())

	snap, err := m.Fetch(context.Background(), testEpoch)
	require.NoError(t, err)
	var data LunarData
	require.NoError(t, snap.Decode(&data))
	assert.False(t, data.IsVoidOfCourse)
}

func TestLunarCompare(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	sky := &fakeSky{lon: map[astro.Body]float64{astro.Sun: 0, astro.Moon: 52}, moonDist: 360000}
	m := NewLunarModule(sky, store, LunarOptions{}, zerolog.Nop())

	snap, err := m.Fetch(ctx, testEpoch)
	require.NoError(t, err)

	raw, events, err := m.Compare(ctx, "u1", snap)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.JSONEq(t, `{"chart_available":false,"message":"no reference chart for lunar comparison yet"}`, string(raw))

	require.NoError(t, store.UpsertReferenceChart(ctx, "u1", "natal", astro.Chart{
		astro.Moon: {Sign: "Taurus", Degree: 20},
	}))
	raw, _, err = m.Compare(ctx, "u1", snap)
	require.NoError(t, err)

	var cmp LunarComparison
	require.NoError(t, json.Unmarshal(raw, &cmp))
	assert.True(t, cmp.ChartAvailable)
	assert.Equal(t, "Taurus", cmp.NatalMoonSign)
	assert.InDelta(t, 2, cmp.Orb, 1e-9)
	assert.True(t, cmp.IsLunarReturn)
	assert.True(t, cmp.SameSign)
	assert.Contains(t, cmp.Insight, "Lunar return")
}

func TestSupermoonScore(t *testing.T) {
	assert.Equal(t, 1.0, SupermoonScore(350000))
	assert.Equal(t, 0.0, SupermoonScore(410000))
	assert.InDelta(t, 0.5, SupermoonScore((apogeeKm+perigeeKm)/2), 1e-9)
}

func TestMatchTransitsOrbs(t *testing.T) {
	chart := astro.Chart{astro.Sun: {Sign: "Aries", Degree: 10, Longitude: 10}}
	positions := map[astro.Body]TransitPosition{
		astro.Saturn: {Longitude: 8.5},
		astro.Mars:   {Longitude: 9.7},
	}

	aspects := MatchTransits(positions, chart)
	require.Len(t, aspects, 2)

	assert.Equal(t, astro.Mars, aspects[0].Transiting)
	assert.Equal(t, "conjunction", aspects[0].Aspect)
	assert.InDelta(t, 0.3, aspects[0].Orb, 1e-9)
	assert.True(t, aspects[0].Exact)

	assert.Equal(t, astro.Saturn, aspects[1].Transiting)
	assert.InDelta(t, 1.5, aspects[1].Orb, 1e-9)
	assert.False(t, aspects[1].Exact)
	assert.Equal(t, "Transiting Saturn conjunction your natal Sun: Saturn intensifies your identity and vitality.", aspects[1].Interpretation)
}

func newTransitSky() *fakeSky {
	lon := make(map[astro.Body]float64, len(astro.MajorBodies))
	for _, b := range astro.MajorBodies {
		lon[b] = 45
	}
	lon[astro.Saturn] = 8.5
	lon[astro.Mars] = 9.7
	return &fakeSky{lon: lon, moonDist: 384400}
}

func TestTransitCompareExactEventsOptIn(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.UpsertReferenceChart(ctx, "u1", "natal", astro.Chart{
		astro.Sun: {Sign: "Aries", Degree: 10, Longitude: 10},
	}))

	quiet := NewTransitModule(newTransitSky(), store, TransitOptions{}, zerolog.Nop())
	snap, err := quiet.Fetch(ctx, testEpoch)
	require.NoError(t, err)
	assert.Empty(t, quiet.Detect(snap, nil))

	raw, events, err := quiet.Compare(ctx, "u1", snap)
	require.NoError(t, err)
	assert.Empty(t, events)

	var cmp TransitComparison
	require.NoError(t, json.Unmarshal(raw, &cmp))
	assert.Equal(t, 2, cmp.TotalAspects)
	assert.Len(t, cmp.ApplyingTransits, 2)
	require.Len(t, cmp.ExactTransits, 1)
	assert.Equal(t, astro.Mars, cmp.ExactTransits[0].Transiting)

	loud := NewTransitModule(newTransitSky(), store, TransitOptions{EmitExactEvents: true}, zerolog.Nop())
	_, events, err = loud.Compare(ctx, "u1", snap)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []synthesis.Trigger{synthesis.TriggerExactTransit}, events[0].Triggers())
}

func TestTransitExactEventReachesSink(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{t: testEpoch}
	store := storage.NewMemory().WithClock(clock.now)
	require.NoError(t, store.UpsertReferenceChart(ctx, "u1", "natal", astro.Chart{
		astro.Sun: {Sign: "Aries", Degree: 10, Longitude: 10},
	}))
	sink := &fakeSink{}
	module := NewTransitModule(newTransitSky(), store, TransitOptions{EmitExactEvents: true}, zerolog.Nop())
	tracker := NewTracker(module, Deps{Cache: store, History: store, Sink: sink}, Options{}, zerolog.Nop()).WithClock(clock.now)

	res, err := tracker.Update(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"exact_transit"}, res.SignificantEvents)
	assert.Equal(t, []synthesis.Trigger{synthesis.TriggerExactTransit}, sink.triggers())
}

func ptr[T any](v T) *T { return &v }

package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skywatch/internal/config"
	"skywatch/internal/ephemeris"
	"skywatch/internal/fetcher"
	"skywatch/internal/synthesis"
	"skywatch/internal/tracking"
)

func newTestRuntime(t *testing.T) (*Runtime, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	weather := fetcher.NewStatic(decimal.NewFromInt(2), time.Now().UTC())
	rt := NewMemoryRuntime(cfg, weather, ephemeris.NewAnalytic(), zerolog.Nop())
	out := &bytes.Buffer{}
	rt.Out = out
	t.Cleanup(rt.Close)
	return rt, out
}

func TestRuntimeRegistersAllModules(t *testing.T) {
	rt, _ := newTestRuntime(t)
	assert.Equal(t, []string{tracking.SolarModuleName, tracking.LunarModuleName, tracking.TransitModuleName}, rt.Registry.Names())
}

func TestSimulateStormStoresSynthesis(t *testing.T) {
	rt, out := newTestRuntime(t)
	ctx := context.Background()

	result, err := rt.SimulateStorm(ctx, SimulateOptions{
		UserID:     "u1",
		BaselineKp: decimal.NewFromInt(2),
		StormKp:    decimal.NewFromInt(8),
	})
	require.NoError(t, err)
	assert.Contains(t, result.SignificantEvents, "solar_storm")
	assert.Contains(t, out.String(), `"solar_storm"`)

	record, state, err := rt.Records.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, synthesis.StateValid, state)
	require.NotNil(t, record)
	assert.Equal(t, synthesis.TriggerSolarStorm, record.Trigger)
}

func TestSimulateStormRejectsOutOfRangeKp(t *testing.T) {
	rt, _ := newTestRuntime(t)
	_, err := rt.SimulateStorm(context.Background(), SimulateOptions{UserID: "u1", StormKp: decimal.NewFromInt(12)})
	require.Error(t, err)
}

func TestTrackUnknownModule(t *testing.T) {
	rt, _ := newTestRuntime(t)
	err := rt.Track(context.Background(), "u1", "tides")
	require.ErrorIs(t, err, tracking.ErrUnknownModule)
}

func TestTrackPrintsEveryModule(t *testing.T) {
	rt, out := newTestRuntime(t)
	require.NoError(t, rt.Track(context.Background(), "u1", ""))
	for _, name := range rt.Registry.Names() {
		assert.Contains(t, out.String(), `"module": "`+name+`"`)
	}
}

func TestBackfillShowAndExport(t *testing.T) {
	rt, out := newTestRuntime(t)
	ctx := context.Background()

	to := time.Now().UTC().Truncate(time.Hour)
	require.NoError(t, rt.Backfill(ctx, BackfillOptions{
		UserID:  "u1",
		Module:  tracking.LunarModuleName,
		From:    to.Add(-6 * time.Hour),
		To:      to,
		Step:    time.Hour,
		Workers: 3,
	}))

	entries, err := rt.Store.ListHistoryBetween(ctx, "u1", tracking.LunarModuleName, to.Add(-7*time.Hour), to)
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	require.NoError(t, rt.Show(ctx, ShowOptions{UserID: "u1", Module: tracking.LunarModuleName, Limit: 3}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Illumination")

	csvPath := filepath.Join(t.TempDir(), "out", "lunar.csv")
	from := to.Add(-7 * time.Hour)
	require.NoError(t, rt.Export(ctx, ExportOptions{
		UserID:  "u1",
		Module:  tracking.LunarModuleName,
		From:    &from,
		To:      &to,
		CSVPath: csvPath,
	}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, []string{"recorded_at", "source", "value", "label"}, rows[0])
	assert.Equal(t, "ephemeris", rows[1][1])
}

func TestBackfillRejectsSolar(t *testing.T) {
	rt, _ := newTestRuntime(t)
	now := time.Now().UTC()
	err := rt.Backfill(context.Background(), BackfillOptions{
		UserID: "u1",
		Module: tracking.SolarModuleName,
		From:   now.Add(-time.Hour),
		To:     now,
	})
	require.Error(t, err)
}

func TestImportChartTriggersSynthesis(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "chart.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sun":{"sign":"Aries","degree":10,"longitude":10},"moon":{"sign":"Cancer","degree":2,"longitude":92}}`), 0o600))

	require.NoError(t, rt.ImportChart(ctx, "u1", path))
	rt.Orchestrator.Wait()

	chart, found, err := rt.Store.ReferenceChart(ctx, "u1", rt.Config.Tracking.ReferenceModule)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, chart, 2)

	_, state, err := rt.Records.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, synthesis.StateValid, state)
}

func TestUpcomingClampsDays(t *testing.T) {
	rt, out := newTestRuntime(t)
	require.NoError(t, rt.Upcoming(context.Background(), "u1", 0))
	assert.Contains(t, out.String(), `"days": 7`)
}

func TestDownsample(t *testing.T) {
	points := make([]seriesPoint, 10)
	for i := range points {
		points[i] = seriesPoint{Value: float64(i)}
	}
	got := downsample(points, 4)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0].Value)
	assert.Equal(t, 9.0, got[3].Value)
	assert.Len(t, downsample(points, 0), 10)
}

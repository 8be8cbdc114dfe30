package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("solar", "ok")
	m.ObserveCacheHit("solar")
	m.ObserveEvent("solar", "solar_storm")
	m.ObserveTrigger("solar_storm", "enqueued")
	m.ObserveSweep(time.Now(), 1, 0)
	assert.Nil(t, m.Registry())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObserveFetch("lunar", "ok")
	m.ObserveFetch("lunar", "ok")
	m.ObserveTrigger("phase_change", "suppressed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `skywatch_tracking_fetches_total{module="lunar",outcome="ok"} 2`)
	assert.Contains(t, string(body), `skywatch_synthesis_triggers_total{outcome="suppressed",trigger="phase_change"} 1`)
}

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSWPC(t *testing.T, handler http.HandlerFunc) *SWPC {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSWPC(SWPCOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, zerolog.Nop())
}

func TestKpSeriesLegacyArrayLayout(t *testing.T) {
	s := newTestSWPC(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, kpIndexPath, r.URL.Path)
		assert.Equal(t, "test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`[
			["time_tag","Kp","a_running","station_count"],
			["2026-10-17 21:00:00.000","4.33","32","8"],
			["2026-10-17 18:00:00.000","2.67","12","8"]
		]`))
	})

	readings, err := s.KpSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.True(t, readings[0].Time.Before(readings[1].Time), "series must be sorted oldest first")
	assert.True(t, readings[1].Kp.Equal(decimal.RequireFromString("4.33")))
}

func TestKpSeriesObjectLayout(t *testing.T) {
	s := newTestSWPC(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"time_tag":"2026-10-17T21:00:00","Kp":7.67,"a_running":154,"station_count":8}
		]`))
	})

	readings, err := s.KpSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 7.67, readings[0].Kp.InexactFloat64())
	assert.Equal(t, time.Date(2026, 10, 17, 21, 0, 0, 0, time.UTC), readings[0].Time)
}

func TestKpSeriesSkipsRowsWithoutKp(t *testing.T) {
	s := newTestSWPC(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"time_tag":"2026-10-17T18:00:00","Kp":3.33,"a_running":18,"station_count":8},
			{"time_tag":"2026-10-17T21:00:00","Kp":null,"a_running":null,"station_count":0}
		]`))
	})

	readings, err := s.KpSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 3.33, readings[0].Kp.InexactFloat64())
}

func TestHTTPErrorTruncatesOnRuneBoundary(t *testing.T) {
	err := parseHTTPError(http.StatusBadGateway, []byte(strings.Repeat("é", 300)))
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.Equal(t, "swpc api error (502): "+strings.Repeat("é", 200), err.Error())
}

func TestKpSeriesHTTPError(t *testing.T) {
	s := newTestSWPC(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})

	_, err := s.KpSeries(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFlareSeries(t *testing.T) {
	s := newTestSWPC(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, flaresPath, r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"time_tag":"2026-10-17T10:00:00Z","begin_time":"2026-10-17T09:50:00Z","max_time":"2026-10-17T10:02:00Z","max_class":"X1.2"},
			{"time_tag":"2026-10-16T10:00:00Z","begin_time":"2026-10-16T09:50:00Z","max_time":"","max_class":"M3.4"},
			{"time_tag":"2026-10-15T10:00:00Z","begin_time":"2026-10-15T09:50:00Z","max_time":"2026-10-15T10:00:00Z","max_class":""}
		]`))
	})

	flares, err := s.FlareSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, flares, 2)
	assert.Equal(t, "M3.4", flares[0].Class)
	assert.False(t, flares[0].IsXClass())
	assert.True(t, flares[1].IsXClass())
	assert.Equal(t, time.Date(2026, 10, 17, 10, 2, 0, 0, time.UTC), flares[1].PeakTime)
}

package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"skywatch/internal/astro"
	"skywatch/internal/ephemeris"
	"skywatch/internal/fetcher"
	"skywatch/internal/synthesis"
)

var testEpoch = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeWeather struct {
	mu     sync.Mutex
	kp     float64
	flares []fetcher.Flare
	err    error
	calls  int
}

func (f *fakeWeather) setKp(kp float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kp = kp
}

func (f *fakeWeather) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeWeather) KpSeries(context.Context) ([]fetcher.KpReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []fetcher.KpReading{{Time: testEpoch.Add(-3 * time.Hour), Kp: decimal.NewFromFloat(f.kp)}}, nil
}

func (f *fakeWeather) FlareSeries(context.Context) ([]fetcher.Flare, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.flares, nil
}

func (f *fakeWeather) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSky places bodies at fixed longitudes; bodies listed in speed move linearly from testEpoch.
type fakeSky struct {
	lon      map[astro.Body]float64
	speed    map[astro.Body]float64 // degrees per hour
	moonDist float64
	err      error
}

func (s *fakeSky) Position(ctx context.Context, body astro.Body, at time.Time) (ephemeris.Position, error) {
	if s.err != nil {
		return ephemeris.Position{}, s.err
	}
	if err := ctx.Err(); err != nil {
		return ephemeris.Position{}, err
	}
	hours := at.Sub(testEpoch).Hours()
	speed := s.speed[body]
	pos := ephemeris.Position{
		Longitude: astro.Normalize(s.lon[body] + speed*hours),
		Distance:  1,
		Velocity:  speed * 24,
	}
	if body == astro.Moon {
		pos.Distance = s.moonDist
	}
	return pos, nil
}

type sinkCall struct {
	userID     string
	trigger    synthesis.Trigger
	background bool
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
	err   error
}

func (s *fakeSink) TriggerSynthesis(_ context.Context, userID string, trigger synthesis.Trigger, background bool) (*synthesis.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{userID: userID, trigger: trigger, background: background})
	return nil, s.err
}

func (s *fakeSink) triggers() []synthesis.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]synthesis.Trigger, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.trigger)
	}
	return out
}

// brokenCache fails every read and write.
type brokenCache struct {
	mu     sync.Mutex
	reads  int
	writes int
}

func (c *brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return nil, false, errors.New("cache unavailable")
}

func (c *brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	return errors.New("cache unavailable")
}

package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// KpReading is one planetary K-index sample.
type KpReading struct {
	Time time.Time
	Kp   decimal.Decimal
}

// Flare is one GOES X-ray flare event.
type Flare struct {
	Class    string
	PeakTime time.Time
}

// IsXClass reports whether the flare peaked in the X band.
func (f Flare) IsXClass() bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(f.Class)), "X")
}

// SpaceWeather retrieves geomagnetic and solar flare series.
type SpaceWeather interface {
	KpSeries(ctx context.Context) ([]KpReading, error)
	FlareSeries(ctx context.Context) ([]Flare, error)
}

// Static serves a fixed Kp value and flare list. It stands in for the live feed in simulations.
type Static struct {
	mu     sync.Mutex
	kp     decimal.Decimal
	at     time.Time
	flares []Flare
}

// NewStatic builds a static feed reporting kp at the given instant.
func NewStatic(kp decimal.Decimal, at time.Time, flares ...Flare) *Static {
	return &Static{kp: kp, at: at.UTC(), flares: flares}
}

// Set replaces the reported Kp and flares.
func (s *Static) Set(kp decimal.Decimal, at time.Time, flares ...Flare) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kp, s.at, s.flares = kp, at.UTC(), flares
}

// KpSeries implements SpaceWeather.
func (s *Static) KpSeries(ctx context.Context) ([]KpReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return []KpReading{{Time: s.at, Kp: s.kp}}, nil
}

// FlareSeries implements SpaceWeather.
func (s *Static) FlareSeries(ctx context.Context) ([]Flare, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Flare(nil), s.flares...), nil
}

var _ SpaceWeather = (*Static)(nil)

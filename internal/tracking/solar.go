package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"skywatch/internal/fetcher"
)

const (
	SolarModuleName = "solar"

	solarSource    = "noaa_swpc"
	fallbackSource = "fallback"

	stormKp        = 7.0
	kpRiseForStorm = 3.0
)

// SolarData is the decoded solar snapshot.
type SolarData struct {
	KpIndex        float64     `json:"kp_index"`
	KpTime         *time.Time  `json:"kp_time,omitempty"`
	StormLevel     string      `json:"storm_level"`
	IsStorm        bool        `json:"is_storm"`
	RecentFlares   []FlareData `json:"recent_flares"`
	StrongestFlare string      `json:"strongest_flare,omitempty"`
	HasXClassFlare bool        `json:"has_x_class_flare"`
}

// FlareData is one flare within the recent window.
type FlareData struct {
	Class    string    `json:"class"`
	PeakTime time.Time `json:"peak_time"`
}

// SolarComparison is the solar comparison payload. It does not consult the reference chart.
type SolarComparison struct {
	SensitivityLevel string  `json:"sensitivity_level"`
	KpIndex          float64 `json:"kp_index"`
	StormLevel       string  `json:"storm_level"`
	Recommendation   string  `json:"recommendation"`
}

// SolarOptions configure the solar module.
type SolarOptions struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	FlareWindow  time.Duration
}

// SolarModule tracks geomagnetic activity and solar flares.
type SolarModule struct {
	source       fetcher.SpaceWeather
	interval     time.Duration
	fetchTimeout time.Duration
	flareWindow  time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// NewSolarModule builds a solar module over a space-weather source.
func NewSolarModule(source fetcher.SpaceWeather, opts SolarOptions, logger zerolog.Logger) *SolarModule {
	m := &SolarModule{
		source:       source,
		interval:     opts.Interval,
		fetchTimeout: opts.FetchTimeout,
		flareWindow:  opts.FlareWindow,
		logger:       logger.With().Str("component", "solar_module").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	if m.interval <= 0 {
		m.interval = 15 * time.Minute
	}
	if m.fetchTimeout <= 0 {
		m.fetchTimeout = 10 * time.Second
	}
	if m.flareWindow <= 0 {
		m.flareWindow = 24 * time.Hour
	}
	return m
}

func (m *SolarModule) Name() string            { return SolarModuleName }
func (m *SolarModule) Interval() time.Duration { return m.interval }

// Fetch reads the latest Kp and recent flares. Upstream failures never surface: a quiet fallback
// snapshot is returned instead.
func (m *SolarModule) Fetch(ctx context.Context, at time.Time) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	kp, err := m.source.KpSeries(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("kp feed unavailable, using fallback snapshot")
		return m.fallback(at)
	}
	flares, err := m.source.FlareSeries(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("flare feed unavailable, using fallback snapshot")
		return m.fallback(at)
	}

	data := SolarData{RecentFlares: make([]FlareData, 0)}
	if len(kp) > 0 {
		latest := kp[len(kp)-1]
		data.KpIndex = latest.Kp.InexactFloat64()
		stamp := latest.Time
		data.KpTime = &stamp
	}
	data.StormLevel = StormLevel(data.KpIndex)
	data.IsStorm = data.KpIndex >= 5

	cutoff := at.Add(-m.flareWindow)
	for _, f := range flares {
		if f.PeakTime.Before(cutoff) || f.PeakTime.After(at) {
			continue
		}
		data.RecentFlares = append(data.RecentFlares, FlareData{Class: f.Class, PeakTime: f.PeakTime})
		if f.IsXClass() {
			data.HasXClassFlare = true
		}
		if flareRank(f.Class) > flareRank(data.StrongestFlare) {
			data.StrongestFlare = f.Class
		}
	}

	return NewSnapshot(at, solarSource, data)
}

func (m *SolarModule) fallback(at time.Time) (Snapshot, error) {
	return NewSnapshot(at, fallbackSource, SolarData{
		StormLevel:   StormLevel(0),
		RecentFlares: make([]FlareData, 0),
	})
}

// Detect reports solar_storm for Kp at or above 7, a Kp rise of 3 or more over the last real
// reading, or any X-class flare.
func (m *SolarModule) Detect(current Snapshot, previous *Snapshot) []Event {
	var cur SolarData
	if err := current.Decode(&cur); err != nil {
		return nil
	}

	storm := cur.KpIndex >= stormKp || cur.HasXClassFlare
	// A fallback reading carries no real Kp, so it is no baseline for a rise.
	if !storm && previous != nil && previous.Source != fallbackSource {
		var prev SolarData
		if err := previous.Decode(&prev); err == nil && cur.KpIndex-prev.KpIndex >= kpRiseForStorm {
			storm = true
		}
	}
	if !storm {
		return nil
	}
	return []Event{SolarStormEvent{Kp: cur.KpIndex, XClass: cur.HasXClassFlare}}
}

// Compare grades sensitivity from Kp alone.
func (m *SolarModule) Compare(_ context.Context, _ string, current Snapshot) (json.RawMessage, []Event, error) {
	var cur SolarData
	if err := current.Decode(&cur); err != nil {
		return nil, nil, fmt.Errorf("decode solar snapshot: %w", err)
	}

	level := Sensitivity(cur.KpIndex)
	out, err := json.Marshal(SolarComparison{
		SensitivityLevel: level,
		KpIndex:          cur.KpIndex,
		StormLevel:       cur.StormLevel,
		Recommendation:   sensitivityAdvice[level],
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode solar comparison: %w", err)
	}
	return out, nil, nil
}

// FetchLocationAware returns an aurora outlook for a location using the live Kp.
func (m *SolarModule) FetchLocationAware(ctx context.Context, lat, lon float64) (AuroraOutlook, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return AuroraOutlook{}, err
	}
	snap, err := m.Fetch(ctx, m.now())
	if err != nil {
		return AuroraOutlook{}, err
	}
	var data SolarData
	if err := snap.Decode(&data); err != nil {
		return AuroraOutlook{}, fmt.Errorf("decode solar snapshot: %w", err)
	}
	outlook, err := Aurora(lat, lon, data.KpIndex)
	if err != nil {
		return AuroraOutlook{}, err
	}
	outlook.Source = snap.Source
	return outlook, nil
}

// Sensitivity maps Kp to high (>= 6), moderate (>= 4) or low.
func Sensitivity(kp float64) string {
	switch {
	case kp >= 6:
		return "high"
	case kp >= 4:
		return "moderate"
	default:
		return "low"
	}
}

var sensitivityAdvice = map[string]string{
	"high":     "Strong geomagnetic activity. Keep plans flexible and protect your sleep.",
	"moderate": "Unsettled field. Expect restlessness and pace demanding work.",
	"low":      "Quiet conditions. A steady day for focused effort.",
}

// StormLevel maps Kp onto the NOAA G-scale.
func StormLevel(kp float64) string {
	switch {
	case kp >= 9:
		return "G5"
	case kp >= 8:
		return "G4"
	case kp >= 7:
		return "G3"
	case kp >= 6:
		return "G2"
	case kp >= 5:
		return "G1"
	default:
		return "G0"
	}
}

// flareRank orders flare classes so X1 > M9 > C5.
func flareRank(class string) float64 {
	c := strings.ToUpper(strings.TrimSpace(class))
	if c == "" {
		return -1
	}
	base := map[byte]float64{'A': 0, 'B': 10, 'C': 20, 'M': 30, 'X': 40}[c[0]]
	var mag float64
	if _, err := fmt.Sscanf(c[1:], "%g", &mag); err != nil {
		mag = 0
	}
	return base + mag
}

var _ Module = (*SolarModule)(nil)

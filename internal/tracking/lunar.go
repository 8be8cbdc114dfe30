package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"skywatch/internal/astro"
	"skywatch/internal/ephemeris"
	"skywatch/internal/storage"
)

const (
	LunarModuleName = "lunar"

	ephemerisSource = "ephemeris"

	apogeeKm  = 406700.0
	perigeeKm = 356500.0

	supermoonScore  = 0.9
	lunarReturnOrb  = 5.0
	defaultVoidDeg  = 25.0
	defaultVoidLook = 72 * time.Hour
)

// LunarData is the decoded lunar snapshot.
type LunarData struct {
	PhaseAngle     float64    `json:"phase_angle"`
	Illumination   float64    `json:"illumination"`
	PhaseName      string     `json:"phase_name"`
	IsNewMoon      bool       `json:"is_new_moon"`
	IsFullMoon     bool       `json:"is_full_moon"`
	MoonLongitude  float64    `json:"moon_longitude"`
	MoonSign       string     `json:"moon_sign"`
	MoonDegree     float64    `json:"moon_degree"`
	SunLongitude   float64    `json:"sun_longitude"`
	DistanceKm     float64    `json:"distance_km"`
	SupermoonScore float64    `json:"supermoon_score"`
	IsSupermoon    bool       `json:"is_supermoon"`
	IsVoidOfCourse bool       `json:"is_void_of_course"`
	NextIngress    *time.Time `json:"next_ingress,omitempty"`
	NextSign       string     `json:"next_sign,omitempty"`
}

// LunarComparison relates the live Moon to the natal Moon.
type LunarComparison struct {
	ChartAvailable     bool    `json:"chart_available"`
	NatalMoonSign      string  `json:"natal_moon_sign"`
	NatalMoonLongitude float64 `json:"natal_moon_longitude"`
	Orb                float64 `json:"orb"`
	IsLunarReturn      bool    `json:"is_lunar_return"`
	SameSign           bool    `json:"same_sign"`
	Insight            string  `json:"insight"`
}

// LunarOptions configure the lunar module.
type LunarOptions struct {
	Interval            time.Duration
	ReferenceModule     string
	VoidDegreeThreshold float64
	VoidLookahead       time.Duration
}

// LunarModule tracks the Moon's phase, sign, distance and void-of-course state.
type LunarModule struct {
	provider  ephemeris.Provider
	charts    storage.ChartStore
	interval  time.Duration
	reference string
	voidDeg   float64
	voidLook  time.Duration
	logger    zerolog.Logger
}

// NewLunarModule builds a lunar module.
func NewLunarModule(provider ephemeris.Provider, charts storage.ChartStore, opts LunarOptions, logger zerolog.Logger) *LunarModule {
	m := &LunarModule{
		provider:  provider,
		charts:    charts,
		interval:  opts.Interval,
		reference: opts.ReferenceModule,
		voidDeg:   opts.VoidDegreeThreshold,
		voidLook:  opts.VoidLookahead,
		logger:    logger.With().Str("component", "lunar_module").Logger(),
	}
	if m.interval <= 0 {
		m.interval = time.Hour
	}
	if m.reference == "" {
		m.reference = "natal"
	}
	if m.voidDeg <= 0 {
		m.voidDeg = defaultVoidDeg
	}
	if m.voidLook <= 0 {
		m.voidLook = defaultVoidLook
	}
	return m
}

func (m *LunarModule) Name() string            { return LunarModuleName }
func (m *LunarModule) Interval() time.Duration { return m.interval }

// Fetch computes the lunar state at `at`.
func (m *LunarModule) Fetch(ctx context.Context, at time.Time) (Snapshot, error) {
	sun, err := m.provider.Position(ctx, astro.Sun, at)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sun position: %w", err)
	}
	moon, err := m.provider.Position(ctx, astro.Moon, at)
	if err != nil {
		return Snapshot{}, fmt.Errorf("moon position: %w", err)
	}

	phase := astro.PhaseAngle(sun.Longitude, moon.Longitude)
	data := LunarData{
		PhaseAngle:     round(phase, 2),
		Illumination:   round(astro.Illumination(phase), 4),
		PhaseName:      astro.PhaseName(phase),
		IsNewMoon:      astro.IsNewMoon(phase),
		IsFullMoon:     astro.IsFullMoon(phase),
		MoonLongitude:  round(moon.Longitude, 4),
		MoonSign:       astro.SignOf(moon.Longitude),
		MoonDegree:     round(astro.DegreeInSign(moon.Longitude), 2),
		SunLongitude:   round(sun.Longitude, 4),
		DistanceKm:     math.Round(moon.Distance),
		SupermoonScore: round(SupermoonScore(moon.Distance), 3),
	}
	data.IsSupermoon = data.SupermoonScore >= supermoonScore && (data.IsNewMoon || data.IsFullMoon)

	ingress, found, err := ephemeris.NextIngress(ctx, m.provider, astro.Moon, at, time.Hour, m.voidLook)
	if err != nil {
		return Snapshot{}, fmt.Errorf("moon ingress search: %w", err)
	}
	if found {
		next := ingress.At.UTC()
		data.NextIngress = &next
		data.NextSign = ingress.ToSign

		others, err := ephemeris.Longitudes(ctx, m.provider, at, astro.VoidAspectBodies)
		if err != nil {
			return Snapshot{}, fmt.Errorf("aspect body positions: %w", err)
		}
		data.IsVoidOfCourse = astro.IsVoidOfCourse(moon.Longitude, others, m.voidDeg)
	}

	return NewSnapshot(at, ephemerisSource, data)
}

// Detect fires lunar_phase when new or full turns on, and void_of_course when VoC turns on.
// Without a previous snapshot no transition is observable and nothing fires.
func (m *LunarModule) Detect(current Snapshot, previous *Snapshot) []Event {
	if previous == nil {
		return nil
	}
	var cur, prev LunarData
	if current.Decode(&cur) != nil || previous.Decode(&prev) != nil {
		return nil
	}

	var events []Event
	if (cur.IsNewMoon && !prev.IsNewMoon) || (cur.IsFullMoon && !prev.IsFullMoon) {
		events = append(events, LunarPhaseEvent{Phase: cur.PhaseName})
	}
	if cur.IsVoidOfCourse && !prev.IsVoidOfCourse {
		events = append(events, VoidOfCourseEvent{Sign: cur.MoonSign})
	}
	return events
}

// Compare relates the live Moon to the natal Moon from the user's reference chart.
func (m *LunarModule) Compare(ctx context.Context, userID string, current Snapshot) (json.RawMessage, []Event, error) {
	var cur LunarData
	if err := current.Decode(&cur); err != nil {
		return nil, nil, fmt.Errorf("decode lunar snapshot: %w", err)
	}

	chart, found, err := m.charts.ReferenceChart(ctx, userID, m.reference)
	if err != nil {
		return nil, nil, fmt.Errorf("load reference chart: %w", err)
	}
	natal, ok := chart.Point(astro.Moon)
	if !found || !ok {
		out, err := missingChart(m.Name())
		return out, nil, err
	}

	orb := astro.Separation(cur.MoonLongitude, natal.Longitude)
	natalSign := astro.SignOf(natal.Longitude)
	cmp := LunarComparison{
		ChartAvailable:     true,
		NatalMoonSign:      natalSign,
		NatalMoonLongitude: natal.Longitude,
		Orb:                round(orb, 2),
		IsLunarReturn:      orb < lunarReturnOrb,
		SameSign:           cur.MoonSign == natalSign,
	}
	switch {
	case cmp.IsLunarReturn:
		cmp.Insight = "Lunar return: the Moon is back at its natal place. A reset point for your emotional month."
	case cmp.SameSign:
		cmp.Insight = fmt.Sprintf("The Moon moves through your natal Moon sign %s. Instincts feel familiar and amplified.", natalSign)
	default:
		cmp.Insight = astro.PhaseMeaning[cur.PhaseName]
	}

	out, err := json.Marshal(cmp)
	if err != nil {
		return nil, nil, fmt.Errorf("encode lunar comparison: %w", err)
	}
	return out, nil, nil
}

// SupermoonScore places a distance on the perigee-apogee scale: 1 at perigee, 0 at apogee.
func SupermoonScore(distanceKm float64) float64 {
	score := (apogeeKm - distanceKm) / (apogeeKm - perigeeKm)
	return math.Max(0, math.Min(1, score))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

var _ Module = (*LunarModule)(nil)

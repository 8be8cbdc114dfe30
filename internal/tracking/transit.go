package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"skywatch/internal/astro"
	"skywatch/internal/ephemeris"
	"skywatch/internal/storage"
)

const (
	TransitModuleName = "transit"

	applyingLimit = 5
)

// TransitPosition is one body in the transit snapshot.
type TransitPosition struct {
	Longitude  float64 `json:"longitude"`
	Sign       string  `json:"sign"`
	Degree     float64 `json:"degree"`
	Retrograde bool    `json:"retrograde"`
	Speed      float64 `json:"speed"`
}

// TransitData is the decoded transit snapshot.
type TransitData struct {
	Positions map[astro.Body]TransitPosition `json:"positions"`
}

// TransitAspect is one transiting-to-natal aspect.
type TransitAspect struct {
	Transiting     astro.Body `json:"transiting"`
	Natal          astro.Body `json:"natal"`
	Aspect         string     `json:"aspect"`
	Orb            float64    `json:"orb"`
	Exact          bool       `json:"exact"`
	Interpretation string     `json:"interpretation"`
}

// TransitComparison lists the aspects the sky currently makes to the reference chart.
type TransitComparison struct {
	ChartAvailable   bool            `json:"chart_available"`
	TotalAspects     int             `json:"total_aspects"`
	ApplyingTransits []TransitAspect `json:"applying_transits"`
	ExactTransits    []TransitAspect `json:"exact_transits"`
}

// TransitOptions configure the transit module.
type TransitOptions struct {
	Interval        time.Duration
	ReferenceModule string
	// EmitExactEvents makes Compare report exact_transit events for sub-degree aspects.
	EmitExactEvents bool
}

// TransitModule tracks the ten major bodies against a reference chart.
type TransitModule struct {
	provider  ephemeris.Provider
	charts    storage.ChartStore
	interval  time.Duration
	reference string
	emitExact bool
	logger    zerolog.Logger
}

// NewTransitModule builds a transit module.
func NewTransitModule(provider ephemeris.Provider, charts storage.ChartStore, opts TransitOptions, logger zerolog.Logger) *TransitModule {
	m := &TransitModule{
		provider:  provider,
		charts:    charts,
		interval:  opts.Interval,
		reference: opts.ReferenceModule,
		emitExact: opts.EmitExactEvents,
		logger:    logger.With().Str("component", "transit_module").Logger(),
	}
	if m.interval <= 0 {
		m.interval = 6 * time.Hour
	}
	if m.reference == "" {
		m.reference = "natal"
	}
	return m
}

func (m *TransitModule) Name() string            { return TransitModuleName }
func (m *TransitModule) Interval() time.Duration { return m.interval }

// Fetch computes positions for all major bodies.
func (m *TransitModule) Fetch(ctx context.Context, at time.Time) (Snapshot, error) {
	positions, err := ephemeris.Positions(ctx, m.provider, at, astro.MajorBodies...)
	if err != nil {
		return Snapshot{}, err
	}

	data := TransitData{Positions: make(map[astro.Body]TransitPosition, len(positions))}
	for body, pos := range positions {
		data.Positions[body] = TransitPosition{
			Longitude:  round(pos.Longitude, 4),
			Sign:       astro.SignOf(pos.Longitude),
			Degree:     round(astro.DegreeInSign(pos.Longitude), 2),
			Retrograde: pos.Retrograde(),
			Speed:      round(pos.Velocity, 4),
		}
	}
	return NewSnapshot(at, ephemerisSource, data)
}

// Detect never reports events for transits; exactness surfaces through Compare when enabled.
func (m *TransitModule) Detect(Snapshot, *Snapshot) []Event {
	return nil
}

// Compare matches every transiting body against every natal body.
func (m *TransitModule) Compare(ctx context.Context, userID string, current Snapshot) (json.RawMessage, []Event, error) {
	var cur TransitData
	if err := current.Decode(&cur); err != nil {
		return nil, nil, fmt.Errorf("decode transit snapshot: %w", err)
	}

	chart, found, err := m.charts.ReferenceChart(ctx, userID, m.reference)
	if err != nil {
		return nil, nil, fmt.Errorf("load reference chart: %w", err)
	}
	if !found || len(chart) == 0 {
		out, err := missingChart(m.Name())
		return out, nil, err
	}

	aspects := MatchTransits(cur.Positions, chart)
	cmp := TransitComparison{
		ChartAvailable:   true,
		TotalAspects:     len(aspects),
		ApplyingTransits: make([]TransitAspect, 0, applyingLimit),
		ExactTransits:    make([]TransitAspect, 0),
	}
	for i, a := range aspects {
		if i < applyingLimit {
			cmp.ApplyingTransits = append(cmp.ApplyingTransits, a)
		}
		if a.Exact {
			cmp.ExactTransits = append(cmp.ExactTransits, a)
		}
	}

	var events []Event
	if m.emitExact {
		for _, a := range cmp.ExactTransits {
			events = append(events, ExactTransitEvent{Transiting: a.Transiting, Natal: a.Natal, Aspect: a.Aspect, Orb: a.Orb})
		}
	}

	out, err := json.Marshal(cmp)
	if err != nil {
		return nil, nil, fmt.Errorf("encode transit comparison: %w", err)
	}
	return out, events, nil
}

// MatchTransits returns every aspect within orb, tightest first.
func MatchTransits(positions map[astro.Body]TransitPosition, chart astro.Chart) []TransitAspect {
	var out []TransitAspect
	for _, tb := range astro.MajorBodies {
		tp, ok := positions[tb]
		if !ok {
			continue
		}
		for _, nb := range astro.MajorBodies {
			np, ok := chart.Point(nb)
			if !ok {
				continue
			}
			match, ok := astro.FindAspect(tp.Longitude, np.Longitude, astro.TransitAspects)
			if !ok {
				continue
			}
			out = append(out, TransitAspect{
				Transiting:     tb,
				Natal:          nb,
				Aspect:         match.Template.Name,
				Orb:            round(match.Orb, 2),
				Exact:          match.Exact(),
				Interpretation: interpretTransit(tb, nb, match.Template.Name),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Orb < out[j].Orb })
	return out
}

var bodyThemes = map[astro.Body]string{
	astro.Sun:     "identity and vitality",
	astro.Moon:    "emotions and instincts",
	astro.Mercury: "thinking and communication",
	astro.Venus:   "relationships and values",
	astro.Mars:    "drive and assertion",
	astro.Jupiter: "growth and optimism",
	astro.Saturn:  "structure and responsibility",
	astro.Uranus:  "change and independence",
	astro.Neptune: "dreams and intuition",
	astro.Pluto:   "transformation and power",
}

func interpretTransit(transiting, natal astro.Body, aspect string) string {
	return fmt.Sprintf("Transiting %s %s your natal %s: %s %s your %s.",
		transiting.Title(), aspect, natal.Title(),
		transiting.Title(), astro.AspectNature[aspect], bodyThemes[natal])
}

var _ Module = (*TransitModule)(nil)

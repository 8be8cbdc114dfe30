package scanner

import (
	"context"
	"fmt"
	"math"
	"time"

	"skywatch/internal/astro"
	"skywatch/internal/ephemeris"
)

const (
	voidStep  = time.Hour
	phaseStep = 6 * time.Hour
)

// scanVoid walks the Moon hourly. Each sign change yields a moon_ingress event; the first hour
// the late-degree heuristic holds in a sign opens a void_of_course event that the ingress closes.
func (s *Scanner) scanVoid(ctx context.Context, start time.Time, window time.Duration) ([]Event, error) {
	var (
		events   []Event
		prevT    time.Time
		prevSign = -1
		openVoid = -1
	)
	for t := start; !t.After(start.Add(window)); t = t.Add(voidStep) {
		moon, err := s.provider.Position(ctx, astro.Moon, t)
		if err != nil {
			return nil, fmt.Errorf("moon position: %w", err)
		}
		sign := astro.SignIndex(moon.Longitude)

		if prevSign >= 0 && sign != prevSign {
			at, err := ephemeris.RefineSignChange(ctx, s.provider, astro.Moon, prevT, t, prevSign)
			if err != nil {
				return nil, err
			}
			endsVoid := openVoid >= 0
			if endsVoid {
				events[openVoid].Details["ends_at"] = at.UTC().Format(time.RFC3339)
				openVoid = -1
			}
			events = append(events, newEvent("moon_ingress", "lunar", "🌙",
				fmt.Sprintf("Moon enters %s", astro.Signs[sign]),
				fmt.Sprintf("The Moon leaves %s for %s.", astro.Signs[prevSign], astro.Signs[sign]),
				at, map[string]any{
					"from_sign": astro.Signs[prevSign],
					"to_sign":   astro.Signs[sign],
					"ends_void": endsVoid,
				}))
		}

		if openVoid < 0 && astro.DegreeInSign(moon.Longitude) >= s.voidDeg {
			others, err := ephemeris.Longitudes(ctx, s.provider, t, astro.VoidAspectBodies)
			if err != nil {
				return nil, err
			}
			if astro.IsVoidOfCourse(moon.Longitude, others, s.voidDeg) {
				openVoid = len(events)
				events = append(events, newEvent("void_of_course", "lunar", "🌫️",
					fmt.Sprintf("Moon void of course in %s", astro.Signs[sign]),
					"No further major aspects before the Moon changes sign. Avoid starting new ventures.",
					t, map[string]any{
						"sign":   astro.Signs[sign],
						"degree": roundTo(astro.DegreeInSign(moon.Longitude), 2),
					}))
			}
		}

		prevT, prevSign = t, sign
	}
	return events, nil
}

// scanPhases samples the phase angle every six hours. A wrap past 360° is a new moon and an
// ascending crossing of 180° a full moon; the instant is interpolated between samples.
func (s *Scanner) scanPhases(ctx context.Context, start time.Time, window time.Duration) ([]Event, error) {
	var (
		events    []Event
		prevT     time.Time
		prevPhase = math.NaN()
	)
	for t := start; !t.After(start.Add(window)); t = t.Add(phaseStep) {
		phase, err := s.phaseAt(ctx, t)
		if err != nil {
			return nil, err
		}
		if !math.IsNaN(prevPhase) {
			var (
				kind     string
				fraction float64
			)
			switch {
			case prevPhase > 180 && phase < 180:
				kind = "new_moon"
				fraction = (360 - prevPhase) / (phase + 360 - prevPhase)
			case prevPhase < 180 && phase >= 180:
				kind = "full_moon"
				fraction = (180 - prevPhase) / (phase - prevPhase)
			}
			if kind != "" {
				at := prevT.Add(time.Duration(fraction * float64(phaseStep)))
				ev, err := s.phaseEvent(ctx, kind, at)
				if err != nil {
					return nil, err
				}
				events = append(events, ev)
			}
		}
		prevT, prevPhase = t, phase
	}
	return events, nil
}

func (s *Scanner) phaseAt(ctx context.Context, t time.Time) (float64, error) {
	sun, err := s.provider.Position(ctx, astro.Sun, t)
	if err != nil {
		return 0, fmt.Errorf("sun position: %w", err)
	}
	moon, err := s.provider.Position(ctx, astro.Moon, t)
	if err != nil {
		return 0, fmt.Errorf("moon position: %w", err)
	}
	return astro.PhaseAngle(sun.Longitude, moon.Longitude), nil
}

func (s *Scanner) phaseEvent(ctx context.Context, kind string, at time.Time) (Event, error) {
	moon, err := s.provider.Position(ctx, astro.Moon, at)
	if err != nil {
		return Event{}, fmt.Errorf("moon position: %w", err)
	}
	sign := astro.SignOf(moon.Longitude)
	details := map[string]any{"sign": sign}

	if kind == "new_moon" {
		return newEvent(kind, "lunar", "🌑", fmt.Sprintf("New Moon in %s", sign),
			astro.PhaseMeaning["New Moon"], at, details), nil
	}
	return newEvent(kind, "lunar", "🌕", fmt.Sprintf("Full Moon in %s", sign),
		astro.PhaseMeaning["Full Moon"], at, details), nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package scanner

import (
	"context"
	"fmt"
	"time"

	"skywatch/internal/astro"
	"skywatch/internal/ephemeris"
)

// scanIngresses walks each non-lunar body daily and reports sign changes.
func (s *Scanner) scanIngresses(ctx context.Context, start time.Time, window time.Duration) ([]Event, error) {
	var events []Event
	for _, body := range astro.IngressBodies {
		var (
			prevT    time.Time
			prevSign = -1
		)
		for t := start; !t.After(start.Add(window)); t = t.Add(day) {
			pos, err := s.provider.Position(ctx, body, t)
			if err != nil {
				return nil, fmt.Errorf("position of %s: %w", body, err)
			}
			sign := astro.SignIndex(pos.Longitude)
			if prevSign >= 0 && sign != prevSign {
				at, err := ephemeris.RefineSignChange(ctx, s.provider, body, prevT, t, prevSign)
				if err != nil {
					return nil, err
				}
				events = append(events, ingressEvent(body, prevSign, sign, pos.Retrograde(), at))
			}
			prevT, prevSign = t, sign
		}
	}
	return events, nil
}

func ingressEvent(body astro.Body, from, to int, retrograde bool, at time.Time) Event {
	kind := "inner"
	icon := "✨"
	if body.IsOuter() {
		kind = "outer"
		icon = "🪐"
	}
	desc := fmt.Sprintf("%s moves from %s into %s.", body.Title(), astro.Signs[from], astro.Signs[to])
	if retrograde {
		desc = fmt.Sprintf("%s backs from %s into %s while retrograde.", body.Title(), astro.Signs[from], astro.Signs[to])
	}
	return newEvent("ingress", "planetary", icon,
		fmt.Sprintf("%s enters %s", body.Title(), astro.Signs[to]),
		desc, at, map[string]any{
			"body":       string(body),
			"from_sign":  astro.Signs[from],
			"to_sign":    astro.Signs[to],
			"body_class": kind,
			"retrograde": retrograde,
		})
}

// scanStations walks each slow body daily and reports velocity sign flips, interpolating the
// instant the speed crosses zero.
func (s *Scanner) scanStations(ctx context.Context, start time.Time, window time.Duration) ([]Event, error) {
	var events []Event
	for _, body := range astro.SlowBodies {
		var (
			prev  ephemeris.Position
			prevT time.Time
			have  bool
		)
		for t := start; !t.After(start.Add(window)); t = t.Add(day) {
			pos, err := s.provider.Position(ctx, body, t)
			if err != nil {
				return nil, fmt.Errorf("position of %s: %w", body, err)
			}
			if have && prev.Retrograde() != pos.Retrograde() {
				fraction := prev.Velocity / (prev.Velocity - pos.Velocity)
				at := prevT.Add(time.Duration(fraction * float64(day)))
				events = append(events, stationEvent(body, pos, at))
			}
			prev, prevT, have = pos, t, true
		}
	}
	return events, nil
}

func stationEvent(body astro.Body, pos ephemeris.Position, at time.Time) Event {
	sign := astro.SignOf(pos.Longitude)
	details := map[string]any{
		"body":   string(body),
		"sign":   sign,
		"degree": roundTo(astro.DegreeInSign(pos.Longitude), 2),
	}
	if pos.Retrograde() {
		return newEvent("retrograde_station", "planetary", "↩️",
			fmt.Sprintf("%s stations retrograde in %s", body.Title(), sign),
			fmt.Sprintf("%s appears to stop and turn backwards. Review rather than launch.", body.Title()),
			at, details)
	}
	return newEvent("direct_station", "planetary", "↪️",
		fmt.Sprintf("%s stations direct in %s", body.Title(), sign),
		fmt.Sprintf("%s resumes forward motion. Stalled matters start moving.", body.Title()),
		at, details)
}

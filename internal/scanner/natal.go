package scanner

import (
	"context"
	"fmt"
	"time"

	"skywatch/internal/astro"
)

// natalScan finds the exact moments slow bodies aspect a reference chart.
type natalScan struct {
	scanner *Scanner
	chart   astro.Chart
}

type natalTarget struct {
	body astro.Body
	lon  float64
}

// inOrbRun tracks one contiguous stretch of daily samples inside an aspect's orb.
type inOrbRun struct {
	active bool
	aspect astro.AspectTemplate
	orb    float64
	at     time.Time
}

// run walks slow bodies daily; for each in-orb run against a natal point, it reports the sample
// where the orb is tightest.
func (n natalScan) run(ctx context.Context, start time.Time, window time.Duration) ([]Event, error) {
	targets := make([]natalTarget, 0, len(astro.MajorBodies))
	for _, b := range astro.MajorBodies {
		if p, ok := n.chart.Point(b); ok {
			targets = append(targets, natalTarget{body: b, lon: p.Longitude})
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	var events []Event
	for _, body := range astro.SlowBodies {
		runs := make([]inOrbRun, len(targets))
		for t := start; !t.After(start.Add(window)); t = t.Add(day) {
			pos, err := n.scanner.provider.Position(ctx, body, t)
			if err != nil {
				return nil, fmt.Errorf("position of %s: %w", body, err)
			}
			for i, target := range targets {
				match, ok := astro.FindAspect(pos.Longitude, target.lon, astro.ExactnessAspects)
				r := &runs[i]
				if r.active && (!ok || match.Template.Name != r.aspect.Name) {
					events = append(events, exactEvent(body, target.body, *r))
					r.active = false
				}
				if !ok {
					continue
				}
				if !r.active || match.Orb < r.orb {
					*r = inOrbRun{active: true, aspect: match.Template, orb: match.Orb, at: t}
				}
			}
		}
		for i, r := range runs {
			if r.active {
				events = append(events, exactEvent(body, targets[i].body, r))
			}
		}
	}
	return events, nil
}

func exactEvent(transiting, natal astro.Body, r inOrbRun) Event {
	exactness := 1 - r.orb/r.aspect.MaxOrb
	return newEvent("exact_transit", "personal", "🎯",
		fmt.Sprintf("%s %s natal %s", transiting.Title(), r.aspect.Name, natal.Title()),
		fmt.Sprintf("Transiting %s %s your natal %s at its closest approach.",
			transiting.Title(), astro.AspectNature[r.aspect.Name], natal.Title()),
		r.at, map[string]any{
			"transiting": string(transiting),
			"natal":      string(natal),
			"aspect":     r.aspect.Name,
			"orb":        roundTo(r.orb, 2),
			"exactness":  roundTo(exactness, 3),
		})
}

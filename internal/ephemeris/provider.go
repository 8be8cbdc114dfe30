// Package ephemeris supplies geocentric ecliptic positions for the tracked bodies.
package ephemeris

import (
	"context"
	"fmt"
	"time"

	"skywatch/internal/astro"
)

// Position is a geocentric ecliptic position of date.
type Position struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	// Distance is in AU for planets and the Sun, kilometres for the Moon.
	Distance float64 `json:"distance"`
	// Velocity is the longitudinal speed in degrees per day; negative while retrograde.
	Velocity float64 `json:"velocity"`
}

// Retrograde reports whether the body moves backwards along the ecliptic.
func (p Position) Retrograde() bool { return p.Velocity < 0 }

// Provider returns body positions at an instant.
type Provider interface {
	Position(ctx context.Context, body astro.Body, at time.Time) (Position, error)
}

// Positions resolves several bodies at the same instant.
func Positions(ctx context.Context, p Provider, at time.Time, bodies ...astro.Body) (map[astro.Body]Position, error) {
	out := make(map[astro.Body]Position, len(bodies))
	for _, b := range bodies {
		pos, err := p.Position(ctx, b, at)
		if err != nil {
			return nil, fmt.Errorf("position of %s: %w", b, err)
		}
		out[b] = pos
	}
	return out, nil
}

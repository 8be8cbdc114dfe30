package ephemeris

import (
	"context"
	"fmt"
	"time"

	"skywatch/internal/astro"
)

// Ingress is the moment a body crosses into a new sign.
type Ingress struct {
	Body     astro.Body
	At       time.Time
	FromSign string
	ToSign   string
}

// NextIngress steps forward from `from` until body changes sign, then bisects the crossing down to
// a minute. found is false when no change happens within horizon.
func NextIngress(ctx context.Context, p Provider, body astro.Body, from time.Time, step, horizon time.Duration) (Ingress, bool, error) {
	start, err := p.Position(ctx, body, from)
	if err != nil {
		return Ingress{}, false, fmt.Errorf("position of %s: %w", body, err)
	}
	startSign := astro.SignIndex(start.Longitude)

	prev := from
	for elapsed := step; elapsed <= horizon; elapsed += step {
		at := from.Add(elapsed)
		pos, err := p.Position(ctx, body, at)
		if err != nil {
			return Ingress{}, false, fmt.Errorf("position of %s: %w", body, err)
		}
		sign := astro.SignIndex(pos.Longitude)
		if sign == startSign {
			prev = at
			continue
		}
		crossing, err := RefineSignChange(ctx, p, body, prev, at, startSign)
		if err != nil {
			return Ingress{}, false, err
		}
		return Ingress{
			Body:     body,
			At:       crossing,
			FromSign: astro.Signs[startSign],
			ToSign:   astro.Signs[sign],
		}, true, nil
	}
	return Ingress{}, false, nil
}

// RefineSignChange narrows [lo, hi], where body is in sign at lo and elsewhere at hi, to within a
// minute of the crossing and returns the later bound.
func RefineSignChange(ctx context.Context, p Provider, body astro.Body, lo, hi time.Time, sign int) (time.Time, error) {
	for hi.Sub(lo) > time.Minute {
		mid := lo.Add(hi.Sub(lo) / 2)
		pos, err := p.Position(ctx, body, mid)
		if err != nil {
			return time.Time{}, fmt.Errorf("position of %s: %w", body, err)
		}
		if astro.SignIndex(pos.Longitude) == sign {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}

// Longitudes resolves the longitudes of bodies at one instant, in order.
func Longitudes(ctx context.Context, p Provider, at time.Time, bodies []astro.Body) ([]float64, error) {
	out := make([]float64, 0, len(bodies))
	for _, b := range bodies {
		pos, err := p.Position(ctx, b, at)
		if err != nil {
			return nil, fmt.Errorf("position of %s: %w", b, err)
		}
		out = append(out, pos.Longitude)
	}
	return out, nil
}

package astro

import "math"

// AspectTemplate is an exact separation angle and the orb tolerated around it.
type AspectTemplate struct {
	Name   string
	Angle  float64
	MaxOrb float64
}

// TransitAspects are the templates used when comparing live transits against a reference chart.
var TransitAspects = []AspectTemplate{
	{Name: "conjunction", Angle: 0, MaxOrb: 8},
	{Name: "opposition", Angle: 180, MaxOrb: 8},
	{Name: "square", Angle: 90, MaxOrb: 6},
	{Name: "trine", Angle: 120, MaxOrb: 6},
	{Name: "sextile", Angle: 60, MaxOrb: 4},
}

// ExactnessAspects are the tight templates used by the forward scanner.
var ExactnessAspects = []AspectTemplate{
	{Name: "conjunction", Angle: 0, MaxOrb: 2},
	{Name: "opposition", Angle: 180, MaxOrb: 2},
	{Name: "square", Angle: 90, MaxOrb: 1.5},
	{Name: "trine", Angle: 120, MaxOrb: 1.5},
}

// ExactOrb is the orb under which an aspect counts as exact.
const ExactOrb = 1.0

// AspectMatch is the result of testing two longitudes against a template set.
type AspectMatch struct {
	Template AspectTemplate
	Orb      float64
}

// Exact reports whether the orb is below ExactOrb.
func (m AspectMatch) Exact() bool { return m.Orb < ExactOrb }

// FindAspect returns the tightest template whose orb admits the separation of a and b.
// The result is symmetric in a and b.
func FindAspect(a, b float64, templates []AspectTemplate) (AspectMatch, bool) {
	sep := Separation(a, b)
	best := AspectMatch{Orb: math.Inf(1)}
	found := false
	for _, tpl := range templates {
		orb := math.Abs(sep - tpl.Angle)
		if orb <= tpl.MaxOrb && orb < best.Orb {
			best = AspectMatch{Template: tpl, Orb: orb}
			found = true
		}
	}
	return best, found
}

// AspectNature is a one-word tone per aspect, used in interpretation templates.
var AspectNature = map[string]string{
	"conjunction": "intensifies",
	"opposition":  "polarises",
	"square":      "challenges",
	"trine":       "supports",
	"sextile":     "opens opportunities for",
}

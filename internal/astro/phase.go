package astro

import "math"

// Phase names in band order. Each band is 45° wide, starting at 0° elongation.
var PhaseNames = [8]string{
	"New Moon", "Waxing Crescent", "First Quarter", "Waxing Gibbous",
	"Full Moon", "Waning Gibbous", "Last Quarter", "Waning Crescent",
}

// PhaseWidth is the width of one named phase band.
const PhaseWidth = 45.0

// PhaseAngle is the Moon's elongation east of the Sun, in [0, 360).
func PhaseAngle(sunLon, moonLon float64) float64 {
	return Normalize(moonLon - sunLon)
}

// Illumination is the illuminated fraction of the lunar disc, (1+cos i)/2 where i is the
// Sun-Moon-Earth angle, i = 180° - elongation.
func Illumination(phase float64) float64 {
	i := 180 - Normalize(phase)
	return (1 + math.Cos(i*math.Pi/180)) / 2
}

// PhaseIndex returns the 0-based phase band for a phase angle.
func PhaseIndex(phase float64) int {
	idx := int(Normalize(phase) / PhaseWidth)
	if idx > 7 {
		idx = 7
	}
	return idx
}

// PhaseName returns the phase band name for a phase angle.
func PhaseName(phase float64) string {
	return PhaseNames[PhaseIndex(phase)]
}

// IsNewMoon reports whether the phase angle lies in the New Moon band.
func IsNewMoon(phase float64) bool { return PhaseIndex(phase) == 0 }

// IsFullMoon reports whether the phase angle lies in the Full Moon band.
func IsFullMoon(phase float64) bool { return PhaseIndex(phase) == 4 }

// PhaseMeaning is a short reading of each phase band.
var PhaseMeaning = map[string]string{
	"New Moon":        "Seed intentions; energy is inward and quiet.",
	"Waxing Crescent": "Commit to the first steps of what you started.",
	"First Quarter":   "Expect friction; act decisively through obstacles.",
	"Waxing Gibbous":  "Refine and adjust before the culmination.",
	"Full Moon":       "Culmination and visibility; emotions run high.",
	"Waning Gibbous":  "Share what you learned and give back.",
	"Last Quarter":    "Release what no longer serves you.",
	"Waning Crescent": "Rest and reflect before the next cycle.",
}

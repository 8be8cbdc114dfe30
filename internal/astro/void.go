package astro

// VoidAspectBodies are the bodies whose aspects to the Moon end a void-of-course period.
var VoidAspectBodies = []Body{Sun, Mercury, Venus, Mars, Jupiter, Saturn}

var majorAngles = []float64{0, 60, 90, 120, 180}

// PerfectsBeforeIngress reports whether the Moon, moving forward from moonLon to the end of its
// current sign, passes an exact major aspect to any of the given longitudes. The other bodies are
// held where they are.
func PerfectsBeforeIngress(moonLon float64, others []float64) bool {
	boundary := float64(SignIndex(moonLon)+1) * SignWidth
	remaining := Normalize(boundary - moonLon)
	if remaining == 0 {
		remaining = SignWidth
	}
	for _, lon := range others {
		for _, angle := range majorAngles {
			for _, target := range []float64{lon + angle, lon - angle} {
				ahead := Normalize(target - moonLon)
				if ahead > 0 && ahead < remaining {
					return true
				}
			}
		}
	}
	return false
}

// IsVoidOfCourse applies the late-degree heuristic: the Moon is void when it sits at or past
// threshold degrees into its sign and no major aspect perfects before it leaves.
func IsVoidOfCourse(moonLon float64, others []float64, threshold float64) bool {
	if DegreeInSign(moonLon) < threshold {
		return false
	}
	return !PerfectsBeforeIngress(moonLon, others)
}

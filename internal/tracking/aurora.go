package tracking

import (
	"fmt"
	"math"
)

// Geomagnetic north pole of the centered dipole (IGRF-13, epoch 2020).
const (
	dipolePoleLat = 80.65
	dipolePoleLon = -72.68
)

// auroralOval lists the lowest geomagnetic latitude at which aurora is overhead for each Kp.
var auroralOval = []struct {
	minLat float64
	kp     float64
}{
	{66.5, 0}, {64.5, 1}, {62.4, 2}, {60.4, 3}, {58.3, 4},
	{56.3, 5}, {54.2, 6}, {52.2, 7}, {50.1, 8}, {48.1, 9},
}

// AuroraOutlook is the aurora visibility estimate for one location.
type AuroraOutlook struct {
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	GeomagneticLatitude float64 `json:"geomagnetic_latitude"`
	// MinKp is the Kp needed for aurora at this location; absent when no Kp reaches it.
	MinKp          *float64 `json:"min_kp,omitempty"`
	CurrentKp      float64  `json:"current_kp"`
	Probability    float64  `json:"probability"`
	Visibility     string   `json:"visibility"`
	StormLevel     string   `json:"storm_level"`
	Severity       string   `json:"severity"`
	Recommendation string   `json:"recommendation"`
	Source         string   `json:"source,omitempty"`
}

// GeomagneticLatitude converts geographic coordinates to centered-dipole magnetic latitude.
func GeomagneticLatitude(lat, lon float64) float64 {
	phi, lambda := rad(lat), rad(lon)
	phiP, lambdaP := rad(dipolePoleLat), rad(dipolePoleLon)
	s := math.Sin(phi)*math.Sin(phiP) + math.Cos(phi)*math.Cos(phiP)*math.Cos(lambda-lambdaP)
	return deg(math.Asin(math.Max(-1, math.Min(1, s))))
}

// MinKpForAurora returns the smallest Kp that brings aurora to the given geomagnetic latitude.
// Either hemisphere is handled by magnitude. ok is false below the Kp 9 boundary.
func MinKpForAurora(magLat float64) (float64, bool) {
	abs := math.Abs(magLat)
	for _, band := range auroralOval {
		if abs >= band.minLat {
			return band.kp, true
		}
	}
	return 0, false
}

// Aurora builds the outlook bundle for a location and Kp.
func Aurora(lat, lon, kp float64) (AuroraOutlook, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return AuroraOutlook{}, err
	}

	magLat := GeomagneticLatitude(lat, lon)
	out := AuroraOutlook{
		Latitude:            lat,
		Longitude:           lon,
		GeomagneticLatitude: math.Round(magLat*100) / 100,
		CurrentKp:           kp,
		StormLevel:          StormLevel(kp),
	}

	minKp, reachable := MinKpForAurora(magLat)
	if reachable {
		out.MinKp = &minKp
		out.Probability = auroraProbability(kp - minKp)
	}
	out.Visibility = visibility(out.Probability)
	out.Severity = severity(kp)
	out.Recommendation = auroraAdvice(out.Visibility, reachable, lat < 0)
	return out, nil
}

func auroraProbability(margin float64) float64 {
	switch {
	case margin >= 2:
		return 0.9
	case margin >= 1:
		return 0.7
	case margin >= 0:
		return 0.5
	case margin >= -1:
		return 0.2
	default:
		return 0.05
	}
}

func visibility(p float64) string {
	switch {
	case p >= 0.7:
		return "likely"
	case p >= 0.5:
		return "possible"
	case p >= 0.2:
		return "unlikely"
	default:
		return "very unlikely"
	}
}

func severity(kp float64) string {
	switch {
	case kp >= 8:
		return "severe"
	case kp >= 6:
		return "strong"
	case kp >= 5:
		return "moderate"
	case kp >= 4:
		return "active"
	default:
		return "quiet"
	}
}

func auroraAdvice(vis string, reachable, southern bool) string {
	if !reachable {
		return "Too far from the auroral zone for a sighting even in extreme storms."
	}
	switch vis {
	case "likely":
		if southern {
			return "Head somewhere dark and look south around local midnight."
		}
		return "Head somewhere dark and look north around local midnight."
	case "possible":
		return "Worth checking the sky away from city lights tonight."
	case "unlikely":
		return "Only a faint glow near the horizon is plausible."
	default:
		return "No aurora expected at your location."
	}
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

package astro

import (
	"math"
	"strings"
)

// Body identifies a celestial body tracked by skywatch.
type Body string

const (
	Sun     Body = "sun"
	Moon    Body = "moon"
	Mercury Body = "mercury"
	Venus   Body = "venus"
	Mars    Body = "mars"
	Jupiter Body = "jupiter"
	Saturn  Body = "saturn"
	Uranus  Body = "uranus"
	Neptune Body = "neptune"
	Pluto   Body = "pluto"
)

// MajorBodies lists the ten bodies compared in transit work, fastest first.
var MajorBodies = []Body{Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto}

// IngressBodies are walked by the forward scanner for sign changes. The Moon has its own hourly scan.
var IngressBodies = []Body{Sun, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto}

// SlowBodies are walked for retrograde stations and natal-transit exactness.
var SlowBodies = []Body{Mars, Jupiter, Saturn, Uranus, Neptune, Pluto}

// IsOuter reports whether the body lies beyond the asteroid belt.
func (b Body) IsOuter() bool {
	switch b {
	case Jupiter, Saturn, Uranus, Neptune, Pluto:
		return true
	default:
		return false
	}
}

// Title returns the capitalised display name.
func (b Body) Title() string {
	if b == "" {
		return ""
	}
	return strings.ToUpper(string(b[:1])) + string(b[1:])
}

// Signs are the twelve 30° sectors of the ecliptic, starting at 0° Aries.
var Signs = [12]string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

// SignWidth is the width of one sign in degrees.
const SignWidth = 30.0

// Normalize wraps an angle into [0, 360).
func Normalize(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// SignIndex returns the 0-based sign index for an ecliptic longitude.
func SignIndex(lon float64) int {
	idx := int(Normalize(lon) / SignWidth)
	if idx > 11 {
		idx = 11
	}
	return idx
}

// SignOf returns the sign name for an ecliptic longitude.
func SignOf(lon float64) string {
	return Signs[SignIndex(lon)]
}

// DegreeInSign returns the position within the sign, in [0, 30).
func DegreeInSign(lon float64) float64 {
	return Normalize(lon) - float64(SignIndex(lon))*SignWidth
}

// Separation returns the shortest angular distance between two longitudes, in [0, 180].
func Separation(a, b float64) float64 {
	d := math.Abs(Normalize(a) - Normalize(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// SignedDelta returns b-a wrapped into (-180, 180].
func SignedDelta(a, b float64) float64 {
	d := Normalize(b - a)
	if d > 180 {
		d -= 360
	}
	return d
}

// NatalPoint is one body's position in a reference chart.
type NatalPoint struct {
	Sign      string  `json:"sign"`
	Degree    float64 `json:"degree"`
	Longitude float64 `json:"longitude"`
}

// Chart maps bodies to their reference positions.
type Chart map[Body]NatalPoint

// Point looks up a body, falling back to sign+degree when the absolute longitude is absent.
func (c Chart) Point(b Body) (NatalPoint, bool) {
	p, ok := c[b]
	if !ok {
		return NatalPoint{}, false
	}
	if p.Longitude == 0 && p.Sign != "" {
		for i, name := range Signs {
			if strings.EqualFold(name, p.Sign) {
				p.Longitude = float64(i)*SignWidth + p.Degree
				break
			}
		}
	}
	return p, true
}

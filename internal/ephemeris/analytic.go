package ephemeris

import (
	"context"
	"fmt"
	"math"
	"time"

	"skywatch/internal/astro"
)

const (
	j2000          = 2451545.0
	unixEpochJD    = 2440587.5
	earthRadiusKm  = 6378.14
	keplerTol      = 1e-9
	velocityHalfDt = 12 * time.Hour
	// general precession in longitude, degrees per Julian century
	precessionRate = 1.396971
)

// elements are Keplerian elements at J2000 plus their rates per Julian century:
// a (AU), e, I, L, longitude of perihelion, longitude of ascending node (degrees).
type elements struct {
	a, e, i, l, peri, node       float64
	da, de, di, dl, dperi, dnode float64
}

// Mean elements valid 1800-2050 (JPL approximate positions of the major planets).
var planetElements = map[astro.Body]elements{
	astro.Mercury: {0.38709927, 0.20563593, 7.00497902, 252.25032350, 77.45779628, 48.33076593,
		0.00000037, 0.00001906, -0.00594749, 149472.67411175, 0.16047689, -0.12534081},
	astro.Venus: {0.72333566, 0.00677672, 3.39467605, 181.97909950, 131.60246718, 76.67984255,
		0.00000390, -0.00004107, -0.00078890, 58517.81538729, 0.00268329, -0.27769418},
	"earth": {1.00000261, 0.01671123, -0.00001531, 100.46457166, 102.93768193, 0.0,
		0.00000562, -0.00004392, -0.01294668, 35999.37244981, 0.32327364, 0.0},
	astro.Mars: {1.52371034, 0.09339410, 1.84969142, -4.55343205, -23.94362959, 49.55953891,
		0.00001847, 0.00007882, -0.00813131, 19140.30268499, 0.44441088, -0.29257343},
	astro.Jupiter: {5.20288700, 0.04838624, 1.30439695, 34.39644051, 14.72847983, 100.47390909,
		-0.00011607, -0.00013253, -0.00183714, 3034.74612775, 0.21252668, 0.20469106},
	astro.Saturn: {9.53667594, 0.05386179, 2.48599187, 49.95424423, 92.59887831, 113.66242448,
		-0.00125060, -0.00050991, 0.00193609, 1222.49362201, -0.41897216, -0.28867794},
	astro.Uranus: {19.18916464, 0.04725744, 0.77263783, 313.23810451, 170.95427630, 74.01692503,
		-0.00196176, -0.00004397, -0.00242939, 428.48202785, 0.40805281, 0.04240589},
	astro.Neptune: {30.06992276, 0.00859048, 1.77004347, -55.12002969, 44.96476227, 131.78422574,
		0.00026291, 0.00005105, 0.00035372, 218.45945325, -0.32241464, -0.00508664},
	astro.Pluto: {39.48211675, 0.24882730, 17.14001206, 238.92903833, 224.06891629, 110.30393684,
		-0.00031596, 0.00005170, 0.00004818, 145.20780515, -0.04062942, -0.01183482},
}

// Analytic is a low-precision, dependency-free Provider. Planet positions come from mean
// Keplerian elements; the Moon from a truncated lunar series. Accuracy is a fraction of a
// degree over 1800-2050, enough for sign, phase and station work.
type Analytic struct{}

// NewAnalytic returns an analytic position provider.
func NewAnalytic() *Analytic { return &Analytic{} }

// Position implements Provider.
func (a *Analytic) Position(ctx context.Context, body astro.Body, at time.Time) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	lon, lat, dist, err := a.raw(body, at)
	if err != nil {
		return Position{}, err
	}
	before, _, _, _ := a.raw(body, at.Add(-velocityHalfDt))
	after, _, _, _ := a.raw(body, at.Add(velocityHalfDt))
	days := (2 * velocityHalfDt).Hours() / 24
	return Position{
		Longitude: lon,
		Latitude:  lat,
		Distance:  dist,
		Velocity:  astro.SignedDelta(before, after) / days,
	}, nil
}

func (a *Analytic) raw(body astro.Body, at time.Time) (lon, lat, dist float64, err error) {
	t := julianCenturies(at)
	switch body {
	case astro.Moon:
		lon, lat, dist = moonPosition(t)
		return lon, lat, dist, nil
	case astro.Sun:
		ex, ey, ez := heliocentric(planetElements["earth"], t)
		lon, lat, dist = toSpherical(-ex, -ey, -ez)
	default:
		el, ok := planetElements[body]
		if !ok {
			return 0, 0, 0, fmt.Errorf("unsupported body %q", body)
		}
		px, py, pz := heliocentric(el, t)
		ex, ey, ez := heliocentric(planetElements["earth"], t)
		lon, lat, dist = toSpherical(px-ex, py-ey, pz-ez)
	}
	// elements are referred to the J2000 ecliptic; shift to the equinox of date
	return astro.Normalize(lon + precessionRate*t), lat, dist, nil
}

func julianCenturies(at time.Time) float64 {
	jd := unixEpochJD + float64(at.UTC().UnixNano())/float64(24*time.Hour)
	return (jd - j2000) / 36525
}

func heliocentric(el elements, t float64) (x, y, z float64) {
	a := el.a + el.da*t
	e := el.e + el.de*t
	inc := rad(el.i + el.di*t)
	l := el.l + el.dl*t
	peri := el.peri + el.dperi*t
	node := el.node + el.dnode*t

	omega := rad(peri - node)
	bigOmega := rad(node)
	m := rad(astro.Normalize(l - peri))
	ecc := solveKepler(m, e)

	xp := a * (math.Cos(ecc) - e)
	yp := a * math.Sqrt(1-e*e) * math.Sin(ecc)

	cw, sw := math.Cos(omega), math.Sin(omega)
	cO, sO := math.Cos(bigOmega), math.Sin(bigOmega)
	cI, sI := math.Cos(inc), math.Sin(inc)

	x = (cw*cO-sw*sO*cI)*xp + (-sw*cO-cw*sO*cI)*yp
	y = (cw*sO+sw*cO*cI)*xp + (-sw*sO+cw*cO*cI)*yp
	z = (sw*sI)*xp + (cw*sI)*yp
	return x, y, z
}

func solveKepler(m, e float64) float64 {
	ecc := m + e*math.Sin(m)
	for i := 0; i < 30; i++ {
		delta := (ecc - e*math.Sin(ecc) - m) / (1 - e*math.Cos(ecc))
		ecc -= delta
		if math.Abs(delta) < keplerTol {
			break
		}
	}
	return ecc
}

func toSpherical(x, y, z float64) (lon, lat, dist float64) {
	dist = math.Sqrt(x*x + y*y + z*z)
	lon = astro.Normalize(deg(math.Atan2(y, x)))
	lat = deg(math.Asin(z / dist))
	return lon, lat, dist
}

// moonPosition evaluates the low-precision lunar series (ecliptic of date), returning
// longitude, latitude and distance in kilometres.
func moonPosition(t float64) (lon, lat, dist float64) {
	sinD := func(v float64) float64 { return math.Sin(rad(v)) }
	cosD := func(v float64) float64 { return math.Cos(rad(v)) }

	lon = 218.32 + 481267.881*t +
		6.29*sinD(135.0+477198.87*t) -
		1.27*sinD(259.3-413335.36*t) +
		0.66*sinD(235.7+890534.22*t) +
		0.21*sinD(269.9+954397.74*t) -
		0.19*sinD(357.5+35999.05*t) -
		0.11*sinD(186.5+966404.03*t)

	lat = 5.13*sinD(93.3+483202.02*t) +
		0.28*sinD(228.2+960400.89*t) -
		0.28*sinD(318.3+6003.15*t) -
		0.17*sinD(217.6-407332.21*t)

	parallax := 0.9508 +
		0.0518*cosD(135.0+477198.87*t) +
		0.0095*cosD(259.3-413335.36*t) +
		0.0078*cosD(235.7+890534.22*t) +
		0.0028*cosD(269.9+954397.74*t)

	dist = earthRadiusKm / sinD(parallax)
	return astro.Normalize(lon), lat, dist
}

func rad(d float64) float64 { return d * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

var _ Provider = (*Analytic)(nil)

package solar

import (
	"math"
	"time"
)

// spa.go - Solar Position Algorithm
//
// Pipeline per instant:
//   1. Julian Day / Julian Ephemeris Day / centuries / millennia
//   2. Earth heliocentric longitude, latitude and radius (VSOP87 terms)
//   3. Geocentric longitude and latitude
//   4. Nutation in longitude and obliquity, true obliquity
//   5. Aberration, apparent sun longitude, apparent sidereal time
//   6. Geocentric right ascension and declination
//   7. Observer hour angle and parallax (topocentric RA, dec, hour angle)
//   8. Topocentric elevation and azimuth
//
// Steps 1-6 depend only on the instant and are exposed as Geocentric so that
// callers holding many sites or many gates per ray can share them.

const (
	julianUnixEpoch = 2440587.5 // JD of 1970-01-01T00:00:00Z
	julianJ2000     = 2451545.0
	secondsPerDay   = 86400.0

	earthRadiusM  = 6378140.0
	earthFlatting = 0.99664719 // 1 - f for the parallax terms
)

// JulianDay returns the Julian Day of t. dut1 is UT1-UTC in seconds.
func JulianDay(t time.Time, dut1 float64) float64 {
	sec := float64(t.Unix()) + float64(t.Nanosecond())/1e9 + dut1
	return julianUnixEpoch + sec/secondsPerDay
}

// Geocentric holds the instant-only part of the solution. Angles in degrees.
type Geocentric struct {
	JD  float64 // Julian Day (UT)
	JDE float64 // Julian Ephemeris Day (TT)

	HelioLongitude float64 // L
	HelioLatitude  float64 // B
	Radius         float64 // R, astronomical units

	NutationLongitude float64 // delta psi
	NutationObliquity float64 // delta epsilon
	Obliquity         float64 // true obliquity of the ecliptic

	ApparentLongitude float64 // lambda
	SiderealTime      float64 // apparent sidereal time at Greenwich (nu)

	RightAscension float64 // alpha
	Declination    float64 // delta
}

// ComputeGeocentric runs steps 1-6 for a Julian Day and TT-UT offset deltaT (seconds).
func ComputeGeocentric(jd, deltaT float64) Geocentric {
	jde := jd + deltaT/secondsPerDay
	jc := (jd - julianJ2000) / 36525
	jce := (jde - julianJ2000) / 36525
	jme := jce / 10

	g := Geocentric{JD: jd, JDE: jde}

	g.HelioLongitude = limitDegrees(rad2deg(earthValue(earthL, jme)))
	g.HelioLatitude = rad2deg(earthValue(earthB, jme))
	g.Radius = earthValue(earthR, jme)

	theta := limitDegrees(g.HelioLongitude + 180)
	beta := -g.HelioLatitude

	g.NutationLongitude, g.NutationObliquity = nutation(jce)

	u := jme / 10
	eps0 := 84381.448 + u*(-4680.93+u*(-1.55+u*(1999.25+u*(-51.38+u*(-249.67+
		u*(-39.05+u*(7.12+u*(27.87+u*(5.79+u*2.45)))))))))
	g.Obliquity = eps0/3600 + g.NutationObliquity

	aberration := -20.4898 / (3600 * g.Radius)
	g.ApparentLongitude = theta + g.NutationLongitude + aberration

	nu0 := limitDegrees(280.46061837 + 360.98564736629*(jd-julianJ2000) +
		0.000387933*jc*jc - jc*jc*jc/38710000)
	g.SiderealTime = nu0 + g.NutationLongitude*math.Cos(deg2rad(g.Obliquity))

	lambda := deg2rad(g.ApparentLongitude)
	eps := deg2rad(g.Obliquity)
	b := deg2rad(beta)
	g.RightAscension = limitDegrees(rad2deg(math.Atan2(
		math.Sin(lambda)*math.Cos(eps)-math.Tan(b)*math.Sin(eps), math.Cos(lambda))))
	g.Declination = rad2deg(math.Asin(
		math.Sin(b)*math.Cos(eps) + math.Cos(b)*math.Sin(eps)*math.Sin(lambda)))

	return g
}

// earthValue evaluates a heliocentric series as a polynomial in JME. Radians
// for L and B, AU for R.
func earthValue(groups [][]term, jme float64) float64 {
	var sum, pow float64 = 0, 1
	for _, group := range groups {
		var s float64
		for _, t := range group {
			s += t.A * math.Cos(t.B+t.C*jme)
		}
		sum += s * pow
		pow *= jme
	}
	return sum / 1e8
}

// nutation returns delta psi and delta epsilon in degrees.
func nutation(jce float64) (dpsi, deps float64) {
	jce2 := jce * jce
	jce3 := jce2 * jce
	x := [5]float64{
		297.85036 + 445267.111480*jce - 0.0019142*jce2 + jce3/189474, // mean elongation of the moon
		357.52772 + 35999.050340*jce - 0.0001603*jce2 - jce3/300000,  // mean anomaly of the sun
		134.96298 + 477198.867398*jce + 0.0086972*jce2 + jce3/56250,  // mean anomaly of the moon
		93.27191 + 483202.017538*jce - 0.0036825*jce2 + jce3/327270,  // moon argument of latitude
		125.04452 - 1934.136261*jce + 0.0020708*jce2 + jce3/450000,   // ascending node of the moon
	}

	for i, y := range nutationY {
		var arg float64
		for j := range x {
			arg += x[j] * y[j]
		}
		arg = deg2rad(arg)
		pe := nutationPE[i]
		dpsi += (pe[0] + pe[1]*jce) * math.Sin(arg)
		deps += (pe[2] + pe[3]*jce) * math.Cos(arg)
	}
	return dpsi / 36e6, deps / 36e6
}

// observer caches the location-only terms of the parallax correction.
type observer struct {
	lon            float64
	sinPhi, cosPhi float64
	x, y           float64
}

func newObserver(loc Location) observer {
	phi := deg2rad(loc.Latitude)
	u := math.Atan(earthFlatting * math.Tan(phi))
	h := loc.Elevation / earthRadiusM
	return observer{
		lon:    loc.Longitude,
		sinPhi: math.Sin(phi),
		cosPhi: math.Cos(phi),
		x:      math.Cos(u) + h*math.Cos(phi),
		y:      earthFlatting*math.Sin(u) + h*math.Sin(phi),
	}
}

// topocentric runs steps 7-8. Refraction is left to the caller.
func (g Geocentric) topocentric(obs observer) Position {
	h := deg2rad(limitDegrees(g.SiderealTime + obs.lon - g.RightAscension))
	delta := deg2rad(g.Declination)
	xi := deg2rad(8.794 / (3600 * g.Radius))

	den := math.Cos(delta) - obs.x*math.Sin(xi)*math.Cos(h)
	dAlpha := math.Atan2(-obs.x*math.Sin(xi)*math.Sin(h), den)
	deltaP := math.Atan2((math.Sin(delta)-obs.y*math.Sin(xi))*math.Cos(dAlpha), den)
	hP := h - dAlpha

	e0 := rad2deg(math.Asin(obs.sinPhi*math.Sin(deltaP) + obs.cosPhi*math.Cos(deltaP)*math.Cos(hP)))
	gamma := rad2deg(math.Atan2(math.Sin(hP), math.Cos(hP)*obs.sinPhi-math.Tan(deltaP)*obs.cosPhi))

	return Position{
		Azimuth:        limitDegrees(gamma + 180),
		TrueElevation:  e0,
		Elevation:      e0,
		Zenith:         90 - e0,
		RightAscension: limitDegrees(g.RightAscension + rad2deg(dAlpha)),
		Declination:    rad2deg(deltaP),
		HourAngle:      limitDegrees(rad2deg(hP)),
	}
}

// =============================================================================
// Engine
// =============================================================================

// DeltaTFunc returns TT-UT1 in seconds for an instant.
type DeltaTFunc func(time.Time) float64

// FixedDeltaT returns a DeltaTFunc that always yields seconds.
func FixedDeltaT(seconds float64) DeltaTFunc {
	return func(time.Time) float64 { return seconds }
}

// Engine computes sun positions for one site. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	Atmosphere Atmosphere
	Refraction RefractionModel
	DeltaT     DeltaTFunc // nil selects EstimateDeltaT
	DUT1       float64    // UT1-UTC seconds

	loc Location
	obs observer
}

// NewEngine validates loc and returns an engine using optical refraction and
// the polynomial Delta T estimate.
func NewEngine(loc Location, atm Atmosphere) (*Engine, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		Atmosphere: atm,
		Refraction: RefractionOptical,
		loc:        loc,
		obs:        newObserver(loc),
	}, nil
}

// Location returns the site the engine was built for.
func (e *Engine) Location() Location {
	return e.loc
}

func (e *Engine) deltaT(t time.Time) float64 {
	if e.DeltaT == nil {
		return EstimateDeltaT(t)
	}
	return e.DeltaT(t)
}

// Position returns the apparent sun position at t.
func (e *Engine) Position(t time.Time) (Position, error) {
	if err := ValidateInstant(t); err != nil {
		return Position{}, err
	}
	g := ComputeGeocentric(JulianDay(t, e.DUT1), e.deltaT(t))
	return e.finish(t, g), nil
}

// finish applies the observer and refraction steps to a geocentric solution.
func (e *Engine) finish(t time.Time, g Geocentric) Position {
	p := g.topocentric(e.obs)
	p.Time = t
	if el, err := e.Refraction.Apparent(p.TrueElevation, e.Atmosphere); err == nil {
		p.Elevation = el
		p.Zenith = 90 - el
		p.Refracted = e.Refraction != RefractionNone
	}
	return p
}

// Compute is a one-shot helper: validate, then compute the apparent position
// with the default engine settings.
func Compute(t time.Time, loc Location, atm Atmosphere) (Position, error) {
	e, err := NewEngine(loc, atm)
	if err != nil {
		return Position{}, err
	}
	return e.Position(t)
}

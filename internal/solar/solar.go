// Package solar computes the topocentric position of the sun for a radar site.
// It implements the NREL Solar Position Algorithm (Reda & Andreas 2004/2008)
// together with the atmospheric refraction models used to turn true
// elevations into the apparent elevations a radar antenna actually sees.
package solar

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidGeolocation is returned for coordinates outside the physical range.
	ErrInvalidGeolocation = errors.New("solar: invalid geolocation")

	// ErrInvalidInstant is returned for zero instants or dates outside the
	// validity range of the periodic-term series.
	ErrInvalidInstant = errors.New("solar: invalid instant")

	// ErrRefractionUndefined is returned when a refraction correction is
	// requested outside its valid elevation domain.
	ErrRefractionUndefined = errors.New("solar: refraction undefined")
)

// Supported year range of the algorithm.
const (
	MinYear = -2000
	MaxYear = 6000
)

// =============================================================================
// Site Types
// =============================================================================

// Location is a fixed observer position on the WGS-84 ellipsoid.
type Location struct {
	Latitude  float64 `yaml:"latitude"`  // degrees, positive north
	Longitude float64 `yaml:"longitude"` // degrees, positive east
	Elevation float64 `yaml:"elevation"` // metres above sea level
}

// Validate checks that the location is physically meaningful.
func (l Location) Validate() error {
	switch {
	case !finite(l.Latitude) || l.Latitude < -90 || l.Latitude > 90:
		return fmt.Errorf("%w: latitude %v out of [-90, 90]", ErrInvalidGeolocation, l.Latitude)
	case !finite(l.Longitude) || l.Longitude < -180 || l.Longitude > 180:
		return fmt.Errorf("%w: longitude %v out of [-180, 180]", ErrInvalidGeolocation, l.Longitude)
	case !finite(l.Elevation) || l.Elevation < -500:
		return fmt.Errorf("%w: elevation %v m below -500 m", ErrInvalidGeolocation, l.Elevation)
	}
	return nil
}

// Atmosphere holds the surface conditions used by the refraction models.
type Atmosphere struct {
	Pressure    float64 `yaml:"pressure"`    // hPa
	Temperature float64 `yaml:"temperature"` // degrees Celsius
}

// StandardAtmosphere is used when a site does not report surface conditions.
var StandardAtmosphere = Atmosphere{Pressure: 1010, Temperature: 10}

// =============================================================================
// Position
// =============================================================================

// Position is the sun as seen from a Location at an instant. All angles are
// in degrees. Azimuth is measured eastward from north in [0, 360).
type Position struct {
	Time           time.Time
	Azimuth        float64
	Zenith         float64 // apparent (refracted) zenith angle
	TrueElevation  float64 // topocentric elevation without refraction
	Elevation      float64 // apparent elevation
	RightAscension float64 // topocentric
	Declination    float64 // topocentric
	HourAngle      float64 // topocentric local hour angle
	Refracted      bool    // false when the true elevation is outside the refraction domain
}

// AboveHorizon reports whether the apparent sun is above the local horizon.
func (p Position) AboveHorizon() bool {
	return p.Elevation > 0
}

// ValidateInstant checks that t can be fed to the ephemeris.
func ValidateInstant(t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: zero time", ErrInvalidInstant)
	}
	if y := t.UTC().Year(); y < MinYear || y > MaxYear {
		return fmt.Errorf("%w: year %d out of [%d, %d]", ErrInvalidInstant, y, MinYear, MaxYear)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// limitDegrees wraps an angle into [0, 360).
func limitDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

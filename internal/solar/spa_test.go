package solar

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference case from NREL/TP-560-34302, appendix A5.
var (
	nrelTime     = time.Date(2003, 10, 17, 19, 30, 30, 0, time.UTC)
	nrelLocation = Location{Latitude: 39.742476, Longitude: -105.1786, Elevation: 1830.14}
	nrelAtmos    = Atmosphere{Pressure: 820, Temperature: 11}
)

const nrelDeltaT = 67.0

func TestGeocentricMatchesNRELIntermediates(t *testing.T) {
	g := ComputeGeocentric(JulianDay(nrelTime, 0), nrelDeltaT)

	assert.InDelta(t, 2452930.312847, g.JD, 1e-6)
	assert.InDelta(t, 24.0182616917, g.HelioLongitude, 1e-8)
	assert.InDelta(t, -0.0001011219, g.HelioLatitude, 1e-9)
	assert.InDelta(t, 0.9965422974, g.Radius, 1e-9)
	assert.InDelta(t, -0.00399840, g.NutationLongitude, 1e-7)
	assert.InDelta(t, 0.00166657, g.NutationObliquity, 1e-7)
	assert.InDelta(t, 23.440465, g.Obliquity, 1e-6)
	assert.InDelta(t, 204.0085519, g.ApparentLongitude, 1e-6)
	assert.InDelta(t, 202.22741, g.RightAscension, 1e-5)
	assert.InDelta(t, -9.31434, g.Declination, 1e-5)

	hourAngle := limitDegrees(g.SiderealTime + nrelLocation.Longitude - g.RightAscension)
	assert.InDelta(t, 11.10590, hourAngle, 1e-5)
}

func TestEnginePositionMatchesNREL(t *testing.T) {
	e, err := NewEngine(nrelLocation, nrelAtmos)
	require.NoError(t, err)
	e.DeltaT = FixedDeltaT(nrelDeltaT)

	p, err := e.Position(nrelTime)
	require.NoError(t, err)

	assert.InDelta(t, 194.34024, p.Azimuth, 1e-4)
	assert.InDelta(t, 39.872046, p.TrueElevation, 1e-5)
	// NREL applies the bare Bennett term; the zenith constant adds ~3e-5 deg.
	assert.InDelta(t, 50.11162, p.Zenith, 1e-4)
	assert.True(t, p.Refracted)
	assert.Greater(t, p.Elevation, p.TrueElevation)
	assert.Equal(t, nrelTime, p.Time)
}

var (
	darwin      = Location{Latitude: -12.25, Longitude: 131.04, Elevation: 0}
	darwinAtmos = Atmosphere{Pressure: 1010, Temperature: 10}
)

func TestComputeDarwinEndToEnd(t *testing.T) {
	at := time.Date(2021, 6, 21, 2, 0, 0, 0, time.UTC)

	// Default settings: polynomial Delta T, optical refraction.
	p, err := Compute(at, darwin, darwinAtmos)
	require.NoError(t, err)
	assert.InDelta(t, 28.037, p.Azimuth, 0.01)
	assert.InDelta(t, 49.577, p.TrueElevation, 0.01)
	assert.InDelta(t, 49.592, p.Elevation, 0.01)
	assert.True(t, p.AboveHorizon())
}

func TestEngineDarwinDay(t *testing.T) {
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)
	e.DeltaT = FixedDeltaT(69.3)

	tests := []struct {
		name      string
		at        time.Time
		azimuth   float64
		elevation float64 // true
	}{
		{"0000Z", time.Date(2021, 6, 21, 0, 0, 0, 0, time.UTC), 53.50343, 29.94081},
		{"0130Z", time.Date(2021, 6, 21, 1, 30, 0, 0, time.UTC), 36.43582, 45.65776},
		{"0200Z", time.Date(2021, 6, 21, 2, 0, 0, 0, time.UTC), 28.036647, 49.577377},
		{"0300Z", time.Date(2021, 6, 21, 3, 0, 0, 0, time.UTC), 6.89188, 54.05209},
		{"0400Z", time.Date(2021, 6, 21, 4, 0, 0, 0, time.UTC), 343.78457, 52.83625},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.Position(tt.at)
			require.NoError(t, err)
			assert.InDelta(t, tt.azimuth, p.Azimuth, 1e-4)
			assert.InDelta(t, tt.elevation, p.TrueElevation, 1e-4)
		})
	}
}

func TestDeltaTSensitivity(t *testing.T) {
	at := time.Date(2021, 6, 21, 2, 0, 0, 0, time.UTC)
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)

	e.DeltaT = FixedDeltaT(0)
	p0, err := e.Position(at)
	require.NoError(t, err)

	e.DeltaT = FixedDeltaT(69.3)
	p1, err := e.Position(at)
	require.NoError(t, err)

	assert.InDelta(t, 28.035625, p0.Azimuth, 1e-4)
	assert.InDelta(t, 0.001022, p1.Azimuth-p0.Azimuth, 1e-4)
}

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		ok   bool
	}{
		{"valid", darwin, true},
		{"north pole", Location{Latitude: 90}, true},
		{"dateline", Location{Longitude: -180}, true},
		{"latitude high", Location{Latitude: 90.0001}, false},
		{"latitude low", Location{Latitude: -91}, false},
		{"longitude high", Location{Longitude: 180.5}, false},
		{"elevation too low", Location{Elevation: -600}, false},
		{"nan latitude", Location{Latitude: math.NaN()}, false},
		{"inf elevation", Location{Elevation: math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidGeolocation)

			_, err = Compute(nrelTime, tt.loc, StandardAtmosphere)
			assert.ErrorIs(t, err, ErrInvalidGeolocation)
		})
	}
}

func TestInvalidInstant(t *testing.T) {
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)

	_, err = e.Position(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidInstant)

	_, err = e.Position(time.Date(7000, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrInvalidInstant)
}

func TestSunBelowHorizonIsNotAnError(t *testing.T) {
	// 14:00Z is close to local midnight in Darwin.
	p, err := Compute(time.Date(2021, 6, 21, 14, 0, 0, 0, time.UTC), darwin, darwinAtmos)
	require.NoError(t, err)
	assert.False(t, p.AboveHorizon())
	assert.False(t, p.Refracted)
	assert.Equal(t, p.TrueElevation, p.Elevation)
}

func TestEstimateDeltaT(t *testing.T) {
	at := func(y int, m time.Month) float64 {
		return EstimateDeltaT(time.Date(y, m, 15, 0, 0, 0, 0, time.UTC))
	}

	assert.InDelta(t, 63.8, at(2000, time.January), 0.5)
	assert.InDelta(t, 72.4, at(2021, time.June), 0.5)
	assert.InDelta(t, 45.5, at(1975, time.January), 0.5)

	// Adjacent spans join without large steps.
	assert.InDelta(t, at(2004, time.December), at(2005, time.January), 0.5)
	assert.InDelta(t, at(2049, time.December), at(2050, time.January), 1.0)
}

func TestJulianDaySubSecond(t *testing.T) {
	base := time.Date(2021, 6, 21, 2, 0, 0, 0, time.UTC)
	jd0 := JulianDay(base, 0)
	jd1 := JulianDay(base.Add(500*time.Millisecond), 0)
	assert.InDelta(t, 0.5/secondsPerDay, jd1-jd0, 1e-9)
	assert.InDelta(t, 0.3/secondsPerDay, JulianDay(base, 0.3)-jd0, 1e-9)
}

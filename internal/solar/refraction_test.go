package solar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefractionMonotonicAndNonNegative(t *testing.T) {
	atmospheres := []Atmosphere{
		StandardAtmosphere,
		{Pressure: 820, Temperature: 11},
		{Pressure: 1040, Temperature: -30},
		{Pressure: 990, Temperature: 40},
	}

	for _, atm := range atmospheres {
		prev := math.Inf(1)
		for i := 0; i <= 9099; i++ {
			h := MinRefractionElevation + float64(i)*0.01
			r, err := Refraction(h, atm)
			require.NoError(t, err, "h=%v", h)
			require.Less(t, r, prev, "correction must decrease at h=%v atm=%+v", h, atm)
			require.GreaterOrEqual(t, r, 0.0)

			app, err := ApparentElevation(h, atm)
			require.NoError(t, err)
			require.GreaterOrEqual(t, app, h)
			prev = r
		}

		r, err := Refraction(MaxRefractionElevation, atm)
		require.NoError(t, err)
		assert.InDelta(t, 0, r, 1e-7)
	}
}

func TestRefractionKnownValues(t *testing.T) {
	// Horizon refraction is a little over half a degree at standard conditions.
	r, err := Refraction(0, StandardAtmosphere)
	require.NoError(t, err)
	assert.InDelta(t, 0.48, r, 0.02)

	r, err = Refraction(45, StandardAtmosphere)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/60, r, 0.1/60)
}

func TestRefractionUndefinedOutsideDomain(t *testing.T) {
	for _, h := range []float64{-1.01, -5, 90.01, 120, math.NaN()} {
		_, err := Refraction(h, StandardAtmosphere)
		assert.ErrorIs(t, err, ErrRefractionUndefined, "h=%v", h)

		_, err = RadioRefraction(h, RadioRefractiveIndex, RadioEarthModel)
		assert.ErrorIs(t, err, ErrRefractionUndefined, "h=%v", h)

		app, err := RefractionNone.Apparent(h, StandardAtmosphere)
		assert.ErrorIs(t, err, ErrRefractionUndefined)
		if !math.IsNaN(h) {
			assert.Equal(t, h, app)
		}
	}
}

func TestRadioRefractionMonotonic(t *testing.T) {
	prev := math.Inf(1)
	for i := 0; i <= 910; i++ {
		h := MinRefractionElevation + float64(i)*0.1
		if h > MaxRefractionElevation {
			h = MaxRefractionElevation
		}
		r, err := RadioRefraction(h, RadioRefractiveIndex, RadioEarthModel)
		require.NoError(t, err)
		require.GreaterOrEqual(t, r, 0.0)
		require.Less(t, r, prev, "h=%v", h)
		prev = r
	}
}

func TestRadioRefractionHorizon(t *testing.T) {
	// (k-1) * sqrt(2 (n0-1) / (k-1)) at zero elevation.
	want := rad2deg(0.25 * math.Sqrt(2*0.000313/0.25))
	r, err := RadioRefraction(0, RadioRefractiveIndex, RadioEarthModel)
	require.NoError(t, err)
	assert.InDelta(t, want, r, 1e-12)
}

func TestRefractionModel(t *testing.T) {
	assert.True(t, RefractionOptical.Valid())
	assert.True(t, RefractionRadio.Valid())
	assert.True(t, RefractionNone.Valid())
	assert.False(t, RefractionModel("laser").Valid())

	r, err := RefractionNone.Correction(10, StandardAtmosphere)
	require.NoError(t, err)
	assert.Zero(t, r)

	opt, err := RefractionOptical.Correction(10, StandardAtmosphere)
	require.NoError(t, err)
	rad, err := RefractionRadio.Correction(10, StandardAtmosphere)
	require.NoError(t, err)
	assert.Positive(t, opt)
	assert.Positive(t, rad)
}

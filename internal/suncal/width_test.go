package suncal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveScanWidth(t *testing.T) {
	tests := []struct {
		theta, step float64
		want        float64
	}{
		{1, 0, 1},
		{1, 0.1, 1.002312},
		{1, 0.5, 1.058674},
		{1, 1, 1.241279},
		{1, 2, 1.916571},
	}
	for _, tt := range tests {
		got, err := EffectiveScanWidth(tt.theta, tt.step)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-5, "theta %v step %v", tt.theta, tt.step)
	}
}

func TestEffectiveScanWidthScales(t *testing.T) {
	// the equation depends on step/theta only
	w1, err := EffectiveScanWidth(1, 0.5)
	require.NoError(t, err)
	w2, err := EffectiveScanWidth(2, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2*w1, w2, 1e-9)

	prev := 0.0
	for step := 0.0; step <= 3; step += 0.25 {
		w, err := EffectiveScanWidth(0.9, step)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, w, 0.9)
		assert.Greater(t, w, prev)
		prev = w
	}
}

func TestEffectiveScanWidthInvalid(t *testing.T) {
	for _, c := range [][2]float64{{0, 1}, {-1, 1}, {math.NaN(), 1}, {1, -0.1}, {1, math.Inf(1)}} {
		_, err := EffectiveScanWidth(c[0], c[1])
		assert.ErrorIs(t, err, ErrInvalidConfig, "theta %v step %v", c[0], c[1])
	}
}

package suncal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPowerFromReflectivity(t *testing.T) {
	assert.InDelta(t, -90.3897, PowerFromReflectivity(10, 100e3, 0.017), 1e-4)
	assert.InDelta(t, -86.9897, PowerFromReflectivity(10, 100e3, 0), 1e-4)

	// farther gates of the same solar noise show a higher reflectivity
	near := PowerFromReflectivity(10, 60e3, 0.017)
	far := PowerFromReflectivity(10+20*math.Log10(2)+2*0.017*60, 120e3, 0.017)
	assert.InDelta(t, near, far, 1e-9)

	assert.True(t, math.IsNaN(PowerFromReflectivity(10, 0, 0)))
	assert.True(t, math.IsNaN(PowerFromReflectivity(10, -5, 0)))
}

func TestGetBand(t *testing.T) {
	tests := []struct {
		freq float64
		id   int32
		name string
	}{
		{2.8, BandS, "S"},
		{5.625, BandC, "C"},
		{9.41, BandX, "X"},
		{35, BandKa, "Ka"},
		{94, BandW, "W"},
		{4, BandC, "C"},
		{0.001, BandUnknown, ""},
		{200, BandUnknown, ""},
	}
	for _, tt := range tests {
		id, name := GetBand(tt.freq)
		assert.Equal(t, tt.id, id, "freq %v", tt.freq)
		assert.Equal(t, tt.name, name, "freq %v", tt.freq)
	}

	info, ok := GetBandByID(BandC)
	assert.True(t, ok)
	assert.Equal(t, 4.0, info.MinFreqGHz)
	_, ok = GetBandByID(99)
	assert.False(t, ok)
}

package solar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayContextMatchesEngine(t *testing.T) {
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)
	e.DeltaT = FixedDeltaT(69.3)

	day := time.Date(2021, 6, 21, 0, 0, 0, 0, time.UTC)
	dc := e.NewDayContext(day.Add(5 * time.Hour))
	assert.Equal(t, day, dc.Day())
	assert.Equal(t, 69.3, dc.DeltaT())

	for m := 0; m < 6*60; m += 7 {
		at := day.Add(time.Duration(m)*time.Minute + 250*time.Millisecond)
		want, err := e.Position(at)
		require.NoError(t, err)
		got, err := dc.Position(at)
		require.NoError(t, err)
		assert.Equal(t, want, got, "minute %d", m)
	}
}

func TestDayContextMemoizesRepeatedInstants(t *testing.T) {
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)

	at := time.Date(2021, 6, 21, 2, 0, 0, 0, time.UTC)
	dc := e.NewDayContext(at)

	first, err := dc.Position(at)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := dc.Position(at)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	hits, misses := dc.CacheStats()
	assert.Equal(t, uint64(10), hits)
	assert.Equal(t, uint64(1), misses)

	dc.Reset(at.Add(24 * time.Hour))
	hits, misses = dc.CacheStats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
	assert.False(t, dc.Contains(at))
	assert.True(t, dc.Contains(at.Add(24*time.Hour)))
}

func TestDayContextEstimatedDeltaTIsClose(t *testing.T) {
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)

	at := time.Date(2021, 6, 21, 3, 0, 0, 0, time.UTC)
	dc := e.NewDayContext(at)

	want, err := e.Position(at)
	require.NoError(t, err)
	got, err := dc.Position(at)
	require.NoError(t, err)

	assert.InDelta(t, want.Azimuth, got.Azimuth, 1e-6)
	assert.InDelta(t, want.Elevation, got.Elevation, 1e-6)
}

func TestDayContextRejectsInvalidInstant(t *testing.T) {
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)

	dc := e.NewDayContext(time.Date(2021, 6, 21, 0, 0, 0, 0, time.UTC))
	_, err = dc.Position(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidInstant)
}

func TestDayContextSharesOnlyDeltaT(t *testing.T) {
	e, err := NewEngine(darwin, darwinAtmos)
	require.NoError(t, err)
	e.DeltaT = FixedDeltaT(69.3)

	at := time.Date(2021, 6, 21, 2, 0, 0, 0, time.UTC)
	dc := e.NewDayContext(at)
	for i := 0; i < 3; i++ {
		ts := at.Add(time.Duration(i) * time.Millisecond)
		want, err := e.Position(ts)
		require.NoError(t, err)
		got, err := dc.Position(ts)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	hits, misses := dc.CacheStats()
	assert.Zero(t, hits)
	assert.Equal(t, uint64(3), misses)
}

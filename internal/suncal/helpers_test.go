package suncal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KI7MT/radar-suncal/internal/solar"
)

// beam describes a synthetic Gaussian sun image.
type beam struct {
	x0, y0 float64 // true offsets, degrees
	p0     float64 // peak power, dB
	wAz    float64 // widths, degrees
	wEl    float64
}

func (b beam) power(dx, dy float64) float64 {
	ux := (dx - b.x0) / b.wAz
	uy := (dy - b.y0) / b.wEl
	return b.p0 - BeamShapeDB*(ux*ux+uy*uy)
}

// grid returns the offsets of an n x n raster over +/-span degrees.
func grid(n int, span float64) (dx, dy []float64) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dx = append(dx, -span+2*span*float64(j)/float64(n-1))
			dy = append(dy, -span+2*span*float64(i)/float64(n-1))
		}
	}
	return dx, dy
}

// gridHit builds a noise-free hit directly in offset space.
func gridHit(b beam, n int, span float64, dualPol bool, zdr float64) *SunHit {
	dx, dy := grid(n, span)
	base := time.Date(2021, 6, 21, 9, 0, 0, 0, time.UTC).UnixNano()
	h := &SunHit{SweepID: "grid"}
	if dualPol {
		h.PowerV = []float64{}
	}
	for i := range dx {
		p := b.power(dx[i], dy[i])
		h.Index = append(h.Index, i)
		h.Time = append(h.Time, base+int64(i)*int64(50*time.Millisecond))
		h.DeltaAz = append(h.DeltaAz, dx[i])
		h.DeltaEl = append(h.DeltaEl, dy[i])
		h.PowerH = append(h.PowerH, p)
		if dualPol {
			h.PowerV = append(h.PowerV, p-zdr)
		}
		h.SunAzimuth = append(h.SunAzimuth, 300)
		h.SunElevation = append(h.SunElevation, 5)
	}
	return h
}

// darwin is the reference site used by the end-to-end tests.
var darwin = solar.Location{Latitude: -12.25, Longitude: 131.04, Elevation: 0}

func darwinEngine(t *testing.T) *solar.Engine {
	t.Helper()
	e, err := solar.NewEngine(darwin, solar.StandardAtmosphere)
	require.NoError(t, err)
	e.DeltaT = solar.FixedDeltaT(69.3)
	return e
}

// lowSunTime returns the first whole minute of the day at which the sun's
// apparent elevation lies in [lo, hi].
func lowSunTime(t *testing.T, e *solar.Engine, day time.Time, lo, hi float64) time.Time {
	t.Helper()
	for m := 0; m < 24*60; m++ {
		ts := day.Add(time.Duration(m) * time.Minute)
		p, err := e.Position(ts)
		require.NoError(t, err)
		if p.Elevation >= lo && p.Elevation <= hi {
			return ts
		}
	}
	t.Fatalf("sun never between %.1f and %.1f deg on %s", lo, hi, day.Format("2006-01-02"))
	return time.Time{}
}

// rasterSweep builds a sweep whose antenna rasters +/-span degrees around
// the true sun. The antenna points at sun minus offset, so the detected
// offsets reproduce the raster exactly.
func rasterSweep(t *testing.T, e *solar.Engine, id string, start time.Time, b beam, n int, span, zdr float64) Sweep {
	t.Helper()
	dc := e.NewDayContext(start)
	dx, dy := grid(n, span)
	batch := NewSampleBatch(len(dx), true)
	for i := range dx {
		ts := start.Add(time.Duration(i) * 50 * time.Millisecond)
		p, err := dc.Position(ts)
		require.NoError(t, err)
		pw := b.power(dx[i], dy[i])
		batch.Add(ts, p.Azimuth-dx[i], p.Elevation-dy[i], pw, pw-zdr)
	}
	return Sweep{ID: id, Start: start, Samples: batch}
}

// fixedSun returns a SunFunc pinned to one direction.
func fixedSun(az, el float64) SunFunc {
	return func(time.Time) (solar.Position, error) {
		return solar.Position{Azimuth: az, Elevation: el, TrueElevation: el}, nil
	}
}

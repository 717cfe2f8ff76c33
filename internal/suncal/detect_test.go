package suncal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/radar-suncal/internal/solar"
)

var detectBase = time.Date(2021, 6, 21, 9, 0, 0, 0, time.UTC)

func newTestDetector(t *testing.T, mutate func(*Config)) *Detector {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MinClusterSize = 4
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDetector(cfg)
	require.NoError(t, err)
	return d
}

// ray is one synthetic sample: offset from the start and pointing.
type ray struct {
	at     time.Duration
	az, el float64
}

func sweepOf(rays ...ray) *Sweep {
	b := NewSampleBatch(len(rays), false)
	for _, r := range rays {
		b.Add(detectBase.Add(r.at), r.az, r.el, -100, 0)
	}
	return &Sweep{ID: "s1", Start: detectBase, Samples: b}
}

// raysAt returns n rays at 100 ms spacing starting at from, all pointing at el.
func raysAt(from time.Duration, n int, az, el float64) []ray {
	out := make([]ray, n)
	for i := range out {
		out[i] = ray{at: from + time.Duration(i)*100*time.Millisecond, az: az, el: el}
	}
	return out
}

func TestDetectEmptySweep(t *testing.T) {
	d := newTestDetector(t, nil)
	res, err := d.Detect(sweepOf(), fixedSun(100, 5))
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.Zero(t, res.Candidates)
}

func TestDetectNoSamplesInWindow(t *testing.T) {
	d := newTestDetector(t, nil)
	res, err := d.Detect(sweepOf(raysAt(0, 20, 200, 5)...), fixedSun(100, 5))
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.Zero(t, res.Candidates)
}

func TestDetectWindowBoundary(t *testing.T) {
	d := newTestDetector(t, nil) // 3 deg window

	inside := append(raysAt(0, 3, 100, 5), ray{at: 300 * time.Millisecond, az: 100, el: 8})
	res, err := d.Detect(sweepOf(inside...), fixedSun(100, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 4, res.Hits[0].Len())
	assert.InDelta(t, -3, res.Hits[0].DeltaEl[3], 1e-12)

	outside := append(raysAt(0, 3, 100, 5), ray{at: 300 * time.Millisecond, az: 100, el: 8 + 1e-6})
	res, err = d.Detect(sweepOf(outside...), fixedSun(100, 5))
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 3, res.Dropped)
}

func TestDetectGapSplitsClusters(t *testing.T) {
	d := newTestDetector(t, nil) // 2 s max gap

	rays := append(raysAt(0, 5, 100, 5), raysAt(5*time.Second, 5, 100, 5)...)
	res, err := d.Detect(sweepOf(rays...), fixedSun(100, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, res.Hits[0].Index)
	assert.Equal(t, []int{5, 6, 7, 8, 9}, res.Hits[1].Index)

	// a gap of exactly MaxGap keeps the cluster together
	rays = append(raysAt(0, 5, 100, 5), raysAt(400*time.Millisecond+2*time.Second, 5, 100, 5)...)
	res, err = d.Detect(sweepOf(rays...), fixedSun(100, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 10, res.Hits[0].Len())
}

func TestDetectNonCandidateSeparation(t *testing.T) {
	rays := append(raysAt(0, 4, 100, 5), ray{at: 400 * time.Millisecond, az: 150, el: 5})
	rays = append(rays, raysAt(500*time.Millisecond, 4, 100, 5)...)

	res, err := newTestDetector(t, nil).Detect(sweepOf(rays...), fixedSun(100, 5))
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)

	bridged := newTestDetector(t, func(c *Config) { c.BridgeNonCandidates = true })
	res, err = bridged.Detect(sweepOf(rays...), fixedSun(100, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 5, 6, 7, 8}, res.Hits[0].Index)
}

func TestDetectDuplicateTimestamps(t *testing.T) {
	// gates of one ray share a timestamp and stay in one cluster even when
	// a gate between them misses the window
	rays := []ray{
		{0, 100, 5}, {0, 100, 5.1}, {0, 150, 5}, {0, 100, 5.2}, {0, 100, 5.3},
	}
	res, err := newTestDetector(t, nil).Detect(sweepOf(rays...), fixedSun(100, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, []int{0, 1, 3, 4}, res.Hits[0].Index)
}

func TestDetectDropsSmallClusters(t *testing.T) {
	d := newTestDetector(t, func(c *Config) { c.MinClusterSize = 6 })
	rays := append(raysAt(0, 5, 100, 5), raysAt(10*time.Second, 6, 100, 5)...)

	res, err := d.Detect(sweepOf(rays...), fixedSun(100, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 6, res.Hits[0].Len())
	assert.Equal(t, 5, res.Dropped)
	assert.Equal(t, 11, res.Candidates)
}

func TestDetectDoesNotMutateInput(t *testing.T) {
	s := sweepOf(raysAt(0, 12, 100.5, 5.5)...)
	s.Samples.PowerH[3] = -95
	before := s.Samples.Clone()

	_, err := newTestDetector(t, nil).Detect(s, fixedSun(100, 5))
	require.NoError(t, err)
	assert.Equal(t, before, s.Samples)
}

func TestDetectOffsetSign(t *testing.T) {
	d := newTestDetector(t, nil)

	res, err := d.Detect(sweepOf(raysAt(0, 4, 99, 4.5)...), fixedSun(100, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.InDelta(t, 1, res.Hits[0].DeltaAz[0], 1e-12)
	assert.InDelta(t, 0.5, res.Hits[0].DeltaEl[0], 1e-12)

	// across north
	res, err = d.Detect(sweepOf(raysAt(0, 4, 359.5, 5)...), fixedSun(0.5, 5))
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.InDelta(t, 1, res.Hits[0].DeltaAz[0], 1e-12)
}

func TestDetectCountsFailedPositions(t *testing.T) {
	d := newTestDetector(t, nil)
	bad := detectBase.Add(200 * time.Millisecond)
	sun := func(ts time.Time) (solar.Position, error) {
		if ts.Equal(bad) {
			return solar.Position{}, solar.ErrInvalidInstant
		}
		return solar.Position{Azimuth: 100, Elevation: 5}, nil
	}

	res, err := d.Detect(sweepOf(raysAt(0, 10, 100, 5)...), sun)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 9, res.Candidates)
}

func TestDetectRejectsRaggedBatch(t *testing.T) {
	s := sweepOf(raysAt(0, 5, 100, 5)...)
	s.Samples.Azimuth = s.Samples.Azimuth[:3]
	_, err := newTestDetector(t, nil).Detect(s, fixedSun(100, 5))
	assert.ErrorIs(t, err, ErrInvalidSweep)
}

func TestInScope(t *testing.T) {
	d := newTestDetector(t, nil) // max 10 deg, margin 2 deg
	s := sweepOf(raysAt(0, 2, 100, 5)...)
	first, last := s.Span()

	tests := []struct {
		name        string
		elFirst     float64
		elLast      float64
		wantInScope bool
	}{
		{"below at both ends", -3, -2.5, false},
		{"rising through margin", -3, -1, true},
		{"low sun", 4, 5, true},
		{"just above max plus margin", 12.5, 13, false},
		{"setting into range", 13, 11.9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sun := func(ts time.Time) (solar.Position, error) {
				switch {
				case ts.Equal(first):
					return solar.Position{Elevation: tt.elFirst}, nil
				case ts.Equal(last):
					return solar.Position{Elevation: tt.elLast}, nil
				}
				return solar.Position{}, errors.New("unexpected instant")
			}
			ok, err := d.InScope(s, sun)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInScope, ok)
		})
	}
}

func TestAngularDistance(t *testing.T) {
	tests := []struct {
		name               string
		az1, el1, az2, el2 float64
		want               float64
	}{
		{"same point", 10, 20, 10, 20, 0},
		{"along meridian", 100, 5, 100, 8, 3},
		{"horizon azimuth", 10, 0, 13, 0, 3},
		{"across north", 359, 0, 1, 0, 2},
		{"zenith", 0, 90, 180, 89, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AngularDistance(tt.az1, tt.el1, tt.az2, tt.el2), 1e-9)
		})
	}
}

func TestWrapDegrees(t *testing.T) {
	for in, want := range map[float64]float64{
		0: 0, 179: 179, 180: -180, -180: -180, 359: -1, -359: 1, 720.5: 0.5,
	} {
		assert.InDelta(t, want, WrapDegrees(in), 1e-12, "in %v", in)
	}
}

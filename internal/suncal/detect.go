package suncal

import (
	"math"
	"time"

	"github.com/KI7MT/radar-suncal/internal/solar"
)

// =============================================================================
// Hit Detection
// =============================================================================

// SunFunc returns the apparent sun position at an instant. A
// solar.DayContext's Position method is the usual implementation.
type SunFunc func(time.Time) (solar.Position, error)

// windowTolerance absorbs rounding in the distance formula so that a sample
// placed exactly on the window edge is reliably inside it.
const windowTolerance = 1e-9

// Detector flags and clusters the samples of a sweep that look at the sun.
//
// Window convention: a sample is a candidate when its great-circle distance
// to the sun is <= WindowDeg (inclusive).
//
// Gap convention: consecutive candidates belong to the same cluster when
// their time difference is <= MaxGap and, unless BridgeNonCandidates is set,
// no non-candidate sample lies between them. Candidates sharing a timestamp
// (gates of one ray) are always contiguous.
type Detector struct {
	window   float64
	minSize  int
	maxGap   int64
	bridge   bool
	maxSunEl float64
	margin   float64
}

// NewDetector validates cfg and returns a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		window:   cfg.WindowDeg,
		minSize:  cfg.MinClusterSize,
		maxGap:   int64(cfg.MaxGap.Std()),
		bridge:   cfg.BridgeNonCandidates,
		maxSunEl: cfg.MaxSunElevationDeg,
		margin:   cfg.HorizonMarginDeg,
	}, nil
}

// InScope reports whether the sun can be in view during the sweep. The sun
// is checked at the first and last sample; the sweep is out of scope when
// at both instants it is below -margin or above the maximum elevation plus
// margin.
func (d *Detector) InScope(sweep *Sweep, sun SunFunc) (bool, error) {
	first, last := sweep.Span()
	p0, err := sun(first)
	if err != nil {
		return false, err
	}
	p1, err := sun(last)
	if err != nil {
		return false, err
	}

	below := p0.Elevation < -d.margin && p1.Elevation < -d.margin
	above := p0.Elevation > d.maxSunEl+d.margin && p1.Elevation > d.maxSunEl+d.margin
	return !below && !above, nil
}

// DetectResult is the outcome of scanning one sweep.
type DetectResult struct {
	Hits       []SunHit
	Candidates int // samples inside the window
	Dropped    int // candidates in clusters below the minimum size
	Failed     int // samples whose sun position could not be computed
}

// Detect scans the sweep in sample order and returns the qualifying
// clusters. An empty result is normal. The sweep is never modified.
func (d *Detector) Detect(sweep *Sweep, sun SunFunc) (DetectResult, error) {
	var res DetectResult
	b := sweep.Samples
	if b.Len() == 0 {
		return res, nil
	}
	if err := b.Validate(); err != nil {
		return res, err
	}

	var cur *SunHit
	lastCand := -1

	closeCluster := func() {
		if cur == nil {
			return
		}
		if cur.Len() >= d.minSize {
			res.Hits = append(res.Hits, *cur)
		} else {
			res.Dropped += cur.Len()
		}
		cur = nil
	}

	for i := 0; i < b.Len(); i++ {
		p, err := sun(time.Unix(0, b.Time[i]).UTC())
		if err != nil {
			res.Failed++
			continue
		}

		dist := AngularDistance(b.Azimuth[i], b.Elevation[i], p.Azimuth, p.Elevation)
		if dist > d.window+windowTolerance {
			continue
		}
		res.Candidates++

		if cur != nil && !d.contiguous(b, lastCand, i) {
			closeCluster()
		}
		if cur == nil {
			cur = &SunHit{SweepID: sweep.ID}
			if b.HasV() {
				cur.PowerV = []float64{}
			}
		}

		cur.Index = append(cur.Index, i)
		cur.Time = append(cur.Time, b.Time[i])
		cur.DeltaAz = append(cur.DeltaAz, WrapDegrees(p.Azimuth-b.Azimuth[i]))
		cur.DeltaEl = append(cur.DeltaEl, p.Elevation-b.Elevation[i])
		cur.PowerH = append(cur.PowerH, b.PowerH[i])
		if b.HasV() {
			cur.PowerV = append(cur.PowerV, b.PowerV[i])
		}
		cur.SunAzimuth = append(cur.SunAzimuth, p.Azimuth)
		cur.SunElevation = append(cur.SunElevation, p.Elevation)
		lastCand = i
	}
	closeCluster()

	return res, nil
}

// contiguous reports whether candidate j continues the cluster ending at
// candidate i.
func (d *Detector) contiguous(b *SampleBatch, i, j int) bool {
	gap := b.Time[j] - b.Time[i]
	if gap == 0 {
		return true
	}
	if gap < 0 || gap > d.maxGap {
		return false
	}
	return d.bridge || j == i+1
}

// AngularDistance returns the great-circle separation in degrees between
// two (azimuth, elevation) directions, using the haversine form which stays
// accurate for the sub-degree separations that matter here.
func AngularDistance(az1, el1, az2, el2 float64) float64 {
	phi1 := el1 * math.Pi / 180
	phi2 := el2 * math.Pi / 180
	dPhi := phi2 - phi1
	dLam := (az2 - az1) * math.Pi / 180

	s := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLam/2)*math.Sin(dLam/2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(s))) * 180 / math.Pi
}

// WrapDegrees maps an angle difference into [-180, 180).
func WrapDegrees(d float64) float64 {
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

// Package suncal derives antenna pointing and receiver power biases of a
// weather radar from solar interference.
//
// Architecture:
//
//	SampleBatch -> Detector (solar.DayContext) -> SunHit clusters
//	            -> Fitter (beam-pattern regression) -> CalibrationEstimate
//	            -> Aggregator (daily median/MAD) -> CalibrationSeries
//
// The core never blocks on I/O and never mutates its input samples. All
// per-sweep work is a pure function of the sweep, the site and the Config.
package suncal

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// Antenna Samples - columnar layout
// =============================================================================

// SampleBatch is a columnar block of antenna samples for one sweep. The
// columns are parallel slices; index i of every column is one ray (or gate).
// PowerV may be nil for single-polarisation radars; missing powers are NaN.
type SampleBatch struct {
	Time      []int64   // UTC, Unix nanoseconds
	Azimuth   []float64 // measured antenna azimuth, degrees
	Elevation []float64 // measured antenna elevation, degrees
	PowerH    []float64 // horizontal channel noise power, dB
	PowerV    []float64 // vertical channel noise power, dB
}

// NewSampleBatch creates an empty batch with the given capacity. The V column
// is only allocated for dual-polarisation data.
func NewSampleBatch(capacity int, dualPol bool) *SampleBatch {
	b := &SampleBatch{
		Time:      make([]int64, 0, capacity),
		Azimuth:   make([]float64, 0, capacity),
		Elevation: make([]float64, 0, capacity),
		PowerH:    make([]float64, 0, capacity),
	}
	if dualPol {
		b.PowerV = make([]float64, 0, capacity)
	}
	return b
}

// Len returns the number of samples.
func (b *SampleBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Time)
}

// Reset empties the batch without releasing its storage.
func (b *SampleBatch) Reset() {
	b.Time = b.Time[:0]
	b.Azimuth = b.Azimuth[:0]
	b.Elevation = b.Elevation[:0]
	b.PowerH = b.PowerH[:0]
	if b.PowerV != nil {
		b.PowerV = b.PowerV[:0]
	}
}

// Add appends one sample. powerV is ignored for single-polarisation batches.
func (b *SampleBatch) Add(t time.Time, az, el, powerH, powerV float64) {
	b.Time = append(b.Time, t.UnixNano())
	b.Azimuth = append(b.Azimuth, az)
	b.Elevation = append(b.Elevation, el)
	b.PowerH = append(b.PowerH, powerH)
	if b.PowerV != nil {
		b.PowerV = append(b.PowerV, powerV)
	}
}

// At returns sample i as a value.
func (b *SampleBatch) At(i int) Sample {
	s := Sample{
		Time:      time.Unix(0, b.Time[i]).UTC(),
		Azimuth:   b.Azimuth[i],
		Elevation: b.Elevation[i],
		PowerH:    b.PowerH[i],
		PowerV:    math.NaN(),
	}
	if b.PowerV != nil {
		s.PowerV = b.PowerV[i]
	}
	return s
}

// Clone returns a deep copy of the batch.
func (b *SampleBatch) Clone() *SampleBatch {
	c := &SampleBatch{
		Time:      append([]int64(nil), b.Time...),
		Azimuth:   append([]float64(nil), b.Azimuth...),
		Elevation: append([]float64(nil), b.Elevation...),
		PowerH:    append([]float64(nil), b.PowerH...),
	}
	if b.PowerV != nil {
		c.PowerV = append([]float64(nil), b.PowerV...)
	}
	return c
}

// HasV reports whether the batch carries a vertical channel.
func (b *SampleBatch) HasV() bool {
	return b.PowerV != nil
}

// Validate checks that the batch exists and all columns have the same length.
func (b *SampleBatch) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: no sample batch", ErrInvalidSweep)
	}
	n := len(b.Time)
	if len(b.Azimuth) != n || len(b.Elevation) != n || len(b.PowerH) != n {
		return fmt.Errorf("%w: column lengths time=%d az=%d el=%d h=%d",
			ErrInvalidSweep, n, len(b.Azimuth), len(b.Elevation), len(b.PowerH))
	}
	if b.PowerV != nil && len(b.PowerV) != n {
		return fmt.Errorf("%w: column lengths time=%d v=%d", ErrInvalidSweep, n, len(b.PowerV))
	}
	return nil
}

// Sample is one row of a SampleBatch.
type Sample struct {
	Time      time.Time
	Azimuth   float64
	Elevation float64
	PowerH    float64
	PowerV    float64
}

// Sweep is one antenna sweep (PPI) as delivered by ingest.
type Sweep struct {
	ID      string
	Start   time.Time // sweep start, UTC
	Samples *SampleBatch
}

// Span returns the first and last sample instants, or Start twice for an
// empty sweep.
func (s *Sweep) Span() (first, last time.Time) {
	n := s.Samples.Len()
	if n == 0 {
		return s.Start, s.Start
	}
	lo, hi := s.Samples.Time[0], s.Samples.Time[0]
	for _, t := range s.Samples.Time[1:] {
		lo = min(lo, t)
		hi = max(hi, t)
	}
	return time.Unix(0, lo).UTC(), time.Unix(0, hi).UTC()
}

// =============================================================================
// Solar Hits
// =============================================================================

// SunHit is a time-contiguous cluster of samples close to the sun. Offsets
// are sun minus antenna, so a positive DeltaAz means the sun was clockwise
// of where the antenna pointed.
type SunHit struct {
	SweepID string
	Index   []int   // positions in the source SampleBatch
	Time    []int64 // Unix nanoseconds
	DeltaAz []float64
	DeltaEl []float64
	PowerH  []float64
	PowerV  []float64 // nil when the source batch has no V channel

	SunAzimuth   []float64
	SunElevation []float64
}

// Len returns the number of samples in the hit.
func (h *SunHit) Len() int {
	return len(h.Index)
}

// Start returns the instant of the first sample, or the zero time for a hit
// without timestamps.
func (h *SunHit) Start() time.Time {
	if len(h.Time) == 0 {
		return time.Time{}
	}
	return time.Unix(0, h.Time[0]).UTC()
}

// End returns the instant of the last sample.
func (h *SunHit) End() time.Time {
	if len(h.Time) == 0 {
		return time.Time{}
	}
	return time.Unix(0, h.Time[len(h.Time)-1]).UTC()
}

// Mid returns the midpoint between first and last sample.
func (h *SunHit) Mid() time.Time {
	if len(h.Time) == 0 {
		return time.Time{}
	}
	first, last := h.Time[0], h.Time[len(h.Time)-1]
	return time.Unix(0, first+(last-first)/2).UTC()
}

// =============================================================================
// Fit Results
// =============================================================================

// ChannelFit is the beam-pattern solution for one polarisation channel.
// Offsets are in degrees; powers in dB.
type ChannelFit struct {
	Model       FitModel
	AzOffset    float64 // fitted Delta az0
	ElOffset    float64 // fitted Delta el0
	PeakPower   float64 // P0
	WidthAz     float64 // effective width used (3p) or fitted (5p)
	WidthEl     float64
	ResidualRMS float64
	RSquared    float64
	Samples     int // samples kept after outlier rejection
	Rejected    int
}

// CalibrationEstimate is the per-hit result handed to aggregation and storage.
type CalibrationEstimate struct {
	SweepID string
	Time    time.Time // sweep start
	HitTime time.Time // midpoint of the hit
	Model   FitModel

	AzBias      float64 // pointing bias, degrees (sun minus antenna)
	ElBias      float64
	PowerBiasH  float64 // P0_H minus reference, dB
	PowerBiasV  float64 // NaN unless DualPol
	ZDRBias     float64 // NaN unless DualPol
	ResidualRMS float64 // worst channel RMS, dB

	SunAzimuth   float64 // sun at HitTime
	SunElevation float64

	H       ChannelFit
	V       ChannelFit
	DualPol bool

	LowConfidence bool
}

// Quantity selects one aggregated field of a CalibrationEstimate.
type Quantity int

const (
	QuantityAzBias Quantity = iota
	QuantityElBias
	QuantityPowerBiasH
	QuantityPowerBiasV
	QuantityZDRBias
	QuantityResidualRMS
	QuantityPeakPowerH

	numQuantities
)

var quantityNames = [numQuantities]string{
	"az_bias", "el_bias", "power_bias_h", "power_bias_v", "zdr_bias", "residual_rms", "peak_power_h",
}

// Quantities lists every aggregated quantity in column order.
func Quantities() []Quantity {
	q := make([]Quantity, numQuantities)
	for i := range q {
		q[i] = Quantity(i)
	}
	return q
}

// String returns the column name of q.
func (q Quantity) String() string {
	if q < 0 || q >= numQuantities {
		return fmt.Sprintf("quantity(%d)", int(q))
	}
	return quantityNames[q]
}

// Value returns quantity q of e. Missing values are NaN.
func (e *CalibrationEstimate) Value(q Quantity) float64 {
	switch q {
	case QuantityAzBias:
		return e.AzBias
	case QuantityElBias:
		return e.ElBias
	case QuantityPowerBiasH:
		return e.PowerBiasH
	case QuantityPowerBiasV:
		return e.PowerBiasV
	case QuantityZDRBias:
		return e.ZDRBias
	case QuantityResidualRMS:
		return e.ResidualRMS
	case QuantityPeakPowerH:
		return e.H.PeakPower
	}
	return math.NaN()
}

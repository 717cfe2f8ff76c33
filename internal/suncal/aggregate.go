package suncal

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// =============================================================================
// Result Aggregation
// =============================================================================

// Summary is the robust statistic of one quantity in one bucket.
type Summary struct {
	Median float64
	MAD    float64
	Count  int
}

// BucketStats is one row of a CalibrationSeries.
type BucketStats struct {
	Start         time.Time
	End           time.Time
	Estimates     int // estimates that entered the statistics
	LowConfidence int // low-confidence estimates seen in the bucket
	DualPol       int // estimates with a valid V channel
	Reliable      bool
	Stats         [numQuantities]Summary
}

// Get returns the summary of quantity q.
func (b *BucketStats) Get(q Quantity) Summary {
	return b.Stats[q]
}

// CalibrationSeries is an ordered sequence of buckets.
type CalibrationSeries []BucketStats

// bucket keeps the raw values of each quantity: the partial state is a
// multiset, so merging partials in any order yields identical statistics.
type bucket struct {
	values [numQuantities][]float64
	n      int
	low    int
	dual   int
}

// Aggregator reduces CalibrationEstimates into fixed UTC-aligned buckets.
// A partial Aggregator per worker may be merged in any order. It is not
// safe for concurrent use.
type Aggregator struct {
	size       time.Duration
	minCount   int
	includeLow bool
	buckets    map[int64]*bucket // key: bucket start, Unix seconds
}

// NewAggregator returns an empty aggregator for cfg's bucket settings.
func NewAggregator(cfg Config) *Aggregator {
	size := cfg.BucketSize.Std().Truncate(time.Second)
	switch {
	case cfg.BucketSize <= 0:
		size = 24 * time.Hour
	case size < time.Second:
		size = time.Second
	}
	return &Aggregator{
		size:       size,
		minCount:   max(cfg.MinBucketCount, 1),
		includeLow: cfg.IncludeLowConfidence,
		buckets:    make(map[int64]*bucket),
	}
}

func (a *Aggregator) key(t time.Time) int64 {
	sec := int64(a.size / time.Second)
	u := t.Unix()
	k := u / sec
	if u%sec < 0 {
		k--
	}
	return k * sec
}

// Add folds one estimate into its bucket. NaN quantities are skipped.
func (a *Aggregator) Add(e CalibrationEstimate) {
	k := a.key(e.Time)
	b := a.buckets[k]
	if b == nil {
		b = &bucket{}
		a.buckets[k] = b
	}
	if e.LowConfidence {
		b.low++
		if !a.includeLow {
			return
		}
	}
	b.n++
	if e.DualPol {
		b.dual++
	}
	for q := Quantity(0); q < numQuantities; q++ {
		if v := e.Value(q); !math.IsNaN(v) {
			b.values[q] = append(b.values[q], v)
		}
	}
}

// AddAll folds a slice of estimates.
func (a *Aggregator) AddAll(es []CalibrationEstimate) {
	for i := range es {
		a.Add(es[i])
	}
}

// Merge folds other into a. Both must use the same bucket size.
func (a *Aggregator) Merge(other *Aggregator) error {
	if other == nil {
		return nil
	}
	if other.size != a.size {
		return fmt.Errorf("suncal: cannot merge %v buckets into %v buckets", other.size, a.size)
	}
	for k, ob := range other.buckets {
		b := a.buckets[k]
		if b == nil {
			b = &bucket{}
			a.buckets[k] = b
		}
		b.n += ob.n
		b.low += ob.low
		b.dual += ob.dual
		for q := range ob.values {
			b.values[q] = append(b.values[q], ob.values[q]...)
		}
	}
	return nil
}

// Len returns the number of buckets.
func (a *Aggregator) Len() int {
	return len(a.buckets)
}

// Series finalises every bucket, oldest first, including unreliable ones.
func (a *Aggregator) Series() CalibrationSeries {
	keys := make([]int64, 0, len(a.buckets))
	for k := range a.buckets {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(CalibrationSeries, 0, len(keys))
	for _, k := range keys {
		b := a.buckets[k]
		start := time.Unix(k, 0).UTC()
		bs := BucketStats{
			Start:         start,
			End:           start.Add(a.size),
			Estimates:     b.n,
			LowConfidence: b.low,
			DualPol:       b.dual,
			Reliable:      b.n >= a.minCount,
		}
		for q := range b.values {
			med, mad := MedianMAD(b.values[q])
			bs.Stats[q] = Summary{Median: med, MAD: mad, Count: len(b.values[q])}
		}
		out = append(out, bs)
	}
	return out
}

// Export returns only the reliable buckets.
func (a *Aggregator) Export() CalibrationSeries {
	all := a.Series()
	out := all[:0]
	for _, b := range all {
		if b.Reliable {
			out = append(out, b)
		}
	}
	return out
}

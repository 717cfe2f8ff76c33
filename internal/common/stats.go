package common

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats holds atomic counters for pipeline telemetry. Workers update it
// concurrently; the reporter goroutine only reads.
type Stats struct {
	SweepsProcessed     uint64 // sweeps that went through detection
	SweepsSkipped       uint64 // sweeps with the sun out of view
	SamplesRead         uint64 // antenna samples read from input files
	HitsFound           uint64 // sun hits that reached the fitter
	EstimatesMade       uint64 // successful calibration estimates
	FitFailures         uint64 // hits rejected by the fitter
	TotalBytesRead      uint64 // compressed input bytes
	CurrentBatchLatency uint64 // latency of the last processed batch, ns

	// Internal state for reporter
	running     atomic.Bool
	stopCh      chan struct{}
	silent      bool
	lastSamples uint64
	lastBytes   uint64
	lastTime    time.Time
	startTime   time.Time

	// Moving average window for sample rate
	rateWindow     []float64
	rateWindowSize int
	rateIndex      int
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		stopCh:         make(chan struct{}),
		rateWindow:     make([]float64, 10), // 10-sample moving average (5 seconds)
		rateWindowSize: 10,
		startTime:      time.Now(),
	}
}

func (s *Stats) AddSweeps(n uint64)      { atomic.AddUint64(&s.SweepsProcessed, n) }
func (s *Stats) AddSkipped(n uint64)     { atomic.AddUint64(&s.SweepsSkipped, n) }
func (s *Stats) AddSamples(n uint64)     { atomic.AddUint64(&s.SamplesRead, n) }
func (s *Stats) AddHits(n uint64)        { atomic.AddUint64(&s.HitsFound, n) }
func (s *Stats) AddEstimates(n uint64)   { atomic.AddUint64(&s.EstimatesMade, n) }
func (s *Stats) AddFitFailures(n uint64) { atomic.AddUint64(&s.FitFailures, n) }
func (s *Stats) AddBytes(n uint64)       { atomic.AddUint64(&s.TotalBytesRead, n) }

// SetBatchLatency atomically sets the current batch latency in nanoseconds
func (s *Stats) SetBatchLatency(ns uint64) {
	atomic.StoreUint64(&s.CurrentBatchLatency, ns)
}

// Snapshot is a consistent-enough copy of the counters for reporting.
type Snapshot struct {
	Sweeps      uint64
	Skipped     uint64
	Samples     uint64
	Hits        uint64
	Estimates   uint64
	FitFailures uint64
	Bytes       uint64
	Latency     time.Duration
	Elapsed     time.Duration
}

// Snapshot atomically loads every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Sweeps:      atomic.LoadUint64(&s.SweepsProcessed),
		Skipped:     atomic.LoadUint64(&s.SweepsSkipped),
		Samples:     atomic.LoadUint64(&s.SamplesRead),
		Hits:        atomic.LoadUint64(&s.HitsFound),
		Estimates:   atomic.LoadUint64(&s.EstimatesMade),
		FitFailures: atomic.LoadUint64(&s.FitFailures),
		Bytes:       atomic.LoadUint64(&s.TotalBytesRead),
		Latency:     time.Duration(atomic.LoadUint64(&s.CurrentBatchLatency)),
		Elapsed:     time.Since(s.startTime),
	}
}

// SetSilent enables or disables silent mode
func (s *Stats) SetSilent(silent bool) {
	s.silent = silent
}

// StartReporter starts a background goroutine that prints telemetry every
// 500ms as plain lines so it interleaves cleanly with log.Printf output.
func (s *Stats) StartReporter() {
	if s.running.Load() {
		return
	}

	s.running.Store(true)
	s.lastTime = time.Now()
	s.lastSamples = 0
	s.lastBytes = 0

	go s.reporterLoop()
}

// StopReporter stops the background reporter goroutine
func (s *Stats) StopReporter() {
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	close(s.stopCh)
}

func (s *Stats) reporterLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.printStatus()
		}
	}
}

func (s *Stats) printStatus() {
	if s.silent {
		return
	}

	now := time.Now()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.001 {
		return
	}

	snap := s.Snapshot()
	deltaSamples := snap.Samples - s.lastSamples
	deltaBytes := snap.Bytes - s.lastBytes

	mibPerSec := (float64(deltaBytes) / (1024 * 1024)) / elapsed
	mrps := (float64(deltaSamples) / 1_000_000) / elapsed

	s.rateWindow[s.rateIndex] = mrps
	s.rateIndex = (s.rateIndex + 1) % s.rateWindowSize

	var sum float64
	var count int
	for _, v := range s.rateWindow {
		if v > 0 {
			sum += v
			count++
		}
	}
	smoothed := 0.0
	if count > 0 {
		smoothed = sum / float64(count)
	}

	fmt.Printf("[Progress] Read: %.2f MiB/s | Samples: %.2f Mrps (avg: %.2f) | Sweeps: %d | Hits: %d | Estimates: %d | Batch: %.2f ms\n",
		mibPerSec,
		mrps,
		smoothed,
		snap.Sweeps,
		snap.Hits,
		snap.Estimates,
		float64(snap.Latency)/float64(time.Millisecond),
	)

	s.lastSamples = snap.Samples
	s.lastBytes = snap.Bytes
	s.lastTime = now
}

// Summary returns the final human-readable statistics lines.
func (s *Stats) Summary() []string {
	snap := s.Snapshot()
	secs := snap.Elapsed.Seconds()
	rate := 0.0
	if secs > 0 {
		rate = float64(snap.Samples) / secs
	}
	return []string{
		fmt.Sprintf("Input:          %s", humanize.IBytes(snap.Bytes)),
		fmt.Sprintf("Samples:        %s (%s/s)", humanize.Comma(int64(snap.Samples)), humanize.SIWithDigits(rate, 2, "")),
		fmt.Sprintf("Sweeps:         %s processed, %s skipped", humanize.Comma(int64(snap.Sweeps)), humanize.Comma(int64(snap.Skipped))),
		fmt.Sprintf("Sun hits:       %s", humanize.Comma(int64(snap.Hits))),
		fmt.Sprintf("Estimates:      %s", humanize.Comma(int64(snap.Estimates))),
		fmt.Sprintf("Fit failures:   %s", humanize.Comma(int64(snap.FitFailures))),
		fmt.Sprintf("Elapsed:        %s", snap.Elapsed.Round(time.Millisecond)),
	}
}

// Reset resets all counters
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.SweepsProcessed, 0)
	atomic.StoreUint64(&s.SweepsSkipped, 0)
	atomic.StoreUint64(&s.SamplesRead, 0)
	atomic.StoreUint64(&s.HitsFound, 0)
	atomic.StoreUint64(&s.EstimatesMade, 0)
	atomic.StoreUint64(&s.FitFailures, 0)
	atomic.StoreUint64(&s.TotalBytesRead, 0)
	atomic.StoreUint64(&s.CurrentBatchLatency, 0)
	s.lastSamples = 0
	s.lastBytes = 0
	s.lastTime = time.Now()
	s.startTime = s.lastTime

	for i := range s.rateWindow {
		s.rateWindow[i] = 0
	}
	s.rateIndex = 0
}

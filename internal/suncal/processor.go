package suncal

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/KI7MT/radar-suncal/internal/common"
	"github.com/KI7MT/radar-suncal/internal/solar"
)

// =============================================================================
// Processor Interface
// =============================================================================

// Processor turns sweeps into calibration estimates.
type Processor interface {
	// ProcessBatch runs detection, fitting and aggregation over sweeps.
	ProcessBatch(sweeps []Sweep) (*ProcessResult, error)

	// Name returns the processor name for logging.
	Name() string

	// Close releases any resources held by the processor.
	Close() error
}

// SweepStatus classifies what happened to one sweep.
type SweepStatus int

const (
	StatusFitted       SweepStatus = iota // at least one estimate
	StatusNoHits                          // sun in view but no qualifying cluster
	StatusFitFailed                       // hits found, every fit failed
	StatusSunOutOfView                    // skipped by the in-scope check
	StatusInvalid                         // malformed sweep or instant
)

var statusNames = [...]string{"fitted", "no_hits", "fit_failed", "sun_out_of_view", "invalid"}

func (s SweepStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// SweepOutcome reports the processing of one sweep.
type SweepOutcome struct {
	SweepID    string
	Start      time.Time
	Status     SweepStatus
	Candidates int
	Hits       int
	Estimates  []CalibrationEstimate
	Err        error // fit failures and validation errors; nil when clean
}

// ProcessResult is the outcome of a batch.
type ProcessResult struct {
	Estimates []CalibrationEstimate // ordered by sweep start, sweep ID, hit time
	Outcomes  []SweepOutcome        // input order
	Aggregate *Aggregator
	Err       error // *multierror.Error of every per-sweep error, nil when clean
}

// Count returns the number of sweeps with status s.
func (r *ProcessResult) Count(s SweepStatus) int {
	n := 0
	for i := range r.Outcomes {
		if r.Outcomes[i].Status == s {
			n++
		}
	}
	return n
}

// =============================================================================
// CPU Processor
// =============================================================================

// sequentialThreshold is the batch size below which goroutines do not pay.
const sequentialThreshold = 8

// CPUProcessor implements Processor with a fixed pool of goroutines, one
// chunk of sweeps per worker. Each worker owns a solar.DayContext and a
// partial Aggregator; partials are merged after all workers finish.
type CPUProcessor struct {
	engine     *solar.Engine
	cfg        Config
	detector   *Detector
	fitter     *Fitter
	numWorkers int
	stats      *common.Stats
}

// NewCPUProcessor validates cfg against the engine.
// numWorkers specifies the number of parallel goroutines (0 = auto-detect).
func NewCPUProcessor(engine *solar.Engine, cfg Config, numWorkers int) (*CPUProcessor, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil ephemeris engine", ErrInvalidConfig)
	}
	det, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	fit, err := NewFitter(cfg)
	if err != nil {
		return nil, err
	}
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &CPUProcessor{
		engine:     engine,
		cfg:        cfg,
		detector:   det,
		fitter:     fit,
		numWorkers: numWorkers,
	}, nil
}

// SetStats attaches shared telemetry counters.
func (p *CPUProcessor) SetStats(s *common.Stats) {
	p.stats = s
}

// Name returns the processor name.
func (p *CPUProcessor) Name() string {
	return "CPU"
}

// Close releases resources (no-op for CPU processor).
func (p *CPUProcessor) Close() error {
	return nil
}

// Fitter returns the configured fitter.
func (p *CPUProcessor) Fitter() *Fitter {
	return p.fitter
}

// ProcessBatch processes sweeps in parallel. It never fails because of a
// single sweep: per-sweep problems are reported in the outcomes and in
// ProcessResult.Err.
func (p *CPUProcessor) ProcessBatch(sweeps []Sweep) (*ProcessResult, error) {
	start := time.Now()
	res := &ProcessResult{
		Outcomes:  make([]SweepOutcome, len(sweeps)),
		Aggregate: NewAggregator(p.cfg),
	}
	if len(sweeps) == 0 {
		return res, nil
	}

	if len(sweeps) < sequentialThreshold || p.numWorkers <= 1 {
		p.processChunk(sweeps, res.Outcomes, res.Aggregate)
	} else if err := p.processParallel(sweeps, res); err != nil {
		return nil, err
	}

	var merr *multierror.Error
	for i := range res.Outcomes {
		o := &res.Outcomes[i]
		res.Estimates = append(res.Estimates, o.Estimates...)
		if o.Err != nil {
			merr = multierror.Append(merr, o.Err)
		}
	}
	slices.SortStableFunc(res.Estimates, func(a, b CalibrationEstimate) int {
		return cmp.Or(
			a.Time.Compare(b.Time),
			cmp.Compare(a.SweepID, b.SweepID),
			a.HitTime.Compare(b.HitTime),
		)
	})
	res.Err = merr.ErrorOrNil()

	if p.stats != nil {
		p.stats.SetBatchLatency(uint64(time.Since(start)))
	}
	return res, nil
}

func (p *CPUProcessor) processParallel(sweeps []Sweep, res *ProcessResult) error {
	chunkSize := (len(sweeps) + p.numWorkers - 1) / p.numWorkers
	partials := make([]*Aggregator, 0, p.numWorkers)

	var wg sync.WaitGroup
	for start := 0; start < len(sweeps); start += chunkSize {
		end := min(start+chunkSize, len(sweeps))
		agg := NewAggregator(p.cfg)
		partials = append(partials, agg)

		wg.Add(1)
		go func(start, end int, agg *Aggregator) {
			defer wg.Done()
			p.processChunk(sweeps[start:end], res.Outcomes[start:end], agg)
		}(start, end, agg)
	}
	wg.Wait()

	for _, agg := range partials {
		if err := res.Aggregate.Merge(agg); err != nil {
			return err
		}
	}
	return nil
}

// processChunk runs one worker over a contiguous slice of sweeps.
func (p *CPUProcessor) processChunk(sweeps []Sweep, out []SweepOutcome, agg *Aggregator) {
	var dc *solar.DayContext
	for i := range sweeps {
		out[i] = p.processSweep(&sweeps[i], &dc)
		agg.AddAll(out[i].Estimates)
	}
}

// ProcessSweep runs one sweep through detection and fitting. dc may be nil
// or bound to another day; it is rebound to the sweep's UTC day.
func (p *CPUProcessor) ProcessSweep(sweep *Sweep, dc *solar.DayContext) SweepOutcome {
	return p.processSweep(sweep, &dc)
}

func (p *CPUProcessor) processSweep(sweep *Sweep, dcp **solar.DayContext) SweepOutcome {
	out := SweepOutcome{SweepID: sweep.ID, Start: sweep.Start}
	if out.Start.IsZero() {
		out.Start, _ = sweep.Span()
	}
	if p.stats != nil {
		p.stats.AddSweeps(1)
	}

	if err := sweep.Samples.Validate(); err != nil {
		out.Status = StatusInvalid
		out.Err = fmt.Errorf("sweep %s: %w", sweep.ID, err)
		return out
	}
	if err := solar.ValidateInstant(out.Start); err != nil {
		out.Status = StatusInvalid
		out.Err = fmt.Errorf("sweep %s: %w", sweep.ID, err)
		return out
	}

	if *dcp == nil {
		*dcp = p.engine.NewDayContext(out.Start)
	} else if !(*dcp).Contains(out.Start) {
		(*dcp).Reset(out.Start)
	}
	sun := SunFunc((*dcp).Position)

	inScope, err := p.detector.InScope(sweep, sun)
	if err != nil {
		out.Status = StatusInvalid
		out.Err = fmt.Errorf("sweep %s: %w", sweep.ID, err)
		return out
	}
	if !inScope {
		out.Status = StatusSunOutOfView
		if p.stats != nil {
			p.stats.AddSkipped(1)
		}
		return out
	}

	det, err := p.detector.Detect(sweep, sun)
	if err != nil {
		out.Status = StatusInvalid
		out.Err = fmt.Errorf("sweep %s: %w", sweep.ID, err)
		return out
	}
	out.Candidates = det.Candidates
	out.Hits = len(det.Hits)
	if len(det.Hits) == 0 {
		out.Status = StatusNoHits
		return out
	}

	var merr *multierror.Error
	for i := range det.Hits {
		est, err := p.fitter.Fit(&det.Hits[i])
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		est.Time = out.Start
		out.Estimates = append(out.Estimates, est)
	}
	out.Err = merr.ErrorOrNil()

	if len(out.Estimates) > 0 {
		out.Status = StatusFitted
	} else {
		out.Status = StatusFitFailed
	}

	if p.stats != nil {
		p.stats.AddHits(uint64(len(det.Hits)))
		p.stats.AddEstimates(uint64(len(out.Estimates)))
		p.stats.AddFitFailures(uint64(len(det.Hits) - len(out.Estimates)))
	}
	return out
}

// Ensure CPUProcessor implements Processor interface
var _ Processor = (*CPUProcessor)(nil)

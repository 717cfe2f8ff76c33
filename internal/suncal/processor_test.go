package suncal

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KI7MT/radar-suncal/internal/common"
	"github.com/KI7MT/radar-suncal/internal/solar"
)

var sweepDay = time.Date(2021, 6, 21, 0, 0, 0, 0, time.UTC)

// sweepSet builds n sun-raster sweeps two minutes apart around a low sun
// plus one night sweep, each with its own injected bias.
func sweepSet(t *testing.T, e *solar.Engine, n int) ([]Sweep, map[string]beam) {
	t.Helper()
	start := lowSunTime(t, e, sweepDay, 3, 6)
	truth := make(map[string]beam, n)
	var sweeps []Sweep
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("DWN-%02d", i)
		b := beam{
			x0:  -0.2 + 0.05*float64(i),
			y0:  0.1 - 0.02*float64(i),
			p0:  -108 + 0.1*float64(i),
			wAz: 1, wEl: 1,
		}
		truth[id] = b
		sweeps = append(sweeps, rasterSweep(t, e, id, start.Add(time.Duration(i)*2*time.Minute), b, 15, 1, 0.25))
	}

	// local midnight at Darwin is 14:30 UTC
	night := NewSampleBatch(40, true)
	ts := sweepDay.Add(14*time.Hour + 30*time.Minute)
	for i := 0; i < 40; i++ {
		night.Add(ts.Add(time.Duration(i)*100*time.Millisecond), float64(i)*9, 0.5, -110, -110)
	}
	sweeps = append(sweeps, Sweep{ID: "DWN-night", Start: ts, Samples: night})
	return sweeps, truth
}

func TestProcessSweepRecoversBias(t *testing.T) {
	e := darwinEngine(t)
	p, err := NewCPUProcessor(e, DefaultConfig(), 1)
	require.NoError(t, err)

	sweeps, truth := sweepSet(t, e, 1)
	out := p.ProcessSweep(&sweeps[0], nil)
	require.NoError(t, out.Err)
	assert.Equal(t, StatusFitted, out.Status)
	assert.Equal(t, 1, out.Hits)
	assert.Equal(t, 225, out.Candidates)
	require.Len(t, out.Estimates, 1)

	est := out.Estimates[0]
	b := truth[sweeps[0].ID]
	assert.InDelta(t, b.x0, est.AzBias, 1e-6)
	assert.InDelta(t, b.y0, est.ElBias, 1e-6)
	assert.InDelta(t, b.p0, est.PowerBiasH, 1e-6)
	assert.InDelta(t, 0.25, est.ZDRBias, 1e-6)
	assert.Equal(t, sweeps[0].Start, est.Time)
	assert.True(t, est.HitTime.After(est.Time))
	assert.InDelta(t, 4.5, est.SunElevation, 2)

	night := p.ProcessSweep(&sweeps[1], nil)
	assert.Equal(t, StatusSunOutOfView, night.Status)
	assert.Empty(t, night.Estimates)
}

func TestProcessBatchParallelMatchesSequential(t *testing.T) {
	e := darwinEngine(t)
	sweeps, truth := sweepSet(t, e, 11)

	seq, err := NewCPUProcessor(e, DefaultConfig(), 1)
	require.NoError(t, err)
	par, err := NewCPUProcessor(e, DefaultConfig(), 4)
	require.NoError(t, err)

	stats := common.NewStats()
	par.SetStats(stats)

	want, err := seq.ProcessBatch(sweeps)
	require.NoError(t, err)
	got, err := par.ProcessBatch(sweeps)
	require.NoError(t, err)

	require.NoError(t, got.Err)
	require.Len(t, got.Estimates, 11)
	assert.Equal(t, want.Estimates, got.Estimates)
	assert.Equal(t, want.Aggregate.Series(), got.Aggregate.Series())
	assert.Equal(t, 11, got.Count(StatusFitted))
	assert.Equal(t, 1, got.Count(StatusSunOutOfView))

	for i := 1; i < len(got.Estimates); i++ {
		assert.False(t, got.Estimates[i].Time.Before(got.Estimates[i-1].Time))
	}
	for _, est := range got.Estimates {
		b := truth[est.SweepID]
		assert.InDelta(t, b.x0, est.AzBias, 1e-6, est.SweepID)
		assert.InDelta(t, b.y0, est.ElBias, 1e-6, est.SweepID)
	}

	series := got.Aggregate.Export()
	require.Len(t, series, 1)
	assert.Equal(t, 11, series[0].Estimates)
	assert.InDelta(t, truth["DWN-05"].x0, series[0].Get(QuantityAzBias).Median, 1e-6)

	snap := stats.Snapshot()
	assert.Equal(t, uint64(12), snap.Sweeps)
	assert.Equal(t, uint64(1), snap.Skipped)
	assert.Equal(t, uint64(11), snap.Hits)
	assert.Equal(t, uint64(11), snap.Estimates)
	assert.Zero(t, snap.FitFailures)
}

func TestProcessBatchCollectsFitFailures(t *testing.T) {
	e := darwinEngine(t)
	sweeps, _ := sweepSet(t, e, 2)

	// collapse the elevation raster of the first sweep onto one row
	bad := sweeps[0]
	bad.Samples = bad.Samples.Clone()
	dc := e.NewDayContext(bad.Start)
	for i := range bad.Samples.Elevation {
		p, err := dc.Position(time.Unix(0, bad.Samples.Time[i]).UTC())
		require.NoError(t, err)
		bad.Samples.Elevation[i] = p.Elevation - 0.2
	}
	sweeps[0] = bad

	p, err := NewCPUProcessor(e, DefaultConfig(), 2)
	require.NoError(t, err)
	res, err := p.ProcessBatch(sweeps)
	require.NoError(t, err)

	assert.Equal(t, StatusFitFailed, res.Outcomes[0].Status)
	assert.Equal(t, StatusFitted, res.Outcomes[1].Status)
	assert.Len(t, res.Estimates, 1)

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, ErrDegenerateFit))
	var merr *multierror.Error
	require.ErrorAs(t, res.Err, &merr)
	assert.Len(t, merr.Errors, 1)
}

func TestProcessBatchInvalidSweep(t *testing.T) {
	e := darwinEngine(t)
	p, err := NewCPUProcessor(e, DefaultConfig(), 1)
	require.NoError(t, err)

	ragged := NewSampleBatch(2, false)
	ragged.Add(sweepDay.Add(9*time.Hour), 1, 1, -100, 0)
	ragged.Elevation = nil

	res, err := p.ProcessBatch([]Sweep{{ID: "bad", Start: sweepDay, Samples: ragged}})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Outcomes[0].Status)
	assert.ErrorIs(t, res.Err, ErrInvalidSweep)

	empty, err := p.ProcessBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Estimates)
	assert.Zero(t, empty.Aggregate.Len())
}

func TestProcessBatchMissingSamples(t *testing.T) {
	e := darwinEngine(t)

	seq, err := NewCPUProcessor(e, DefaultConfig(), 1)
	require.NoError(t, err)
	res, err := seq.ProcessBatch([]Sweep{{ID: "a", Start: sweepDay.Add(9 * time.Hour)}})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Outcomes[0].Status)
	assert.ErrorIs(t, res.Err, ErrInvalidSweep)

	sweeps := make([]Sweep, 2*sequentialThreshold)
	for i := range sweeps {
		sweeps[i] = Sweep{ID: fmt.Sprintf("s%02d", i), Start: sweepDay.Add(time.Duration(i) * time.Minute)}
	}
	par, err := NewCPUProcessor(e, DefaultConfig(), 4)
	require.NoError(t, err)
	res, err = par.ProcessBatch(sweeps)
	require.NoError(t, err)
	for _, o := range res.Outcomes {
		assert.Equal(t, StatusInvalid, o.Status, o.SweepID)
	}
	var merr *multierror.Error
	require.True(t, errors.As(res.Err, &merr))
	assert.Len(t, merr.Errors, len(sweeps))
	assert.Empty(t, res.Estimates)
}

func TestNewCPUProcessorRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowDeg = -1
	_, err := NewCPUProcessor(darwinEngine(t), cfg, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCPUProcessor(nil, DefaultConfig(), 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSweepStatusString(t *testing.T) {
	assert.Equal(t, "sun_out_of_view", StatusSunOutOfView.String())
	assert.Equal(t, "status(42)", SweepStatus(42).String())
}

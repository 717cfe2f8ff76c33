// Package archive reads antenna sweeps from Parquet and CSV files and
// writes calibration estimates and series as CSV.
//
// Input formats:
//
//	Parquet / CSV(.gz)  sweep_id,time_ns,azimuth,elevation,power_h,power_v
//	hit CSV(.gz)        time,range,radar_elevation,radar_azimuth,fmin,reflectivity[,differential_reflectivity]
//
// Hit files carry gate-level reflectivity contaminated by the sun; it is
// converted back to received power with suncal.PowerFromReflectivity.
package archive

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// ErrUnknownFormat is returned for files whose header matches no known layout.
var ErrUnknownFormat = errors.New("archive: unknown file format")

// SampleRow is one antenna sample in the flat Parquet/CSV layout. A NaN
// power_v in every row of a sweep marks single-polarisation data.
type SampleRow struct {
	SweepID   string  `parquet:"sweep_id"`
	TimeNs    int64   `parquet:"time_ns"`
	Azimuth   float64 `parquet:"azimuth"`
	Elevation float64 `parquet:"elevation"`
	PowerH    float64 `parquet:"power_h"`
	PowerV    float64 `parquet:"power_v"`
}

// Options filters gate-level hit files.
type Options struct {
	MinRangeM    float64
	MinFillRatio float64
	GasDBPerKm   float64
}

// OptionsFrom takes the reflectivity filters from a calibration config.
func OptionsFrom(cfg suncal.Config) Options {
	return Options{
		MinRangeM:    cfg.MinRangeM,
		MinFillRatio: cfg.MinFillRatio,
		GasDBPerKm:   cfg.GasAttenuationDBPerKm,
	}
}

// Result is the content of one input file.
type Result struct {
	Sweeps   []suncal.Sweep
	Rows     int    // rows read
	Filtered int    // rows dropped by range, fill or parse filters
	Bytes    uint64 // on-disk size
}

// Samples returns the number of samples across all sweeps.
func (r *Result) Samples() int {
	n := 0
	for i := range r.Sweeps {
		n += r.Sweeps[i].Samples.Len()
	}
	return n
}

// ReadFile dispatches on the file extension.
func ReadFile(path string, opts Options) (*Result, error) {
	switch {
	case strings.HasSuffix(path, ".parquet"):
		return ReadParquet(path)
	case strings.HasSuffix(path, ".csv"), strings.HasSuffix(path, ".csv.gz"):
		return ReadCSVFile(path, opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
}

// IsInputFile reports whether ReadFile accepts path.
func IsInputFile(path string) bool {
	return strings.HasSuffix(path, ".parquet") ||
		strings.HasSuffix(path, ".csv") ||
		strings.HasSuffix(path, ".csv.gz")
}

// openMaybeGzip opens path and transparently decompresses .gz files with
// parallel gzip. The returned closer closes both layers.
func openMaybeGzip(path string) (io.Reader, uint64, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	size := uint64(info.Size())

	if !strings.HasSuffix(path, ".gz") {
		return f, size, f.Close, nil
	}
	gz, err := pgzip.NewReaderN(f, 256*1024, runtime.NumCPU())
	if err != nil {
		f.Close()
		return nil, 0, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	closer := func() error {
		gzErr := gz.Close()
		if err := f.Close(); err != nil {
			return err
		}
		return gzErr
	}
	return gz, size, closer, nil
}

// GroupRows assembles flat rows into sweeps, in order of first appearance.
// Sweep start is the earliest sample; samples keep their file order.
func GroupRows(rows []SampleRow) []suncal.Sweep {
	index := make(map[string]int)
	var groups [][]SampleRow
	for _, r := range rows {
		i, ok := index[r.SweepID]
		if !ok {
			i = len(groups)
			index[r.SweepID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	sweeps := make([]suncal.Sweep, 0, len(groups))
	for _, g := range groups {
		dual := slices.ContainsFunc(g, func(r SampleRow) bool { return !math.IsNaN(r.PowerV) })
		b := suncal.NewSampleBatch(len(g), dual)
		start := g[0].TimeNs
		for _, r := range g {
			start = min(start, r.TimeNs)
			b.Time = append(b.Time, r.TimeNs)
			b.Azimuth = append(b.Azimuth, r.Azimuth)
			b.Elevation = append(b.Elevation, r.Elevation)
			b.PowerH = append(b.PowerH, r.PowerH)
			if dual {
				b.PowerV = append(b.PowerV, r.PowerV)
			}
		}
		sweeps = append(sweeps, suncal.Sweep{
			ID:      g[0].SweepID,
			Start:   time.Unix(0, start).UTC(),
			Samples: b,
		})
	}
	return sweeps
}

// FlattenSweeps is the inverse of GroupRows.
func FlattenSweeps(sweeps []suncal.Sweep) []SampleRow {
	var rows []SampleRow
	for _, s := range sweeps {
		b := s.Samples
		for i := 0; i < b.Len(); i++ {
			pv := math.NaN()
			if b.HasV() {
				pv = b.PowerV[i]
			}
			rows = append(rows, SampleRow{
				SweepID:   s.ID,
				TimeNs:    b.Time[i],
				Azimuth:   b.Azimuth[i],
				Elevation: b.Elevation[i],
				PowerH:    b.PowerH[i],
				PowerV:    pv,
			})
		}
	}
	return rows
}

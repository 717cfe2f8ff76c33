package archive

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// =============================================================================
// Estimate CSV
// =============================================================================

var estimateHeader = []string{
	"sweep_id", "time", "hit_time", "model",
	"az_bias", "el_bias", "power_bias_h", "power_bias_v", "zdr_bias", "residual_rms",
	"peak_power_h", "peak_power_v", "width_az", "width_el", "r2_h", "r2_v",
	"samples", "rejected", "sun_azimuth", "sun_elevation", "dual_pol", "low_confidence",
}

// fileWriter wraps a CSV writer over an optional gzip layer.
type fileWriter struct {
	f  *os.File
	gz *gzip.Writer
	cw *csv.Writer
}

// createCSV creates path; a .gz suffix enables gzip compression.
func createCSV(path string) (*fileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	fw := &fileWriter{f: f}
	if strings.HasSuffix(path, ".gz") {
		fw.gz = gzip.NewWriter(f)
		fw.cw = csv.NewWriter(fw.gz)
	} else {
		fw.cw = csv.NewWriter(f)
	}
	return fw, nil
}

func (fw *fileWriter) Close() error {
	fw.cw.Flush()
	err := fw.cw.Error()
	if fw.gz != nil {
		err = errors.Join(err, fw.gz.Close())
	}
	return errors.Join(err, fw.f.Close())
}

// EstimateWriter streams estimates to a CSV(.gz) file.
type EstimateWriter struct {
	fw   *fileWriter
	rows int
}

// CreateEstimateCSV creates path and writes the header.
func CreateEstimateCSV(path string) (*EstimateWriter, error) {
	fw, err := createCSV(path)
	if err != nil {
		return nil, err
	}
	if err := fw.cw.Write(estimateHeader); err != nil {
		fw.Close()
		return nil, err
	}
	return &EstimateWriter{fw: fw}, nil
}

// Write appends estimates.
func (w *EstimateWriter) Write(es []suncal.CalibrationEstimate) error {
	for i := range es {
		if err := w.fw.cw.Write(estimateRecord(&es[i])); err != nil {
			return err
		}
		w.rows++
	}
	return nil
}

// Rows returns the number of estimates written.
func (w *EstimateWriter) Rows() int {
	return w.rows
}

// Close flushes and closes the file.
func (w *EstimateWriter) Close() error {
	return w.fw.Close()
}

func estimateRecord(e *suncal.CalibrationEstimate) []string {
	return []string{
		e.SweepID,
		e.Time.Format(time.RFC3339Nano),
		e.HitTime.Format(time.RFC3339Nano),
		string(e.Model),
		formatFloat(e.AzBias),
		formatFloat(e.ElBias),
		formatFloat(e.PowerBiasH),
		formatFloat(e.PowerBiasV),
		formatFloat(e.ZDRBias),
		formatFloat(e.ResidualRMS),
		formatFloat(e.H.PeakPower),
		formatPeakV(e),
		formatFloat(e.H.WidthAz),
		formatFloat(e.H.WidthEl),
		formatFloat(e.H.RSquared),
		formatR2V(e),
		strconv.Itoa(e.H.Samples),
		strconv.Itoa(e.H.Rejected),
		formatFloat(e.SunAzimuth),
		formatFloat(e.SunElevation),
		strconv.FormatBool(e.DualPol),
		strconv.FormatBool(e.LowConfidence),
	}
}

func formatPeakV(e *suncal.CalibrationEstimate) string {
	if !e.DualPol {
		return ""
	}
	return formatFloat(e.V.PeakPower)
}

func formatR2V(e *suncal.CalibrationEstimate) string {
	if !e.DualPol {
		return ""
	}
	return formatFloat(e.V.RSquared)
}

// WriteEstimatesCSV writes estimates to path in one call.
func WriteEstimatesCSV(path string, es []suncal.CalibrationEstimate) error {
	w, err := CreateEstimateCSV(path)
	if err != nil {
		return err
	}
	if err := w.Write(es); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadEstimatesCSV reads a file written by EstimateWriter.
func ReadEstimatesCSV(path string) ([]suncal.CalibrationEstimate, error) {
	r, _, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	if !hasColumns(cols, "sweep_id", "time", "az_bias", "el_bias", "power_bias_h") {
		return nil, fmt.Errorf("%w: not an estimate file", ErrUnknownFormat)
	}

	var out []suncal.CalibrationEstimate
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		e, err := parseEstimate(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
}

func parseEstimate(rec []string, cols map[string]int) (suncal.CalibrationEstimate, error) {
	var e suncal.CalibrationEstimate
	var errs []error

	num := func(name string) float64 {
		v, err := parseFloat(field(rec, cols, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}
	integer := func(name string) int {
		s := field(rec, cols, name)
		if s == "" {
			return 0
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}
	flag := func(name string) bool {
		v, _ := strconv.ParseBool(field(rec, cols, name))
		return v
	}
	instant := func(name string) time.Time {
		s := field(rec, cols, name)
		if s == "" {
			return time.Time{}
		}
		t, err := parseTime(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return t
	}

	e.SweepID = field(rec, cols, "sweep_id")
	e.Time = instant("time")
	e.HitTime = instant("hit_time")
	e.Model = suncal.FitModel(field(rec, cols, "model"))
	e.AzBias = num("az_bias")
	e.ElBias = num("el_bias")
	e.PowerBiasH = num("power_bias_h")
	e.PowerBiasV = num("power_bias_v")
	e.ZDRBias = num("zdr_bias")
	e.ResidualRMS = num("residual_rms")
	e.SunAzimuth = num("sun_azimuth")
	e.SunElevation = num("sun_elevation")
	e.DualPol = flag("dual_pol")
	e.LowConfidence = flag("low_confidence")

	e.H = suncal.ChannelFit{
		Model:       e.Model,
		AzOffset:    e.AzBias,
		ElOffset:    e.ElBias,
		PeakPower:   num("peak_power_h"),
		WidthAz:     num("width_az"),
		WidthEl:     num("width_el"),
		ResidualRMS: e.ResidualRMS,
		RSquared:    num("r2_h"),
		Samples:     integer("samples"),
		Rejected:    integer("rejected"),
	}
	if e.DualPol {
		e.V = suncal.ChannelFit{
			Model:     e.Model,
			PeakPower: num("peak_power_v"),
			RSquared:  num("r2_v"),
		}
	}
	return e, errors.Join(errs...)
}

// =============================================================================
// Series CSV
// =============================================================================

// WriteSeriesCSV writes one row per bucket with median, MAD and count of
// every quantity.
func WriteSeriesCSV(path string, series suncal.CalibrationSeries) error {
	fw, err := createCSV(path)
	if err != nil {
		return err
	}

	header := []string{"bucket_start", "bucket_end", "estimates", "low_confidence", "dual_pol", "reliable"}
	for _, q := range suncal.Quantities() {
		header = append(header, q.String()+"_median", q.String()+"_mad", q.String()+"_count")
	}
	if err := fw.cw.Write(header); err != nil {
		fw.Close()
		return err
	}

	for i := range series {
		b := &series[i]
		rec := []string{
			b.Start.Format(time.RFC3339),
			b.End.Format(time.RFC3339),
			strconv.Itoa(b.Estimates),
			strconv.Itoa(b.LowConfidence),
			strconv.Itoa(b.DualPol),
			strconv.FormatBool(b.Reliable),
		}
		for _, q := range suncal.Quantities() {
			s := b.Get(q)
			rec = append(rec, formatFloat(s.Median), formatFloat(s.MAD), strconv.Itoa(s.Count))
		}
		if err := fw.cw.Write(rec); err != nil {
			fw.Close()
			return err
		}
	}
	return fw.Close()
}

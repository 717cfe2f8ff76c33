package archive

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// sweepElevationStep separates consecutive tilts in a hit file.
const sweepElevationStep = 0.05

// timeLayouts are tried in order for textual timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ReadCSVFile reads a native or hit CSV file, gzip-compressed or not.
func ReadCSVFile(path string, opts Options) (*Result, error) {
	r, size, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".gz"), ".csv")
	res, err := ReadCSV(r, base, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	res.Bytes = size
	return res, nil
}

// ReadCSV detects the layout from the header row. source names the sweeps
// of hit files, which carry no sweep identifier.
func ReadCSV(r io.Reader, source string, opts Options) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Result{}, nil
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.ToLower(h))] = i
	}

	switch {
	case hasColumns(cols, "sweep_id", "time_ns", "azimuth", "elevation", "power_h"):
		return readNative(cr, cols)
	case hasColumns(cols, "time", "range", "radar_elevation", "radar_azimuth", "reflectivity"):
		return readHits(cr, cols, source, opts)
	}
	return nil, fmt.Errorf("%w: header %q", ErrUnknownFormat, strings.Join(header, ","))
}

func hasColumns(cols map[string]int, names ...string) bool {
	for _, n := range names {
		if _, ok := cols[n]; !ok {
			return false
		}
	}
	return true
}

// field returns column name of rec, or "" when absent.
func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseFloat treats empty and "nan" cells as NaN.
func parseFloat(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable time %q", s)
}

func readNative(cr *csv.Reader, cols map[string]int) (*Result, error) {
	res := &Result{}
	var rows []SampleRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		res.Rows++

		row, err := nativeRow(rec, cols)
		if err != nil {
			res.Filtered++
			continue
		}
		rows = append(rows, row)
	}
	res.Sweeps = GroupRows(rows)
	return res, nil
}

func nativeRow(rec []string, cols map[string]int) (SampleRow, error) {
	row := SampleRow{SweepID: field(rec, cols, "sweep_id")}
	if row.SweepID == "" {
		return row, errors.New("empty sweep_id")
	}
	var err error
	if row.TimeNs, err = strconv.ParseInt(field(rec, cols, "time_ns"), 10, 64); err != nil {
		return row, err
	}
	if row.Azimuth, err = parseFloat(field(rec, cols, "azimuth")); err != nil {
		return row, err
	}
	if row.Elevation, err = parseFloat(field(rec, cols, "elevation")); err != nil {
		return row, err
	}
	if row.PowerH, err = parseFloat(field(rec, cols, "power_h")); err != nil {
		return row, err
	}
	if row.PowerV, err = parseFloat(field(rec, cols, "power_v")); err != nil {
		return row, err
	}
	return row, nil
}

// readHits converts gate-level reflectivity into samples. A new sweep
// starts whenever the antenna elevation changes by more than
// sweepElevationStep or time runs backwards.
func readHits(cr *csv.Reader, cols map[string]int, source string, opts Options) (*Result, error) {
	res := &Result{}
	_, hasFill := cols["fmin"]
	_, hasZDR := cols["differential_reflectivity"]

	var rows []SampleRow
	var sweepID string
	prevEl, prevT := math.NaN(), int64(math.MinInt64)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		res.Rows++

		ts, err := parseTime(field(rec, cols, "time"))
		if err != nil {
			res.Filtered++
			continue
		}
		rng, err1 := parseFloat(field(rec, cols, "range"))
		el, err2 := parseFloat(field(rec, cols, "radar_elevation"))
		az, err3 := parseFloat(field(rec, cols, "radar_azimuth"))
		refl, err4 := parseFloat(field(rec, cols, "reflectivity"))
		if err := errors.Join(err1, err2, err3, err4); err != nil || math.IsNaN(refl) {
			res.Filtered++
			continue
		}
		if rng < opts.MinRangeM {
			res.Filtered++
			continue
		}
		if hasFill {
			fill, err := parseFloat(field(rec, cols, "fmin"))
			if err != nil || !(fill > opts.MinFillRatio) {
				res.Filtered++
				continue
			}
		}

		ph := suncal.PowerFromReflectivity(refl, rng, opts.GasDBPerKm)
		pv := math.NaN()
		if hasZDR {
			if zdr, err := parseFloat(field(rec, cols, "differential_reflectivity")); err == nil {
				pv = ph - zdr
			}
		}

		tn := ts.UnixNano()
		if sweepID == "" || math.Abs(el-prevEl) > sweepElevationStep || tn < prevT {
			sweepID = fmt.Sprintf("%s-%s-el%.2f", source, ts.Format("20060102T150405"), el)
		}
		prevEl, prevT = el, tn

		rows = append(rows, SampleRow{
			SweepID:   sweepID,
			TimeNs:    tn,
			Azimuth:   az,
			Elevation: el,
			PowerH:    ph,
			PowerV:    pv,
		})
	}
	res.Sweeps = GroupRows(rows)
	return res, nil
}

// WriteSamplesCSV writes sweeps in the native CSV layout.
func WriteSamplesCSV(w io.Writer, sweeps []suncal.Sweep) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sweep_id", "time_ns", "azimuth", "elevation", "power_h", "power_v"}); err != nil {
		return err
	}
	for _, r := range FlattenSweeps(sweeps) {
		if err := cw.Write([]string{
			r.SweepID,
			strconv.FormatInt(r.TimeNs, 10),
			formatFloat(r.Azimuth),
			formatFloat(r.Elevation),
			formatFloat(r.PowerH),
			formatFloat(r.PowerV),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatFloat writes the shortest exact representation; NaN is empty.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

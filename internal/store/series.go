package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// SeriesOptions configures a SeriesStore connection.
type SeriesOptions struct {
	Addr     string
	Database string
	User     string
	Password string
}

// SeriesStore reads estimates and writes aggregated series.
type SeriesStore struct {
	conn driver.Conn
	db   string
}

// OpenSeriesStore connects with clickhouse-go and pings the server.
func OpenSeriesStore(ctx context.Context, opts SeriesOptions) (*SeriesStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.User,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open %s: %w", opts.Addr, err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", opts.Addr, err)
	}
	return &SeriesStore{conn: conn, db: opts.Database}, nil
}

// Close releases the connection pool.
func (s *SeriesStore) Close() error {
	return s.conn.Close()
}

const loadEstimatesQuery = `SELECT
    sweep_id, sweep_time, hit_time, model,
    az_bias, el_bias, power_bias_h, power_bias_v, zdr_bias, residual_rms,
    peak_power_h, width_az, width_el, r2_h, samples, rejected,
    sun_azimuth, sun_elevation, dual_pol, low_confidence
FROM %s.%s
WHERE site = ? AND sweep_time >= ? AND sweep_time < ?
ORDER BY sweep_time, sweep_id, hit_time`

// LoadEstimates returns the estimates of site with sweep start in [from, to).
func (s *SeriesStore) LoadEstimates(ctx context.Context, site string, from, to time.Time) ([]suncal.CalibrationEstimate, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(loadEstimatesQuery, s.db, EstimatesTable), site, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query estimates: %w", err)
	}
	defer rows.Close()

	var out []suncal.CalibrationEstimate
	for rows.Next() {
		var (
			e                 suncal.CalibrationEstimate
			model             string
			samples, rejected uint16
		)
		if err := rows.Scan(
			&e.SweepID, &e.Time, &e.HitTime, &model,
			&e.AzBias, &e.ElBias, &e.PowerBiasH, &e.PowerBiasV, &e.ZDRBias, &e.ResidualRMS,
			&e.H.PeakPower, &e.H.WidthAz, &e.H.WidthEl, &e.H.RSquared, &samples, &rejected,
			&e.SunAzimuth, &e.SunElevation, &e.DualPol, &e.LowConfidence,
		); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		e.Model = suncal.FitModel(model)
		e.H.Model = e.Model
		e.H.AzOffset, e.H.ElOffset = e.AzBias, e.ElBias
		e.H.ResidualRMS = e.ResidualRMS
		e.H.Samples, e.H.Rejected = int(samples), int(rejected)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SeriesRow is one (bucket, quantity) row of the series table.
type SeriesRow struct {
	RunID         uuid.UUID
	Site          string
	BucketStart   time.Time
	BucketEnd     time.Time
	Estimates     uint32
	LowConfidence uint32
	Reliable      bool
	Quantity      string
	Median        float64
	MAD           float64
	Count         uint32
}

// SeriesRows flattens a series into long-format rows, one per quantity.
func SeriesRows(runID uuid.UUID, site string, series suncal.CalibrationSeries) []SeriesRow {
	qs := suncal.Quantities()
	rows := make([]SeriesRow, 0, len(series)*len(qs))
	for i := range series {
		b := &series[i]
		for _, q := range qs {
			st := b.Get(q)
			rows = append(rows, SeriesRow{
				RunID:         runID,
				Site:          site,
				BucketStart:   b.Start,
				BucketEnd:     b.End,
				Estimates:     uint32(b.Estimates),
				LowConfidence: uint32(b.LowConfidence),
				Reliable:      b.Reliable,
				Quantity:      q.String(),
				Median:        st.Median,
				MAD:           st.MAD,
				Count:         uint32(st.Count),
			})
		}
	}
	return rows
}

// InsertSeries writes a series in one batch.
func (s *SeriesStore) InsertSeries(ctx context.Context, runID uuid.UUID, site string, series suncal.CalibrationSeries) (int, error) {
	rows := SeriesRows(runID, site, series)
	if len(rows) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s", s.db, SeriesTable))
	if err != nil {
		return 0, fmt.Errorf("prepare series batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.RunID,
			r.Site,
			r.BucketStart,
			r.BucketEnd,
			r.Estimates,
			r.LowConfidence,
			r.Reliable,
			r.Quantity,
			r.Median,
			r.MAD,
			r.Count,
		); err != nil {
			batch.Abort()
			return 0, fmt.Errorf("append series row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send series batch: %w", err)
	}
	return len(rows), nil
}

package store

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/google/uuid"

	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// DefaultBatchSize is the number of rows per native insert block.
const DefaultBatchSize = 50_000

// =============================================================================
// Estimate Batch - columnar block for native insert
// =============================================================================

// EstimateBatch holds column data for one insert block.
type EstimateBatch struct {
	RunID         *proto.ColUUID
	Site          *proto.ColStr
	Band          *proto.ColInt32
	Date          *proto.ColDate32
	SweepID       *proto.ColStr
	SweepTime     *proto.ColDateTime64
	HitTime       *proto.ColDateTime64
	Model         *proto.ColStr
	AzBias        *proto.ColFloat64
	ElBias        *proto.ColFloat64
	PowerBiasH    *proto.ColFloat64
	PowerBiasV    *proto.ColFloat64
	ZDRBias       *proto.ColFloat64
	ResidualRMS   *proto.ColFloat64
	PeakPowerH    *proto.ColFloat64
	WidthAz       *proto.ColFloat64
	WidthEl       *proto.ColFloat64
	R2H           *proto.ColFloat64
	Samples       *proto.ColUInt16
	Rejected      *proto.ColUInt16
	SunAzimuth    *proto.ColFloat64
	SunElevation  *proto.ColFloat64
	DualPol       *proto.ColBool
	LowConfidence *proto.ColBool
}

// NewEstimateBatch allocates empty columns.
func NewEstimateBatch() *EstimateBatch {
	return &EstimateBatch{
		RunID:         new(proto.ColUUID),
		Site:          new(proto.ColStr),
		Band:          new(proto.ColInt32),
		Date:          new(proto.ColDate32),
		SweepID:       new(proto.ColStr),
		SweepTime:     new(proto.ColDateTime64).WithPrecision(proto.PrecisionMilli),
		HitTime:       new(proto.ColDateTime64).WithPrecision(proto.PrecisionMilli),
		Model:         new(proto.ColStr),
		AzBias:        new(proto.ColFloat64),
		ElBias:        new(proto.ColFloat64),
		PowerBiasH:    new(proto.ColFloat64),
		PowerBiasV:    new(proto.ColFloat64),
		ZDRBias:       new(proto.ColFloat64),
		ResidualRMS:   new(proto.ColFloat64),
		PeakPowerH:    new(proto.ColFloat64),
		WidthAz:       new(proto.ColFloat64),
		WidthEl:       new(proto.ColFloat64),
		R2H:           new(proto.ColFloat64),
		Samples:       new(proto.ColUInt16),
		Rejected:      new(proto.ColUInt16),
		SunAzimuth:    new(proto.ColFloat64),
		SunElevation:  new(proto.ColFloat64),
		DualPol:       new(proto.ColBool),
		LowConfidence: new(proto.ColBool),
	}
}

// Reset empties every column, keeping storage.
func (b *EstimateBatch) Reset() {
	b.RunID.Reset()
	b.Site.Reset()
	b.Band.Reset()
	b.Date.Reset()
	b.SweepID.Reset()
	b.SweepTime.Reset()
	b.HitTime.Reset()
	b.Model.Reset()
	b.AzBias.Reset()
	b.ElBias.Reset()
	b.PowerBiasH.Reset()
	b.PowerBiasV.Reset()
	b.ZDRBias.Reset()
	b.ResidualRMS.Reset()
	b.PeakPowerH.Reset()
	b.WidthAz.Reset()
	b.WidthEl.Reset()
	b.R2H.Reset()
	b.Samples.Reset()
	b.Rejected.Reset()
	b.SunAzimuth.Reset()
	b.SunElevation.Reset()
	b.DualPol.Reset()
	b.LowConfidence.Reset()
}

// Len returns the number of rows.
func (b *EstimateBatch) Len() int {
	return b.RunID.Rows()
}

// Input maps columns to the table in declaration order.
func (b *EstimateBatch) Input() proto.Input {
	return proto.Input{
		{Name: "run_id", Data: b.RunID},
		{Name: "site", Data: b.Site},
		{Name: "band", Data: b.Band},
		{Name: "date", Data: b.Date},
		{Name: "sweep_id", Data: b.SweepID},
		{Name: "sweep_time", Data: b.SweepTime},
		{Name: "hit_time", Data: b.HitTime},
		{Name: "model", Data: b.Model},
		{Name: "az_bias", Data: b.AzBias},
		{Name: "el_bias", Data: b.ElBias},
		{Name: "power_bias_h", Data: b.PowerBiasH},
		{Name: "power_bias_v", Data: b.PowerBiasV},
		{Name: "zdr_bias", Data: b.ZDRBias},
		{Name: "residual_rms", Data: b.ResidualRMS},
		{Name: "peak_power_h", Data: b.PeakPowerH},
		{Name: "width_az", Data: b.WidthAz},
		{Name: "width_el", Data: b.WidthEl},
		{Name: "r2_h", Data: b.R2H},
		{Name: "samples", Data: b.Samples},
		{Name: "rejected", Data: b.Rejected},
		{Name: "sun_azimuth", Data: b.SunAzimuth},
		{Name: "sun_elevation", Data: b.SunElevation},
		{Name: "dual_pol", Data: b.DualPol},
		{Name: "low_confidence", Data: b.LowConfidence},
	}
}

// clampUInt16 saturates sample counts into the column type.
func clampUInt16(n int) uint16 {
	return uint16(min(max(n, 0), math.MaxUint16))
}

// AddEstimate appends one row.
func (b *EstimateBatch) AddEstimate(runID uuid.UUID, site string, band int32, e *suncal.CalibrationEstimate) {
	b.RunID.Append(runID)
	b.Site.Append(site)
	b.Band.Append(band)
	b.Date.Append(e.Time.UTC())
	b.SweepID.Append(e.SweepID)
	b.SweepTime.Append(e.Time.UTC())
	b.HitTime.Append(e.HitTime.UTC())
	b.Model.Append(string(e.Model))
	b.AzBias.Append(e.AzBias)
	b.ElBias.Append(e.ElBias)
	b.PowerBiasH.Append(e.PowerBiasH)
	b.PowerBiasV.Append(e.PowerBiasV)
	b.ZDRBias.Append(e.ZDRBias)
	b.ResidualRMS.Append(e.ResidualRMS)
	b.PeakPowerH.Append(e.H.PeakPower)
	b.WidthAz.Append(e.H.WidthAz)
	b.WidthEl.Append(e.H.WidthEl)
	b.R2H.Append(e.H.RSquared)
	b.Samples.Append(clampUInt16(e.H.Samples))
	b.Rejected.Append(clampUInt16(e.H.Rejected))
	b.SunAzimuth.Append(e.SunAzimuth)
	b.SunElevation.Append(e.SunElevation)
	b.DualPol.Append(e.DualPol)
	b.LowConfidence.Append(e.LowConfidence)
}

// InsertQuery returns the INSERT statement matching Input.
func (b *EstimateBatch) InsertQuery(tableFQN string) string {
	input := b.Input()
	names := make([]string, len(input))
	for i, c := range input {
		names[i] = c.Name
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES", tableFQN, strings.Join(names, ", "))
}

// =============================================================================
// Native Writer
// =============================================================================

// NativeOptions configures a NativeWriter.
type NativeOptions struct {
	Address   string // host:port of the native protocol
	Database  string
	User      string
	Password  string
	Table     string // defaults to EstimatesTable
	BatchSize int    // defaults to DefaultBatchSize
	Site      string
	Band      int32
	RunID     uuid.UUID
	Create    bool // run EnsureSchema after connecting
}

// NativeWriter buffers estimates and inserts them in columnar blocks. It is
// not safe for concurrent use; feed it from a single writer goroutine.
type NativeWriter struct {
	conn     *ch.Client
	tableFQN string
	opts     NativeOptions
	batch    *EstimateBatch
	rows     uint64
}

// DialNative connects over the native protocol with LZ4 compression.
func DialNative(ctx context.Context, opts NativeOptions) (*NativeWriter, error) {
	if opts.Table == "" {
		opts.Table = EstimatesTable
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	// the target database may not exist yet when creating the schema
	dialDB := opts.Database
	if opts.Create {
		dialDB = "default"
	}
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     opts.Address,
		Database:    dialDB,
		User:        opts.User,
		Password:    opts.Password,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse dial %s: %w", opts.Address, err)
	}
	if opts.Create {
		if err := EnsureSchema(ctx, conn, opts.Database); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &NativeWriter{
		conn:     conn,
		tableFQN: fmt.Sprintf("%s.%s", opts.Database, opts.Table),
		opts:     opts,
		batch:    NewEstimateBatch(),
	}, nil
}

// Write buffers estimates, flushing every BatchSize rows.
func (w *NativeWriter) Write(ctx context.Context, es []suncal.CalibrationEstimate) error {
	for i := range es {
		w.batch.AddEstimate(w.opts.RunID, w.opts.Site, w.opts.Band, &es[i])
		if w.batch.Len() >= w.opts.BatchSize {
			if err := w.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush inserts the buffered rows.
func (w *NativeWriter) Flush(ctx context.Context) error {
	if w.batch.Len() == 0 {
		return nil
	}
	n := w.batch.Len()
	err := w.conn.Do(ctx, ch.Query{
		Body:  w.batch.InsertQuery(w.tableFQN),
		Input: w.batch.Input(),
	})
	w.batch.Reset()
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", n, w.tableFQN, err)
	}
	w.rows += uint64(n)
	return nil
}

// Rows returns the number of rows inserted.
func (w *NativeWriter) Rows() uint64 {
	return w.rows
}

// Close flushes and closes the connection.
func (w *NativeWriter) Close(ctx context.Context) error {
	ferr := w.Flush(ctx)
	if err := w.conn.Close(); err != nil && ferr == nil {
		return err
	}
	return ferr
}

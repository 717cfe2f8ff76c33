// Package store persists calibration estimates and series in ClickHouse.
//
// Estimates are inserted over the native protocol with ch-go columnar
// blocks; the statistics tool reads them back and writes series through
// clickhouse-go.
package store

import (
	"context"
	"fmt"

	"github.com/ClickHouse/ch-go"
)

// Default table names inside the database.
const (
	EstimatesTable = "estimates"
	SeriesTable    = "series"
)

// estimatesDDL is partitioned by month like the rest of the lab tables.
const estimatesDDL = `CREATE TABLE IF NOT EXISTS %s.%s (
    run_id         UUID,
    site           LowCardinality(String),
    band           Int32,
    date           Date32,
    sweep_id       String,
    sweep_time     DateTime64(3, 'UTC'),
    hit_time       DateTime64(3, 'UTC'),
    model          LowCardinality(String),
    az_bias        Float64,
    el_bias        Float64,
    power_bias_h   Float64,
    power_bias_v   Float64,
    zdr_bias       Float64,
    residual_rms   Float64,
    peak_power_h   Float64,
    width_az       Float64,
    width_el       Float64,
    r2_h           Float64,
    samples        UInt16,
    rejected       UInt16,
    sun_azimuth    Float64,
    sun_elevation  Float64,
    dual_pol       Bool,
    low_confidence Bool
) ENGINE = MergeTree
PARTITION BY toYYYYMM(date)
ORDER BY (site, sweep_time, sweep_id, hit_time)`

const seriesDDL = `CREATE TABLE IF NOT EXISTS %s.%s (
    run_id         UUID,
    site           LowCardinality(String),
    bucket_start   DateTime('UTC'),
    bucket_end     DateTime('UTC'),
    estimates      UInt32,
    low_confidence UInt32,
    reliable       Bool,
    quantity       LowCardinality(String),
    median         Float64,
    mad            Float64,
    count          UInt32
) ENGINE = ReplacingMergeTree
ORDER BY (site, quantity, bucket_start)`

// SchemaStatements returns the DDL creating db and both tables.
func SchemaStatements(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(estimatesDDL, db, EstimatesTable),
		fmt.Sprintf(seriesDDL, db, SeriesTable),
	}
}

// EnsureSchema creates the database and tables when missing.
func EnsureSchema(ctx context.Context, conn *ch.Client, db string) error {
	for _, q := range SchemaStatements(db) {
		if err := conn.Do(ctx, ch.Query{Body: q}); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

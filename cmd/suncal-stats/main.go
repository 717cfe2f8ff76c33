// suncal-stats - Robust calibration series from stored estimates
//
// Loads per-hit calibration estimates from CSV(.gz) files written by
// suncal-ingest or from ClickHouse, reduces them into fixed UTC buckets
// (median and MAD per quantity) and writes the series to CSV and/or the
// ClickHouse series table.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/suncal-stats ./cmd/suncal-stats

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/KI7MT/radar-suncal/internal/archive"
	"github.com/KI7MT/radar-suncal/internal/common"
	"github.com/KI7MT/radar-suncal/internal/store"
	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	env := common.DefaultConfig()

	siteFile := flag.String("site", "", "Site YAML file for aggregation settings")
	siteName := flag.String("site-name", "", "Site name in ClickHouse (default: from -site)")
	bucket := flag.Duration("bucket", 0, "Bucket size (default: calibration bucket_size)")
	minCount := flag.Int("min-count", 0, "Minimum estimates per reliable bucket (default: calibration)")
	includeLow := flag.Bool("include-low", false, "Include low-confidence estimates")
	fromCH := flag.Bool("from-ch", false, "Load estimates from ClickHouse instead of files")
	toCH := flag.Bool("to-ch", false, "Insert the series into ClickHouse")
	chHost := flag.String("ch-host", env.ClickHouseAddr(), "ClickHouse address")
	chDB := flag.String("ch-db", env.ClickHouseDatabase, "ClickHouse database")
	from := flag.String("from", "", "Start date YYYY-MM-DD (ClickHouse input)")
	to := flag.String("to", "", "End date YYYY-MM-DD, exclusive (ClickHouse input)")
	out := flag.String("out", "", "Series CSV output path")
	reliableOnly := flag.Bool("reliable", false, "Only output reliable buckets")
	quiet := flag.Bool("quiet", false, "Do not print the series table")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "suncal-stats v%s - Calibration series from estimates\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [estimates.csv[.gz]...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -from-ch -site-name DWN -from 2021-06-01 -to 2021-07-01 [OPTIONS]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := suncal.DefaultConfig()
	name := *siteName
	if *siteFile != "" {
		sf, err := suncal.LoadFile(*siteFile)
		if err != nil {
			log.Fatalf("Cannot load site file: %v", err)
		}
		cfg = sf.Calibration
		if name == "" {
			name = sf.Site.Name
		}
	}
	if *bucket > 0 {
		cfg.BucketSize = suncal.Duration(*bucket)
	}
	if *minCount > 0 {
		cfg.MinBucketCount = *minCount
	}
	if *includeLow {
		cfg.IncludeLowConfidence = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid aggregation settings: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	log.Println("=========================================================")
	log.Printf("suncal-stats v%s - Calibration Series", Version)
	log.Println("=========================================================")
	log.Printf("Bucket: %v | min count %d | low confidence %v",
		cfg.BucketSize.Std(), cfg.MinBucketCount, cfg.IncludeLowConfidence)

	var seriesStore *store.SeriesStore
	if *fromCH || *toCH {
		if name == "" {
			log.Fatal("ClickHouse access needs -site or -site-name")
		}
		var err error
		seriesStore, err = store.OpenSeriesStore(ctx, store.SeriesOptions{
			Addr:     *chHost,
			Database: *chDB,
			User:     env.ClickHouseUser,
			Password: env.ClickHousePassword,
		})
		if err != nil {
			log.Fatalf("ClickHouse connection failed: %v", err)
		}
		defer seriesStore.Close()
	}

	agg := suncal.NewAggregator(cfg)
	loaded := 0
	if *fromCH {
		start, end, err := parseRange(*from, *to)
		if err != nil {
			log.Fatalf("Invalid range: %v", err)
		}
		es, err := seriesStore.LoadEstimates(ctx, name, start, end)
		if err != nil {
			log.Fatalf("Load estimates: %v", err)
		}
		agg.AddAll(es)
		loaded = len(es)
		log.Printf("[clickhouse] %s: %s estimates in [%s, %s)", name,
			humanize.Comma(int64(loaded)), start.Format("2006-01-02"), end.Format("2006-01-02"))
	} else {
		if flag.NArg() == 0 {
			flag.Usage()
			os.Exit(2)
		}
		for _, path := range flag.Args() {
			es, err := archive.ReadEstimatesCSV(path)
			if err != nil {
				log.Fatalf("[%s] %v", path, err)
			}
			agg.AddAll(es)
			loaded += len(es)
			log.Printf("[%s] %s estimates", path, humanize.Comma(int64(len(es))))
		}
	}

	series := agg.Series()
	if *reliableOnly {
		series = agg.Export()
	}

	if !*quiet {
		printSeries(series)
	}

	if *out != "" {
		if err := archive.WriteSeriesCSV(*out, series); err != nil {
			log.Fatalf("Write series: %v", err)
		}
		log.Printf("Series: %s", *out)
	}
	if *toCH {
		n, err := seriesStore.InsertSeries(ctx, uuid.New(), name, series)
		if err != nil {
			log.Fatalf("Insert series: %v", err)
		}
		log.Printf("Inserted %s rows into %s.%s", humanize.Comma(int64(n)), *chDB, store.SeriesTable)
	}

	reliable := 0
	for i := range series {
		if series[i].Reliable {
			reliable++
		}
	}
	log.Println("=========================================================")
	log.Printf("Estimates: %s | buckets %d | reliable %d", humanize.Comma(int64(loaded)), len(series), reliable)
	log.Println("=========================================================")
}

// parseRange parses inclusive-exclusive UTC dates. An empty end means one
// day after start.
func parseRange(from, to string) (time.Time, time.Time, error) {
	if from == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-from is required")
	}
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := start.AddDate(0, 0, 1)
	if to != "" {
		if end, err = time.Parse("2006-01-02", to); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to %s not after -from %s", to, from)
	}
	return start, end, nil
}

func printSeries(series suncal.CalibrationSeries) {
	fmt.Printf("%-20s %5s %4s %9s %9s %9s %9s %9s %s\n",
		"bucket_start", "n", "low", "az_bias", "el_bias", "pwr_h", "pwr_v", "zdr", "reliable")
	for i := range series {
		b := &series[i]
		fmt.Printf("%-20s %5d %4d %9s %9s %9s %9s %9s %v\n",
			b.Start.Format("2006-01-02T15:04:05Z"), b.Estimates, b.LowConfidence,
			cell(b.Get(suncal.QuantityAzBias)),
			cell(b.Get(suncal.QuantityElBias)),
			cell(b.Get(suncal.QuantityPowerBiasH)),
			cell(b.Get(suncal.QuantityPowerBiasV)),
			cell(b.Get(suncal.QuantityZDRBias)),
			b.Reliable)
	}
}

func cell(s suncal.Summary) string {
	if s.Count == 0 || math.IsNaN(s.Median) {
		return "-"
	}
	return fmt.Sprintf("%.3f", s.Median)
}

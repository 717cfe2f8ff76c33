// suncal-ingest - Solar calibration from radar sweep archives
//
// Reads sweep sample files (Parquet, CSV, CSV.gz or gate-level hit CSV),
// detects sun hits, fits pointing and power bias per hit and writes one
// estimate per hit to CSV and/or ClickHouse (ch-go native protocol).
//
// Architecture:
//   files -> reader pool (N) -> CPUProcessor (workers) -> writer goroutine
//         -> estimates CSV(.gz) | ClickHouse native blocks | series CSV
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/suncal-ingest ./cmd/suncal-ingest

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/KI7MT/radar-suncal/internal/archive"
	"github.com/KI7MT/radar-suncal/internal/common"
	"github.com/KI7MT/radar-suncal/internal/store"
	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

const (
	NumReaders     = 2  // files decoded concurrently
	ChannelBuffer  = 8  // processed files queued for the writer
	MaxErrorsToLog = 20 // per-sweep errors logged before going quiet
)

// fileResult is one processed input file on its way to the writer.
type fileResult struct {
	path   string
	input  *archive.Result
	result *suncal.ProcessResult
}

func main() {
	env := common.DefaultConfig()

	siteFile := flag.String("site", "", "Site YAML file (required)")
	workers := flag.Int("workers", runtime.NumCPU(), "Fit workers per file")
	readers := flag.Int("readers", NumReaders, "Files decoded concurrently")
	outDir := flag.String("out-dir", env.EstimateDir(), "Directory for CSV output")
	writeCSV := flag.Bool("csv", true, "Write estimates CSV")
	gz := flag.Bool("gzip", true, "Compress the estimates CSV")
	writeSeries := flag.Bool("series", true, "Write the aggregated series CSV")
	useCH := flag.Bool("ch", false, "Insert estimates into ClickHouse")
	chHost := flag.String("ch-host", env.ClickHouseAddr(), "ClickHouse native address")
	chDB := flag.String("ch-db", env.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", store.EstimatesTable, "ClickHouse estimates table")
	create := flag.Bool("create", false, "Create database and tables if missing")
	batchSize := flag.Int("batch-size", store.DefaultBatchSize, "Rows per native block")
	metricsFile := flag.String("metrics", "", "Prometheus textfile to write at exit")
	silent := flag.Bool("silent", false, "Suppress progress output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "suncal-ingest v%s - Solar calibration from sweep archives\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s -site FILE [OPTIONS] [files or dirs...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Default input directory: %s\n\n", env.SweepDataDir())
		fmt.Fprintf(os.Stderr, "Inputs:\n")
		fmt.Fprintf(os.Stderr, "  *.parquet        sweep_id,time_ns,azimuth,elevation,power_h,power_v\n")
		fmt.Fprintf(os.Stderr, "  *.csv, *.csv.gz  same columns, or gate-level hit CSV with reflectivity\n\n")
		fmt.Fprintf(os.Stderr, "Environment: CLICKHOUSE_HOST, CLICKHOUSE_PORT, CLICKHOUSE_DATABASE,\n")
		fmt.Fprintf(os.Stderr, "  CLICKHOUSE_USER, CLICKHOUSE_PASSWORD, SUNCAL_DATA_DIR, LOG_LEVEL (.env honoured)\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *siteFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	sf, err := suncal.LoadFile(*siteFile)
	if err != nil {
		log.Fatalf("Cannot load site file: %v", err)
	}
	cfg := sf.Calibration
	engine, err := sf.Site.Engine(cfg.RefractionModel)
	if err != nil {
		log.Fatalf("Invalid site: %v", err)
	}
	band, bandName := suncal.GetBand(sf.Site.FrequencyGHz)

	inputs := flag.Args()
	if len(inputs) == 0 {
		inputs = []string{env.SweepDataDir()}
	}
	files := discoverFiles(inputs)
	if len(files) == 0 {
		log.Fatal("No input files found")
	}

	runID := uuid.New()
	stamp := time.Now().UTC().Format("20060102_150405")

	log.Println("=========================================================")
	log.Printf("suncal-ingest v%s - Solar Calibration", Version)
	log.Println("=========================================================")
	log.Printf("Site:     %s (%.4f, %.4f) band %s", sf.Site.Name,
		sf.Site.Location.Latitude, sf.Site.Location.Longitude, bandName)
	log.Printf("Model:    %s | window %.1f deg | beam %.2f deg | refraction %s",
		cfg.FitModel, cfg.WindowDeg, cfg.BeamwidthDeg, cfg.RefractionModel)
	log.Printf("Input:    %d file(s) | readers %d | workers %d", len(files), *readers, *workers)
	log.Printf("Run ID:   %s", runID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	// Sinks
	var native *store.NativeWriter
	if *useCH {
		log.Printf("Connecting to ClickHouse at %s...", *chHost)
		native, err = store.DialNative(ctx, store.NativeOptions{
			Address:   *chHost,
			Database:  *chDB,
			User:      env.ClickHouseUser,
			Password:  env.ClickHousePassword,
			Table:     *chTable,
			BatchSize: *batchSize,
			Site:      sf.Site.Name,
			Band:      band,
			RunID:     runID,
			Create:    *create,
		})
		if err != nil {
			log.Fatalf("ClickHouse connection failed: %v", err)
		}
		log.Printf("Table:    %s.%s", *chDB, *chTable)
	}

	if (*writeCSV || *writeSeries) && *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			log.Fatalf("Cannot create output directory: %v", err)
		}
	}
	var csvOut *archive.EstimateWriter
	if *writeCSV {
		ext := ".csv"
		if *gz {
			ext = ".csv.gz"
		}
		path := filepath.Join(*outDir, fmt.Sprintf("estimates_%s_%s%s", sf.Site.Name, stamp, ext))
		csvOut, err = archive.CreateEstimateCSV(path)
		if err != nil {
			log.Fatalf("Cannot create estimates file: %v", err)
		}
		log.Printf("Output:   %s", path)
	}

	proc, err := suncal.NewCPUProcessor(engine, cfg, *workers)
	if err != nil {
		log.Fatalf("Invalid calibration settings: %v", err)
	}
	defer proc.Close()

	stats := common.NewStats()
	stats.SetSilent(*silent)
	proc.SetStats(stats)
	stats.StartReporter()

	// Writer goroutine: the only owner of the sinks and the run aggregator.
	results := make(chan fileResult, ChannelBuffer)
	total := suncal.NewAggregator(cfg)
	statusCounts := make(map[suncal.SweepStatus]int)
	var writeErr error
	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		logged := 0
		for fr := range results {
			res := fr.result
			for i := range res.Outcomes {
				statusCounts[res.Outcomes[i].Status]++
			}
			if err := total.Merge(res.Aggregate); err != nil {
				writeErr = multierror.Append(writeErr, err)
			}
			if res.Err != nil && logged < MaxErrorsToLog {
				if merr, ok := res.Err.(*multierror.Error); ok {
					for _, e := range merr.Errors {
						if logged >= MaxErrorsToLog {
							break
						}
						log.Printf("[%s] %v", filepath.Base(fr.path), e)
						logged++
					}
				}
			}
			if csvOut != nil {
				if err := csvOut.Write(res.Estimates); err != nil {
					writeErr = multierror.Append(writeErr, fmt.Errorf("estimates csv: %w", err))
				}
			}
			if native != nil {
				if err := native.Write(ctx, res.Estimates); err != nil {
					writeErr = multierror.Append(writeErr, err)
				}
			}
			if env.Verbose() {
				log.Printf("[%s] %d sweeps, %d samples, %d filtered, %d estimates",
					filepath.Base(fr.path), len(fr.input.Sweeps), fr.input.Samples(),
					fr.input.Filtered, len(res.Estimates))
			}
		}
	}()

	// Reader pool with semaphore
	opts := archive.OptionsFrom(cfg)
	sem := make(chan struct{}, max(*readers, 1))
	var wg sync.WaitGroup
	var fileErrs atomic.Uint64
	var merrMu sync.Mutex
	var fileErr error

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			in, err := archive.ReadFile(fp, opts)
			if err == nil {
				stats.AddBytes(in.Bytes)
				stats.AddSamples(uint64(in.Samples()))
				var res *suncal.ProcessResult
				if res, err = proc.ProcessBatch(in.Sweeps); err == nil {
					results <- fileResult{path: fp, input: in, result: res}
					return
				}
			}
			fileErrs.Add(1)
			merrMu.Lock()
			fileErr = multierror.Append(fileErr, fmt.Errorf("%s: %w", filepath.Base(fp), err))
			merrMu.Unlock()
			log.Printf("[%s] %v", filepath.Base(fp), err)
		}(path)
	}

	wg.Wait()
	close(results)
	writerDone.Wait()
	stats.StopReporter()

	if csvOut != nil {
		if err := csvOut.Close(); err != nil {
			writeErr = multierror.Append(writeErr, fmt.Errorf("estimates csv: %w", err))
		}
	}
	if native != nil {
		if err := native.Close(context.Background()); err != nil {
			writeErr = multierror.Append(writeErr, err)
		}
		log.Printf("Inserted %d rows into %s.%s", native.Rows(), *chDB, *chTable)
	}

	series := total.Series()
	if *writeSeries && len(series) > 0 {
		path := filepath.Join(*outDir, fmt.Sprintf("series_%s_%s.csv", sf.Site.Name, stamp))
		if err := archive.WriteSeriesCSV(path, series); err != nil {
			writeErr = multierror.Append(writeErr, fmt.Errorf("series csv: %w", err))
		} else {
			log.Printf("Series:   %s (%d buckets)", path, len(series))
		}
	}

	if *metricsFile != "" {
		m := common.NewMetrics("suncal-ingest", sf.Site.Name)
		if err := m.WriteMetrics(*metricsFile, stats.Snapshot()); err != nil {
			log.Printf("Warning: cannot write metrics: %v", err)
		}
	}

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	for _, line := range stats.Summary() {
		log.Println(line)
	}
	for _, s := range []suncal.SweepStatus{
		suncal.StatusFitted, suncal.StatusNoHits, suncal.StatusFitFailed,
		suncal.StatusSunOutOfView, suncal.StatusInvalid,
	} {
		if n := statusCounts[s]; n > 0 {
			log.Printf("  %-16s %d", s.String()+":", n)
		}
	}
	if csvOut != nil {
		log.Printf("CSV rows:       %d", csvOut.Rows())
	}
	log.Printf("Buckets:        %d (%d reliable)", len(series), len(total.Export()))
	if n := fileErrs.Load(); n > 0 {
		log.Printf("Failed files:   %d", n)
	}
	log.Println("=========================================================")

	if writeErr != nil {
		log.Fatalf("Output errors: %v", writeErr)
	}
	if fileErr != nil && fileErrs.Load() == uint64(len(files)) {
		log.Fatalf("All input files failed: %v", fileErr)
	}
}

// discoverFiles expands directories into the readable sample files below
// them, sorted by path.
func discoverFiles(inputs []string) []string {
	var files []string
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			log.Printf("Warning: cannot access %s: %v", input, err)
			continue
		}
		if !info.IsDir() {
			files = append(files, input)
			continue
		}
		filepath.Walk(input, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if !info.IsDir() && archive.IsInputFile(path) {
				files = append(files, path)
			}
			return nil
		})
	}
	sort.Strings(files)
	return files
}

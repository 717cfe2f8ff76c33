// sunpos - Sun position table for a radar site
//
// Prints topocentric sun azimuth and elevation (true and refracted) for one
// instant or a series of instants. Useful for checking a site file before an
// ingest run and for planning sun-tracking scans.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/sunpos ./cmd/sunpos

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/KI7MT/radar-suncal/internal/solar"
	"github.com/KI7MT/radar-suncal/internal/suncal"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

func main() {
	siteFile := flag.String("site", "", "Site YAML file (overrides -lat/-lon/-alt)")
	lat := flag.Float64("lat", 0, "Latitude, degrees north")
	lon := flag.Float64("lon", 0, "Longitude, degrees east")
	alt := flag.Float64("alt", 0, "Site elevation, metres")
	pressure := flag.Float64("pressure", solar.StandardAtmosphere.Pressure, "Surface pressure, hPa")
	temperature := flag.Float64("temperature", solar.StandardAtmosphere.Temperature, "Surface temperature, C")
	refraction := flag.String("refraction", string(solar.RefractionOptical), "Refraction model: optical, radio, none")
	at := flag.String("time", "", "Start instant, RFC3339 UTC (default: now)")
	step := flag.Duration("step", 10*time.Minute, "Interval between rows")
	count := flag.Int("count", 1, "Number of rows")
	deltaT := flag.Float64("delta-t", 0, "TT-UT1 seconds (0 = polynomial estimate)")
	aboveOnly := flag.Bool("above", false, "Only print rows with the sun above the horizon")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sunpos v%s - Sun position for a radar site\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Computes the NREL SPA sun position and prints one row per instant.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s -lat -12.25 -lon 131.04 -time 2021-06-21T02:00:00Z\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -site darwin.yaml -step 5m -count 288 -above\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	model := solar.RefractionModel(*refraction)
	if !model.Valid() {
		log.Fatalf("Unknown refraction model %q", *refraction)
	}

	var (
		engine *solar.Engine
		name   = "cli"
		err    error
	)
	if *siteFile != "" {
		f, lerr := suncal.LoadFile(*siteFile)
		if lerr != nil {
			log.Fatalf("Cannot load site file: %v", lerr)
		}
		name = f.Site.Name
		engine, err = f.Site.Engine(model)
	} else {
		engine, err = solar.NewEngine(
			solar.Location{Latitude: *lat, Longitude: *lon, Elevation: *alt},
			solar.Atmosphere{Pressure: *pressure, Temperature: *temperature},
		)
		if err == nil {
			engine.Refraction = model
		}
	}
	if err != nil {
		log.Fatalf("Invalid site: %v", err)
	}
	if *deltaT != 0 {
		engine.DeltaT = solar.FixedDeltaT(*deltaT)
	}

	start := time.Now().UTC()
	if *at != "" {
		start, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("Invalid -time: %v", err)
		}
	}
	if *count < 1 {
		*count = 1
	}

	loc := engine.Location()
	fmt.Printf("# site=%s lat=%.5f lon=%.5f alt=%.1fm refraction=%s\n",
		name, loc.Latitude, loc.Longitude, loc.Elevation, engine.Refraction)
	fmt.Printf("%-24s %10s %10s %10s %10s %10s\n", "time_utc", "azimuth", "elevation", "true_el", "ra", "dec")

	dc := engine.NewDayContext(start)
	for i := 0; i < *count; i++ {
		t := start.Add(time.Duration(i) * *step)
		if !dc.Contains(t) {
			dc.Reset(t)
		}
		p, err := dc.Position(t)
		if err != nil {
			log.Fatalf("Position at %s: %v", t.Format(time.RFC3339), err)
		}
		if *aboveOnly && !p.AboveHorizon() {
			continue
		}
		fmt.Printf("%-24s %10.4f %10.4f %10.4f %10.4f %10.4f\n",
			t.Format("2006-01-02T15:04:05Z"), p.Azimuth, p.Elevation, p.TrueElevation,
			p.RightAscension, p.Declination)
	}
}

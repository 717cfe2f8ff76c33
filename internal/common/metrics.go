package common

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the end-of-run counters as Prometheus gauges so that a
// node_exporter textfile collector can scrape batch runs.
type Metrics struct {
	registry *prometheus.Registry

	sweeps      *prometheus.GaugeVec
	samples     prometheus.Gauge
	hits        prometheus.Gauge
	estimates   prometheus.Gauge
	fitFailures prometheus.Gauge
	bytes       prometheus.Gauge
	duration    prometheus.Gauge
	lastRun     prometheus.Gauge
}

// NewMetrics creates the gauges for one tool under its own registry.
func NewMetrics(tool, site string) *Metrics {
	labels := prometheus.Labels{"tool": tool, "site": site}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "suncal",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "suncal",
			Name:        "sweeps",
			Help:        "Sweeps seen in the last run by outcome.",
			ConstLabels: labels,
		}, []string{"status"}),
		samples:     gauge("samples", "Antenna samples read in the last run."),
		hits:        gauge("sun_hits", "Sun hits passed to the fitter in the last run."),
		estimates:   gauge("estimates", "Calibration estimates produced in the last run."),
		fitFailures: gauge("fit_failures", "Sun hits rejected by the fitter in the last run."),
		bytes:       gauge("input_bytes", "Input bytes read in the last run."),
		duration:    gauge("run_duration_seconds", "Wall time of the last run."),
		lastRun:     gauge("last_run_timestamp_seconds", "Unix time the last run finished."),
	}
	m.registry.MustRegister(m.sweeps, m.samples, m.hits, m.estimates,
		m.fitFailures, m.bytes, m.duration, m.lastRun)
	return m
}

// Observe copies a stats snapshot into the gauges.
func (m *Metrics) Observe(s Snapshot) {
	m.sweeps.WithLabelValues("processed").Set(float64(s.Sweeps))
	m.sweeps.WithLabelValues("skipped").Set(float64(s.Skipped))
	m.samples.Set(float64(s.Samples))
	m.hits.Set(float64(s.Hits))
	m.estimates.Set(float64(s.Estimates))
	m.fitFailures.Set(float64(s.FitFailures))
	m.bytes.Set(float64(s.Bytes))
	m.duration.Set(s.Elapsed.Seconds())
	m.lastRun.SetToCurrentTime()
}

// Registry returns the registry holding the gauges.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteMetrics observes the final stats and writes them to a textfile in
// the Prometheus exposition format. The write is atomic.
func (m *Metrics) WriteMetrics(path string, s Snapshot) error {
	m.Observe(s)
	return prometheus.WriteToTextfile(path, m.registry)
}

package suncal

import "errors"

// Per-cluster and configuration failures. Fit errors never stop sibling
// clusters, sweeps or days; the processor collects them for reporting.
var (
	// ErrInsufficientSamples means a cluster has too few valid samples for the model.
	ErrInsufficientSamples = errors.New("suncal: insufficient samples")

	// ErrDegenerateFit means the samples cannot constrain the model, e.g. all
	// in one row or a non-concave 5-parameter solution.
	ErrDegenerateFit = errors.New("suncal: degenerate fit")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("suncal: invalid config")

	// ErrInvalidSweep means the sweep's sample columns are inconsistent.
	ErrInvalidSweep = errors.New("suncal: invalid sweep")
)

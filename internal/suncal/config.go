package suncal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/KI7MT/radar-suncal/internal/solar"
)

// FitModel selects the beam-pattern regression.
type FitModel string

const (
	Model3P FitModel = "3p" // fixed widths; offsets and peak power
	Model5P FitModel = "5p" // free widths per axis
)

// Duration is a time.Duration that reads "90s" style strings from YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("suncal.Duration: failed to parse %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// =============================================================================
// Calibration Config
// =============================================================================

// Config enumerates every tunable of detection, fitting and aggregation.
// Build one with DefaultConfig, override fields, then call Validate once.
type Config struct {
	// Detection
	WindowDeg           float64  `yaml:"window_deg" validate:"gt=0,lte=30"`
	MinClusterSize      int      `yaml:"min_cluster_size" validate:"gte=4"`
	MaxGap              Duration `yaml:"max_gap" validate:"gt=0"`
	BridgeNonCandidates bool     `yaml:"bridge_non_candidates"`
	MaxSunElevationDeg  float64  `yaml:"max_sun_elevation_deg" validate:"gt=0,lte=90"`
	HorizonMarginDeg    float64  `yaml:"horizon_margin_deg" validate:"gte=0,lte=10"`

	// Fitting
	BeamwidthDeg        float64  `yaml:"beamwidth_deg" validate:"gt=0,lte=10"`
	RayStepDeg          float64  `yaml:"ray_step_deg" validate:"gte=0,lte=10"`
	FitModel            FitModel `yaml:"fit_model" validate:"oneof=3p 5p"`
	OutlierSigma        float64  `yaml:"outlier_sigma" validate:"gte=0"`
	ResidualThresholdDB float64  `yaml:"residual_threshold_db" validate:"gt=0"`
	ReferencePowerHDB   float64  `yaml:"reference_power_h_db"`
	ReferencePowerVDB   float64  `yaml:"reference_power_v_db"`
	ZDROffsetDB         float64  `yaml:"zdr_offset_db"`

	// Ephemeris
	RefractionModel solar.RefractionModel `yaml:"refraction_model" validate:"oneof=optical radio none"`

	// Aggregation
	BucketSize           Duration `yaml:"bucket_size" validate:"gt=0"`
	MinBucketCount       int      `yaml:"min_bucket_count" validate:"gte=1"`
	IncludeLowConfidence bool     `yaml:"include_low_confidence"`

	// Reflectivity input (gate-level hit files)
	MinRangeM             float64 `yaml:"min_range_m" validate:"gte=0"`
	MinFillRatio          float64 `yaml:"min_fill_ratio" validate:"gte=0,lte=1"`
	GasAttenuationDBPerKm float64 `yaml:"gas_attenuation_db_per_km" validate:"gte=0"`
}

// DefaultConfig returns settings for a 1 degree S/C-band radar.
func DefaultConfig() Config {
	return Config{
		WindowDeg:          3,
		MinClusterSize:     10,
		MaxGap:             Duration(2 * time.Second),
		MaxSunElevationDeg: 10,
		HorizonMarginDeg:   2,

		BeamwidthDeg:        1,
		RayStepDeg:          0,
		FitModel:            Model3P,
		OutlierSigma:        3,
		ResidualThresholdDB: 1.5,

		RefractionModel: solar.RefractionOptical,

		BucketSize:     Duration(24 * time.Hour),
		MinBucketCount: 3,

		MinRangeM:             50e3,
		MinFillRatio:          0.3,
		GasAttenuationDBPerKm: 0.017,
	}
}

var validate = validator.New()

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s fails %q (value %v)", ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.FitModel == Model5P && c.MinClusterSize <= 5 {
		return fmt.Errorf("%w: min_cluster_size %d too small for the 5p model", ErrInvalidConfig, c.MinClusterSize)
	}
	if b := c.BucketSize.Std(); b < time.Second || b%time.Second != 0 {
		return fmt.Errorf("%w: bucket_size %v must be a whole number of seconds", ErrInvalidConfig, b)
	}
	if c.WindowDeg < c.BeamwidthDeg/2 {
		return fmt.Errorf("%w: window %.2f deg narrower than half the beamwidth %.2f deg",
			ErrInvalidConfig, c.WindowDeg, c.BeamwidthDeg)
	}
	return nil
}

// params returns the number of regression coefficients of m.
func (m FitModel) params() int {
	if m == Model5P {
		return 5
	}
	return 3
}

// =============================================================================
// Site File
// =============================================================================

// Site describes one radar.
type Site struct {
	Name         string           `yaml:"name" validate:"required"`
	Location     solar.Location   `yaml:"location"`
	Atmosphere   solar.Atmosphere `yaml:"atmosphere"`
	FrequencyGHz float64          `yaml:"frequency_ghz" validate:"gte=0"`
	DeltaT       float64          `yaml:"delta_t"` // TT-UT1 seconds, 0 = polynomial estimate
	DUT1         float64          `yaml:"dut1"`    // UT1-UTC seconds
}

// Engine builds the ephemeris for the site with the configured refraction.
func (s *Site) Engine(model solar.RefractionModel) (*solar.Engine, error) {
	e, err := solar.NewEngine(s.Location, s.Atmosphere)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.Name, err)
	}
	e.Refraction = model
	e.DUT1 = s.DUT1
	if s.DeltaT != 0 {
		e.DeltaT = solar.FixedDeltaT(s.DeltaT)
	}
	return e, nil
}

// File is the on-disk YAML layout: one site plus its calibration settings.
type File struct {
	Site        Site   `yaml:"site"`
	Calibration Config `yaml:"calibration"`
}

// DefaultFile returns a File with default calibration settings and a
// standard atmosphere.
func DefaultFile() File {
	return File{
		Site:        Site{Atmosphere: solar.StandardAtmosphere},
		Calibration: DefaultConfig(),
	}
}

// Validate checks the site and the calibration settings.
func (f *File) Validate() error {
	if err := validate.Struct(&f.Site); err != nil {
		return fmt.Errorf("%w: site: %v", ErrInvalidConfig, err)
	}
	if err := f.Site.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return f.Calibration.Validate()
}

// LoadFile reads a YAML site file over the defaults and validates it.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(data)
}

// ParseFile decodes YAML over the defaults and validates it.
func ParseFile(data []byte) (*File, error) {
	f := DefaultFile()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

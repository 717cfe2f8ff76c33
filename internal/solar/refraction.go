package solar

import (
	"fmt"
	"math"
)

// Valid true-elevation domain of the refraction models, degrees.
const (
	MinRefractionElevation = -1.0
	MaxRefractionElevation = 90.0
)

// Holleman & Huuskonen (2013) defaults for radio-wave refraction.
const (
	RadioRefractiveIndex = 1.000313
	RadioEarthModel      = 5.0 / 4.0
)

// RefractionModel selects how true elevation maps to apparent elevation.
type RefractionModel string

const (
	RefractionOptical RefractionModel = "optical" // Saemundsson with the Meeus zenith term
	RefractionRadio   RefractionModel = "radio"   // Holleman & Huuskonen 2013, eq. 9/10
	RefractionNone    RefractionModel = "none"
)

// Valid reports whether m is a known model.
func (m RefractionModel) Valid() bool {
	switch m {
	case RefractionOptical, RefractionRadio, RefractionNone:
		return true
	}
	return false
}

// Correction returns the refraction angle in degrees for a true elevation.
func (m RefractionModel) Correction(trueEl float64, atm Atmosphere) (float64, error) {
	switch m {
	case RefractionRadio:
		return RadioRefraction(trueEl, RadioRefractiveIndex, RadioEarthModel)
	case RefractionNone:
		if err := checkRefractionDomain(trueEl); err != nil {
			return 0, err
		}
		return 0, nil
	default:
		return Refraction(trueEl, atm)
	}
}

// Apparent returns the apparent elevation for a true elevation.
func (m RefractionModel) Apparent(trueEl float64, atm Atmosphere) (float64, error) {
	r, err := m.Correction(trueEl, atm)
	if err != nil {
		return trueEl, err
	}
	return trueEl + r, nil
}

func checkRefractionDomain(trueEl float64) error {
	if math.IsNaN(trueEl) || trueEl < MinRefractionElevation || trueEl > MaxRefractionElevation {
		return fmt.Errorf("%w: true elevation %.4f outside [%.0f, %.0f]",
			ErrRefractionUndefined, trueEl, MinRefractionElevation, MaxRefractionElevation)
	}
	return nil
}

// Refraction returns the optical refraction correction in degrees for a true
// elevation h:
//
//	R = (P/1010) * (283/(273+T)) * (1.02/tan(h + 10.3/(h+5.11)) + 0.0019279) arcmin
//
// The constant term brings the correction to zero at the zenith. The result
// is clamped at zero and decreases strictly with h across the domain.
func Refraction(trueEl float64, atm Atmosphere) (float64, error) {
	if err := checkRefractionDomain(trueEl); err != nil {
		return 0, err
	}
	arg := deg2rad(trueEl + 10.3/(trueEl+5.11))
	arcmin := (atm.Pressure / 1010) * (283 / (273 + atm.Temperature)) *
		(1.02/math.Tan(arg) + 0.0019279)
	if arcmin < 0 {
		arcmin = 0
	}
	return arcmin / 60, nil
}

// ApparentElevation applies the optical correction to a true elevation.
func ApparentElevation(trueEl float64, atm Atmosphere) (float64, error) {
	return RefractionOptical.Apparent(trueEl, atm)
}

// RadioRefraction returns the refraction angle in degrees for a radio ray
// leaving the antenna at true elevation el, for surface refractive index n0
// and effective earth-radius factor k.
func RadioRefraction(el, n0, k float64) (float64, error) {
	if err := checkRefractionDomain(el); err != nil {
		return 0, err
	}
	theta := deg2rad(el)
	s := math.Sin(theta)
	r := (k - 1) * math.Cos(theta) * (math.Sqrt(s*s+2/(k-1)*(n0-1)) - s)
	return rad2deg(r), nil
}

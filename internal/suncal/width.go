package suncal

import (
	"fmt"
	"math"
)

// EffectiveScanWidth returns the effective azimuthal width of the sun image
// seen by an antenna of 3 dB beamwidth theta (degrees) integrating over a
// ray step of step degrees while it scans. It solves the transcendental
// equation of Doviak & Zrnic (2006, section 7.8)
//
//	erf(a x + b) - erf(a x - b) = (2/e) erf(b),  a = sqrt(4 ln 2)/theta, b = a step/2
//
// and returns sqrt(4 ln 2) x. For step = 0 the result is theta.
func EffectiveScanWidth(theta, step float64) (float64, error) {
	if !(theta > 0) || math.IsInf(theta, 0) {
		return 0, fmt.Errorf("%w: beamwidth %v", ErrInvalidConfig, theta)
	}
	if step < 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 0, fmt.Errorf("%w: ray step %v", ErrInvalidConfig, step)
	}
	if step == 0 {
		return theta, nil
	}

	c := math.Sqrt(4 * math.Ln2)
	a := c / theta
	b := a * step / 2
	rhs := 2 / math.E * math.Erf(b)
	f := func(x float64) float64 {
		return math.Erf(a*x+b) - math.Erf(a*x-b) - rhs
	}

	// f(0) > 0 and f decreases monotonically towards -rhs.
	lo, hi := 0.0, 1/a+step
	for f(hi) > 0 {
		hi *= 2
	}
	for i := 0; i < 200 && hi-lo > 1e-13*hi; i++ {
		mid := (lo + hi) / 2
		if f(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return c * (lo + hi) / 2, nil
}

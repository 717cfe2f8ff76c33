package suncal

import "math"

// halfPowerDB is 10 log10(0.5): a single-polarisation receiver collects half
// of the randomly polarised solar flux.
var halfPowerDB = 10 * math.Log10(0.5)

// PowerFromReflectivity undoes the radar equation for a gate of uncorrected
// reflectivity contaminated by solar noise. It removes the range
// normalisation and the two-way gaseous attenuation applied by the signal
// processor and the half-power polarisation factor:
//
//	P = Z - 20 log10(r) - 10 log10(0.5) - 2 gas r/1000
//
// refl is in dBZ, rangeM in metres and gasDBPerKm in dB/km. The result is a
// relative received power in dB.
func PowerFromReflectivity(refl, rangeM, gasDBPerKm float64) float64 {
	if !(rangeM > 0) {
		return math.NaN()
	}
	return refl - 20*math.Log10(rangeM) - halfPowerDB - 2*gasDBPerKm*rangeM/1e3
}

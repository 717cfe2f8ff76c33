package solar

import "time"

// EstimateDeltaT returns TT-UT1 in seconds for t using the Espenak & Meeus
// polynomial expressions (NASA Five Millennium Canon of Solar Eclipses).
// Outside the tabulated spans the long-term parabola is used. For precise
// work callers should pass an observed value through FixedDeltaT.
func EstimateDeltaT(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year()) + (float64(t.Month())-0.5)/12

	switch {
	case y >= 1900 && y < 1920:
		u := y - 1900
		return -2.79 + u*(1.494119+u*(-0.0598939+u*(0.0061966+u*-0.000197)))
	case y >= 1920 && y < 1941:
		u := y - 1920
		return 21.20 + u*(0.84493+u*(-0.076100+u*0.0020936))
	case y >= 1941 && y < 1961:
		u := y - 1950
		return 29.07 + 0.407*u - u*u/233 + u*u*u/2547
	case y >= 1961 && y < 1986:
		u := y - 1975
		return 45.45 + 1.067*u - u*u/260 - u*u*u/718
	case y >= 1986 && y < 2005:
		u := y - 2000
		return 63.86 + u*(0.3345+u*(-0.060374+u*(0.0017275+u*(0.000651814+u*0.00002373599))))
	case y >= 2005 && y < 2050:
		u := y - 2000
		return 62.92 + 0.32217*u + 0.005589*u*u
	case y >= 2050 && y < 2150:
		u := (y - 1820) / 100
		return -20 + 32*u*u - 0.5628*(2150-y)
	default:
		u := (y - 1820) / 100
		return -20 + 32*u*u
	}
}

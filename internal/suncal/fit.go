package suncal

import (
	"fmt"
	"math"
	"slices"
)

// =============================================================================
// Beam-Pattern Regression
// =============================================================================

// BeamShapeDB is the power drop in dB of the receive pattern at one full
// beamwidth from its axis, 40 log10(2) for a Gaussian one-way pattern:
//
//	P(x, y) = P0 - BeamShapeDB ((x-x0)^2/wx^2 + (y-y0)^2/wy^2)
const BeamShapeDB = 40 * 0.30102999566398120

// madScale converts a median absolute deviation into a normal sigma.
const madScale = 1.4826

// Numerical floors for degeneracy detection.
const (
	minSpreadRatio = 1e-3  // std along the narrowest direction, in beamwidths
	maxCondition   = 1e8   // ratio of the offset covariance eigenvalues
	minPivotRatio  = 1e-12 // pivot relative to the largest normal-matrix diagonal
	minMAD         = 1e-9  // below this residuals are exact and rejection is skipped
)

// Fitter solves the beam-pattern regression for one hit at a time. It is
// stateless after construction and safe for concurrent use.
type Fitter struct {
	model        FitModel
	widthAz      float64
	widthEl      float64
	aAz, aEl     float64 // BeamShapeDB / width^2
	minSamples   int
	outlierSigma float64
	rmsThreshold float64
	refH, refV   float64
	zdrOffset    float64
	window       float64 // fitted offsets beyond this are unconstrained
}

// NewFitter validates cfg and prepares the effective widths.
func NewFitter(cfg Config) (*Fitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wAz, err := EffectiveScanWidth(cfg.BeamwidthDeg, cfg.RayStepDeg)
	if err != nil {
		return nil, err
	}
	wEl := cfg.BeamwidthDeg
	return &Fitter{
		model:        cfg.FitModel,
		widthAz:      wAz,
		widthEl:      wEl,
		aAz:          BeamShapeDB / (wAz * wAz),
		aEl:          BeamShapeDB / (wEl * wEl),
		minSamples:   max(cfg.MinClusterSize, cfg.FitModel.params()+1),
		outlierSigma: cfg.OutlierSigma,
		rmsThreshold: cfg.ResidualThresholdDB,
		refH:         cfg.ReferencePowerHDB,
		refV:         cfg.ReferencePowerVDB,
		zdrOffset:    cfg.ZDROffsetDB,
		window:       cfg.WindowDeg,
	}, nil
}

// Widths returns the effective azimuth and elevation widths of the 3p model.
func (f *Fitter) Widths() (az, el float64) {
	return f.widthAz, f.widthEl
}

// Fit solves both channels of a hit. The H channel is required; a failing
// V channel leaves DualPol false and the V quantities NaN.
func (f *Fitter) Fit(hit *SunHit) (CalibrationEstimate, error) {
	n := len(hit.PowerH)
	if n == 0 {
		return CalibrationEstimate{}, fmt.Errorf("sweep %s: %w: empty hit", hit.SweepID, ErrInsufficientSamples)
	}
	h, err := f.FitChannel(hit.DeltaAz, hit.DeltaEl, hit.PowerH)
	if err != nil {
		return CalibrationEstimate{}, fmt.Errorf("sweep %s hit at %s: %w",
			hit.SweepID, hit.Start().Format("15:04:05"), err)
	}

	est := CalibrationEstimate{
		SweepID:      hit.SweepID,
		Time:         hit.Start(),
		HitTime:      hit.Mid(),
		Model:        f.model,
		AzBias:       h.AzOffset,
		ElBias:       h.ElOffset,
		PowerBiasH:   h.PeakPower - f.refH,
		PowerBiasV:   math.NaN(),
		ZDRBias:      math.NaN(),
		ResidualRMS:  h.ResidualRMS,
		SunAzimuth:   math.NaN(),
		SunElevation: math.NaN(),
		H:            h,
	}
	if len(hit.SunAzimuth) == n && len(hit.SunElevation) == n {
		est.SunAzimuth = hit.SunAzimuth[n/2]
		est.SunElevation = hit.SunElevation[n/2]
	}

	if hit.PowerV != nil {
		if v, err := f.FitChannel(hit.DeltaAz, hit.DeltaEl, hit.PowerV); err == nil {
			est.V = v
			est.DualPol = true
			est.PowerBiasV = v.PeakPower - f.refV
			est.ZDRBias = h.PeakPower - v.PeakPower - f.zdrOffset
			est.ResidualRMS = math.Max(h.ResidualRMS, v.ResidualRMS)
		}
	}

	est.LowConfidence = est.ResidualRMS > f.rmsThreshold
	return est, nil
}

// FitChannel fits one channel. x and y are sun-minus-antenna offsets in
// degrees and z the received power in dB. Non-finite samples are ignored.
func (f *Fitter) FitChannel(x, y, z []float64) (ChannelFit, error) {
	if len(x) != len(z) || len(y) != len(z) {
		return ChannelFit{}, fmt.Errorf("%w: column lengths x=%d y=%d z=%d", ErrInvalidSweep, len(x), len(y), len(z))
	}

	xs := make([]float64, 0, len(z))
	ys := make([]float64, 0, len(z))
	zs := make([]float64, 0, len(z))
	for i := range z {
		if isFinite(x[i]) && isFinite(y[i]) && isFinite(z[i]) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
			zs = append(zs, z[i])
		}
	}
	n := len(zs)
	if n < f.minSamples {
		return ChannelFit{}, fmt.Errorf("%w: %d valid samples, need %d", ErrInsufficientSamples, n, f.minSamples)
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}

	coef, err := f.solve(xs, ys, zs, w)
	if err != nil {
		return ChannelFit{}, err
	}

	rejected := 0
	if f.outlierSigma > 0 {
		rejected = rejectOutliers(f.residuals(coef, xs, ys, zs), w, f.outlierSigma)
		if rejected > 0 {
			if kept := n - rejected; kept < f.minSamples {
				return ChannelFit{}, fmt.Errorf("%w: %d samples left after rejecting %d outliers",
					ErrInsufficientSamples, kept, rejected)
			}
			if coef, err = f.solve(xs, ys, zs, w); err != nil {
				return ChannelFit{}, err
			}
		}
	}

	fit, err := f.params(coef)
	if err != nil {
		return ChannelFit{}, err
	}
	if !(math.Abs(fit.AzOffset) <= f.window) || !(math.Abs(fit.ElOffset) <= f.window) {
		return ChannelFit{}, fmt.Errorf("%w: offset (%.3g, %.3g) deg outside the %.2f deg window",
			ErrDegenerateFit, fit.AzOffset, fit.ElOffset, f.window)
	}
	fit.Samples = n - rejected
	fit.Rejected = rejected
	fit.ResidualRMS, fit.RSquared = goodness(f.residuals(coef, xs, ys, zs), zs, w)
	return fit, nil
}

// solve runs the weighted least-squares step of the configured model.
func (f *Fitter) solve(x, y, z, w []float64) ([]float64, error) {
	if err := checkSpread(x, y, w, f.widthAz, f.widthEl); err != nil {
		return nil, err
	}

	p := f.model.params()
	row := make([]float64, p)
	m := make([]float64, p*p)
	v := make([]float64, p)
	for i := range z {
		if w[i] == 0 {
			continue
		}
		target := f.designRow(row, x[i], y[i], z[i])
		for r := 0; r < p; r++ {
			v[r] += w[i] * row[r] * target
			for c := 0; c < p; c++ {
				m[r*p+c] += w[i] * row[r] * row[c]
			}
		}
	}
	return solveLinear(m, v, p)
}

// designRow fills the regressors for one sample and returns the target.
//
//	3p: z + aAz x^2 + aEl y^2 = c + b1 x + b2 y
//	5p: z = a1 x^2 + a2 y^2 + b1 x + b2 y + c
func (f *Fitter) designRow(row []float64, x, y, z float64) float64 {
	if f.model == Model5P {
		row[0], row[1], row[2], row[3], row[4] = x*x, y*y, x, y, 1
		return z
	}
	row[0], row[1], row[2] = x, y, 1
	return z + f.aAz*x*x + f.aEl*y*y
}

// residuals returns z minus the model prediction for every sample.
func (f *Fitter) residuals(coef, x, y, z []float64) []float64 {
	r := make([]float64, len(z))
	row := make([]float64, len(coef))
	for i := range z {
		target := f.designRow(row, x[i], y[i], z[i])
		var pred float64
		for k, c := range coef {
			pred += c * row[k]
		}
		r[i] = target - pred
	}
	return r
}

// params converts regression coefficients into beam parameters.
func (f *Fitter) params(coef []float64) (ChannelFit, error) {
	if f.model == Model5P {
		a1, a2, b1, b2, c := coef[0], coef[1], coef[2], coef[3], coef[4]
		if !(a1 < 0) || !(a2 < 0) {
			return ChannelFit{}, fmt.Errorf("%w: pattern not concave (a1=%.4g, a2=%.4g)", ErrDegenerateFit, a1, a2)
		}
		return ChannelFit{
			Model:     Model5P,
			AzOffset:  -b1 / (2 * a1),
			ElOffset:  -b2 / (2 * a2),
			PeakPower: c - b1*b1/(4*a1) - b2*b2/(4*a2),
			WidthAz:   math.Sqrt(-BeamShapeDB / a1),
			WidthEl:   math.Sqrt(-BeamShapeDB / a2),
		}, nil
	}

	b1, b2, c := coef[0], coef[1], coef[2]
	x0 := b1 / (2 * f.aAz)
	y0 := b2 / (2 * f.aEl)
	return ChannelFit{
		Model:     Model3P,
		AzOffset:  x0,
		ElOffset:  y0,
		PeakPower: c + f.aAz*x0*x0 + f.aEl*y0*y0,
		WidthAz:   f.widthAz,
		WidthEl:   f.widthEl,
	}, nil
}

// =============================================================================
// Numerical helpers
// =============================================================================

// checkSpread rejects samples that do not span both directions of the
// offset plane. It looks at the weighted covariance of the offsets in
// beamwidth units: samples on a line, including a diagonal one, leave the
// smaller eigenvalue near zero.
func checkSpread(x, y, w []float64, widthAz, widthEl float64) error {
	var sw, mx, my float64
	for i := range x {
		sw += w[i]
		mx += w[i] * x[i] / widthAz
		my += w[i] * y[i] / widthEl
	}
	if sw == 0 {
		return fmt.Errorf("%w: no weighted samples", ErrInsufficientSamples)
	}
	mx /= sw
	my /= sw

	var cxx, cyy, cxy float64
	for i := range x {
		dx := x[i]/widthAz - mx
		dy := y[i]/widthEl - my
		cxx += w[i] * dx * dx
		cyy += w[i] * dy * dy
		cxy += w[i] * dx * dy
	}
	cxx /= sw
	cyy /= sw
	cxy /= sw

	half := (cxx - cyy) / 2
	lmax := (cxx+cyy)/2 + math.Sqrt(half*half+cxy*cxy)
	lmin := 0.0
	if lmax > 0 {
		lmin = math.Max((cxx*cyy-cxy*cxy)/lmax, 0)
	}
	if lmin < minSpreadRatio*minSpreadRatio {
		return fmt.Errorf("%w: offsets span %.2e x %.2e beamwidths",
			ErrDegenerateFit, math.Sqrt(lmin), math.Sqrt(lmax))
	}
	if lmax/lmin > maxCondition {
		return fmt.Errorf("%w: offset covariance condition %.2e", ErrDegenerateFit, lmax/lmin)
	}
	return nil
}

// solveLinear solves the p x p row-major system m x = v by Gaussian
// elimination with partial pivoting. m and v are overwritten.
func solveLinear(m, v []float64, p int) ([]float64, error) {
	var scale float64
	for i := 0; i < p; i++ {
		scale = math.Max(scale, math.Abs(m[i*p+i]))
	}
	if scale == 0 {
		return nil, fmt.Errorf("%w: empty normal matrix", ErrDegenerateFit)
	}

	for col := 0; col < p; col++ {
		piv := col
		for r := col + 1; r < p; r++ {
			if math.Abs(m[r*p+col]) > math.Abs(m[piv*p+col]) {
				piv = r
			}
		}
		if math.Abs(m[piv*p+col]) < minPivotRatio*scale {
			return nil, fmt.Errorf("%w: singular normal matrix at column %d", ErrDegenerateFit, col)
		}
		if piv != col {
			for c := 0; c < p; c++ {
				m[col*p+c], m[piv*p+c] = m[piv*p+c], m[col*p+c]
			}
			v[col], v[piv] = v[piv], v[col]
		}
		for r := col + 1; r < p; r++ {
			factor := m[r*p+col] / m[col*p+col]
			for c := col; c < p; c++ {
				m[r*p+c] -= factor * m[col*p+c]
			}
			v[r] -= factor * v[col]
		}
	}

	x := make([]float64, p)
	for r := p - 1; r >= 0; r-- {
		s := v[r]
		for c := r + 1; c < p; c++ {
			s -= m[r*p+c] * x[c]
		}
		x[r] = s / m[r*p+r]
	}
	return x, nil
}

// rejectOutliers zeroes the weight of samples whose residual lies more than
// sigma robust standard deviations from the median residual. It returns the
// number of rejected samples; nothing is rejected when the MAD is ~0.
func rejectOutliers(r, w []float64, sigma float64) int {
	kept := make([]float64, 0, len(r))
	for i := range r {
		if w[i] > 0 {
			kept = append(kept, r[i])
		}
	}
	med, mad := MedianMAD(kept)
	if mad < minMAD {
		return 0
	}
	limit := sigma * madScale * mad
	n := 0
	for i := range r {
		if w[i] > 0 && math.Abs(r[i]-med) > limit {
			w[i] = 0
			n++
		}
	}
	return n
}

// goodness returns the weighted residual RMS and the coefficient of
// determination against the raw target values.
func goodness(r, z, w []float64) (rms, r2 float64) {
	var sw, ssRes, mean float64
	for i := range r {
		sw += w[i]
		ssRes += w[i] * r[i] * r[i]
		mean += w[i] * z[i]
	}
	mean /= sw
	var ssTot float64
	for i := range z {
		d := z[i] - mean
		ssTot += w[i] * d * d
	}
	rms = math.Sqrt(ssRes / sw)
	switch {
	case ssTot > 0:
		r2 = 1 - ssRes/ssTot
	case ssRes == 0:
		r2 = 1
	}
	return rms, r2
}

// MedianMAD returns the median and the median absolute deviation of v,
// ignoring NaNs. Both are NaN for an empty input. v is not modified.
func MedianMAD(v []float64) (median, mad float64) {
	s := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			s = append(s, x)
		}
	}
	if len(s) == 0 {
		return math.NaN(), math.NaN()
	}
	slices.Sort(s)
	median = medianSorted(s)
	for i, x := range s {
		s[i] = math.Abs(x - median)
	}
	slices.Sort(s)
	return median, medianSorted(s)
}

func medianSorted(s []float64) float64 {
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

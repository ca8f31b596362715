// Package scaling estimates per-section scaling factors: multiplicative
// weights describing how strongly each section's similarity row deviates
// from the fit curve. Damaged or noisy sections end up with factors away
// from 1 and are down-weighted when shift votes are aggregated.
//
// Factors and fit are only determined up to a common multiplier, so every
// estimate is normalized to a median factor of 1.
package scaling

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"zspacing/internal/pool"
	"zspacing/pkg/fit"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

// Regularization selects how the outermost sections are treated.
type Regularization int

const (
	// None blends every section with its previous factor.
	None Regularization = iota
	// Border pulls the first and last section toward the mean factor of the
	// interior sections, more strongly the fewer in-range neighbors they
	// have.
	Border
)

func (r Regularization) String() string {
	switch r {
	case None:
		return "NONE"
	case Border:
		return "BORDER"
	default:
		return fmt.Sprintf("Regularization(%d)", int(r))
	}
}

// ParseRegularization parses "NONE" or "BORDER", case-insensitively.
func ParseRegularization(s string) (Regularization, error) {
	switch strings.ToUpper(s) {
	case "", "NONE":
		return None, nil
	case "BORDER":
		return Border, nil
	}
	return None, fmt.Errorf("unknown regularization type %q", s)
}

// Params configures estimation.
type Params struct {
	Range int
	// Iterations is the number of refit and regression passes Refine runs,
	// at least 1.
	Iterations int
	// RegularizerWeight in [0,1]: 1 freezes factors, 0 lets them float.
	RegularizerWeight float64
	Regularization    Regularization
}

// InsufficientDataError reports a section whose factor could not be
// estimated; the previous factor is kept.
type InsufficientDataError struct {
	Section int
	Samples int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for scaling factor of section %d (%d samples)", e.Section, e.Samples)
}

// Diagnostics lists the sections that kept their previous factor.
type Diagnostics struct {
	Fallbacks []*InsufficientDataError
}

// Estimator estimates scaling factors on a worker pool.
type Estimator struct {
	params Params
	pool   *pool.Pool
}

// NewEstimator creates an estimator. A nil pool runs on GOMAXPROCS workers.
func NewEstimator(params Params, p *pool.Pool) *Estimator {
	if params.Iterations < 1 {
		params.Iterations = 1
	}
	if p == nil {
		p = pool.New(0)
	}
	return &Estimator{params: params, pool: p}
}

// Estimate returns refreshed scaling factors for the fit f. previous is not
// modified.
//
// For each section z the observed row M(z, j) is regressed through the
// origin onto the fit curve evaluated at the current coordinate distances,
// giving the multiplier k with M(z, ·) ≈ k·F. The estimate is blended with
// the previous factor and the result is divided by its median.
func (e *Estimator) Estimate(ctx context.Context, m similarity.Matrix, lut *transform.LUT, f *fit.Fit, previous []float64) ([]float64, Diagnostics, error) {
	n := m.Size()
	if len(previous) != n {
		return nil, Diagnostics{}, fmt.Errorf("got %d previous scaling factors for %d sections", len(previous), n)
	}

	estimates := make([]float64, n)
	samples := make([]int, n)
	err := e.pool.Run(ctx, n, func(_ context.Context, _ int, rg pool.Range) error {
		buf := make([]float64, 2*e.params.Range+1)
		xs := make([]float64, 0, 2*e.params.Range)
		ys := make([]float64, 0, 2*e.params.Range)
		for z := rg.Lo; z < rg.Hi; z++ {
			xs, ys = e.row(m, lut, f, z, buf, xs[:0], ys[:0])
			samples[z] = len(xs)
			estimates[z] = regress(xs, ys)
		}
		return nil
	})
	if err != nil {
		return nil, Diagnostics{}, err
	}

	var diag Diagnostics
	valid := make([]bool, n)
	factors := make([]float64, n)
	copy(factors, previous)
	for z := 0; z < n; z++ {
		if !(estimates[z] > 0) || math.IsInf(estimates[z], 0) {
			diag.Fallbacks = append(diag.Fallbacks, &InsufficientDataError{Section: z, Samples: samples[z]})
			continue
		}
		valid[z] = true
		if !e.border(z, n) {
			w := e.params.RegularizerWeight
			factors[z] = (1-w)*estimates[z] + w*previous[z]
		}
	}
	if e.params.Regularization == Border && n > 2 {
		level := stat.Mean(factors[1:n-1], nil)
		for _, z := range [2]int{0, n - 1} {
			if valid[z] {
				w := e.borderWeight(samples[z])
				factors[z] = (1-w)*estimates[z] + w*level
			}
		}
	}
	if len(diag.Fallbacks) < n {
		normalize(factors)
	}
	return factors, diag, nil
}

// Refinement is the outcome of Refine.
type Refinement struct {
	Factors []float64
	// Fit is estimated with Factors.
	Fit *fit.Fit
	// FitDiagnostics and Diagnostics describe the last pass.
	FitDiagnostics fit.Diagnostics
	Diagnostics    Diagnostics
}

// Refine alternates fit estimation and scaling factor estimation on the
// frozen lut. It starts from a fit estimated with previous and runs
// Params.Iterations passes, each regressing the rows onto the latest fit
// and refitting with the new factors. Every pass blends toward previous,
// so the regularizer weight damps the change of one solver iteration. prior
// seeds the fit estimator as in fit.Estimator.Estimate.
func (e *Estimator) Refine(ctx context.Context, m similarity.Matrix, lut *transform.LUT, fits *fit.Estimator, prior *fit.Fit, previous []float64) (Refinement, error) {
	f, fdiag, err := fits.Estimate(ctx, m, lut, previous, prior)
	if err != nil {
		return Refinement{}, err
	}
	res := Refinement{Factors: previous, Fit: f, FitDiagnostics: fdiag}
	for pass := 0; pass < e.params.Iterations; pass++ {
		factors, diag, err := e.Estimate(ctx, m, lut, res.Fit, previous)
		if err != nil {
			return Refinement{}, err
		}
		f, fdiag, err := fits.Estimate(ctx, m, lut, factors, prior)
		if err != nil {
			return Refinement{}, err
		}
		res = Refinement{Factors: factors, Fit: f, FitDiagnostics: fdiag, Diagnostics: diag}
	}
	return res, nil
}

// border reports whether section z is an end section under Border
// regularization.
func (e *Estimator) border(z, n int) bool {
	return e.params.Regularization == Border && n > 2 && (z == 0 || z == n-1)
}

// borderWeight is the pull of an end section with the given number of
// samples toward the interior level.
func (e *Estimator) borderWeight(samples int) float64 {
	w := e.params.RegularizerWeight
	full := float64(2 * e.params.Range)
	if b := 1 - float64(samples)/full; b > w {
		w = b
	}
	return w
}

// normalize divides factors by their median.
func normalize(factors []float64) {
	sorted := slices.Clone(factors)
	slices.Sort(sorted)
	med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if !(med > 0) || math.IsInf(med, 0) {
		return
	}
	floats.Scale(1/med, factors)
}

// row gathers (fit value, observed similarity) pairs of section z. buf
// receives the raw row.
func (e *Estimator) row(m similarity.Matrix, lut *transform.LUT, f *fit.Fit, z int, buf, xs, ys []float64) ([]float64, []float64) {
	r := e.params.Range
	curve := f.ForSection(z)
	cz := lut.At(z)
	for d, v := range similarity.Row(m, z, r, buf) {
		j := z + d - r
		if j == z || math.IsNaN(v) {
			continue
		}
		x := curve.At(math.Abs(lut.At(j) - cz))
		if math.IsNaN(x) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, v)
	}
	return xs, ys
}

// regress fits y = k·x through the origin and returns k, or NaN when the
// regressors carry no information.
func regress(xs, ys []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	if floats.Dot(xs, xs) == 0 {
		return math.NaN()
	}
	_, k := stat.LinearRegression(xs, ys, nil, true)
	return k
}

// Ones returns n neutral factors.
func Ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

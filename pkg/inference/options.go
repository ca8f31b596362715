package inference

import (
	"math"

	"zspacing/internal/logging"
	"zspacing/pkg/fit"
	"zspacing/pkg/scaling"
)

// Options holds the solver parameters.
// Zero values are not meaningful for every field; start from DefaultOptions.
type Options struct {
	// ComparisonRange is the maximum index distance R at which two sections
	// are compared. Similarities further apart are never read. At least 2:
	// a curve over a single distance has no slope to invert.
	ComparisonRange int

	// Iterations is the fixed number of update steps. There is no early
	// exit; zero returns the initial coordinates unchanged.
	Iterations int

	// ShiftProportion damps every update: 1 applies the full aggregated
	// vote, 0 freezes the coordinates.
	ShiftProportion float64

	// ForceMonotonicity stops reading a section's row in one direction at
	// the first similarity rebound when estimating the fit curve.
	ForceMonotonicity bool

	// WithReorder lets sections swap places. After each update the
	// coordinates are sorted and the matrix is viewed through the composed
	// permutation. Without it the coordinates must stay strictly increasing.
	WithReorder bool

	// ScalingFactorEstimationIterations is the number of passes per
	// iteration that alternate refitting the curve and re-estimating the
	// scaling factors.
	ScalingFactorEstimationIterations int

	// ScalingFactorRegularizerWeight in [0,1]: 1 keeps every factor at its
	// previous value, 0 lets the factors follow the data.
	ScalingFactorRegularizerWeight float64

	// Regularization selects the border treatment of scaling factors.
	Regularization scaling.Regularization

	// EstimateWindowRadius selects a local fit with windows of
	// 2*radius+1 sections. Zero fits one global curve.
	EstimateWindowRadius int

	// MinimumSectionThickness, when positive, is enforced after every
	// update as a lower bound on consecutive coordinate differences.
	MinimumSectionThickness float64

	// FitRegularizerWeight blends the global fit with the previous
	// iteration's curve: (1-w)*new + w*prior.
	FitRegularizerWeight float64

	// NumWorkers bounds the goroutines used per stage. Zero uses GOMAXPROCS.
	NumWorkers int

	// InitialScalingFactors, in original section order, seed the scaling
	// estimator. Nil starts from all ones.
	InitialScalingFactors []float64

	// PriorFit seeds the first iteration's fallbacks and regularization,
	// typically the fit of a previous run being resumed.
	PriorFit *fit.Fit

	// Logger receives run and iteration records. Nil discards them.
	Logger *logging.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ComparisonRange:                   10,
		Iterations:                        100,
		ShiftProportion:                   0.6,
		ForceMonotonicity:                 true,
		WithReorder:                       false,
		ScalingFactorEstimationIterations: 10,
		ScalingFactorRegularizerWeight:    0.1,
		Regularization:                    scaling.Border,
		EstimateWindowRadius:              0,
		MinimumSectionThickness:           0.01,
	}
}

// Validate checks every option and returns a *ConfigurationError for the
// first invalid one.
func (o Options) Validate() error {
	switch {
	case o.ComparisonRange < 2:
		return invalid("ComparisonRange", o.ComparisonRange, "must be at least 2")
	case o.Iterations < 0:
		return invalid("Iterations", o.Iterations, "must not be negative")
	case !unit(o.ShiftProportion):
		return invalid("ShiftProportion", o.ShiftProportion, "must be in [0,1]")
	case o.ScalingFactorEstimationIterations < 1:
		return invalid("ScalingFactorEstimationIterations", o.ScalingFactorEstimationIterations, "must be at least 1")
	case !unit(o.ScalingFactorRegularizerWeight):
		return invalid("ScalingFactorRegularizerWeight", o.ScalingFactorRegularizerWeight, "must be in [0,1]")
	case o.Regularization != scaling.None && o.Regularization != scaling.Border:
		return invalid("Regularization", o.Regularization, "must be NONE or BORDER")
	case o.EstimateWindowRadius < 0:
		return invalid("EstimateWindowRadius", o.EstimateWindowRadius, "must not be negative")
	case !(o.MinimumSectionThickness >= 0) || math.IsInf(o.MinimumSectionThickness, 0):
		return invalid("MinimumSectionThickness", o.MinimumSectionThickness, "must be finite and not negative")
	case !unit(o.FitRegularizerWeight):
		return invalid("FitRegularizerWeight", o.FitRegularizerWeight, "must be in [0,1]")
	case o.NumWorkers < 0:
		return invalid("NumWorkers", o.NumWorkers, "must not be negative")
	}
	for i, v := range o.InitialScalingFactors {
		if !(v > 0) || math.IsInf(v, 0) {
			return invalid("InitialScalingFactors", v, "entry %d must be positive and finite", i)
		}
	}
	return nil
}

// validateFor checks the options that depend on the stack size.
func (o Options) validateFor(n int, initial []float64) error {
	if len(initial) != n {
		return invalid("initial", len(initial), "got %d coordinates for %d sections", len(initial), n)
	}
	for i, v := range initial {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("initial", v, "coordinate %d is not finite", i)
		}
	}
	if o.InitialScalingFactors != nil && len(o.InitialScalingFactors) != n {
		return invalid("InitialScalingFactors", len(o.InitialScalingFactors), "got %d factors for %d sections", len(o.InitialScalingFactors), n)
	}
	if o.PriorFit != nil {
		if err := o.PriorFit.Validate(n, o.ComparisonRange); err != nil {
			return invalidCause("PriorFit", err)
		}
	}
	return nil
}

func unit(x float64) bool { return x >= 0 && x <= 1 }

func (o Options) fitParams() fit.Params {
	return fit.Params{
		Range:             o.ComparisonRange,
		ForceMonotonicity: o.ForceMonotonicity,
		WindowRadius:      o.EstimateWindowRadius,
		RegularizerWeight: o.FitRegularizerWeight,
	}
}

func (o Options) scalingParams() scaling.Params {
	return scaling.Params{
		Range:             o.ComparisonRange,
		Iterations:        o.ScalingFactorEstimationIterations,
		RegularizerWeight: o.ScalingFactorRegularizerWeight,
		Regularization:    o.Regularization,
	}
}

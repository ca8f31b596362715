// Package inference runs the coordinate update loop: it repeatedly fits the
// similarity decay curve, refreshes the scaling factors, collects shift votes
// and moves every section by a damped share of its aggregated vote.
package inference

import (
	"context"
	"fmt"
	"slices"

	"zspacing/internal/logging"
	"zspacing/internal/pool"
	"zspacing/pkg/fit"
	"zspacing/pkg/scaling"
	"zspacing/pkg/shift"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

// Solver estimates section coordinates. A Solver is stateless between runs
// and may be reused; concurrent runs must not share visitors that are not
// safe for concurrent use.
type Solver struct {
	opts   Options
	log    *logging.Logger
	pool   *pool.Pool
	fits   *fit.Estimator
	scales *scaling.Estimator
	votes  *shift.Collector
}

// NewSolver validates opts and creates a solver.
func NewSolver(opts Options) (*Solver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.NoopLogger()
	}
	p := pool.New(opts.NumWorkers)
	return &Solver{
		opts:   opts,
		log:    log,
		pool:   p,
		fits:   fit.NewEstimator(opts.fitParams(), p),
		scales: scaling.NewEstimator(opts.scalingParams(), p),
		votes:  shift.NewCollector(opts.ComparisonRange, p),
	}, nil
}

// Options returns the solver's options.
func (s *Solver) Options() Options { return s.opts }

// state is the live solver state of one run. Per-section slices are indexed
// by sorted position; without reordering that is the original index.
type state struct {
	matrix  similarity.Matrix
	view    similarity.Matrix
	perm    *transform.Permutation
	coords  []float64
	factors []float64
	fit     *fit.Fit
}

// reorder sorts the coordinates and carries the factors and the matrix view
// along.
func (st *state) reorder() error {
	sorter := transform.SortPermutation(st.coords)
	if sorter.IsIdentity() {
		return nil
	}
	perm, err := st.perm.Compose(sorter)
	if err != nil {
		return err
	}
	view, err := similarity.NewPermuted(st.matrix, perm)
	if err != nil {
		return err
	}
	st.coords = sorter.ApplyToFloat64s(nil, st.coords)
	st.factors = sorter.ApplyToFloat64s(nil, st.factors)
	st.perm, st.view = perm, view
	return nil
}

// original returns values indexed by sorted position in original order.
func (st *state) original(values []float64) []float64 {
	return st.perm.ApplyInverseToFloat64s(nil, values)
}

// Run refines initial, the coordinates of the sections of m in original
// order, and returns the final coordinates. Visitors are invoked in order
// after every iteration.
//
// The run aborts with a *transform.DegenerateTransformError wrapped with the
// iteration index when the coordinates can no longer be turned into a lookup
// transform, with a *ConfigurationError when initial or the seeded options
// do not fit m, or with the context's error when ctx is done.
func (s *Solver) Run(ctx context.Context, m similarity.Matrix, initial []float64, visitors ...Visitor) (*Result, error) {
	n := m.Size()
	if err := s.opts.validateFor(n, initial); err != nil {
		return nil, err
	}

	st := &state{
		matrix:  m,
		view:    m,
		perm:    transform.Identity(n),
		coords:  slices.Clone(initial),
		factors: scaling.Ones(n),
		fit:     s.opts.PriorFit,
	}
	if s.opts.InitialScalingFactors != nil {
		copy(st.factors, s.opts.InitialScalingFactors)
	}
	if s.opts.WithReorder {
		if err := st.reorder(); err != nil {
			return nil, err
		}
	}

	s.log.InfoContext(ctx, "starting run",
		"sections", n,
		"range", s.opts.ComparisonRange,
		"iterations", s.opts.Iterations,
		"fit", s.opts.fitParams().Variant(),
		"reorder", s.opts.WithReorder,
		"workers", s.pool.Workers(),
	)

	report := Report{Iterations: make([]IterationReport, 0, s.opts.Iterations)}
	for it := 0; it < s.opts.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		step, ir, err := s.iterate(ctx, st, it)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		report.Iterations = append(report.Iterations, ir)

		for i, v := range visitors {
			if err := visit(ctx, v, step.clone()); err != nil {
				verr := &VisitorError{Iteration: it, Visitor: i, cause: err}
				s.log.WithIteration(it).LogVisitor(ctx, i, err)
				report.VisitorErrors = append(report.VisitorErrors, verr)
			}
		}
	}

	report.Metrics = computeMetrics(st.view, st.coords, st.factors, st.fit, s.opts.ComparisonRange)
	s.log.InfoContext(ctx, "run completed",
		"iterations", len(report.Iterations),
		"rmse", report.Metrics.RMSE,
		"fit_fallbacks", report.FitFallbacks(),
		"scaling_fallbacks", report.ScalingFallbacks(),
		"visitor_errors", len(report.VisitorErrors),
	)

	res := &Result{
		Coordinates:    st.original(st.coords),
		ScalingFactors: st.original(st.factors),
		Fit:            st.fit,
		Report:         report,
	}
	if s.opts.WithReorder {
		res.SortedCoordinates = slices.Clone(st.coords)
		res.Permutation = st.perm
	}
	return res, nil
}

// iterate runs one update step on st.
func (s *Solver) iterate(ctx context.Context, st *state, it int) (Step, IterationReport, error) {
	ir := IterationReport{Iteration: it}
	log := s.log.WithIteration(it)

	lut, err := transform.NewLUT(st.coords, !s.opts.WithReorder)
	if err != nil {
		return Step{}, ir, err
	}

	// fit and scaling factors are refined together on the frozen lut
	ref, err := s.scales.Refine(ctx, st.view, lut, s.fits, st.fit, st.factors)
	if err != nil {
		return Step{}, ir, err
	}
	f, factors := ref.Fit, ref.Factors
	if ir.FitFallbacks = len(ref.FitDiagnostics.Fallbacks); ir.FitFallbacks > 0 {
		log.LogFallbacks(ctx, "fit", ir.FitFallbacks, ref.FitDiagnostics.Fallbacks[0])
	}
	if ir.ScalingFallbacks = len(ref.Diagnostics.Fallbacks); ir.ScalingFallbacks > 0 {
		log.LogFallbacks(ctx, "scaling", ir.ScalingFallbacks, ref.Diagnostics.Fallbacks[0])
	}

	votes, err := s.votes.Collect(ctx, st.view, lut, f, factors)
	if err != nil {
		return Step{}, ir, err
	}
	shifts := shift.Aggregate(votes)
	ir.Shift = shift.Summarize(shifts, votes)
	log.LogIteration(ctx, ir.Shift.MeanAbs, ir.Shift.MaxAbs, ir.Shift.Votes)

	previous := st.original(st.coords)
	next := make([]float64, len(st.coords))
	for z, c := range st.coords {
		next[z] = c + s.opts.ShiftProportion*shifts[z]
	}
	st.coords, st.factors, st.fit = next, factors, f

	if s.opts.WithReorder {
		if err := st.reorder(); err != nil {
			return Step{}, ir, err
		}
	}
	enforceThickness(st.coords, s.opts.MinimumSectionThickness)

	step := Step{
		Iteration:      it,
		Coordinates:    st.original(st.coords),
		Previous:       previous,
		ScalingFactors: st.original(st.factors),
		Fit:            f,
		Permutation:    st.perm,
		Shift:          ir.Shift,
	}
	return step, ir, nil
}

// enforceThickness raises coordinates so that consecutive sections are at
// least t apart. A non-positive t leaves coords untouched.
func enforceThickness(coords []float64, t float64) {
	if !(t > 0) {
		return
	}
	for z := 1; z < len(coords); z++ {
		if lo := coords[z-1] + t; coords[z] < lo {
			coords[z] = lo
		}
	}
}

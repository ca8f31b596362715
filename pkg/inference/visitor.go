package inference

import (
	"context"
	"fmt"
	"slices"

	"zspacing/pkg/fit"
	"zspacing/pkg/shift"
	"zspacing/pkg/transform"
)

// Step is the state handed to visitors after one iteration. Slices are
// private copies; per-section slices are in original section order.
type Step struct {
	Iteration int

	Coordinates []float64
	Previous    []float64

	// ScalingFactors used for this iteration's votes.
	ScalingFactors []float64

	// Fit is indexed by the sorted position of a section when reordering.
	Fit *fit.Fit

	// Permutation maps original indices to sorted positions. It is the
	// identity unless reordering is enabled.
	Permutation *transform.Permutation

	Shift shift.Stats
}

func (s Step) clone() Step {
	s.Coordinates = slices.Clone(s.Coordinates)
	s.Previous = slices.Clone(s.Previous)
	s.ScalingFactors = slices.Clone(s.ScalingFactors)
	return s
}

// Visitor observes the solver after every iteration. Returned errors and
// panics are reported, never propagated.
type Visitor func(ctx context.Context, step Step) error

// visit runs v and converts a panic into an error.
func visit(ctx context.Context, v Visitor, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return v(ctx, step)
}

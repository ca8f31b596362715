package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrTooFewPoints is returned when a lookup transform is built from
	// fewer than two control points.
	ErrTooFewPoints = errors.New("at least 2 control points are required")

	// ErrNotMonotone is returned when control points decrease, or do not
	// strictly increase while strict monotonicity is required.
	ErrNotMonotone = errors.New("control points are not monotone")

	// ErrNotBijective is returned when a permutation lookup is not a
	// bijection on [0,n).
	ErrNotBijective = errors.New("index array is not a bijection")
)

// DegenerateTransformError reports a transform that cannot be built from the
// given data. Index is the offending position, or -1 when the failure is not
// tied to a single entry.
//
// The underlying sentinel can be matched with errors.Is.
type DegenerateTransformError struct {
	Index int
	cause error
}

func (e *DegenerateTransformError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("degenerate transform: %v", e.cause)
	}
	return fmt.Sprintf("degenerate transform at index %d: %v", e.Index, e.cause)
}

func (e *DegenerateTransformError) Unwrap() error { return e.cause }

func degenerate(index int, cause error) error {
	return &DegenerateTransformError{Index: index, cause: cause}
}

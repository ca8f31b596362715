// Package transform provides the coordinate transforms used to move between
// section indices and corrected z-coordinates: a piecewise-linear lookup
// transform (LUT) with an efficient inverse, and a permutation transform for
// reordered stacks.
package transform

import (
	"fmt"
	"math"
	"sort"
)

// LUT is a monotone piecewise-linear map from a (real-valued) section index
// to a coordinate. Control point i holds the coordinate of section i.
//
// A LUT is immutable once built and safe for concurrent use.
type LUT struct {
	points []float64
}

// NewLUT builds a lookup transform from the given control points.
//
// Parameters:
//   - points: coordinate per section index; copied
//   - strict: when true, the points must strictly increase; otherwise ties
//     are accepted but a decrease is still rejected
//
// Returns:
//   - the transform, or a *DegenerateTransformError
func NewLUT(points []float64, strict bool) (*LUT, error) {
	if len(points) < 2 {
		return nil, degenerate(-1, ErrTooFewPoints)
	}
	for i, p := range points {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, degenerate(i, fmt.Errorf("control point is not finite: %v", p))
		}
		if i == 0 {
			continue
		}
		if points[i] < points[i-1] || (strict && points[i] == points[i-1]) {
			return nil, degenerate(i, ErrNotMonotone)
		}
	}
	cp := make([]float64, len(points))
	copy(cp, points)
	return &LUT{points: cp}, nil
}

// Len returns the number of control points.
func (l *LUT) Len() int { return len(l.points) }

// Points returns a copy of the control points.
func (l *LUT) Points() []float64 {
	cp := make([]float64, len(l.points))
	copy(cp, l.points)
	return cp
}

// Min returns the first control point.
func (l *LUT) Min() float64 { return l.points[0] }

// Max returns the last control point.
func (l *LUT) Max() float64 { return l.points[len(l.points)-1] }

// At returns the coordinate of integer index i without interpolation.
func (l *LUT) At(i int) float64 { return l.points[i] }

// Apply maps a real-valued index to a coordinate. Values between control
// points are interpolated linearly; values outside [0, n-1] are extrapolated
// with the slope of the boundary segment.
func (l *LUT) Apply(x float64) float64 {
	last := len(l.points) - 1
	i := int(math.Floor(x))
	switch {
	case i < 0:
		i = 0
	case i >= last:
		i = last - 1
	}
	lo, hi := l.points[i], l.points[i+1]
	return lo + (x-float64(i))*(hi-lo)
}

// ApplyInverse maps a coordinate back to a real-valued index. It is the
// exact inverse of Apply on every segment of non-zero length, including the
// extrapolated ends. A coordinate falling on a zero-length segment resolves
// to the segment's lower index.
func (l *LUT) ApplyInverse(y float64) float64 {
	i := l.FindFloorIndex(y)
	lo, hi := l.points[i], l.points[i+1]
	if hi == lo {
		return float64(i)
	}
	return float64(i) + (y-lo)/(hi-lo)
}

// FindFloorIndex returns the largest i with points[i] <= y, clamped to
// [0, n-2] so that [i, i+1] is always a valid segment.
func (l *LUT) FindFloorIndex(y float64) int {
	// first index with points[k] > y
	k := sort.Search(len(l.points), func(k int) bool { return l.points[k] > y })
	i := k - 1
	if i < 0 {
		return 0
	}
	if last := len(l.points) - 2; i > last {
		return last
	}
	return i
}

// AxisLUT applies a LUT along one axis of an n-dimensional point, passing
// all other coordinates through unchanged. The similarity matrix is indexed
// by two section axes, so rendering it on the corrected axis needs the 1D
// transform applied to each of them in turn.
type AxisLUT struct {
	LUT  *LUT
	Axis int
	Dims int
}

// NewAxisLUT returns an AxisLUT transforming dimension axis of dims-dimensional
// points.
func NewAxisLUT(lut *LUT, axis, dims int) (*AxisLUT, error) {
	if axis < 0 || axis >= dims {
		return nil, fmt.Errorf("axis %d out of range for %d dimensions", axis, dims)
	}
	return &AxisLUT{LUT: lut, Axis: axis, Dims: dims}, nil
}

// Apply writes the transform of src into dst. dst and src may alias.
func (a *AxisLUT) Apply(dst, src []float64) {
	copy(dst[:a.Dims], src[:a.Dims])
	dst[a.Axis] = a.LUT.Apply(src[a.Axis])
}

// ApplyInverse writes the inverse transform of src into dst.
func (a *AxisLUT) ApplyInverse(dst, src []float64) {
	copy(dst[:a.Dims], src[:a.Dims])
	dst[a.Axis] = a.LUT.ApplyInverse(src[a.Axis])
}

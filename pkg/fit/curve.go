package fit

import (
	"math"
	"sort"
)

// Sentinel is stored at Curve[0]. Self-similarity carries no information
// about distance decay and is never used in distance math.
const Sentinel = -1.0

// minSlope is the smallest envelope slope considered invertible.
const minSlope = 1e-12

// Curve holds the expected similarity at integer coordinate distances
// 1..R; index 0 holds Sentinel. A curve of comparison range R has length R+1.
type Curve []float64

// NewCurve returns a curve of range r with every distance undefined (NaN).
func NewCurve(r int) Curve {
	c := make(Curve, r+1)
	c[0] = Sentinel
	for i := 1; i <= r; i++ {
		c[i] = math.NaN()
	}
	return c
}

// Range returns R.
func (c Curve) Range() int { return len(c) - 1 }

// Clone returns a copy of c.
func (c Curve) Clone() Curve {
	cp := make(Curve, len(c))
	copy(cp, c)
	return cp
}

// At evaluates the curve at a real distance d. Between samples the curve is
// linear; below distance 1 and above R it is extrapolated with the slope of
// the first and last segment. A curve of range 1 is constant.
func (c Curve) At(d float64) float64 {
	r := c.Range()
	if r < 2 {
		return c[1]
	}
	switch {
	case d <= 1:
		return c[1] + (1-d)*(c[1]-c[2])
	case d >= float64(r):
		return c[r] - (d-float64(r))*(c[r-1]-c[r])
	}
	k := int(math.Floor(d))
	f := d - float64(k)
	return c[k]*(1-f) + c[k+1]*f
}

// Envelope returns the running minimum of c over distances 1..R, the
// non-increasing curve used for inversion. Undefined samples inherit the
// previous envelope value.
func (c Curve) Envelope() Curve {
	e := NewCurve(c.Range())
	cur := math.Inf(1)
	for k := 1; k < len(c); k++ {
		if !math.IsNaN(c[k]) && c[k] < cur {
			cur = c[k]
		}
		e[k] = cur
	}
	return e
}

// IsNonIncreasing reports whether c does not increase over distances 1..R.
func (c Curve) IsNonIncreasing() bool {
	for k := 2; k < len(c); k++ {
		if c[k] > c[k-1] {
			return false
		}
	}
	return true
}

// Invert returns the distance at which the non-increasing curve c reaches
// similarity v, together with the magnitude of the slope of the segment it
// was read from. c must be an envelope. Values above c[1] are extrapolated
// along segment [1,2] and clamped at distance 0; values below c[R] are
// extrapolated along segment [R-1,R]. ok is false when the segment is flat
// or v is undefined.
func (c Curve) Invert(v float64) (d, slope float64, ok bool) {
	r := c.Range()
	if r < 2 || math.IsNaN(v) {
		return 0, 0, false
	}

	switch {
	case v >= c[1]:
		slope = c[1] - c[2]
		if !(slope > minSlope) {
			return 0, 0, false
		}
		d = 1 - (v-c[1])/slope
		if d < 0 {
			d = 0
		}
		return d, slope, true
	case v <= c[r]:
		slope = c[r-1] - c[r]
		if !(slope > minSlope) {
			return 0, 0, false
		}
		return float64(r) + (c[r]-v)/slope, slope, true
	}

	// c[1] > v > c[r]: first k in [1, r) whose right end falls below v
	k := 1 + sort.Search(r-1, func(i int) bool { return c[i+2] < v })
	slope = c[k] - c[k+1]
	if !(slope > minSlope) {
		return 0, 0, false
	}
	return float64(k) + (c[k]-v)/slope, slope, true
}

// Blend mixes a fresh curve with a prior one: (1-lambda)*c + lambda*prior.
// When only one side is defined at a distance that side is used. Curves of
// different range are blended over their common distances.
func Blend(c, prior Curve, lambda float64) Curve {
	out := c.Clone()
	if prior == nil || lambda == 0 {
		return out
	}
	n := len(c)
	if len(prior) < n {
		n = len(prior)
	}
	for k := 1; k < n; k++ {
		a, b := c[k], prior[k]
		switch {
		case math.IsNaN(a):
			out[k] = b
		case math.IsNaN(b):
			out[k] = a
		default:
			out[k] = (1-lambda)*a + lambda*b
		}
	}
	return out
}

// lerp interpolates two curves of equal range elementwise.
func lerp(dst, a, b Curve, t float64) {
	dst[0] = Sentinel
	for k := 1; k < len(dst); k++ {
		dst[k] = (1-t)*a[k] + t*b[k]
	}
}

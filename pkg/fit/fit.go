// Package fit estimates the reference curve of expected similarity against
// coordinate distance from a similarity matrix read through the current
// coordinate estimate.
//
// Three variants form a closed set: one global average curve, local average
// curves over windows of sections, and a global curve regularized toward the
// previous iteration's curve.
package fit

import (
	"fmt"
	"math"
)

// Variant selects how the fit curve is estimated.
type Variant int

const (
	// GlobalAverage estimates one curve from every section.
	GlobalAverage Variant = iota
	// LocalAverage estimates one curve per window of sections and
	// interpolates between window centres.
	LocalAverage
	// RegularizedGlobal blends the global estimate with the prior curve.
	RegularizedGlobal
)

func (v Variant) String() string {
	switch v {
	case GlobalAverage:
		return "global-average"
	case LocalAverage:
		return "local-average"
	case RegularizedGlobal:
		return "regularized-global"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Params configures estimation.
type Params struct {
	// Range is the comparison range R; curves have R+1 entries.
	Range int
	// ForceMonotonicity stops reading a section's row in one direction as
	// soon as a sample exceeds the previous accepted one.
	ForceMonotonicity bool
	// WindowRadius selects LocalAverage when positive. Windows hold
	// 2*WindowRadius+1 sections.
	WindowRadius int
	// RegularizerWeight is the prior weight lambda in [0,1]. A positive
	// weight selects RegularizedGlobal when WindowRadius is zero.
	RegularizerWeight float64
}

// Variant returns the estimation variant selected by p.
func (p Params) Variant() Variant {
	switch {
	case p.WindowRadius > 0:
		return LocalAverage
	case p.RegularizerWeight > 0:
		return RegularizedGlobal
	default:
		return GlobalAverage
	}
}

// Fit is the result of one estimation. It is immutable and safe for
// concurrent reads; curves returned by ForSection and EnvelopeFor must not be
// modified.
type Fit struct {
	variant Variant
	n       int
	global  Curve
	windows []Curve
	centers []float64

	// per-section curves and envelopes for LocalAverage, one arena each
	sections  []Curve
	envelopes []Curve
	envelope  Curve
}

// NewGlobalFit wraps a single curve as a fit for n sections.
func NewGlobalFit(c Curve, n int) *Fit {
	f := &Fit{variant: GlobalAverage, n: n, global: c.Clone()}
	f.envelope = f.global.Envelope()
	return f
}

// NewLocalFit builds a local fit for n sections from per-window curves and
// their centres (section indices, increasing). global is kept for reporting
// and as the fallback of later estimations.
func NewLocalFit(global Curve, windows []Curve, centers []float64, n int) (*Fit, error) {
	if len(windows) == 0 || len(windows) != len(centers) {
		return nil, fmt.Errorf("need one centre per window, got %d windows and %d centres", len(windows), len(centers))
	}
	r := global.Range()
	for w, c := range windows {
		if c.Range() != r {
			return nil, fmt.Errorf("window %d has range %d, expected %d", w, c.Range(), r)
		}
	}

	f := &Fit{
		variant: LocalAverage,
		n:       n,
		global:  global.Clone(),
		windows: make([]Curve, len(windows)),
		centers: append([]float64(nil), centers...),
	}
	for w, c := range windows {
		f.windows[w] = c.Clone()
	}
	f.envelope = f.global.Envelope()

	curves := make([]float64, n*(r+1))
	envs := make([]float64, n*(r+1))
	f.sections = make([]Curve, n)
	f.envelopes = make([]Curve, n)
	for z := 0; z < n; z++ {
		c := Curve(curves[z*(r+1) : (z+1)*(r+1)])
		f.interpolate(c, float64(z))
		f.sections[z] = c

		e := Curve(envs[z*(r+1) : (z+1)*(r+1)])
		copy(e, c.Envelope())
		f.envelopes[z] = e
	}
	return f, nil
}

// interpolate writes the curve at section position x, linear between window
// centres and clamped at the outermost ones.
func (f *Fit) interpolate(dst Curve, x float64) {
	last := len(f.centers) - 1
	switch {
	case x <= f.centers[0]:
		copy(dst, f.windows[0])
		return
	case x >= f.centers[last]:
		copy(dst, f.windows[last])
		return
	}
	w := 0
	for w < last-1 && f.centers[w+1] <= x {
		w++
	}
	t := (x - f.centers[w]) / (f.centers[w+1] - f.centers[w])
	lerp(dst, f.windows[w], f.windows[w+1], t)
}

// Variant returns the variant that produced f.
func (f *Fit) Variant() Variant { return f.variant }

// Range returns R.
func (f *Fit) Range() int { return f.global.Range() }

// Sections returns the number of sections f was built for.
func (f *Fit) Sections() int { return f.n }

// Global returns a copy of the global curve.
func (f *Fit) Global() Curve { return f.global.Clone() }

// Windows returns copies of the window curves; nil for global variants.
func (f *Fit) Windows() []Curve {
	if f.windows == nil {
		return nil
	}
	out := make([]Curve, len(f.windows))
	for w, c := range f.windows {
		out[w] = c.Clone()
	}
	return out
}

// Centers returns the window centres; nil for global variants.
func (f *Fit) Centers() []float64 {
	return append([]float64(nil), f.centers...)
}

// ForSection returns the curve used for section z.
func (f *Fit) ForSection(z int) Curve {
	if f.sections == nil {
		return f.global
	}
	return f.sections[z]
}

// EnvelopeFor returns the non-increasing envelope of ForSection(z).
func (f *Fit) EnvelopeFor(z int) Curve {
	if f.envelopes == nil {
		return f.envelope
	}
	return f.envelopes[z]
}

// At evaluates section z's curve at distance d.
func (f *Fit) At(z int, d float64) float64 {
	return f.ForSection(z).At(d)
}

// priorValue returns the value at distance k of window w (w < 0 for the
// global curve). It is NaN when f is nil or has no such window or distance.
func (f *Fit) priorValue(w, k int) float64 {
	switch {
	case f == nil || k >= len(f.global):
		return math.NaN()
	case w < 0:
		return f.global[k]
	case w < len(f.windows):
		return f.windows[w][k]
	default:
		return math.NaN()
	}
}

// Validate reports whether f can be used as a prior for n sections and range
// r.
func (f *Fit) Validate(n, r int) error {
	if f.Range() != r {
		return fmt.Errorf("prior fit has range %d, expected %d", f.Range(), r)
	}
	if f.n != n {
		return fmt.Errorf("prior fit covers %d sections, expected %d", f.n, n)
	}
	for k := 1; k < len(f.global); k++ {
		if math.IsNaN(f.global[k]) || math.IsInf(f.global[k], 0) {
			return &InsufficientDataError{Window: -1, Distance: k}
		}
	}
	return nil
}

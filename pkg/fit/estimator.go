package fit

import (
	"context"
	"math"

	"zspacing/internal/pool"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

// Sample is one similarity value accepted into a section's fit contribution.
type Sample struct {
	// Offset is the signed index offset of the neighbor (j - z).
	Offset int
	// Distance is the coordinate distance |c[j] - c[z]|.
	Distance float64
	// Value is the similarity divided by the section's scaling factor.
	Value float64
}

// Walk visits the samples section z contributes to the fit, direction by
// direction (negative offsets first) with increasing |offset|. NaN entries
// are skipped. With forceMonotonicity a direction ends at the first sample
// larger than the previous accepted one, so a similarity rebound is never
// accepted. Sections with a non-positive scaling factor contribute nothing.
func Walk(m similarity.Matrix, lut *transform.LUT, z, r int, factor float64, forceMonotonicity bool, fn func(Sample)) {
	if !(factor > 0) {
		return
	}
	n := m.Size()
	cz := lut.At(z)
	for _, dir := range [2]int{-1, 1} {
		last := math.Inf(1)
		for dz := 1; dz <= r; dz++ {
			j := z + dir*dz
			if j < 0 || j >= n {
				break
			}
			v := m.At(z, j)
			if math.IsNaN(v) {
				continue
			}
			v /= factor
			if forceMonotonicity && v > last {
				break
			}
			last = v
			fn(Sample{Offset: dir * dz, Distance: math.Abs(lut.At(j) - cz), Value: v})
		}
	}
}

// Samples collects the output of Walk.
func Samples(m similarity.Matrix, lut *transform.LUT, z, r int, factor float64, forceMonotonicity bool) []Sample {
	var out []Sample
	Walk(m, lut, z, r, factor, forceMonotonicity, func(s Sample) { out = append(out, s) })
	return out
}

// Estimator estimates fits on a worker pool.
type Estimator struct {
	params Params
	pool   *pool.Pool
}

// NewEstimator creates an estimator. A nil pool runs on GOMAXPROCS workers.
func NewEstimator(params Params, p *pool.Pool) *Estimator {
	if p == nil {
		p = pool.New(0)
	}
	return &Estimator{params: params, pool: p}
}

// Params returns the estimator's parameters.
func (e *Estimator) Params() Params { return e.params }

// accumulator holds weighted sums for the global curve (block 0) and for
// every window (block w+1), each block R+1 wide.
type accumulator struct {
	r       int
	sums    []float64
	weights []float64
}

func newAccumulator(r, windows int) *accumulator {
	size := (windows + 1) * (r + 1)
	return &accumulator{r: r, sums: make([]float64, size), weights: make([]float64, size)}
}

// add splits a sample at real distance d between buckets floor(d) and
// floor(d)+1 of block b. Buckets outside [1,R] are dropped.
func (a *accumulator) add(b int, d, v float64) {
	if d > float64(a.r)+1 {
		return
	}
	lower := int(math.Floor(d))
	f := d - float64(lower)
	a.put(b, lower, v, 1-f)
	a.put(b, lower+1, v, f)
}

func (a *accumulator) put(b, k int, v, w float64) {
	if k < 1 || k > a.r || w <= 0 {
		return
	}
	i := b*(a.r+1) + k
	a.sums[i] += w * v
	a.weights[i] += w
}

func (a *accumulator) merge(o *accumulator) {
	for i := range a.sums {
		a.sums[i] += o.sums[i]
		a.weights[i] += o.weights[i]
	}
}

// mean returns the raw (unfilled) curve of block b.
func (a *accumulator) mean(b int) Curve {
	c := NewCurve(a.r)
	off := b * (a.r + 1)
	for k := 1; k <= a.r; k++ {
		if w := a.weights[off+k]; w > 0 {
			c[k] = a.sums[off+k] / w
		}
	}
	return c
}

// windowLayout returns the number of windows and their centres for n
// sections and window radius radius.
func windowLayout(n, radius int) (size int, centers []float64) {
	size = 2*radius + 1
	count := (n + size - 1) / size
	centers = make([]float64, count)
	for w := range centers {
		lo := w * size
		hi := lo + size
		if hi > n {
			hi = n
		}
		centers[w] = float64(lo+hi-1) / 2
	}
	return size, centers
}

// Estimate fits the similarity-versus-distance curve.
//
// Parameters:
//   - m: similarity matrix in the current index space
//   - lut: current coordinates
//   - scaling: per-section scaling factors; samples of row z are divided by
//     scaling[z]
//   - prior: previous iteration's fit, or nil
//
// Returns:
//   - the new fit, and the buckets that fell back because they were empty
func (e *Estimator) Estimate(ctx context.Context, m similarity.Matrix, lut *transform.LUT, scaling []float64, prior *Fit) (*Fit, Diagnostics, error) {
	n := m.Size()
	r := e.params.Range
	variant := e.params.Variant()

	var (
		windowSize int
		centers    []float64
	)
	if variant == LocalAverage {
		windowSize, centers = windowLayout(n, e.params.WindowRadius)
	}

	chunks := make([]*accumulator, len(e.pool.Ranges(n)))
	err := e.pool.Run(ctx, n, func(_ context.Context, chunk int, rg pool.Range) error {
		acc := newAccumulator(r, len(centers))
		for z := rg.Lo; z < rg.Hi; z++ {
			block := 0
			if windowSize > 0 {
				block = z/windowSize + 1
			}
			Walk(m, lut, z, r, scaling[z], e.params.ForceMonotonicity, func(s Sample) {
				acc.add(0, s.Distance, s.Value)
				if block > 0 {
					acc.add(block, s.Distance, s.Value)
				}
			})
		}
		chunks[chunk] = acc
		return nil
	})
	if err != nil {
		return nil, Diagnostics{}, err
	}

	total := newAccumulator(r, len(centers))
	for _, acc := range chunks {
		total.merge(acc)
	}

	var diag Diagnostics
	global := total.mean(0)
	if variant == RegularizedGlobal && prior != nil && prior.Range() == r {
		global = Blend(global, prior.global, e.params.RegularizerWeight)
	}
	e.fill(global, -1, prior, nil, &diag)

	if variant != LocalAverage {
		f := NewGlobalFit(global, n)
		f.variant = variant
		return f, diag, nil
	}

	windows := make([]Curve, len(centers))
	for w := range windows {
		windows[w] = total.mean(w + 1)
		e.fill(windows[w], w, prior, global, &diag)
	}
	f, err := NewLocalFit(global, windows, centers, n)
	if err != nil {
		return nil, diag, err
	}
	return f, diag, nil
}

// fill replaces undefined buckets of c, in order of preference, with the
// prior's value, the fallback curve's value, the previous distance's value,
// or 1 at distance 1.
func (e *Estimator) fill(c Curve, window int, prior *Fit, fallback Curve, diag *Diagnostics) {
	for k := 1; k <= c.Range(); k++ {
		if !math.IsNaN(c[k]) {
			continue
		}
		diag.Fallbacks = append(diag.Fallbacks, &InsufficientDataError{Window: window, Distance: k})
		if p := prior.priorValue(window, k); !math.IsNaN(p) {
			c[k] = p
			continue
		}
		switch {
		case fallback != nil:
			c[k] = fallback[k]
		case k > 1:
			c[k] = c[k-1]
		default:
			c[k] = 1
		}
	}
}

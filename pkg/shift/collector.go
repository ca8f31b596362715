// Package shift turns the residuals between observed similarities and the
// fit curve into proposed coordinate corrections ("votes") and aggregates
// them per section.
package shift

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"zspacing/internal/pool"
	"zspacing/pkg/fit"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

// SlopeTolerance damps votes read from shallow parts of the fit curve: a
// vote read from a segment of slope s is weighted by s/(s+SlopeTolerance).
const SlopeTolerance = 0.01

// Vote is one pairwise proposal to move a section.
type Vote struct {
	// Shift is the signed coordinate correction.
	Shift float64
	// Weight is the vote's confidence, always positive.
	Weight float64
}

// Votes holds the votes of every section in one arena; section z owns the
// slots [z*2R, (z+1)*2R).
type Votes struct {
	r      int
	data   []Vote
	counts []int
}

func newVotes(n, r int) *Votes {
	return &Votes{r: r, data: make([]Vote, n*2*r), counts: make([]int, n)}
}

// Len returns the number of sections.
func (v *Votes) Len() int { return len(v.counts) }

// Section returns the votes collected for section z.
func (v *Votes) Section(z int) []Vote {
	off := z * 2 * v.r
	return v.data[off : off+v.counts[z]]
}

// Count returns the number of votes for section z.
func (v *Votes) Count(z int) int { return v.counts[z] }

// Collector collects votes on a worker pool.
type Collector struct {
	r    int
	pool *pool.Pool
}

// NewCollector creates a collector for comparison range r. A nil pool runs
// on GOMAXPROCS workers.
func NewCollector(r int, p *pool.Pool) *Collector {
	if p == nil {
		p = pool.New(0)
	}
	return &Collector{r: r, pool: p}
}

// Collect proposes corrections for every section.
//
// For section z and neighbor j = z ± dz the observed similarity is divided
// by z's scaling factor and read back through the inverse of z's fit
// envelope as an implied distance d. The vote moves z to sit d away from j
// on j's side: c[j] ∓ d. The mirrored vote for j comes from j's own row.
// NaN pairs, flat curve segments and non-positive scaling factors yield no
// vote.
func (c *Collector) Collect(ctx context.Context, m similarity.Matrix, lut *transform.LUT, f *fit.Fit, scaling []float64) (*Votes, error) {
	n := m.Size()
	votes := newVotes(n, c.r)
	err := c.pool.Run(ctx, n, func(_ context.Context, _ int, rg pool.Range) error {
		for z := rg.Lo; z < rg.Hi; z++ {
			c.collect(m, lut, f, scaling, z, votes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func (c *Collector) collect(m similarity.Matrix, lut *transform.LUT, f *fit.Fit, scaling []float64, z int, votes *Votes) {
	mz := scaling[z]
	if !(mz > 0) {
		return
	}
	n := m.Size()
	env := f.EnvelopeFor(z)
	cz := lut.At(z)
	slots := votes.data[z*2*c.r : (z+1)*2*c.r]
	count := 0

	for _, dir := range [2]int{-1, 1} {
		for dz := 1; dz <= c.r; dz++ {
			j := z + dir*dz
			if j < 0 || j >= n {
				break
			}
			mj := scaling[j]
			if !(mj > 0) {
				continue
			}
			v := m.At(z, j)
			if math.IsNaN(v) {
				continue
			}
			d, slope, ok := env.Invert(v / mz)
			if !ok {
				continue
			}
			target := lut.At(j) - float64(dir)*d
			slots[count] = Vote{
				Shift:  target - cz,
				Weight: mz * mj * slope / (slope + SlopeTolerance),
			}
			count++
		}
	}
	votes.counts[z] = count
}

// Aggregate returns the confidence-weighted mean vote of every section.
// Sections without votes, or whose weights sum to zero, get 0.
func Aggregate(votes *Votes) []float64 {
	out := make([]float64, votes.Len())
	for z := range out {
		var sum, weight float64
		for _, v := range votes.Section(z) {
			sum += v.Weight * v.Shift
			weight += v.Weight
		}
		if weight > 0 {
			out[z] = sum / weight
		}
	}
	return out
}

// Stats summarizes one set of aggregated shifts.
type Stats struct {
	MeanAbs float64
	MaxAbs  float64
	Votes   int
}

// Summarize computes Stats for shifts aggregated from votes.
func Summarize(shifts []float64, votes *Votes) Stats {
	if len(shifts) == 0 {
		return Stats{}
	}
	abs := make([]float64, len(shifts))
	for i, s := range shifts {
		abs[i] = math.Abs(s)
	}
	total := 0
	for z := 0; z < votes.Len(); z++ {
		total += votes.Count(z)
	}
	return Stats{
		MeanAbs: floats.Sum(abs) / float64(len(abs)),
		MaxAbs:  floats.Max(abs),
		Votes:   total,
	}
}

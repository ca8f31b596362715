// Package similarity holds the pairwise section similarity matrix consumed by
// the z-spacing solver, together with views that read it through a
// permutation or on a corrected coordinate axis.
//
// Entries that were never measured, or that lie further than the comparison
// range from the diagonal, read as NaN.
package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"zspacing/pkg/transform"
)

// Matrix is a read-only accessor for an N×N similarity matrix.
type Matrix interface {
	// Size returns N, the number of sections.
	Size() int

	// At returns the similarity between sections i and j, or NaN when the
	// pair is undefined or out of bounds.
	At(i, j int) float64
}

// Dense exposes a full symmetric gonum matrix as a Matrix.
type Dense struct {
	m mat.Symmetric
}

// NewDense wraps a symmetric matrix. The matrix is not copied.
func NewDense(m mat.Symmetric) *Dense {
	return &Dense{m: m}
}

// Size implements Matrix.
func (d *Dense) Size() int { return d.m.SymmetricDim() }

// At implements Matrix.
func (d *Dense) At(i, j int) float64 {
	n := d.m.SymmetricDim()
	if i < 0 || j < 0 || i >= n || j >= n {
		return math.NaN()
	}
	return d.m.At(i, j)
}

// Strip stores only the band of half-width R around the diagonal. It is the
// natural storage for similarity measured against the R nearest neighbors.
type Strip struct {
	band *mat.SymBandDense
	n    int
	r    int
}

// NewStrip allocates an n×n strip of half-width r with every entry set to
// NaN.
func NewStrip(n, r int) (*Strip, error) {
	if n < 1 {
		return nil, fmt.Errorf("matrix size must be positive, got %d", n)
	}
	if r < 1 {
		return nil, fmt.Errorf("comparison range must be at least 1, got %d", r)
	}
	k := r
	if k > n-1 {
		k = n - 1
	}
	data := make([]float64, n*(k+1))
	for i := range data {
		data[i] = math.NaN()
	}
	return &Strip{
		band: mat.NewSymBandDense(n, k, data),
		n:    n,
		r:    r,
	}, nil
}

// Size implements Matrix.
func (s *Strip) Size() int { return s.n }

// Range returns the half-width R the strip was allocated with.
func (s *Strip) Range() int { return s.r }

// At implements Matrix.
func (s *Strip) At(i, j int) float64 {
	if i < 0 || j < 0 || i >= s.n || j >= s.n || abs(i-j) > s.r {
		return math.NaN()
	}
	return s.band.At(i, j)
}

// Set stores v at (i, j) and (j, i). Pairs outside the band are ignored and
// reported as false.
func (s *Strip) Set(i, j int, v float64) bool {
	if i < 0 || j < 0 || i >= s.n || j >= s.n || abs(i-j) > s.r {
		return false
	}
	s.band.SetSymBand(i, j, v)
	return true
}

// Permuted reads a matrix in the index space of a reordered stack: position
// (a, b) maps to the original sections stored there.
type Permuted struct {
	m    Matrix
	perm *transform.Permutation
}

// NewPermuted returns the view of m through perm.
func NewPermuted(m Matrix, perm *transform.Permutation) (*Permuted, error) {
	if perm.Len() != m.Size() {
		return nil, fmt.Errorf("permutation size %d does not match matrix size %d", perm.Len(), m.Size())
	}
	return &Permuted{m: m, perm: perm}, nil
}

// Size implements Matrix.
func (p *Permuted) Size() int { return p.m.Size() }

// At implements Matrix.
func (p *Permuted) At(a, b int) float64 {
	n := p.m.Size()
	if a < 0 || b < 0 || a >= n || b >= n {
		return math.NaN()
	}
	return p.m.At(p.perm.ApplyInverse(a), p.perm.ApplyInverse(b))
}

// Row copies the in-range neighbors of section z into dst, indexed by offset:
// dst[r+d] = m.At(z, z+d) for d in [-r, r]. dst is allocated when too short.
func Row(m Matrix, z, r int, dst []float64) []float64 {
	if len(dst) < 2*r+1 {
		dst = make([]float64, 2*r+1)
	}
	for d := -r; d <= r; d++ {
		dst[r+d] = m.At(z, z+d)
	}
	return dst[:2*r+1]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

package transform

import (
	"fmt"
	"sort"
)

// Permutation is a bijective remap of section indices. Apply(i) is the
// position of original section i in the reordered stack; ApplyInverse(k) is
// the original section found at position k.
type Permutation struct {
	lut     []int
	inverse []int
}

// NewPermutation builds a permutation from its forward lookup. The slice is
// copied. A lookup that is not a bijection on [0,n) is rejected with a
// *DegenerateTransformError wrapping ErrNotBijective.
func NewPermutation(lut []int) (*Permutation, error) {
	n := len(lut)
	inverse := make([]int, n)
	for i := range inverse {
		inverse[i] = -1
	}
	for i, k := range lut {
		if k < 0 || k >= n {
			return nil, degenerate(i, fmt.Errorf("%w: target %d out of range [0,%d)", ErrNotBijective, k, n))
		}
		if inverse[k] != -1 {
			return nil, degenerate(i, fmt.Errorf("%w: target %d used twice", ErrNotBijective, k))
		}
		inverse[k] = i
	}
	cp := make([]int, n)
	copy(cp, lut)
	return &Permutation{lut: cp, inverse: inverse}, nil
}

// Identity returns the identity permutation on n elements.
func Identity(n int) *Permutation {
	lut := make([]int, n)
	for i := range lut {
		lut[i] = i
	}
	inverse := make([]int, n)
	copy(inverse, lut)
	return &Permutation{lut: lut, inverse: inverse}
}

// SortPermutation returns the permutation that stable-sorts values in
// ascending order: values[p.ApplyInverse(k)] is non-decreasing in k.
func SortPermutation(values []float64) *Permutation {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	lut := make([]int, n)
	for k, i := range order {
		lut[i] = k
	}
	return &Permutation{lut: lut, inverse: order}
}

// Len returns the number of elements.
func (p *Permutation) Len() int { return len(p.lut) }

// Apply returns the reordered position of original index i.
func (p *Permutation) Apply(i int) int { return p.lut[i] }

// ApplyInverse returns the original index stored at reordered position k.
func (p *Permutation) ApplyInverse(k int) int { return p.inverse[k] }

// Lookup returns a copy of the forward lookup.
func (p *Permutation) Lookup() []int {
	cp := make([]int, len(p.lut))
	copy(cp, p.lut)
	return cp
}

// Inverse returns the inverse permutation.
func (p *Permutation) Inverse() *Permutation {
	return &Permutation{lut: p.inverse, inverse: p.lut}
}

// Compose returns the permutation applying p first and then next:
// result.Apply(i) == next.Apply(p.Apply(i)).
func (p *Permutation) Compose(next *Permutation) (*Permutation, error) {
	if next.Len() != p.Len() {
		return nil, fmt.Errorf("cannot compose permutations of size %d and %d", p.Len(), next.Len())
	}
	lut := make([]int, p.Len())
	for i := range lut {
		lut[i] = next.lut[p.lut[i]]
	}
	return NewPermutation(lut)
}

// IsIdentity reports whether p leaves every index in place.
func (p *Permutation) IsIdentity() bool {
	for i, k := range p.lut {
		if i != k {
			return false
		}
	}
	return true
}

// ApplyToFloat64s moves per-section values into reordered order:
// dst[p.Apply(i)] = src[i]. dst is allocated when nil.
func (p *Permutation) ApplyToFloat64s(dst, src []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(src))
	}
	for i, v := range src {
		dst[p.lut[i]] = v
	}
	return dst
}

// ApplyInverseToFloat64s moves reordered values back to original order:
// dst[i] = src[p.Apply(i)]. dst is allocated when nil.
func (p *Permutation) ApplyInverseToFloat64s(dst, src []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(src))
	}
	for i := range dst {
		dst[i] = src[p.lut[i]]
	}
	return dst
}

// AxisPermutation applies a permutation to one integer axis of an
// n-dimensional grid position, passing the other axes through.
type AxisPermutation struct {
	Perm *Permutation
	Axis int
}

// Apply writes the permuted position of src into dst. dst and src may alias.
func (a AxisPermutation) Apply(dst, src []int) {
	copy(dst, src)
	dst[a.Axis] = a.Perm.Apply(src[a.Axis])
}

// ApplyInverse writes the inverse-permuted position of src into dst.
func (a AxisPermutation) ApplyInverse(dst, src []int) {
	copy(dst, src)
	dst[a.Axis] = a.Perm.ApplyInverse(src[a.Axis])
}

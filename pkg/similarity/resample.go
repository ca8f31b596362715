package similarity

import (
	"math"

	"zspacing/pkg/transform"
)

// Resampled evaluates a matrix on the corrected coordinate axis. Pixel k
// along either axis sits at coordinate lut.Min() + k*step; it is mapped back
// to a real-valued section index through the inverse LUT and the matrix is
// sampled there with NaN-aware bilinear interpolation.
type Resampled struct {
	m     Matrix
	rows  *transform.AxisLUT
	cols  *transform.AxisLUT
	step  float64
	size  int
	start float64
}

// NewResampled builds the resampled view of m. step is the coordinate
// distance between output pixels and must be positive.
func NewResampled(m Matrix, lut *transform.LUT, step float64) (*Resampled, error) {
	rows, err := transform.NewAxisLUT(lut, 0, 2)
	if err != nil {
		return nil, err
	}
	cols, err := transform.NewAxisLUT(lut, 1, 2)
	if err != nil {
		return nil, err
	}
	if !(step > 0) {
		step = 1
	}
	size := int(math.Floor((lut.Max()-lut.Min())/step)) + 1
	return &Resampled{
		m:     m,
		rows:  rows,
		cols:  cols,
		step:  step,
		size:  size,
		start: lut.Min(),
	}, nil
}

// Size implements Matrix.
func (r *Resampled) Size() int { return r.size }

// At implements Matrix.
func (r *Resampled) At(i, j int) float64 {
	if i < 0 || j < 0 || i >= r.size || j >= r.size {
		return math.NaN()
	}
	p := []float64{r.start + float64(i)*r.step, r.start + float64(j)*r.step}
	r.rows.ApplyInverse(p, p)
	r.cols.ApplyInverse(p, p)
	return Interpolate(r.m, p[0], p[1])
}

// Interpolate samples m at a real-valued position with bilinear
// interpolation. Undefined corners are left out and the remaining weights
// renormalized; NaN is returned when no corner is defined.
func Interpolate(m Matrix, x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	i, j := int(x0), int(y0)

	var sum, weight float64
	for _, c := range [4]struct {
		di, dj int
		w      float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		if c.w == 0 {
			continue
		}
		v := m.At(i+c.di, j+c.dj)
		if math.IsNaN(v) {
			continue
		}
		sum += c.w * v
		weight += c.w
	}
	if weight == 0 {
		return math.NaN()
	}
	return sum / weight
}

package similarity

import "math"

// Gaussian returns a bell-shaped decay curve exp(-d²/2σ²), the usual model
// for similarity against section distance.
func Gaussian(sigma float64) func(float64) float64 {
	return func(d float64) float64 {
		return math.Exp(-d * d / (2 * sigma * sigma))
	}
}

// Synthesize builds the strip matrix that sections placed at coords would
// produce under the decay curve g: entry (i, j) is g(|coords[i]-coords[j]|)
// for |i-j| <= r.
func Synthesize(coords []float64, r int, g func(float64) float64) (*Strip, error) {
	n := len(coords)
	strip, err := NewStrip(n, r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		for j := i; j < n && j-i <= r; j++ {
			strip.Set(i, j, g(math.Abs(coords[i]-coords[j])))
		}
	}
	return strip, nil
}

// Scale multiplies row and column z of s by k, modelling a section whose
// similarity to every neighbor is uniformly damped. The diagonal is kept.
func Scale(s *Strip, z int, k float64) {
	for j := z - s.r; j <= z+s.r; j++ {
		if j == z {
			continue
		}
		if v := s.At(z, j); !math.IsNaN(v) {
			s.Set(z, j, k*v)
		}
	}
}

// IdentityCoordinates returns {0, 1, ..., n-1}.
func IdentityCoordinates(n int) []float64 {
	coords := make([]float64, n)
	for i := range coords {
		coords[i] = float64(i)
	}
	return coords
}

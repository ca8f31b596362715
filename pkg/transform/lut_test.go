package transform

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomIncreasing(rng *rand.Rand, n int) []float64 {
	points := make([]float64, n)
	points[0] = rng.Float64()*10 - 5
	for i := 1; i < n; i++ {
		points[i] = points[i-1] + 0.05 + rng.Float64()*3
	}
	return points
}

func TestNewLUTRejectsDegenerateInput(t *testing.T) {
	tests := []struct {
		name   string
		points []float64
		strict bool
		target error
	}{
		{"empty", nil, true, ErrTooFewPoints},
		{"single", []float64{1}, false, ErrTooFewPoints},
		{"decreasing", []float64{0, 2, 1}, false, ErrNotMonotone},
		{"tie when strict", []float64{0, 1, 1, 2}, true, ErrNotMonotone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLUT(tt.points, tt.strict)
			require.Error(t, err)

			var dte *DegenerateTransformError
			require.ErrorAs(t, err, &dte)
			assert.True(t, errors.Is(err, tt.target))
		})
	}

	_, err := NewLUT([]float64{0, math.NaN(), 2}, false)
	var dte *DegenerateTransformError
	require.ErrorAs(t, err, &dte)
	assert.Equal(t, 1, dte.Index)
}

func TestNewLUTAcceptsTiesWhenNotStrict(t *testing.T) {
	lut, err := NewLUT([]float64{0, 1, 1, 2}, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, lut.Apply(1))
	assert.Equal(t, 1.0, lut.Apply(2))
}

func TestLUTApplyInterpolatesAndExtrapolates(t *testing.T) {
	lut, err := NewLUT([]float64{0, 1, 3, 6}, true)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, lut.Apply(0.5), 1e-12)
	assert.InDelta(t, 2.0, lut.Apply(1.5), 1e-12)
	assert.InDelta(t, 6.0, lut.Apply(3), 1e-12)

	// boundary slopes are 1 on the left and 3 on the right
	assert.InDelta(t, -2.0, lut.Apply(-2), 1e-12)
	assert.InDelta(t, 12.0, lut.Apply(5), 1e-12)
}

func TestLUTFindFloorIndex(t *testing.T) {
	lut, err := NewLUT([]float64{0, 1, 3, 6}, true)
	require.NoError(t, err)

	assert.Equal(t, 0, lut.FindFloorIndex(-4))
	assert.Equal(t, 0, lut.FindFloorIndex(0))
	assert.Equal(t, 1, lut.FindFloorIndex(1))
	assert.Equal(t, 1, lut.FindFloorIndex(2.9))
	assert.Equal(t, 2, lut.FindFloorIndex(3))
	assert.Equal(t, 2, lut.FindFloorIndex(6))
	assert.Equal(t, 2, lut.FindFloorIndex(100))
}

func TestLUTRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		n := 2 + rng.Intn(40)
		lut, err := NewLUT(randomIncreasing(rng, n), true)
		require.NoError(t, err)

		for s := 0; s < 200; s++ {
			// include a margin outside [0, n-1] to exercise extrapolation
			x := rng.Float64()*float64(n+9) - 5
			assert.InDelta(t, x, lut.ApplyInverse(lut.Apply(x)), 1e-9, "n=%d x=%v", n, x)
		}

		for i := 0; i < n; i++ {
			assert.InDelta(t, float64(i), lut.ApplyInverse(lut.At(i)), 1e-9)
		}
	}
}

func TestAxisLUTTransformsSingleAxis(t *testing.T) {
	lut, err := NewLUT([]float64{0, 2, 4, 8}, true)
	require.NoError(t, err)

	a, err := NewAxisLUT(lut, 1, 3)
	require.NoError(t, err)

	src := []float64{1.5, 2.5, -7}
	dst := make([]float64, 3)
	a.Apply(dst, src)
	assert.Equal(t, []float64{1.5, 6, -7}, dst)

	back := make([]float64, 3)
	a.ApplyInverse(back, dst)
	assert.InDeltaSlice(t, src, back, 1e-12)

	_, err = NewAxisLUT(lut, 3, 3)
	require.Error(t, err)
}

func TestPointsIsACopy(t *testing.T) {
	points := []float64{0, 1, 2}
	lut, err := NewLUT(points, true)
	require.NoError(t, err)

	points[1] = 100
	got := lut.Points()
	got[2] = -1
	assert.True(t, sort.Float64sAreSorted(lut.Points()))
	assert.Equal(t, 1.0, lut.At(1))
}

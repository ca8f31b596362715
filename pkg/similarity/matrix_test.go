package similarity

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"zspacing/pkg/transform"
)

func TestStripReadsNaNOutsideBand(t *testing.T) {
	s, err := NewStrip(6, 2)
	require.NoError(t, err)

	assert.True(t, s.Set(1, 3, 0.5))
	assert.False(t, s.Set(0, 3, 0.5))

	assert.Equal(t, 0.5, s.At(1, 3))
	assert.Equal(t, 0.5, s.At(3, 1))
	assert.True(t, math.IsNaN(s.At(0, 3)))
	assert.True(t, math.IsNaN(s.At(2, 2)), "unset entries are undefined")
	assert.True(t, math.IsNaN(s.At(-1, 0)))
	assert.True(t, math.IsNaN(s.At(5, 6)))
}

func TestStripRangeLargerThanMatrix(t *testing.T) {
	s, err := NewStrip(3, 10)
	require.NoError(t, err)
	assert.True(t, s.Set(0, 2, 0.25))
	assert.Equal(t, 0.25, s.At(2, 0))
	assert.Equal(t, 10, s.Range())
}

func TestNewStripValidates(t *testing.T) {
	_, err := NewStrip(0, 1)
	require.Error(t, err)
	_, err = NewStrip(4, 0)
	require.Error(t, err)
}

func TestDenseWrapsSymmetric(t *testing.T) {
	sym := mat.NewSymDense(3, []float64{
		1, 0.5, 0.2,
		0.5, 1, 0.5,
		0.2, 0.5, 1,
	})
	d := NewDense(sym)
	assert.Equal(t, 3, d.Size())
	assert.Equal(t, 0.2, d.At(2, 0))
	assert.True(t, math.IsNaN(d.At(3, 0)))
}

func TestPermutedView(t *testing.T) {
	s, err := Synthesize([]float64{0, 1, 2}, 2, func(d float64) float64 { return 10 - d })
	require.NoError(t, err)

	// swap sections 0 and 2
	p, err := transform.NewPermutation([]int{2, 1, 0})
	require.NoError(t, err)
	view, err := NewPermuted(s, p)
	require.NoError(t, err)

	assert.Equal(t, s.At(2, 1), view.At(0, 1))
	assert.Equal(t, s.At(0, 2), view.At(2, 0))

	_, err = NewPermuted(s, transform.Identity(4))
	require.Error(t, err)
}

func TestRow(t *testing.T) {
	s, err := Synthesize(IdentityCoordinates(4), 2, func(d float64) float64 { return 1 / (1 + d) })
	require.NoError(t, err)

	row := Row(s, 0, 2, nil)
	require.Len(t, row, 5)
	assert.True(t, math.IsNaN(row[0]))
	assert.True(t, math.IsNaN(row[1]))
	assert.Equal(t, 1.0, row[2])
	assert.Equal(t, 0.5, row[3])
}

func TestInterpolateSkipsUndefinedCorners(t *testing.T) {
	s, err := NewStrip(3, 1)
	require.NoError(t, err)
	s.Set(0, 0, 1)
	s.Set(1, 1, 1)
	s.Set(0, 1, 0)

	assert.InDelta(t, 0.5, Interpolate(s, 0.5, 0), 1e-12)
	// corner (0,2) is outside the band and ignored
	assert.InDelta(t, 0.0, Interpolate(s, 0, 1.5), 1e-12)
	assert.True(t, math.IsNaN(Interpolate(s, -3, -3)))
}

func TestResampledIdentityMatchesMatrix(t *testing.T) {
	s, err := Synthesize(IdentityCoordinates(5), 4, Gaussian(2))
	require.NoError(t, err)
	lut, err := transform.NewLUT(IdentityCoordinates(5), true)
	require.NoError(t, err)

	r, err := NewResampled(s, lut, 1)
	require.NoError(t, err)
	require.Equal(t, 5, r.Size())
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			assert.InDelta(t, s.At(i, j), r.At(i, j), 1e-12)
		}
	}
}

func TestResampledStretchesGaps(t *testing.T) {
	coords := []float64{0, 1, 3}
	s, err := Synthesize(IdentityCoordinates(3), 2, func(d float64) float64 { return 1 - d/4 })
	require.NoError(t, err)
	lut, err := transform.NewLUT(coords, true)
	require.NoError(t, err)

	r, err := NewResampled(s, lut, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Size())
	// coordinate 2 sits halfway between sections 1 and 2
	assert.InDelta(t, Interpolate(s, 1.5, 0), r.At(2, 0), 1e-12)
}

func TestCSVRoundTrip(t *testing.T) {
	s, err := Synthesize(IdentityCoordinates(4), 2, Gaussian(1.5))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))

	back, err := ReadCSV(&buf, 2)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := s.At(i, j)
			if math.IsNaN(want) {
				assert.True(t, math.IsNaN(back.At(i, j)))
				continue
			}
			assert.InDelta(t, want, back.At(i, j), 1e-15)
		}
	}
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), 2)
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("1,0.5\n0.5,1\n0.2,0.3\n"), 2)
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("1,x\nx,1\n"), 2)
	require.Error(t, err)

	s, err := ReadCSV(strings.NewReader("# comment\n1, NaN\nNaN, 1\n"), 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s.At(0, 1)))
}

func TestScaleDampsRowAndColumn(t *testing.T) {
	s, err := Synthesize(IdentityCoordinates(5), 2, func(float64) float64 { return 1 })
	require.NoError(t, err)

	Scale(s, 2, 0.5)
	assert.Equal(t, 0.5, s.At(2, 0))
	assert.Equal(t, 0.5, s.At(4, 2))
	assert.Equal(t, 1.0, s.At(2, 2))
	assert.Equal(t, 1.0, s.At(1, 3))
}

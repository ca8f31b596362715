package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zspacing/internal/pool"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func identityLUT(t *testing.T, n int) *transform.LUT {
	t.Helper()
	lut, err := transform.NewLUT(similarity.IdentityCoordinates(n), true)
	require.NoError(t, err)
	return lut
}

func TestCurveAtInterpolatesAndExtrapolates(t *testing.T) {
	c := Curve{Sentinel, 0.9, 0.7, 0.4}

	assert.InDelta(t, 0.8, c.At(1.5), 1e-12)
	assert.InDelta(t, 0.4, c.At(3), 1e-12)
	assert.InDelta(t, 1.0, c.At(0.5), 1e-12)
	assert.InDelta(t, 0.1, c.At(4), 1e-12)

	assert.Equal(t, 3, c.Range())
	assert.Equal(t, 0.5, Curve{Sentinel, 0.5}.At(7))
}

func TestCurveInvertRoundTrip(t *testing.T) {
	c := Curve{Sentinel, 0.95, 0.8, 0.6, 0.45, 0.3}
	for _, d := range []float64{0.2, 1, 1.3, 2.5, 3.99, 5, 5.5} {
		got, slope, ok := c.Invert(c.At(d))
		require.True(t, ok, "d=%v", d)
		assert.Positive(t, slope)
		assert.InDelta(t, d, got, 1e-9, "d=%v", d)
	}

	// far above the first sample the distance clamps at zero
	got, _, ok := c.Invert(5)
	require.True(t, ok)
	assert.Equal(t, 0.0, got)
}

func TestCurveInvertFlatSegment(t *testing.T) {
	c := Curve{Sentinel, 0.9, 0.5, 0.5, 0.5}
	_, _, ok := c.Invert(0.4)
	assert.False(t, ok)

	_, _, ok = c.Invert(math.NaN())
	assert.False(t, ok)

	d, _, ok := c.Invert(0.7)
	require.True(t, ok)
	assert.InDelta(t, 1.5, d, 1e-12)
}

func TestEnvelopeIsNonIncreasing(t *testing.T) {
	c := Curve{Sentinel, 0.9, 0.6, 0.7, math.NaN(), 0.2}
	e := c.Envelope()
	assert.Equal(t, Curve{Sentinel, 0.9, 0.6, 0.6, 0.6, 0.2}, e)
	assert.True(t, e.IsNonIncreasing())
	assert.False(t, c.IsNonIncreasing())
}

func TestBlendIsNaNAware(t *testing.T) {
	c := Curve{Sentinel, 1, math.NaN(), 0.5}
	prior := Curve{Sentinel, 0.5, 0.4, math.NaN()}

	b := Blend(c, prior, 0.25)
	assert.InDelta(t, 0.875, b[1], 1e-12)
	assert.Equal(t, 0.4, b[2])
	assert.Equal(t, 0.5, b[3])
	assert.Equal(t, Sentinel, b[0])

	assert.Equal(t, c[1], Blend(c, nil, 0.5)[1])
}

func TestEstimateRecoversDecayCurve(t *testing.T) {
	const n, r = 30, 6
	g := similarity.Gaussian(3)
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(n), r, g)
	require.NoError(t, err)

	for _, workers := range []int{1, 4} {
		e := NewEstimator(Params{Range: r, ForceMonotonicity: true}, pool.New(workers))
		f, diag, err := e.Estimate(context.Background(), m, identityLUT(t, n), ones(n), nil)
		require.NoError(t, err)
		assert.False(t, diag.Degraded())
		assert.Equal(t, GlobalAverage, f.Variant())

		c := f.Global()
		assert.Equal(t, Sentinel, c[0])
		for k := 1; k <= r; k++ {
			assert.InDelta(t, g(float64(k)), c[k], 1e-12, "k=%d", k)
		}
	}
}

func TestEstimateDividesByScalingFactor(t *testing.T) {
	const n, r = 10, 3
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(n), r, func(float64) float64 { return 0.5 })
	require.NoError(t, err)

	scaling := ones(n)
	for i := range scaling {
		scaling[i] = 0.5
	}
	f, _, err := NewEstimator(Params{Range: r}, pool.New(2)).Estimate(context.Background(), m, identityLUT(t, n), scaling, nil)
	require.NoError(t, err)
	for k := 1; k <= r; k++ {
		assert.InDelta(t, 1.0, f.Global()[k], 1e-12)
	}
}

func TestEstimateSplitsFractionalDistances(t *testing.T) {
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(2), 2, func(float64) float64 { return 0.6 })
	require.NoError(t, err)
	lut, err := transform.NewLUT([]float64{0, 1.25}, true)
	require.NoError(t, err)

	f, diag, err := NewEstimator(Params{Range: 2}, pool.New(1)).Estimate(context.Background(), m, lut, ones(2), nil)
	require.NoError(t, err)
	assert.False(t, diag.Degraded())
	assert.InDelta(t, 0.6, f.Global()[1], 1e-12)
	assert.InDelta(t, 0.6, f.Global()[2], 1e-12)
}

func TestForceMonotonicityExcludesRebound(t *testing.T) {
	const n, r, z = 12, 4, 5
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(n), r, func(d float64) float64 { return 1 - d/10 })
	require.NoError(t, err)
	// similarity at offset +2 exceeds the one at +1
	m.Set(z, z+2, 0.95)
	lut := identityLUT(t, n)

	forced := Samples(m, lut, z, r, 1, true)
	var positive []Sample
	for _, s := range forced {
		if s.Offset > 0 {
			positive = append(positive, s)
		}
	}
	require.Len(t, positive, 1)
	assert.Equal(t, 1, positive[0].Offset)

	// accepted samples per direction never increase
	last := map[bool]float64{true: math.Inf(1), false: math.Inf(1)}
	for _, s := range forced {
		dir := s.Offset > 0
		assert.LessOrEqual(t, s.Value, last[dir])
		last[dir] = s.Value
	}

	free := Samples(m, lut, z, r, 1, false)
	assert.Len(t, free, 2*r)
}

func TestWalkSkipsNaNAndBorders(t *testing.T) {
	m, err := similarity.NewStrip(4, 3)
	require.NoError(t, err)
	m.Set(0, 1, 0.9)
	m.Set(0, 3, 0.5)

	got := Samples(m, identityLUT(t, 4), 0, 3, 1, false)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Offset)
	assert.Equal(t, 3, got[1].Offset)

	assert.Empty(t, Samples(m, identityLUT(t, 4), 0, 3, 0, false))
}

func TestEstimateFallsBackWhenRangeExceedsStack(t *testing.T) {
	const n, r = 4, 6
	g := similarity.Gaussian(2)
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(n), r, g)
	require.NoError(t, err)
	e := NewEstimator(Params{Range: r, ForceMonotonicity: true}, pool.New(2))

	f, diag, err := e.Estimate(context.Background(), m, identityLUT(t, n), ones(n), nil)
	require.NoError(t, err)
	require.Len(t, diag.Fallbacks, 3)
	for i, fb := range diag.Fallbacks {
		assert.Equal(t, -1, fb.Window)
		assert.Equal(t, 4+i, fb.Distance)
		assert.Contains(t, fb.Error(), "insufficient data")
	}
	c := f.Global()
	for k := 4; k <= r; k++ {
		assert.Equal(t, c[3], c[k])
	}

	prior := NewGlobalFit(Curve{Sentinel, 1, 1, 1, 0.3, 0.2, 0.1}, n)
	f, _, err = e.Estimate(context.Background(), m, identityLUT(t, n), ones(n), prior)
	require.NoError(t, err)
	assert.Equal(t, 0.3, f.Global()[4])
	assert.Equal(t, 0.1, f.Global()[6])
	assert.InDelta(t, g(1), f.Global()[1], 1e-12)
}

func TestEstimateAllUndefined(t *testing.T) {
	m, err := similarity.NewStrip(5, 2)
	require.NoError(t, err)

	f, diag, err := NewEstimator(Params{Range: 2}, nil).Estimate(context.Background(), m, identityLUT(t, 5), ones(5), nil)
	require.NoError(t, err)
	assert.Len(t, diag.Fallbacks, 2)
	assert.Equal(t, Curve{Sentinel, 1, 1}, f.Global())
}

func TestRegularizedGlobalBlendsWithPrior(t *testing.T) {
	const n, r = 20, 3
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(n), r, func(d float64) float64 { return 1 - d/5 })
	require.NoError(t, err)
	params := Params{Range: r, RegularizerWeight: 0.5}
	require.Equal(t, RegularizedGlobal, params.Variant())

	prior := NewGlobalFit(Curve{Sentinel, 0.6, 0.4, 0.2}, n)
	f, _, err := NewEstimator(params, pool.New(3)).Estimate(context.Background(), m, identityLUT(t, n), ones(n), prior)
	require.NoError(t, err)
	assert.Equal(t, RegularizedGlobal, f.Variant())
	assert.InDelta(t, 0.7, f.Global()[1], 1e-12)
	assert.InDelta(t, 0.5, f.Global()[2], 1e-12)
	assert.InDelta(t, 0.3, f.Global()[3], 1e-12)

	// without a prior the estimate is used as is
	f, _, err = NewEstimator(params, pool.New(3)).Estimate(context.Background(), m, identityLUT(t, n), ones(n), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, f.Global()[1], 1e-12)
}

func TestLocalAverageFollowsWindows(t *testing.T) {
	const n, r = 20, 2
	// first half decays slowly, second half quickly
	m, err := similarity.NewStrip(n, r)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		for j := i; j < n && j-i <= r; j++ {
			slope := 0.1
			if i >= 10 {
				slope = 0.3
			}
			m.Set(i, j, 1-slope*float64(j-i))
		}
	}

	params := Params{Range: r, WindowRadius: 2}
	require.Equal(t, LocalAverage, params.Variant())
	f, _, err := NewEstimator(params, pool.New(2)).Estimate(context.Background(), m, identityLUT(t, n), ones(n), nil)
	require.NoError(t, err)
	require.Equal(t, LocalAverage, f.Variant())

	assert.Equal(t, []float64{2, 7, 12, 17}, f.Centers())
	windows := f.Windows()
	require.Len(t, windows, 4)
	assert.InDelta(t, 0.9, windows[0][1], 1e-12)
	assert.InDelta(t, 0.7, windows[3][1], 1e-12)

	// centres take their window's curve, ends are clamped, others interpolate
	assert.InDelta(t, windows[0][1], f.ForSection(0)[1], 1e-12)
	assert.InDelta(t, windows[1][1], f.ForSection(7)[1], 1e-12)
	assert.InDelta(t, windows[3][1], f.ForSection(19)[1], 1e-12)
	mid := f.ForSection(15)[1]
	assert.Less(t, mid, windows[2][1]+1e-12)
	assert.Greater(t, mid, windows[3][1]-1e-12)

	for z := 0; z < n; z++ {
		assert.True(t, f.EnvelopeFor(z).IsNonIncreasing())
	}
}

func TestNewLocalFitValidates(t *testing.T) {
	_, err := NewLocalFit(NewCurve(2), nil, nil, 4)
	require.Error(t, err)
	_, err = NewLocalFit(NewCurve(2), []Curve{NewCurve(3)}, []float64{1}, 4)
	require.Error(t, err)
}

func TestFitValidate(t *testing.T) {
	f := NewGlobalFit(Curve{Sentinel, 0.9, 0.8}, 5)
	require.NoError(t, f.Validate(5, 2))
	require.Error(t, f.Validate(6, 2))
	require.Error(t, f.Validate(5, 3))

	bad := NewGlobalFit(Curve{Sentinel, 0.9, math.NaN()}, 5)
	var ide *InsufficientDataError
	require.ErrorAs(t, bad.Validate(5, 2), &ide)
	assert.Equal(t, 2, ide.Distance)
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "global-average", GlobalAverage.String())
	assert.Equal(t, "local-average", LocalAverage.String())
	assert.Equal(t, "regularized-global", RegularizedGlobal.String())
	assert.Equal(t, "Variant(9)", Variant(9).String())
}

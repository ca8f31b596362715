package shift

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zspacing/internal/pool"
	"zspacing/pkg/fit"
	"zspacing/pkg/scaling"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

func linear(d float64) float64 { return 1 - 0.1*d }

func linearFit(r, n int) *fit.Fit {
	c := fit.NewCurve(r)
	for k := 1; k <= r; k++ {
		c[k] = linear(float64(k))
	}
	return fit.NewGlobalFit(c, n)
}

func identityLUT(t *testing.T, n int) *transform.LUT {
	t.Helper()
	lut, err := transform.NewLUT(similarity.IdentityCoordinates(n), true)
	require.NoError(t, err)
	return lut
}

func TestConsistentStackProducesZeroShifts(t *testing.T) {
	const n, r = 15, 3
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(n), r, linear)
	require.NoError(t, err)

	votes, err := NewCollector(r, pool.New(3)).Collect(context.Background(), m, identityLUT(t, n), linearFit(r, n), scaling.Ones(n))
	require.NoError(t, err)

	shifts := Aggregate(votes)
	for z, s := range shifts {
		assert.InDelta(t, 0, s, 1e-12, "section %d", z)
	}
	// the first section only has neighbors above it
	assert.Equal(t, r, votes.Count(0))
}

func TestVotesPointTowardImpliedPosition(t *testing.T) {
	const n, r = 6, 3
	truth := []float64{0, 1, 2.5, 3.5, 4.5, 5.5}
	m, err := similarity.Synthesize(truth, r, linear)
	require.NoError(t, err)

	votes, err := NewCollector(r, pool.New(1)).Collect(context.Background(), m, identityLUT(t, n), linearFit(r, n), scaling.Ones(n))
	require.NoError(t, err)

	got := votes.Section(2)
	require.Len(t, got, 5)
	// neighbors 1 and 0 both place section 2 at 2.5
	assert.InDelta(t, 0.5, got[0].Shift, 1e-12)
	assert.InDelta(t, 0.5, got[1].Shift, 1e-12)
	// neighbor 3 sits one unit above, as it does on the current axis
	assert.InDelta(t, 0, got[2].Shift, 1e-12)
	assert.InDelta(t, 0.1/(0.1+SlopeTolerance), got[0].Weight, 1e-12)

	// section 1 is pushed away from section 2 from its own row
	assert.InDelta(t, -0.5, votes.Section(1)[1].Shift, 1e-12)
}

func TestScalingFactorNormalizesRow(t *testing.T) {
	const n, r, z = 12, 3, 6
	m, err := similarity.Synthesize(similarity.IdentityCoordinates(n), r, linear)
	require.NoError(t, err)
	similarity.Scale(m, z, 0.5)

	factors := scaling.Ones(n)
	factors[z] = 0.5
	votes, err := NewCollector(r, nil).Collect(context.Background(), m, identityLUT(t, n), linearFit(r, n), factors)
	require.NoError(t, err)

	for _, v := range votes.Section(z) {
		assert.InDelta(t, 0, v.Shift, 1e-12)
		assert.InDelta(t, 0.5*0.1/(0.1+SlopeTolerance), v.Weight, 1e-12)
	}

	factors[z] = 0
	votes, err = NewCollector(r, nil).Collect(context.Background(), m, identityLUT(t, n), linearFit(r, n), factors)
	require.NoError(t, err)
	assert.Zero(t, votes.Count(z))
	// neighbors drop their vote toward the zero-weight section
	assert.Equal(t, 2*r-1, votes.Count(z-1))
}

func TestFlatCurveAndMissingDataYieldNoVotes(t *testing.T) {
	const n, r = 8, 2
	m, err := similarity.NewStrip(n, r)
	require.NoError(t, err)
	for i := 0; i < n-1; i++ {
		m.Set(i, i+1, 0.5)
	}

	flat := fit.NewGlobalFit(fit.Curve{fit.Sentinel, 0.5, 0.5}, n)
	votes, err := NewCollector(r, pool.New(2)).Collect(context.Background(), m, identityLUT(t, n), flat, scaling.Ones(n))
	require.NoError(t, err)
	for z := 0; z < n; z++ {
		assert.Zero(t, votes.Count(z))
	}
	for _, s := range Aggregate(votes) {
		assert.Zero(t, s)
	}

	// offset-2 pairs are undefined; only neighbors vote
	votes, err = NewCollector(r, pool.New(2)).Collect(context.Background(), m, identityLUT(t, n), linearFit(r, n), scaling.Ones(n))
	require.NoError(t, err)
	assert.Equal(t, 1, votes.Count(0))
	assert.Equal(t, 2, votes.Count(3))
}

func TestAggregateIsConfidenceWeighted(t *testing.T) {
	votes := newVotes(3, 1)
	votes.data[0] = Vote{Shift: 1, Weight: 3}
	votes.data[1] = Vote{Shift: -1, Weight: 1}
	votes.counts[0] = 2
	votes.data[2] = Vote{Shift: 4, Weight: 2}
	votes.counts[1] = 1

	shifts := Aggregate(votes)
	assert.InDelta(t, 0.5, shifts[0], 1e-12)
	assert.InDelta(t, 4, shifts[1], 1e-12)
	assert.Zero(t, shifts[2])

	stats := Summarize(shifts, votes)
	assert.Equal(t, 3, stats.Votes)
	assert.InDelta(t, 4, stats.MaxAbs, 1e-12)
	assert.InDelta(t, 1.5, stats.MeanAbs, 1e-12)
	assert.Equal(t, Stats{}, Summarize(nil, votes))
}

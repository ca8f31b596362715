package inference

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"zspacing/pkg/fit"
	"zspacing/pkg/shift"
	"zspacing/pkg/similarity"
	"zspacing/pkg/transform"
)

// IterationReport summarizes one iteration.
type IterationReport struct {
	Iteration int
	Shift     shift.Stats

	// FitFallbacks and ScalingFallbacks count the locally recovered
	// estimation failures.
	FitFallbacks     int
	ScalingFallbacks int
}

// Metrics describes how well the final coordinates explain the data.
type Metrics struct {
	// RMSE is the root mean square difference between every normalized
	// in-range similarity and the fit curve at the final distances.
	RMSE float64
	// Pairs is the number of similarities RMSE was computed from.
	Pairs int

	// Thickness statistics of consecutive coordinate differences, in
	// sorted order when reordering.
	MeanThickness   float64
	StdDevThickness float64
	MinThickness    float64
	MaxThickness    float64
}

// Report is the compact run log: one entry per iteration, every visitor
// failure and the final metrics.
type Report struct {
	Iterations    []IterationReport
	VisitorErrors []*VisitorError
	Metrics       Metrics
}

// Degraded reports whether any estimation fell back during the run.
func (r *Report) Degraded() bool {
	return r.FitFallbacks() > 0 || r.ScalingFallbacks() > 0
}

// FitFallbacks returns the total number of fit buckets that fell back.
func (r *Report) FitFallbacks() int {
	total := 0
	for _, it := range r.Iterations {
		total += it.FitFallbacks
	}
	return total
}

// ScalingFallbacks returns the total number of scaling factors that kept
// their previous value.
func (r *Report) ScalingFallbacks() int {
	total := 0
	for _, it := range r.Iterations {
		total += it.ScalingFallbacks
	}
	return total
}

// computeMetrics evaluates the final state. coords are in the index space of
// m; f may be nil when no iteration ran.
func computeMetrics(m similarity.Matrix, coords, factors []float64, f *fit.Fit, r int) Metrics {
	var out Metrics
	n := len(coords)

	if n > 1 {
		thickness := make([]float64, n-1)
		for z := 1; z < n; z++ {
			thickness[z-1] = coords[z] - coords[z-1]
		}
		out.MeanThickness, out.StdDevThickness = stat.MeanStdDev(thickness, nil)
		out.MinThickness = floats.Min(thickness)
		out.MaxThickness = floats.Max(thickness)
	}

	if f == nil {
		return out
	}
	var sq []float64
	for z := 0; z < n; z++ {
		if !(factors[z] > 0) {
			continue
		}
		for j := z + 1; j < n && j-z <= r; j++ {
			v := m.At(z, j)
			if math.IsNaN(v) {
				continue
			}
			e := v/factors[z] - f.At(z, math.Abs(coords[j]-coords[z]))
			sq = append(sq, e*e)
		}
	}
	if out.Pairs = len(sq); out.Pairs > 0 {
		out.RMSE = math.Sqrt(stat.Mean(sq, nil))
	}
	return out
}

// Result is the outcome of a completed run.
type Result struct {
	// Coordinates of every section, in original section order.
	Coordinates []float64
	// SortedCoordinates is set when reordering: Coordinates arranged along
	// the corrected axis.
	SortedCoordinates []float64
	// Permutation maps original indices to sorted positions. Nil unless
	// reordering was enabled.
	Permutation *transform.Permutation
	// ScalingFactors of the last iteration, in original section order.
	ScalingFactors []float64
	// Fit of the last iteration, or the prior fit when no iteration ran.
	Fit *fit.Fit

	Report Report
}

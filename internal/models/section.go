package models

import (
	"sort"
)

// Section represents a single section of the stack with its estimated
// placement along the corrected axis
type Section struct {
	// Index is the position of this section in the input sequence
	Index int

	// Rank is the position of this section along the corrected axis; it
	// differs from Index only when sections were reordered
	Rank int

	// Position is the estimated coordinate of the section
	Position float64

	// Thickness is the distance to the next section along the corrected
	// axis; the last section repeats its predecessor's thickness
	Thickness float64

	// ScalingFactor is the reliability weight estimated for the section
	ScalingFactor float64
}

// SectionsFromCoordinates builds one Section per coordinate, in input order.
// factors may be nil.
func SectionsFromCoordinates(coords, factors []float64) []Section {
	n := len(coords)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return coords[order[a]] < coords[order[b]] })

	sections := make([]Section, n)
	for rank, i := range order {
		s := Section{Index: i, Rank: rank, Position: coords[i], ScalingFactor: 1}
		switch {
		case rank+1 < n:
			s.Thickness = coords[order[rank+1]] - coords[i]
		case rank > 0:
			s.Thickness = coords[i] - coords[order[rank-1]]
		}
		if factors != nil {
			s.ScalingFactor = factors[i]
		}
		sections[i] = s
	}
	return sections
}

// Extent returns the distance between the first and the last section.
func Extent(sections []Section) float64 {
	if len(sections) == 0 {
		return 0
	}
	lo, hi := sections[0].Position, sections[0].Position
	for _, s := range sections[1:] {
		lo = min(lo, s.Position)
		hi = max(hi, s.Position)
	}
	return hi - lo
}

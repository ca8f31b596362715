package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectionsFromCoordinates(t *testing.T) {
	sections := SectionsFromCoordinates([]float64{0, 1, 3, 2.5}, []float64{1, 0.5, 1, 1})

	assert.Equal(t, Section{Index: 1, Rank: 1, Position: 1, Thickness: 1.5, ScalingFactor: 0.5}, sections[1])
	assert.Equal(t, 3, sections[2].Rank)
	assert.Equal(t, 0.5, sections[2].Thickness)
	assert.Equal(t, 2, sections[3].Rank)
	assert.Equal(t, 0.5, sections[3].Thickness)
	assert.Equal(t, 3.0, Extent(sections))
}

func TestSectionsEdgeCases(t *testing.T) {
	assert.Empty(t, SectionsFromCoordinates(nil, nil))
	assert.Zero(t, Extent(nil))

	single := SectionsFromCoordinates([]float64{4}, nil)
	assert.Equal(t, []Section{{Index: 0, Rank: 0, Position: 4, ScalingFactor: 1}}, single)
}

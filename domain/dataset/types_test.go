package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleBoundsReflect(t *testing.T) {
	b := DefaultBounds // [1,6]
	assert.Equal(t, 6.0, b.Reflect(1))
	assert.Equal(t, 1.0, b.Reflect(6))
	assert.Equal(t, 3.5, b.Reflect(3.5))
	// Reflecting twice is the identity
	assert.Equal(t, 2.0, b.Reflect(b.Reflect(2)))
}

func TestScaleBoundsContains(t *testing.T) {
	b := DefaultBounds
	assert.True(t, b.Contains(1))
	assert.True(t, b.Contains(6))
	assert.False(t, b.Contains(0.99))
	assert.False(t, b.Contains(6.01))
}

func TestAnalysisSetFilters(t *testing.T) {
	participants := []Participant{
		{ID: "keep", Eligible: true, Returned: true},
		{ID: "dropout", Eligible: true, Returned: false},
		{ID: "ineligible", Eligible: false, Returned: true},
		{ID: "excluded", Eligible: true, Returned: true, Excluded: true},
	}

	kept := AnalysisSet(participants)
	require.Len(t, kept, 1)
	assert.Equal(t, "keep", kept[0].ID.String())
}

func TestChangeScore(t *testing.T) {
	p := Participant{Pretest: 2.4, Posttest: 4.0}
	assert.InDelta(t, 1.6, p.ChangeScore(), 1e-12)
}

func TestConditionLevelsControlFirst(t *testing.T) {
	participants := []Participant{
		{ID: "p1", Condition: "Treatment"},
		{ID: "p2", Condition: ConditionControl},
		{ID: "p3", Condition: "Other"},
	}

	levels := ConditionLevels(participants)
	require.NotEmpty(t, levels)
	assert.Equal(t, ConditionControl, levels[0])
}

func TestPhaseCode(t *testing.T) {
	assert.Equal(t, 0.0, PhasePretest.Code())
	assert.Equal(t, 1.0, PhasePosttest.Code())
}

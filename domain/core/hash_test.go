package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeFingerprintStability(t *testing.T) {
	y := []float64{0.1, 0.5, 0.9}
	a := ComputeOutcomeFingerprint("raw|posttest", y)
	b := ComputeOutcomeFingerprint("raw|posttest", y)
	assert.True(t, a.Equals(b))
	assert.False(t, a.IsEmpty())
}

func TestOutcomeFingerprintSeparatesTransforms(t *testing.T) {
	// Same numbers through different transforms must not collide.
	y := []float64{0.1, 0.5, 0.9}
	raw := ComputeOutcomeFingerprint("raw|posttest", y)
	rescaled := ComputeOutcomeFingerprint("rescaled(n=3)|posttest", y)
	assert.False(t, raw.Equals(rescaled))
}

func TestOutcomeFingerprintSeparatesValues(t *testing.T) {
	a := ComputeOutcomeFingerprint("raw|posttest", []float64{1, 2, 3})
	b := ComputeOutcomeFingerprint("raw|posttest", []float64{1, 2, 4})
	assert.False(t, a.Equals(b))
}

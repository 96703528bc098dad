package fit

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeChains builds chains of draws over one parameter from the given
// per-chain means.
func makeChains(rng *rand.Rand, n int, means ...float64) [][][]float64 {
	chains := make([][][]float64, len(means))
	for c, mu := range means {
		chains[c] = make([][]float64, n)
		for i := range chains[c] {
			chains[c][i] = []float64{mu + rng.NormFloat64()}
		}
	}
	return chains
}

func TestSplitRhatNearOneForStationaryChains(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	chains := makeChains(rng, 1000, 0, 0, 0, 0)

	diag := samplerDiagnostics(chains, 1)
	assert.InDelta(t, 1.0, diag.MaxRhat, 0.05)
	assert.True(t, diag.Converged)
}

func TestSplitRhatFlagsDivergentChains(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	// Chains centered 10 apart cannot have mixed.
	chains := makeChains(rng, 1000, 0, 10)

	diag := samplerDiagnostics(chains, 1)
	assert.Greater(t, diag.MaxRhat, rhatThreshold)
	assert.False(t, diag.Converged)
}

func TestSplitRhatFlagsWithinChainDrift(t *testing.T) {
	// A trending chain: its two halves have different means.
	n := 1000
	chains := make([][][]float64, 2)
	rng := rand.New(rand.NewSource(3))
	for c := range chains {
		chains[c] = make([][]float64, n)
		for i := range chains[c] {
			drift := float64(i) / 100.0
			chains[c][i] = []float64{drift + 0.1*rng.NormFloat64()}
		}
	}

	diag := samplerDiagnostics(chains, 1)
	assert.False(t, diag.Converged)
}

func TestEffectiveSampleSizeWhiteNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	chains := makeChains(rng, 2000, 0, 0)

	diag := samplerDiagnostics(chains, 1)
	// Independent draws keep most of the nominal sample size.
	assert.Greater(t, diag.MinESS, 1000.0)
}

func TestEffectiveSampleSizeAutocorrelated(t *testing.T) {
	// An AR(1) chain with high persistence has far fewer effective
	// draws than nominal.
	n := 2000
	rng := rand.New(rand.NewSource(5))
	chains := make([][][]float64, 2)
	for c := range chains {
		chains[c] = make([][]float64, n)
		x := 0.0
		for i := range chains[c] {
			x = 0.95*x + rng.NormFloat64()
			chains[c][i] = []float64{x}
		}
	}

	diag := samplerDiagnostics(chains, 1)
	require.Greater(t, diag.MinESS, 0.0)
	assert.Less(t, diag.MinESS, float64(2*n)/4)
}

func TestSamplerDiagnosticsEmptyChains(t *testing.T) {
	diag := samplerDiagnostics(nil, 1)
	assert.False(t, diag.Converged)
}

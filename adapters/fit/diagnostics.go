package fit

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/derekpowell/cava-rep/domain/model"
)

// Convergence thresholds. Rhat compares within- to between-chain variance
// on split half-chains; ESS discounts autocorrelation in the pooled draws.
const (
	rhatThreshold = 1.05
	essThreshold  = 100
)

// samplerDiagnostics computes split-Rhat and effective sample size for the
// first numPar parameters across chains and reports whether the run passes
// the convergence thresholds.
func samplerDiagnostics(chains [][][]float64, numPar int) model.Convergence {
	diag := model.Convergence{Converged: true, OptimizerStatus: "metropolis"}
	if len(chains) == 0 || len(chains[0]) == 0 {
		diag.Converged = false
		return diag
	}

	diag.MaxRhat = math.Inf(-1)
	diag.MinESS = math.Inf(1)
	for j := 0; j < numPar; j++ {
		halves := splitHalves(chains, j)
		r := splitRhat(halves)
		if r > diag.MaxRhat {
			diag.MaxRhat = r
		}
		ess := effectiveSampleSize(halves)
		if ess < diag.MinESS {
			diag.MinESS = ess
		}
	}

	if diag.MaxRhat > rhatThreshold || diag.MinESS < essThreshold {
		diag.Converged = false
	}
	return diag
}

// splitHalves extracts parameter j from every chain and splits each chain
// into halves, so within-chain drift shows up as between-group variance.
func splitHalves(chains [][][]float64, j int) [][]float64 {
	var halves [][]float64
	for _, ch := range chains {
		n := len(ch)
		if n < 4 {
			continue
		}
		half := n / 2
		a := make([]float64, half)
		b := make([]float64, half)
		for i := 0; i < half; i++ {
			a[i] = ch[i][j]
			b[i] = ch[n-half+i][j]
		}
		halves = append(halves, a, b)
	}
	return halves
}

// splitRhat is the potential scale reduction factor over the split
// half-chains: sqrt of (pooled variance estimate / within-chain variance).
func splitRhat(halves [][]float64) float64 {
	m := len(halves)
	if m < 2 {
		return math.Inf(1)
	}
	n := float64(len(halves[0]))

	chainMeans := make([]float64, m)
	within := 0.0
	for c, h := range halves {
		chainMeans[c] = stat.Mean(h, nil)
		within += stat.Variance(h, nil)
	}
	within /= float64(m)
	between := n * stat.Variance(chainMeans, nil)

	if within == 0 {
		if between == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := (n-1)/n*within + between/n
	return math.Sqrt(varPlus / within)
}

// effectiveSampleSize estimates ESS from the chains' autocorrelation,
// summing lagged correlations until the first non-positive pair (Geyer's
// initial positive sequence rule).
func effectiveSampleSize(halves [][]float64) float64 {
	m := len(halves)
	if m == 0 {
		return 0
	}
	n := len(halves[0])
	total := float64(m * n)

	// Average autocorrelation at each lag across chains.
	maxLag := n - 2
	sumRho := 0.0
	for lag := 1; lag < maxLag; lag += 2 {
		pair := avgAutocorr(halves, lag) + avgAutocorr(halves, lag+1)
		if pair <= 0 {
			break
		}
		sumRho += pair
	}

	ess := total / (1 + 2*sumRho)
	if ess > total {
		ess = total
	}
	return ess
}

func avgAutocorr(halves [][]float64, lag int) float64 {
	s := 0.0
	for _, h := range halves {
		s += autocorr(h, lag)
	}
	return s / float64(len(halves))
}

func autocorr(xs []float64, lag int) float64 {
	n := len(xs)
	if lag >= n {
		return 0
	}
	mu := stat.Mean(xs, nil)
	v := stat.Variance(xs, nil)
	if v == 0 {
		return 0
	}
	s := 0.0
	for i := 0; i < n-lag; i++ {
		s += (xs[i] - mu) * (xs[i+lag] - mu)
	}
	return s / (float64(n-1) * v)
}

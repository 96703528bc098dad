package compare

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/model"
)

// LOOComparison is a pairwise predictive comparison of Bayesian fits on
// the expected log pointwise predictive density (elpd) scale. Diff is
// ElpdA − ElpdB, so a positive value favors model A.
type LOOComparison struct {
	ModelA core.ModelName `json:"model_a"`
	ModelB core.ModelName `json:"model_b"`
	ElpdA  float64        `json:"elpd_a"`
	ElpdB  float64        `json:"elpd_b"`
	Diff   float64        `json:"diff"`
	SE     float64        `json:"se"`

	// NotDistinguishable is set when |Diff| < 2·SE: the data do not
	// separate the two models' predictive performance.
	NotDistinguishable bool `json:"not_distinguishable"`
}

// Favored names the model with higher elpd, or empty when the comparison
// is not distinguishable.
func (c LOOComparison) Favored() core.ModelName {
	if c.NotDistinguishable {
		return ""
	}
	if c.Diff > 0 {
		return c.ModelA
	}
	return c.ModelB
}

// CompareLOO approximates leave-one-out cross-validation for two Bayesian
// fits via truncated importance sampling over their posterior draws. Both
// fits must carry a pointwise log-likelihood matrix and share the same
// outcome fingerprint. Swapping the arguments negates Diff.
func CompareLOO(a, b *model.Fitted) (LOOComparison, error) {
	for _, f := range []*model.Fitted{a, b} {
		if !f.IsBayesian() || len(f.Stats.PointwiseLogLik) == 0 {
			return LOOComparison{}, fmt.Errorf("%w: %s has no posterior pointwise log-likelihood",
				core.ErrMissingDraws, f.Spec.Name)
		}
	}
	if a.Outcome != b.Outcome {
		return LOOComparison{}, fmt.Errorf("%w: %s and %s were fit to different outcomes",
			core.ErrIncommensurable, a.Spec.Name, b.Spec.Name)
	}

	elpdA, err := pointwiseElpd(a.Stats.PointwiseLogLik)
	if err != nil {
		return LOOComparison{}, fmt.Errorf("loo for %s: %w", a.Spec.Name, err)
	}
	elpdB, err := pointwiseElpd(b.Stats.PointwiseLogLik)
	if err != nil {
		return LOOComparison{}, fmt.Errorf("loo for %s: %w", b.Spec.Name, err)
	}
	if len(elpdA) != len(elpdB) {
		return LOOComparison{}, fmt.Errorf("%w: pointwise lengths differ (%d vs %d)",
			core.ErrIncommensurable, len(elpdA), len(elpdB))
	}

	n := len(elpdA)
	diffs := make([]float64, n)
	sumA, sumB := 0.0, 0.0
	for i := range diffs {
		diffs[i] = elpdA[i] - elpdB[i]
		sumA += elpdA[i]
		sumB += elpdB[i]
	}

	se := math.Sqrt(float64(n) * stat.Variance(diffs, nil))
	diff := sumA - sumB

	return LOOComparison{
		ModelA:             a.Spec.Name,
		ModelB:             b.Spec.Name,
		ElpdA:              sumA,
		ElpdB:              sumB,
		Diff:               diff,
		SE:                 se,
		NotDistinguishable: math.Abs(diff) < 2*se,
	}, nil
}

// pointwiseElpd computes the per-observation elpd contribution from an
// S×n log-likelihood matrix. Importance ratios 1/p(y_i|θ_s) are truncated
// at sqrt(S) times their mean to tame heavy right tails before averaging.
func pointwiseElpd(logLik [][]float64) ([]float64, error) {
	S := len(logLik)
	n := len(logLik[0])
	for s := range logLik {
		if len(logLik[s]) != n {
			return nil, fmt.Errorf("ragged pointwise log-likelihood matrix at draw %d", s)
		}
	}

	logS := math.Log(float64(S))
	elpd := make([]float64, n)
	lw := make([]float64, S)
	for i := 0; i < n; i++ {
		// Raw log importance weights, normalized for stability.
		for s := 0; s < S; s++ {
			lw[s] = -logLik[s][i]
		}
		lse := logSumExp(lw)
		ceiling := lse - logS + 0.5*logS // log of sqrt(S) * mean weight
		for s := range lw {
			if lw[s] > ceiling {
				lw[s] = ceiling
			}
		}

		// elpd_i = log( Σ w_s p(y_i|θ_s) / Σ w_s )
		num := make([]float64, S)
		for s := range num {
			num[s] = lw[s] + logLik[s][i]
		}
		elpd[i] = logSumExp(num) - logSumExp(lw)
	}
	return elpd, nil
}

func logSumExp(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, -1) {
		return m
	}
	s := 0.0
	for _, x := range xs {
		s += math.Exp(x - m)
	}
	return m + math.Log(s)
}

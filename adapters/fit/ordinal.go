package fit

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/model"
)

// ordinalLayout maps the flat optimizer vector onto the cumulative-link
// parameterization: the first threshold, log-increments forcing the
// remaining thresholds monotone, then the shared slope coefficients
// (no intercept - the thresholds absorb it).
type ordinalLayout struct {
	numThresholds int // K-1 for K observed categories
	numSlopes     int
}

func (l ordinalLayout) size() int { return l.numThresholds + l.numSlopes }

// thresholds recovers the monotone threshold vector.
func (l ordinalLayout) thresholds(theta []float64) []float64 {
	tau := make([]float64, l.numThresholds)
	tau[0] = theta[0]
	for k := 1; k < l.numThresholds; k++ {
		tau[k] = tau[k-1] + math.Exp(theta[k])
	}
	return tau
}

func (l ordinalLayout) slopes(theta []float64) []float64 {
	return theta[l.numThresholds:]
}

// fitOrdinalML fits a proportional-odds cumulative logit model: one
// threshold per category boundary, a single slope vector shared across
// thresholds. Category codes are the sorted distinct response values.
func fitOrdinalML(spec model.Spec, d *Design, y []float64) (*mlFit, error) {
	codes, levels := categoryCodes(y)
	K := len(levels)
	if K < 2 {
		return nil, core.NewFamilyMismatchError(string(model.FamilyOrdinal), "fewer than 2 observed levels")
	}

	// Drop the intercept column; thresholds play its role.
	slopeNames := d.Names[1:]
	layout := ordinalLayout{numThresholds: K - 1, numSlopes: len(slopeNames)}

	negLL := func(theta []float64) float64 {
		return -ordinalLogLik(theta, layout, d, codes)
	}

	// Start thresholds at the empirical cumulative logits, slopes at zero.
	x0 := make([]float64, layout.size())
	cum := empiricalCumLogits(codes, K)
	x0[0] = cum[0]
	for k := 1; k < K-1; k++ {
		inc := cum[k] - cum[k-1]
		if inc < 1e-3 {
			inc = 1e-3
		}
		x0[k] = math.Log(inc)
	}

	result, err := optimize.Minimize(optimize.Problem{Func: negLL}, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, core.NewConvergenceError(spec.Name, "cumulative-link optimizer: "+err.Error())
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, core.NewConvergenceError(spec.Name, "cumulative-link likelihood diverged")
	}

	theta := result.X
	logLik := -result.F
	k := layout.size()
	aic := -2*logLik + 2*float64(k)

	ses := waldSE(negLL, theta)
	zCrit := distuv.UnitNormal.Quantile(0.975)

	tau := layout.thresholds(theta)
	coefs := make([]model.Coefficient, 0, k)
	for t := 0; t < layout.numThresholds; t++ {
		// Report thresholds on their natural scale; the SE of the first
		// is exact, later ones inherit the log-increment SE.
		coefs = append(coefs, coefFromWald(fmt.Sprintf("threshold[%d]", t+1), tau[t], ses[t], zCrit))
	}
	slopes := layout.slopes(theta)
	for j, name := range slopeNames {
		coefs = append(coefs, coefFromWald(name, slopes[j], ses[layout.numThresholds+j], zCrit))
	}

	// Fitted values as expected category codes on the original scale.
	fitted := make([]float64, len(y))
	for i := range y {
		eta := slopeDot(layout, d, i, theta)
		ev := 0.0
		prev := 0.0
		for c := 0; c < K; c++ {
			var cdf float64
			if c == K-1 {
				cdf = 1
			} else {
				cdf = logistic(tau[c] - eta)
			}
			ev += levels[c] * (cdf - prev)
			prev = cdf
		}
		fitted[i] = ev
	}

	return &mlFit{
		coefficients: coefs,
		fittedValues: fitted,
		logLik:       logLik,
		aic:          aic,
		numPar:       k,
		diagnostics: model.Convergence{
			Converged:       true,
			OptimizerStatus: result.Status.String(),
			Evaluations:     result.FuncEvaluations,
		},
	}, nil
}

// ordinalLogLik evaluates the cumulative logit log-likelihood. codes holds
// 0-based category indices.
func ordinalLogLik(theta []float64, layout ordinalLayout, d *Design, codes []int) float64 {
	K := layout.numThresholds + 1
	tau := layout.thresholds(theta)

	ll := 0.0
	for i, c := range codes {
		eta := slopeDot(layout, d, i, theta)

		var upper, lower float64
		if c == K-1 {
			upper = 1
		} else {
			upper = logistic(tau[c] - eta)
		}
		if c == 0 {
			lower = 0
		} else {
			lower = logistic(tau[c-1] - eta)
		}

		p := upper - lower
		if p <= 0 {
			return math.Inf(-1)
		}
		ll += math.Log(p)
	}
	return ll
}

// slopeDot is the shared linear predictor, skipping the design's intercept
// column.
func slopeDot(layout ordinalLayout, d *Design, i int, theta []float64) float64 {
	slopes := layout.slopes(theta)
	eta := 0.0
	for j := range slopes {
		eta += d.X.At(i, j+1) * slopes[j]
	}
	return eta
}

// categoryCodes maps responses to 0-based indices over the sorted distinct
// levels.
func categoryCodes(y []float64) ([]int, []float64) {
	seen := make(map[float64]bool)
	for _, v := range y {
		seen[v] = true
	}
	levels := make([]float64, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Float64s(levels)

	index := make(map[float64]int, len(levels))
	for i, v := range levels {
		index[v] = i
	}
	codes := make([]int, len(y))
	for i, v := range y {
		codes[i] = index[v]
	}
	return codes, levels
}

// empiricalCumLogits returns logit of the empirical P(Y <= k) for each of
// the K-1 boundaries, clamped away from the extremes.
func empiricalCumLogits(codes []int, K int) []float64 {
	n := float64(len(codes))
	counts := make([]float64, K)
	for _, c := range codes {
		counts[c]++
	}
	out := make([]float64, K-1)
	cum := 0.0
	for k := 0; k < K-1; k++ {
		cum += counts[k]
		p := cum / n
		if p < 0.01 {
			p = 0.01
		}
		if p > 0.99 {
			p = 0.99
		}
		out[k] = logit(p)
	}
	return out
}

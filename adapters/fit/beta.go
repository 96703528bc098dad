package fit

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/model"
)

// fitBetaML fits a beta regression by maximum likelihood: logit link on the
// mean, log link on the precision. The response must already be rescaled
// strictly inside (0,1); spec validation guarantees that before we get
// here. The optimizer is gonum's Nelder-Mead, treated as a black box.
func fitBetaML(spec model.Spec, d *Design, y []float64) (*mlFit, error) {
	n := len(y)
	p := d.NumPar()

	negLL := func(theta []float64) float64 {
		return -betaLogLik(theta, d, y)
	}

	// Start at the intercept-only solution: logit of the sample mean,
	// moderate precision, remaining slopes at zero.
	x0 := make([]float64, p+1)
	x0[0] = logit(mean(y))
	x0[p] = math.Log(5)

	result, err := optimize.Minimize(optimize.Problem{Func: negLL}, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return nil, core.NewConvergenceError(spec.Name, "beta regression optimizer: "+err.Error())
	}
	if math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, core.NewConvergenceError(spec.Name, "beta regression likelihood diverged")
	}

	theta := result.X
	logLik := -result.F
	k := p + 1 // mean coefficients plus precision
	aic := -2*logLik + 2*float64(k)

	// Wald intervals from the numerical Hessian of the negative
	// log-likelihood at the optimum.
	ses := waldSE(negLL, theta)
	zCrit := distuv.UnitNormal.Quantile(0.975)

	coefs := make([]model.Coefficient, 0, k)
	for j := 0; j < p; j++ {
		coefs = append(coefs, coefFromWald(d.Names[j], theta[j], ses[j], zCrit))
	}
	coefs = append(coefs, coefFromWald("log_precision", theta[p], ses[p], zCrit))

	fitted := make([]float64, n)
	for i := 0; i < n; i++ {
		fitted[i] = logistic(rowDot(d, i, theta))
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

// betaLogLik is the beta regression log-likelihood with theta laid out as
// [beta_0..beta_{p-1}, log phi].
func betaLogLik(theta []float64, d *Design, y []float64) float64 {
	p := d.NumPar()
	phi := math.Exp(theta[p])
	if math.IsInf(phi, 0) || phi <= 0 {
		return math.Inf(-1)
	}

	ll := 0.0
	for i, yi := range y {
		mu := logistic(rowDot(d, i, theta))
		a := mu * phi
		b := (1 - mu) * phi
		if a <= 0 || b <= 0 {
			return math.Inf(-1)
		}
		lgPhi, _ := math.Lgamma(phi)
		lgA, _ := math.Lgamma(a)
		lgB, _ := math.Lgamma(b)
		ll += lgPhi - lgA - lgB + (a-1)*math.Log(yi) + (b-1)*math.Log(1-yi)
	}
	return ll
}

// rowDot is the linear predictor for row i under the leading NumPar entries
// of theta.
func rowDot(d *Design, i int, theta []float64) float64 {
	p := d.NumPar()
	eta := 0.0
	for j := 0; j < p; j++ {
		eta += d.X.At(i, j) * theta[j]
	}
	return eta
}

// waldSE estimates standard errors from the inverse of a central-difference
// Hessian of the negative log-likelihood. Parameters whose curvature is not
// positive get NaN standard errors rather than failing the fit.
func waldSE(negLL func([]float64) float64, theta []float64) []float64 {
	k := len(theta)
	h := 1e-4

	hess := make([][]float64, k)
	for a := range hess {
		hess[a] = make([]float64, k)
	}
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			pp := perturb(theta, a, h, b, h)
			pm := perturb(theta, a, h, b, -h)
			mp := perturb(theta, a, -h, b, h)
			mm := perturb(theta, a, -h, b, -h)
			v := (negLL(pp) - negLL(pm) - negLL(mp) + negLL(mm)) / (4 * h * h)
			hess[a][b] = v
			hess[b][a] = v
		}
	}

	ses := make([]float64, k)
	inv, ok := invertSymmetric(hess)
	if !ok {
		for a := range ses {
			ses[a] = math.NaN()
		}
		return ses
	}
	for a := 0; a < k; a++ {
		if inv[a][a] > 0 {
			ses[a] = math.Sqrt(inv[a][a])
		} else {
			ses[a] = math.NaN()
		}
	}
	return ses
}

func perturb(theta []float64, a int, da float64, b int, db float64) []float64 {
	out := make([]float64, len(theta))
	copy(out, theta)
	out[a] += da
	out[b] += db
	return out
}

// invertSymmetric inverts a small symmetric matrix by Gauss-Jordan with
// partial pivoting. Returns ok=false on singularity.
func invertSymmetric(m [][]float64) ([][]float64, bool) {
	k := len(m)
	aug := make([][]float64, k)
	for i := range aug {
		aug[i] = make([]float64, 2*k)
		copy(aug[i], m[i])
		aug[i][k+i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-14 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for c := 0; c < 2*k; c++ {
			aug[col][c] /= pv
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			for c := 0; c < 2*k; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	inv := make([][]float64, k)
	for i := range inv {
		inv[i] = make([]float64, k)
		copy(inv[i], aug[i][k:])
	}
	return inv, true
}

func coefFromWald(name string, est, se, zCrit float64) model.Coefficient {
	return model.Coefficient{
		Name:     name,
		Estimate: est,
		SE:       se,
		Lower:    est - zCrit*se,
		Upper:    est + zCrit*se,
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

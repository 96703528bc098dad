package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/model"
)

// fitGaussianML fits an ordinary least squares model. Coefficients come
// from the normal equations, with an SVD least-squares fallback when X'X is
// singular or badly conditioned. The log-likelihood uses the ML variance
// estimate RSS/n so the AIC counts sigma as a parameter.
func fitGaussianML(spec model.Spec, d *Design, y []float64) (*mlFit, error) {
	n := len(y)
	p := d.NumPar()
	if n < p {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", core.ErrIllPosedModel, n, p)
	}

	yVec := mat.NewVecDense(n, y)
	beta, err := solveLeastSquares(d.X, yVec)
	if err != nil {
		return nil, core.NewConvergenceError(spec.Name, err.Error())
	}

	// Fitted values and residual sum of squares.
	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(d.X, beta)

	rss := 0.0
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		rss += r * r
	}

	nf := float64(n)
	sigma2ML := rss / nf
	logLik := -0.5 * nf * (math.Log(2*math.Pi) + math.Log(sigma2ML) + 1)
	k := p + 1 // coefficients plus sigma
	aic := -2*logLik + 2*float64(k)

	// Standard errors from (X'X)^{-1} with the unbiased variance estimate,
	// intervals from the t distribution on n-p degrees of freedom.
	coefs, seErr := gaussianCoefficients(d, beta, rss, n, p)
	if seErr != nil {
		return nil, core.NewConvergenceError(spec.Name, seErr.Error())
	}

	return &mlFit{
		coefficients: coefs,
		fittedValues: vecSlice(fitted),
		logLik:       logLik,
		aic:          aic,
		numPar:       k,
		diagnostics: model.Convergence{
			Converged:       true,
			OptimizerStatus: "closed_form",
		},
	}, nil
}

// solveLeastSquares solves X b = y. Normal equations first; if X'X fails to
// invert, fall back to SVD-based minimum-norm least squares.
func solveLeastSquares(X *mat.Dense, y *mat.VecDense) (*mat.VecDense, error) {
	n, p := X.Dims()

	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err == nil {
		var xty mat.VecDense
		xty.MulVec(X.T(), y)
		beta := mat.NewVecDense(p, nil)
		beta.MulVec(&xtxInv, &xty)
		return beta, nil
	}

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, fmt.Errorf("least squares failed: X'X singular and SVD factorization failed")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		// Numerically all-zero design; minimum-norm solution is zero.
		return mat.NewVecDense(p, nil), nil
	}

	yMat := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		yMat.Set(i, 0, y.AtVec(i))
	}
	var b mat.Dense
	svd.SolveTo(&b, yMat, rank)

	beta := mat.NewVecDense(p, nil)
	for j := 0; j < p; j++ {
		beta.SetVec(j, b.At(j, 0))
	}
	return beta, nil
}

// gaussianCoefficients assembles the coefficient table with SEs and 95%
// t-based intervals.
func gaussianCoefficients(d *Design, beta *mat.VecDense, rss float64, n, p int) ([]model.Coefficient, error) {
	df := float64(n - p)
	if df <= 0 {
		// Saturated design: point estimates exist but there are no
		// residual degrees of freedom to estimate SEs from.
		return estimatesOnly(d, beta, p), nil
	}
	s2 := rss / df

	var xtx mat.Dense
	xtx.Mul(d.X.T(), d.X)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		// Singular design survived via the SVD path; report estimates
		// without standard errors rather than failing the fit.
		return estimatesOnly(d, beta, p), nil
	}

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	tCrit := tDist.Quantile(0.975)

	coefs := make([]model.Coefficient, p)
	for j := 0; j < p; j++ {
		se := math.Sqrt(s2 * xtxInv.At(j, j))
		est := beta.AtVec(j)
		coefs[j] = model.Coefficient{
			Name:     d.Names[j],
			Estimate: est,
			SE:       se,
			Lower:    est - tCrit*se,
			Upper:    est + tCrit*se,
		}
	}
	return coefs, nil
}

// estimatesOnly builds the coefficient table with NaN intervals for fits
// where standard errors are unavailable.
func estimatesOnly(d *Design, beta *mat.VecDense, p int) []model.Coefficient {
	coefs := make([]model.Coefficient, p)
	for j := 0; j < p; j++ {
		coefs[j] = model.Coefficient{
			Name:     d.Names[j],
			Estimate: beta.AtVec(j),
			Lower:    math.NaN(),
			Upper:    math.NaN(),
		}
	}
	return coefs
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

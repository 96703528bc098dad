package model

import (
	"fmt"

	"github.com/derekpowell/cava-rep/domain/core"
)

// Coefficient is one row of a coefficient table: a point estimate with an
// uncertainty interval. For Bayesian fits the estimate is the posterior
// mean and the interval is a central credible interval; Draws then carries
// the full posterior sequence for that coefficient.
type Coefficient struct {
	Name     string    `json:"name"`
	Estimate float64   `json:"estimate"`
	SE       float64   `json:"se,omitempty"`
	Lower    float64   `json:"lower"` // 95% interval
	Upper    float64   `json:"upper"`
	Draws    []float64 `json:"-"` // posterior draws, pooled across chains; nil for ML fits
}

// Convergence carries the diagnostics used to judge a fit, whichever
// estimation mode produced it.
type Convergence struct {
	Converged bool `json:"converged"`

	// ML diagnostics
	OptimizerStatus string `json:"optimizer_status,omitempty"`
	Evaluations     int    `json:"evaluations,omitempty"`

	// Sampler diagnostics, worst-case across parameters
	MaxRhat    float64 `json:"max_rhat,omitempty"`
	MinESS     float64 `json:"min_ess,omitempty"`
	AcceptRate float64 `json:"accept_rate,omitempty"`
}

// FitStats holds the model-comparison statistics appropriate to the
// estimation mode: log-likelihood and AIC for ML fits, pointwise
// log-likelihoods (for LOO) for Bayesian fits.
type FitStats struct {
	LogLik float64 `json:"log_lik,omitempty"`
	AIC    float64 `json:"aic,omitempty"`
	NumPar int     `json:"num_par"`

	// PointwiseLogLik[s][i] is the log density of observation i under
	// posterior draw s. Nil for ML fits.
	PointwiseLogLik [][]float64 `json:"-"`
}

// Fitted is an immutable fitted model: once produced, comparison only
// reads it. Posterior draw sequences are finite and materialized when
// sampling completes; they are not restartable or streaming.
type Fitted struct {
	ID           core.FitID              `json:"id"`
	Spec         Spec                    `json:"spec"`
	Coefficients []Coefficient           `json:"coefficients"`
	FittedValues []float64               `json:"fitted_values"` // aligned to input rows
	Stats        FitStats                `json:"stats"`
	Diagnostics  Convergence             `json:"diagnostics"`
	Outcome      core.OutcomeFingerprint `json:"outcome"`

	// Replicates[s] is one dataset drawn from the posterior predictive
	// distribution; nil for ML fits.
	Replicates [][]float64 `json:"-"`

	FittedAt core.Timestamp `json:"fitted_at"`
}

// Coefficient looks a coefficient up by name.
func (f *Fitted) Coefficient(name string) (Coefficient, bool) {
	for _, c := range f.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// IsBayesian reports whether the fit carries posterior draws.
func (f *Fitted) IsBayesian() bool {
	return f.Spec.Estimation == EstimationBayes
}

// HasDraws reports whether posterior machinery (pointwise log-lik,
// replicates) is available for LOO and predictive checks.
func (f *Fitted) HasDraws() bool {
	return len(f.Stats.PointwiseLogLik) > 0
}

// Validate checks structural invariants after fitting.
func (f *Fitted) Validate() error {
	if len(f.Coefficients) == 0 {
		return fmt.Errorf("%w: fitted model has no coefficients", core.ErrInvalidSpec)
	}
	if f.Outcome.IsEmpty() {
		return fmt.Errorf("%w: fitted model missing outcome fingerprint", core.ErrInvalidSpec)
	}
	return nil
}

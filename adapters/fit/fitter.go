// Package fit estimates the declared models. The numerical heavy lifting is
// delegated to gonum: closed-form least squares on the mat package, and a
// derivative-free optimizer (optimize.NelderMead) as the black-box
// maximum-likelihood engine for the beta and ordinal families. Bayesian
// estimation runs an adaptive random-walk Metropolis sampler over
// independent chains.
package fit

import (
	"context"
	"fmt"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
)

// Engine implements ports.Fitter with tagged dispatch over the family and
// estimation mode. Model fits share no mutable state and may run
// concurrently.
type Engine struct{}

// NewEngine creates a fitting engine.
func NewEngine() *Engine {
	return &Engine{}
}

// mlFit is the internal result of a maximum-likelihood fit before assembly
// into a model.Fitted.
type mlFit struct {
	coefficients []model.Coefficient
	fittedValues []float64
	logLik       float64
	aic          float64
	numPar       int
	diagnostics  model.Convergence
}

// Fit validates the spec, builds the design, and dispatches on
// (family, estimation). Validation failures surface before any fitting
// computation; optimizer and sampler failures surface as convergence
// errors that still carry the partial result's diagnostics in their text.
func (e *Engine) Fit(ctx context.Context, spec model.Spec, data *dataset.Frame) (*model.Fitted, error) {
	if err := spec.Validate(data); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	design, err := BuildDesign(spec, data)
	if err != nil {
		return nil, err
	}
	y := data.Numeric[spec.Response]
	outcome := core.ComputeOutcomeFingerprint(data.Transform+"|"+spec.Response, y)

	switch spec.Estimation {
	case model.EstimationML:
		return e.fitML(spec, design, y, outcome)
	case model.EstimationBayes:
		return e.fitBayes(ctx, spec, design, data, y, outcome)
	default:
		return nil, fmt.Errorf("%w: estimation %q", core.ErrInvalidSpec, spec.Estimation)
	}
}

func (e *Engine) fitML(spec model.Spec, design *Design, y []float64, outcome core.OutcomeFingerprint) (*model.Fitted, error) {
	var (
		res *mlFit
		err error
	)
	switch spec.Family {
	case model.FamilyGaussian:
		res, err = fitGaussianML(spec, design, y)
	case model.FamilyBeta:
		res, err = fitBetaML(spec, design, y)
	case model.FamilyOrdinal:
		res, err = fitOrdinalML(spec, design, y)
	default:
		return nil, fmt.Errorf("%w: family %q", core.ErrInvalidSpec, spec.Family)
	}
	if err != nil {
		return nil, err
	}

	fitted := &model.Fitted{
		ID:           core.FitID(core.NewID()),
		Spec:         spec,
		Coefficients: res.coefficients,
		FittedValues: res.fittedValues,
		Stats: model.FitStats{
			LogLik: res.logLik,
			AIC:    res.aic,
			NumPar: res.numPar,
		},
		Diagnostics: res.diagnostics,
		Outcome:     outcome,
		FittedAt:    core.Now(),
	}
	if err := fitted.Validate(); err != nil {
		return nil, err
	}
	return fitted, nil
}

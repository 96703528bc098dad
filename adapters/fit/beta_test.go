package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
)

func betaFrame() *dataset.Frame {
	// Treatment responses sit clearly above Control on the (0,1) scale.
	return &dataset.Frame{
		N: 10,
		Numeric: map[string][]float64{
			dataset.ColPosttest: {0.25, 0.3, 0.35, 0.28, 0.32, 0.7, 0.75, 0.68, 0.72, 0.74},
		},
		Categorical: map[string][]string{
			dataset.ColCondition: {
				"Control", "Control", "Control", "Control", "Control",
				"Treatment", "Treatment", "Treatment", "Treatment", "Treatment",
			},
		},
		Transform: "rescaled(n=10)",
	}
}

func TestBetaMLInterceptOnly(t *testing.T) {
	f := betaFrame()
	spec := model.Spec{
		Name:       "beta_ml",
		Response:   dataset.ColPosttest,
		Family:     model.FamilyBeta,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, f)
	require.NoError(t, err)

	// logistic(intercept) should land near the sample mean.
	intercept, ok := fitted.Coefficient("intercept")
	require.True(t, ok)
	sampleMean := mean(f.Numeric[dataset.ColPosttest])
	assert.InDelta(t, sampleMean, logistic(intercept.Estimate), 0.05)

	// intercept plus log_precision
	assert.Equal(t, 2, fitted.Stats.NumPar)
	_, ok = fitted.Coefficient("log_precision")
	assert.True(t, ok)
}

func TestBetaMLConditionEffect(t *testing.T) {
	spec := model.Spec{
		Name:       "beta_ml",
		Response:   dataset.ColPosttest,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColCondition)},
		Family:     model.FamilyBeta,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, betaFrame())
	require.NoError(t, err)

	// The treatment group sits higher, so its logit-scale coefficient
	// must be positive.
	effect, ok := fitted.Coefficient("condition=Treatment")
	require.True(t, ok)
	assert.Greater(t, effect.Estimate, 0.0)

	assert.False(t, math.IsNaN(fitted.Stats.LogLik))
	assert.False(t, math.IsInf(fitted.Stats.AIC, 0))
	assert.Equal(t, 3, fitted.Stats.NumPar)
}

func TestBetaMLFittedValuesInUnitInterval(t *testing.T) {
	spec := model.Spec{
		Name:       "beta_ml",
		Response:   dataset.ColPosttest,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColCondition)},
		Family:     model.FamilyBeta,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, betaFrame())
	require.NoError(t, err)

	require.Len(t, fitted.FittedValues, 10)
	for i, v := range fitted.FittedValues {
		assert.Greater(t, v, 0.0, "index %d", i)
		assert.Less(t, v, 1.0, "index %d", i)
	}
}

func TestBetaMLRejectsBoundaryResponse(t *testing.T) {
	f := betaFrame()
	f.Numeric[dataset.ColPosttest][0] = 1.0

	spec := model.Spec{
		Name:       "beta_ml",
		Response:   dataset.ColPosttest,
		Family:     model.FamilyBeta,
		Estimation: model.EstimationML,
	}

	_, err := NewEngine().Fit(context.Background(), spec, f)
	assert.Error(t, err)
}

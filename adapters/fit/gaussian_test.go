package fit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
)

// changeFrame builds a two-condition change-score frame with known group
// means: Control averages 2, Treatment averages 4.
func changeFrame() *dataset.Frame {
	return &dataset.Frame{
		N: 4,
		Numeric: map[string][]float64{
			dataset.ColChange: {1, 3, 2, 6},
		},
		Categorical: map[string][]string{
			dataset.ColCondition: {"Control", "Control", "Treatment", "Treatment"},
		},
		Transform: "raw",
	}
}

func TestGaussianMLGroupMeans(t *testing.T) {
	spec := model.Spec{
		Name:       "ols_change",
		Response:   dataset.ColChange,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColCondition)},
		Family:     model.FamilyGaussian,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, changeFrame())
	require.NoError(t, err)

	// OLS with a treatment contrast recovers the group means exactly:
	// intercept = Control mean, coefficient = Treatment - Control.
	intercept, ok := fitted.Coefficient("intercept")
	require.True(t, ok)
	assert.InDelta(t, 2.0, intercept.Estimate, 1e-9)

	effect, ok := fitted.Coefficient("condition=Treatment")
	require.True(t, ok)
	assert.InDelta(t, 2.0, effect.Estimate, 1e-9)

	assert.True(t, fitted.Diagnostics.Converged)
	assert.False(t, fitted.IsBayesian())
}

func TestGaussianMLLogLikAndAIC(t *testing.T) {
	spec := model.Spec{
		Name:       "ols_change",
		Response:   dataset.ColChange,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColCondition)},
		Family:     model.FamilyGaussian,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, changeFrame())
	require.NoError(t, err)

	// RSS = 10 with n=4, so sigma2_ML = 2.5.
	n, rss := 4.0, 10.0
	wantLL := -0.5 * n * (math.Log(2*math.Pi) + math.Log(rss/n) + 1)
	assert.InDelta(t, wantLL, fitted.Stats.LogLik, 1e-9)

	// k = 2 coefficients + sigma.
	assert.Equal(t, 3, fitted.Stats.NumPar)
	assert.InDelta(t, -2*wantLL+6, fitted.Stats.AIC, 1e-9)
}

func TestGaussianMLFittedValues(t *testing.T) {
	spec := model.Spec{
		Name:       "ols_change",
		Response:   dataset.ColChange,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColCondition)},
		Family:     model.FamilyGaussian,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, changeFrame())
	require.NoError(t, err)

	require.Len(t, fitted.FittedValues, 4)
	assert.InDelta(t, 2.0, fitted.FittedValues[0], 1e-9)
	assert.InDelta(t, 4.0, fitted.FittedValues[2], 1e-9)
}

func TestGaussianMLRecoversSlope(t *testing.T) {
	// posttest = 1 + 0.5*pretest plus small perturbations
	f := &dataset.Frame{
		N: 5,
		Numeric: map[string][]float64{
			dataset.ColPretest:  {1, 2, 3, 4, 5},
			dataset.ColPosttest: {1.6, 2.0, 2.4, 3.1, 3.4},
		},
		Categorical: map[string][]string{},
		Transform:   "raw",
	}
	spec := model.Spec{
		Name:       "ols_ancova",
		Response:   dataset.ColPosttest,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColPretest)},
		Family:     model.FamilyGaussian,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, f)
	require.NoError(t, err)

	slope, ok := fitted.Coefficient(dataset.ColPretest)
	require.True(t, ok)
	assert.InDelta(t, 0.47, slope.Estimate, 0.05)
	assert.Greater(t, slope.Estimate, slope.Lower)
	assert.Less(t, slope.Estimate, slope.Upper)
}

func TestGaussianMLIllPosed(t *testing.T) {
	// One observation cannot identify an intercept and a slope.
	f := &dataset.Frame{
		N: 1,
		Numeric: map[string][]float64{
			dataset.ColChange:  {1},
			dataset.ColPretest: {3},
		},
		Categorical: map[string][]string{},
		Transform:   "raw",
	}
	spec := model.Spec{
		Name:       "ols_change",
		Response:   dataset.ColChange,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColPretest)},
		Family:     model.FamilyGaussian,
		Estimation: model.EstimationML,
	}

	_, err := NewEngine().Fit(context.Background(), spec, f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIllPosedModel))
}

func TestGaussianMLSaturatedDesign(t *testing.T) {
	// Three participants, posttest ~ pretest + condition: an
	// exactly-determined system still converges, with one coefficient per
	// predictor plus intercept and no residual df for standard errors.
	f := &dataset.Frame{
		N: 3,
		Numeric: map[string][]float64{
			dataset.ColPretest:  {3, 4, 2},
			dataset.ColPosttest: {4, 5, 2},
		},
		Categorical: map[string][]string{
			dataset.ColCondition: {"Control", "Treatment", "Control"},
		},
		Transform: "raw",
	}
	spec := model.Spec{
		Name:       "ols_ancova",
		Response:   dataset.ColPosttest,
		FixedTerms: []model.Term{model.FixedTerm(dataset.ColCondition), model.FixedTerm(dataset.ColPretest)},
		Family:     model.FamilyGaussian,
		Estimation: model.EstimationML,
	}

	fitted, err := NewEngine().Fit(context.Background(), spec, f)
	require.NoError(t, err)

	require.Len(t, fitted.Coefficients, 3)
	assert.True(t, fitted.Diagnostics.Converged)

	// Saturated fit reproduces the data: pretest [3,4,2] -> posttest
	// [4,5,2] with the Control pair giving slope 2 and intercept -2.
	intercept, ok := fitted.Coefficient("intercept")
	require.True(t, ok)
	assert.InDelta(t, -2.0, intercept.Estimate, 1e-9)

	slope, ok := fitted.Coefficient(dataset.ColPretest)
	require.True(t, ok)
	assert.InDelta(t, 2.0, slope.Estimate, 1e-9)

	for _, c := range fitted.Coefficients {
		assert.True(t, math.IsNaN(c.Lower))
		assert.True(t, math.IsNaN(c.Upper))
	}
}

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
)

func wideTestFrame() *dataset.Frame {
	return &dataset.Frame{
		N: 4,
		Numeric: map[string][]float64{
			dataset.ColPosttest: {2, 3, 4, 5},
			dataset.ColPretest:  {1, 2, 3, 4},
		},
		Categorical: map[string][]string{
			dataset.ColCondition:   {"Control", "Control", "Treatment", "Treatment"},
			dataset.ColParticipant: {"p1", "p2", "p3", "p4"},
		},
		Transform: "raw",
	}
}

func baseSpec() Spec {
	return Spec{
		Name:       "test_model",
		Response:   dataset.ColPosttest,
		FixedTerms: []Term{FixedTerm(dataset.ColCondition)},
		Family:     FamilyGaussian,
		Estimation: EstimationML,
	}
}

func TestSpecValidateAccepts(t *testing.T) {
	spec := baseSpec()
	require.NoError(t, spec.Validate(wideTestFrame()))
}

func TestSpecValidateUnknownResponse(t *testing.T) {
	spec := baseSpec()
	spec.Response = "nonexistent"

	err := spec.Validate(wideTestFrame())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownVariable))
	assert.True(t, core.IsSpecificationError(err))
}

func TestSpecValidateUnknownPredictor(t *testing.T) {
	spec := baseSpec()
	spec.FixedTerms = []Term{FixedTerm("dose")}

	err := spec.Validate(wideTestFrame())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownVariable))
}

func TestSpecValidateBetaRequiresOpenUnitInterval(t *testing.T) {
	f := wideTestFrame()
	f.Numeric[dataset.ColPosttest] = []float64{0.2, 0.5, 1.0, 0.8} // 1.0 is on the boundary

	spec := baseSpec()
	spec.Family = FamilyBeta

	err := spec.Validate(f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIllPosedModel))
}

func TestSpecValidateBetaAcceptsRescaled(t *testing.T) {
	f := wideTestFrame()
	f.Numeric[dataset.ColPosttest] = []float64{0.2, 0.5, 0.7, 0.8}

	spec := baseSpec()
	spec.Family = FamilyBeta
	assert.NoError(t, spec.Validate(f))
}

func TestSpecValidateOrdinalRequiresIntegerCodes(t *testing.T) {
	f := wideTestFrame()
	f.Numeric[dataset.ColPosttest] = []float64{1, 2, 2.5, 3}

	spec := baseSpec()
	spec.Family = FamilyOrdinal

	err := spec.Validate(f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFamilyMismatch))
}

func TestSpecValidateOrdinalRequiresTwoLevels(t *testing.T) {
	f := wideTestFrame()
	f.Numeric[dataset.ColPosttest] = []float64{3, 3, 3, 3}

	spec := baseSpec()
	spec.Family = FamilyOrdinal

	err := spec.Validate(f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFamilyMismatch))
}

func TestSpecValidateUnidentifiableGrouping(t *testing.T) {
	// One observation per participant: no within-group replication, so a
	// participant intercept cannot be estimated.
	spec := baseSpec()
	spec.Estimation = EstimationBayes
	spec.Sampler = DefaultSamplerControls(1)
	spec.RandomGroupings = []Grouping{GroupByParticipant}

	err := spec.Validate(wideTestFrame())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnidentifiableRE))
	assert.True(t, core.IsSpecificationError(err))
}

func TestSpecValidateGroupingWithRepeats(t *testing.T) {
	f := wideTestFrame()
	f.Categorical[dataset.ColParticipant] = []string{"p1", "p1", "p2", "p2"}

	spec := baseSpec()
	spec.Estimation = EstimationBayes
	spec.Sampler = DefaultSamplerControls(1)
	spec.RandomGroupings = []Grouping{GroupByParticipant}

	assert.NoError(t, spec.Validate(f))
}

func TestSpecValidateMLRejectsGroupings(t *testing.T) {
	f := wideTestFrame()
	f.Categorical[dataset.ColParticipant] = []string{"p1", "p1", "p2", "p2"}

	spec := baseSpec()
	spec.RandomGroupings = []Grouping{GroupByParticipant}

	err := spec.Validate(f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidSpec))
}

func TestSpecValidateSamplerControls(t *testing.T) {
	spec := baseSpec()
	spec.Estimation = EstimationBayes
	spec.Sampler = SamplerControls{Chains: 0, Iterations: 100, Warmup: 100, TargetAccept: 0.9}

	err := spec.Validate(wideTestFrame())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidSpec))
}

func TestTermLabels(t *testing.T) {
	assert.Equal(t, "condition", FixedTerm("condition").Label())
	assert.Equal(t, "phase:condition", Interaction("phase", "condition").Label())
}

func TestDefaultSamplerControls(t *testing.T) {
	c := DefaultSamplerControls(99)
	assert.Equal(t, 4, c.Chains)
	assert.Equal(t, int64(99), c.Seed)
	assert.NoError(t, Spec{
		Name:       "m",
		Response:   dataset.ColPosttest,
		Family:     FamilyGaussian,
		Estimation: EstimationBayes,
		Sampler:    c,
	}.Validate(wideTestFrame()))
}

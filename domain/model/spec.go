package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
)

// Family is the error-distribution family of a model.
type Family string

const (
	FamilyGaussian Family = "gaussian"
	FamilyBeta     Family = "beta"
	FamilyOrdinal  Family = "ordinal" // cumulative-link, proportional odds
)

// Estimation selects how a model's parameters are estimated.
type Estimation string

const (
	EstimationML    Estimation = "maximum_likelihood"
	EstimationBayes Estimation = "bayesian_sampling"
)

// Term is one fixed-effect term: a single variable, or an interaction when
// more than one variable is listed.
type Term struct {
	Variables []string `json:"variables"`
}

// FixedTerm builds a main-effect term.
func FixedTerm(variable string) Term {
	return Term{Variables: []string{variable}}
}

// Interaction builds an interaction term.
func Interaction(variables ...string) Term {
	return Term{Variables: variables}
}

// Label renders the term the way a coefficient table names it.
func (t Term) Label() string {
	return strings.Join(t.Variables, ":")
}

// Grouping names a categorical column that receives random intercepts.
type Grouping string

const (
	GroupByParticipant Grouping = dataset.ColParticipant
	GroupByItem        Grouping = dataset.ColItem
)

// SamplerControls configures Bayesian estimation. Chains are independent
// and pooled after all complete; correctness does not depend on them
// running in parallel.
type SamplerControls struct {
	Chains       int     `json:"chains"`
	Iterations   int     `json:"iterations"` // post-warmup draws per chain
	Warmup       int     `json:"warmup"`
	TargetAccept float64 `json:"target_accept"`
	Seed         int64   `json:"seed"`
}

// DefaultSamplerControls mirrors the original analysis' sampler settings.
func DefaultSamplerControls(seed int64) SamplerControls {
	return SamplerControls{
		Chains:       4,
		Iterations:   1000,
		Warmup:       1000,
		TargetAccept: 0.9,
		Seed:         seed,
	}
}

// Spec declares a statistical model as a structured value rather than a
// formula string: response column, fixed-effect terms, random-intercept
// groupings, family and estimation mode.
type Spec struct {
	Name            core.ModelName  `json:"name"`
	Response        string          `json:"response"`
	FixedTerms      []Term          `json:"fixed_terms"`
	RandomGroupings []Grouping      `json:"random_groupings,omitempty"`
	Family          Family          `json:"family"`
	Estimation      Estimation      `json:"estimation"`
	Sampler         SamplerControls `json:"sampler,omitempty"`
}

// Validate fails fast, before any fitting computation, when the spec cannot
// be estimated against the given frame: unknown columns, family/response
// support violations, unidentifiable random effects, bad sampler controls.
func (s Spec) Validate(f *dataset.Frame) error {
	if s.Name == "" {
		return fmt.Errorf("%w: model name required", core.ErrInvalidSpec)
	}
	if !f.HasNumeric(s.Response) {
		return fmt.Errorf("%w: response column %q", core.ErrUnknownVariable, s.Response)
	}
	for _, t := range s.FixedTerms {
		for _, v := range t.Variables {
			if !f.Has(v) {
				return fmt.Errorf("%w: predictor %q in term %q", core.ErrUnknownVariable, v, t.Label())
			}
		}
	}

	if err := s.validateFamily(f.Numeric[s.Response]); err != nil {
		return err
	}
	if err := s.validateGroupings(f); err != nil {
		return err
	}

	switch s.Estimation {
	case EstimationML:
		if len(s.RandomGroupings) > 0 {
			return fmt.Errorf("%w: random groupings require %s", core.ErrInvalidSpec, EstimationBayes)
		}
	case EstimationBayes:
		if err := s.Sampler.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown estimation mode %q", core.ErrInvalidSpec, s.Estimation)
	}
	return nil
}

// validateFamily checks the response against the family's support.
func (s Spec) validateFamily(response []float64) error {
	switch s.Family {
	case FamilyGaussian:
		for _, y := range response {
			if math.IsNaN(y) || math.IsInf(y, 0) {
				return core.NewFamilyMismatchError(string(s.Family), "response contains non-finite values")
			}
		}
	case FamilyBeta:
		for _, y := range response {
			if !(y > 0 && y < 1) {
				return fmt.Errorf("%w: %s", core.ErrIllPosedModel,
					fmt.Sprintf("beta family requires response strictly inside (0,1), got %g", y))
			}
		}
	case FamilyOrdinal:
		levels := make(map[float64]bool)
		for _, y := range response {
			if y != math.Trunc(y) {
				return core.NewFamilyMismatchError(string(s.Family),
					fmt.Sprintf("ordinal response must be integer category codes, got %g", y))
			}
			levels[y] = true
		}
		if len(levels) < 2 {
			return core.NewFamilyMismatchError(string(s.Family), "ordinal response needs at least 2 observed levels")
		}
	default:
		return fmt.Errorf("%w: unknown family %q", core.ErrInvalidSpec, s.Family)
	}
	return nil
}

// validateGroupings rejects groupings with no repeated observations: with
// one observation per group there is no hierarchical variance to estimate.
func (s Spec) validateGroupings(f *dataset.Frame) error {
	for _, g := range s.RandomGroupings {
		sizes, err := f.GroupSizes(string(g))
		if err != nil {
			return err
		}
		repeated := false
		for _, n := range sizes {
			if n > 1 {
				repeated = true
				break
			}
		}
		if !repeated {
			return fmt.Errorf("%w: grouping %q has one observation per group", core.ErrUnidentifiableRE, g)
		}
	}
	return nil
}

func (c SamplerControls) validate() error {
	if c.Chains < 1 {
		return fmt.Errorf("%w: sampler needs at least 1 chain", core.ErrInvalidSpec)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("%w: sampler needs at least 1 post-warmup iteration", core.ErrInvalidSpec)
	}
	if c.Warmup < 0 {
		return fmt.Errorf("%w: negative warmup", core.ErrInvalidSpec)
	}
	if !(c.TargetAccept > 0 && c.TargetAccept < 1) {
		return fmt.Errorf("%w: target accept rate must be in (0,1), got %g", core.ErrInvalidSpec, c.TargetAccept)
	}
	return nil
}

// Package compare ranks fitted models against each other: AIC for
// maximum-likelihood fits, importance-sampling LOO for Bayesian fits, and
// posterior predictive summaries. Comparisons refuse to mix models fit to
// different outcome variables.
package compare

import (
	"fmt"
	"math"
	"sort"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/model"
)

// RankedModel is one row of an AIC ranking.
type RankedModel struct {
	Name   core.ModelName `json:"name"`
	AIC    float64        `json:"aic"`
	Delta  float64        `json:"delta"`
	Weight float64        `json:"weight"`
	NumPar int            `json:"num_par"`
}

// Ranking orders maximum-likelihood fits from best (lowest AIC) to worst,
// with deltas relative to the best model and Akaike weights.
type Ranking struct {
	Outcome core.OutcomeFingerprint `json:"outcome"`
	Models  []RankedModel           `json:"models"`
}

// Best returns the top-ranked model name, or "" for an empty ranking.
func (r Ranking) Best() core.ModelName {
	if len(r.Models) == 0 {
		return ""
	}
	return r.Models[0].Name
}

// CompareAIC ranks maximum-likelihood fits by AIC. Every fit must share the
// same outcome fingerprint: an AIC computed against a transformed response
// is not comparable to one computed against the raw response, so mixing
// them is rejected rather than silently ranked.
func CompareAIC(fits []*model.Fitted) (Ranking, error) {
	if len(fits) < 2 {
		return Ranking{}, fmt.Errorf("ranking needs at least two models, got %d", len(fits))
	}

	outcome := fits[0].Outcome
	for _, f := range fits {
		if f.IsBayesian() {
			return Ranking{}, fmt.Errorf("%w: %s is a Bayesian fit, AIC ranking covers maximum-likelihood fits only",
				core.ErrInvalidSpec, f.Spec.Name)
		}
		if f.Outcome != outcome {
			return Ranking{}, fmt.Errorf("%w: %s was fit to a different outcome than %s",
				core.ErrIncommensurable, f.Spec.Name, fits[0].Spec.Name)
		}
	}

	ranked := make([]RankedModel, len(fits))
	for i, f := range fits {
		ranked[i] = RankedModel{
			Name:   f.Spec.Name,
			AIC:    f.Stats.AIC,
			NumPar: f.Stats.NumPar,
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].AIC < ranked[j].AIC })

	best := ranked[0].AIC
	sumW := 0.0
	for i := range ranked {
		ranked[i].Delta = ranked[i].AIC - best
		ranked[i].Weight = math.Exp(-0.5 * ranked[i].Delta)
		sumW += ranked[i].Weight
	}
	for i := range ranked {
		ranked[i].Weight /= sumW
	}

	return Ranking{Outcome: outcome, Models: ranked}, nil
}

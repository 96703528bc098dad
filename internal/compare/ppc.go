package compare

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/model"
)

// MarginalSummary is one statistic compared between the observed response
// and the replicate distribution: the observed value, the replicate mean,
// and the fraction of replicates at or above the observed value.
type MarginalSummary struct {
	Statistic string  `json:"statistic"`
	Observed  float64 `json:"observed"`
	Replicate float64 `json:"replicate"`
	PValue    float64 `json:"p_value"`
}

// PPCResult holds the posterior predictive check for one Bayesian fit: the
// replicate draws themselves (for external rendering) plus marginal
// summaries of how the replicates track the observed response.
type PPCResult struct {
	Model      core.ModelName    `json:"model"`
	Replicates [][]float64       `json:"-"`
	Summaries  []MarginalSummary `json:"summaries"`
}

// PPC summarizes a Bayesian fit's posterior predictive replicates against
// the observed response: mean, standard deviation, and the quartiles. A
// tail probability near 0 or 1 flags a statistic the model fails to
// reproduce.
func PPC(f *model.Fitted, observed []float64) (PPCResult, error) {
	if len(f.Replicates) == 0 {
		return PPCResult{}, fmt.Errorf("%w: %s has no posterior predictive replicates",
			core.ErrMissingDraws, f.Spec.Name)
	}
	for r, rep := range f.Replicates {
		if len(rep) != len(observed) {
			return PPCResult{}, fmt.Errorf("replicate %d has %d values, observed has %d",
				r, len(rep), len(observed))
		}
	}

	statistics := []struct {
		name string
		fn   func(stats.Float64Data) (float64, error)
	}{
		{"mean", stats.Mean},
		{"sd", stats.StandardDeviation},
		{"q25", func(d stats.Float64Data) (float64, error) { return stats.Percentile(d, 25) }},
		{"median", stats.Median},
		{"q75", func(d stats.Float64Data) (float64, error) { return stats.Percentile(d, 75) }},
	}

	result := PPCResult{Model: f.Spec.Name, Replicates: f.Replicates}
	for _, s := range statistics {
		obs, err := s.fn(observed)
		if err != nil {
			return PPCResult{}, fmt.Errorf("observed %s: %w", s.name, err)
		}

		repVals := make([]float64, len(f.Replicates))
		atOrAbove := 0
		for r, rep := range f.Replicates {
			v, err := s.fn(rep)
			if err != nil {
				return PPCResult{}, fmt.Errorf("replicate %s: %w", s.name, err)
			}
			repVals[r] = v
			if v >= obs {
				atOrAbove++
			}
		}

		repMean, _ := stats.Mean(repVals)
		result.Summaries = append(result.Summaries, MarginalSummary{
			Statistic: s.name,
			Observed:  obs,
			Replicate: repMean,
			PValue:    float64(atOrAbove) / float64(len(f.Replicates)),
		})
	}
	return result, nil
}

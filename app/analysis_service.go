// Package app orchestrates the re-analysis pipeline: read the study file,
// derive the analysis set and its transformed frames, fit the model
// battery concurrently, and assemble comparisons into a report.
package app

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
	"github.com/derekpowell/cava-rep/internal/compare"
	"github.com/derekpowell/cava-rep/internal/errors"
	"github.com/derekpowell/cava-rep/internal/logging"
	"github.com/derekpowell/cava-rep/ports"
)

// Fit weights for the concurrency semaphore: a Bayesian fit runs several
// chains and costs more than a closed-form or optimizer fit.
const (
	weightML    = 1
	weightBayes = 2
)

// AnalysisService runs the full model battery against a study dataset.
type AnalysisService struct {
	reader  ports.DataReader
	fitter  ports.Fitter
	sampler model.SamplerControls
	maxFits int64
	log     *logging.Logger
}

// NewAnalysisService wires the pipeline. maxConcurrentFits bounds the
// weighted semaphore that throttles model fitting.
func NewAnalysisService(reader ports.DataReader, fitter ports.Fitter, sampler model.SamplerControls, maxConcurrentFits int) *AnalysisService {
	if maxConcurrentFits < 1 {
		maxConcurrentFits = 1
	}
	return &AnalysisService{
		reader:  reader,
		fitter:  fitter,
		sampler: sampler,
		maxFits: int64(maxConcurrentFits),
		log:     logging.NewDefaultLogger(),
	}
}

// FitResult pairs a model with its outcome: exactly one of Fitted or Err
// is meaningful, except for convergence failures where both are set so the
// partial fit can still be inspected.
type FitResult struct {
	Name   core.ModelName
	Fitted *model.Fitted
	Err    error
}

// Failed reports whether the fit is unusable for ranking.
func (r FitResult) Failed() bool {
	return r.Err != nil
}

// task is one battery entry: the model spec, the frame it runs against, and its
// semaphore weight. A non-nil err means the frame could not be built; the
// task then yields a failed FitResult instead of reaching the fitter.
type task struct {
	spec   model.Spec
	frame  *dataset.Frame
	err    error
	weight int64
}

// Run executes the pipeline end to end.
func (s *AnalysisService) Run(ctx context.Context) (*Report, error) {
	participants, err := s.reader.Read()
	if err != nil {
		return nil, errors.WithCode(errors.CodeIngestError, err)
	}

	analysis := dataset.AnalysisSet(participants)
	s.log.Info("analysis set: %d of %d participants", len(analysis), len(participants))
	if len(analysis) == 0 {
		return nil, errors.WithCode(errors.CodeIngestError, core.ErrEmptyData)
	}

	tasks, observed := s.battery(analysis)

	results := s.fitAll(ctx, tasks)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:           core.RunID(core.NewID()),
		TotalRead:       len(participants),
		AnalysisSetSize: len(analysis),
		Fits:            results,
	}
	s.assembleComparisons(report, observed)
	return report, nil
}

// battery builds the model list mirroring the published analysis, plus the
// observed responses each posterior predictive check compares against. A
// frame that fails to build (e.g. an out-of-range score surfacing during
// rescale) fails only the models that need that frame; the rest of the
// battery still runs.
func (s *AnalysisService) battery(analysis []dataset.Participant) ([]task, map[core.ModelName][]float64) {
	bounds := dataset.DefaultBounds

	wide, wideErr := dataset.WideFrame(analysis)
	if wideErr != nil {
		s.log.Warn("wide frame unavailable: %v", wideErr)
	}

	// Rescale the wide posttest into (0,1) for the beta-family models.
	// The gaussian twin on the same rescaled outcome is what makes the
	// AIC comparison against the beta fit legitimate.
	wideRescaled, wideRescaledErr := rescaleFrame(wide, wideErr, dataset.ColPosttest, bounds)
	if wideRescaledErr != nil && wideErr == nil {
		s.log.Warn("rescaled wide frame unavailable: %v", wideRescaledErr)
	}

	var longFrame *dataset.Frame
	long, longErr := dataset.Lengthen(analysis)
	if longErr == nil {
		items := long.FilterItems(func(item string) bool { return item != dataset.AggregateItem })
		longFrame, longErr = dataset.LongFrame(items)
	}
	if longErr != nil {
		s.log.Warn("long frame unavailable: %v", longErr)
	}

	longRescaled, longRescaledErr := rescaleFrame(longFrame, longErr, dataset.ColResponse, bounds)
	if longRescaledErr != nil && longErr == nil {
		s.log.Warn("rescaled long frame unavailable: %v", longRescaledErr)
	}

	conditionAnd := func(vars ...string) []model.Term {
		terms := []model.Term{model.FixedTerm(dataset.ColCondition)}
		for _, v := range vars {
			terms = append(terms, model.FixedTerm(v))
		}
		return terms
	}

	tasks := []task{
		{
			spec: model.Spec{
				Name:       "ols_change",
				Response:   dataset.ColChange,
				FixedTerms: conditionAnd(),
				Family:     model.FamilyGaussian,
				Estimation: model.EstimationML,
			},
			frame:  wide,
			err:    wideErr,
			weight: weightML,
		},
		{
			spec: model.Spec{
				Name:       "ols_post",
				Response:   dataset.ColPosttest,
				FixedTerms: conditionAnd(),
				Family:     model.FamilyGaussian,
				Estimation: model.EstimationML,
			},
			frame:  wide,
			err:    wideErr,
			weight: weightML,
		},
		{
			spec: model.Spec{
				Name:       "ols_ancova",
				Response:   dataset.ColPosttest,
				FixedTerms: conditionAnd(dataset.ColPretest),
				Family:     model.FamilyGaussian,
				Estimation: model.EstimationML,
			},
			frame:  wide,
			err:    wideErr,
			weight: weightML,
		},
		{
			spec: model.Spec{
				Name:       "ols_rescaled",
				Response:   dataset.ColPosttest,
				FixedTerms: conditionAnd(),
				Family:     model.FamilyGaussian,
				Estimation: model.EstimationML,
			},
			frame:  wideRescaled,
			err:    wideRescaledErr,
			weight: weightML,
		},
		{
			spec: model.Spec{
				Name:       "beta_ml",
				Response:   dataset.ColPosttest,
				FixedTerms: conditionAnd(),
				Family:     model.FamilyBeta,
				Estimation: model.EstimationML,
			},
			frame:  wideRescaled,
			err:    wideRescaledErr,
			weight: weightML,
		},
		{
			spec: model.Spec{
				Name:       "bayes_beta",
				Response:   dataset.ColPosttest,
				FixedTerms: conditionAnd(),
				Family:     model.FamilyBeta,
				Estimation: model.EstimationBayes,
				Sampler:    s.sampler,
			},
			frame:  wideRescaled,
			err:    wideRescaledErr,
			weight: weightBayes,
		},
		{
			spec: model.Spec{
				Name:       "bayes_beta_ancova",
				Response:   dataset.ColPosttest,
				FixedTerms: conditionAnd(dataset.ColPretest),
				Family:     model.FamilyBeta,
				Estimation: model.EstimationBayes,
				Sampler:    s.sampler,
			},
			frame:  wideRescaled,
			err:    wideRescaledErr,
			weight: weightBayes,
		},
		{
			spec: model.Spec{
				Name:     "bayes_hierarchical",
				Response: dataset.ColResponse,
				FixedTerms: []model.Term{
					model.FixedTerm(dataset.ColPhase),
					model.FixedTerm(dataset.ColCondition),
					model.Interaction(dataset.ColPhase, dataset.ColCondition),
				},
				RandomGroupings: []model.Grouping{model.GroupByParticipant, model.GroupByItem},
				Family:          model.FamilyBeta,
				Estimation:      model.EstimationBayes,
				Sampler:         s.sampler,
			},
			frame:  longRescaled,
			err:    longRescaledErr,
			weight: weightBayes,
		},
		{
			spec: model.Spec{
				Name:     "ordinal_items",
				Response: dataset.ColResponse,
				FixedTerms: []model.Term{
					model.FixedTerm(dataset.ColPhase),
					model.FixedTerm(dataset.ColCondition),
					model.Interaction(dataset.ColPhase, dataset.ColCondition),
				},
				Family:     model.FamilyOrdinal,
				Estimation: model.EstimationML,
			},
			frame:  longFrame,
			err:    longErr,
			weight: weightML,
		},
	}

	observed := make(map[core.ModelName][]float64, len(tasks))
	for _, t := range tasks {
		if t.err == nil {
			observed[t.spec.Name] = t.frame.Numeric[t.spec.Response]
		}
	}
	return tasks, observed
}

// rescaleFrame derives a copy of base with col shrunk into (0,1) and the
// transform label updated. A base-frame error or an out-of-range score is
// returned to the caller so it can attach to the affected models.
func rescaleFrame(base *dataset.Frame, baseErr error, col string, bounds dataset.ScaleBounds) (*dataset.Frame, error) {
	if baseErr != nil {
		return nil, baseErr
	}
	vals, err := dataset.Rescale(base.Numeric[col], bounds)
	if err != nil {
		return nil, err
	}
	out, err := base.WithNumeric(col, vals)
	if err != nil {
		return nil, err
	}
	return out.WithTransform(transformLabel(len(vals))), nil
}

// fitAll runs the battery concurrently under a weighted semaphore. A
// failure in one model never aborts the others; every task yields a
// FitResult either way, in battery order.
func (s *AnalysisService) fitAll(ctx context.Context, tasks []task) []FitResult {
	sem := semaphore.NewWeighted(s.maxFits)
	results := make([]FitResult, len(tasks))

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, t := range tasks {
		go func(i int, t task) {
			defer wg.Done()

			if t.err != nil {
				results[i] = FitResult{Name: t.spec.Name, Err: t.err}
				return
			}

			weight := t.weight
			if weight > s.maxFits {
				weight = s.maxFits
			}
			if err := sem.Acquire(ctx, weight); err != nil {
				results[i] = FitResult{Name: t.spec.Name, Err: err}
				return
			}
			defer sem.Release(weight)

			s.log.Info("fitting %s (%s, %s)", t.spec.Name, t.spec.Family, t.spec.Estimation)
			fitted, err := s.fitter.Fit(ctx, t.spec, t.frame)
			if err != nil {
				s.log.Warn("model %s failed: %v", t.spec.Name, err)
			}
			results[i] = FitResult{Name: t.spec.Name, Fitted: fitted, Err: err}
		}(i, t)
	}
	wg.Wait()
	return results
}

// assembleComparisons fills the report's rankings, LOO comparisons, and
// posterior predictive checks from the usable fits. Comparison failures
// are recorded, not fatal.
func (s *AnalysisService) assembleComparisons(report *Report, observed map[core.ModelName][]float64) {
	usable := make(map[core.ModelName]*model.Fitted)
	for _, r := range report.Fits {
		if !r.Failed() && r.Fitted != nil {
			usable[r.Name] = r.Fitted
		}
	}

	// AIC rankings within groups that share an outcome fingerprint.
	groups := map[string][]core.ModelName{
		"raw_posttest":      {"ols_post", "ols_ancova"},
		"rescaled_posttest": {"ols_rescaled", "beta_ml"},
	}
	for label, names := range groups {
		var fits []*model.Fitted
		for _, name := range names {
			if f, ok := usable[name]; ok {
				fits = append(fits, f)
			}
		}
		if len(fits) < 2 {
			continue
		}
		ranking, err := compare.CompareAIC(fits)
		if err != nil {
			s.log.Warn("AIC ranking %s failed: %v", label, err)
			report.ComparisonErrors = append(report.ComparisonErrors, err)
			continue
		}
		report.Rankings = append(report.Rankings, ranking)
	}

	if a, ok := usable["bayes_beta"]; ok {
		if b, ok := usable["bayes_beta_ancova"]; ok {
			loo, err := compare.CompareLOO(a, b)
			if err != nil {
				s.log.Warn("LOO comparison failed: %v", err)
				report.ComparisonErrors = append(report.ComparisonErrors, err)
			} else {
				report.LOO = append(report.LOO, loo)
			}
		}
	}

	for _, name := range []core.ModelName{"bayes_beta", "bayes_beta_ancova", "bayes_hierarchical"} {
		f, ok := usable[name]
		if !ok {
			continue
		}
		ppc, err := compare.PPC(f, observed[name])
		if err != nil {
			s.log.Warn("PPC for %s failed: %v", name, err)
			report.ComparisonErrors = append(report.ComparisonErrors, err)
			continue
		}
		report.PPCs = append(report.PPCs, ppc)
	}
}

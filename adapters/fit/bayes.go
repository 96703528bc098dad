package fit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
)

// maxReplicates caps the posterior predictive replicate datasets attached
// to a fit; draws beyond this are thinned evenly.
const maxReplicates = 200

// bayesModel bundles everything the sampler needs: the family likelihood,
// the design, and the random-intercept bookkeeping. The parameter vector is
// laid out as [family parameters..., one log-sd per grouping, then the
// per-level intercepts of each grouping in order].
type bayesModel struct {
	spec   model.Spec
	design *Design
	y      []float64

	famPar   int
	famNames []string

	// ordinal-only state
	ordLayout ordinalLayout
	ordCodes  []int
	ordLevels []float64

	groups []grouping
}

// grouping is one random-intercept factor: the distinct levels and, per
// observation row, the index of its level.
type grouping struct {
	name   string
	levels []string
	index  []int
}

func newBayesModel(spec model.Spec, d *Design, f *dataset.Frame, y []float64) (*bayesModel, error) {
	m := &bayesModel{spec: spec, design: d, y: y}

	p := d.NumPar()
	switch spec.Family {
	case model.FamilyGaussian:
		m.famPar = p + 1
		m.famNames = append(append([]string{}, d.Names...), "log_sigma")
	case model.FamilyBeta:
		m.famPar = p + 1
		m.famNames = append(append([]string{}, d.Names...), "log_precision")
	case model.FamilyOrdinal:
		codes, levels := categoryCodes(y)
		K := len(levels)
		m.ordCodes = codes
		m.ordLevels = levels
		m.ordLayout = ordinalLayout{numThresholds: K - 1, numSlopes: p - 1}
		m.famPar = m.ordLayout.size()
		for t := 1; t < K; t++ {
			m.famNames = append(m.famNames, fmt.Sprintf("threshold[%d]", t))
		}
		m.famNames = append(m.famNames, d.Names[1:]...)
	default:
		return nil, fmt.Errorf("%w: family %q", core.ErrInvalidSpec, spec.Family)
	}

	for _, g := range spec.RandomGroupings {
		col := f.Categorical[string(g)]
		levelIdx := make(map[string]int)
		var levels []string
		index := make([]int, len(col))
		for i, v := range col {
			idx, ok := levelIdx[v]
			if !ok {
				idx = len(levels)
				levelIdx[v] = idx
				levels = append(levels, v)
			}
			index[i] = idx
		}
		m.groups = append(m.groups, grouping{name: string(g), levels: levels, index: index})
	}
	return m, nil
}

// dim is the total parameter count: family parameters, one log-sd per
// grouping, and every group-level intercept.
func (m *bayesModel) dim() int {
	d := m.famPar + len(m.groups)
	for _, g := range m.groups {
		d += len(g.levels)
	}
	return d
}

// paramNames labels the sampled vector; group intercepts are named but only
// fixed parameters and group sds enter the reported coefficient table.
func (m *bayesModel) paramNames() []string {
	names := append([]string{}, m.famNames...)
	for _, g := range m.groups {
		names = append(names, "sd_"+g.name)
	}
	for _, g := range m.groups {
		for _, lvl := range g.levels {
			names = append(names, fmt.Sprintf("r_%s[%s]", g.name, lvl))
		}
	}
	return names
}

// numReported is how many leading parameters appear in the coefficient
// table (family parameters plus group sds).
func (m *bayesModel) numReported() int {
	return m.famPar + len(m.groups)
}

func (m *bayesModel) initTheta() []float64 {
	theta := make([]float64, m.dim())
	switch m.spec.Family {
	case model.FamilyGaussian:
		theta[0] = mean(m.y)
	case model.FamilyBeta:
		theta[0] = logit(mean(m.y))
		theta[m.famPar-1] = math.Log(5)
	case model.FamilyOrdinal:
		cum := empiricalCumLogits(m.ordCodes, len(m.ordLevels))
		theta[0] = cum[0]
		for k := 1; k < m.ordLayout.numThresholds; k++ {
			inc := cum[k] - cum[k-1]
			if inc < 1e-3 {
				inc = 1e-3
			}
			theta[k] = math.Log(inc)
		}
	}
	return theta
}

// reOffsets accumulates the random-intercept contribution per row.
func (m *bayesModel) reOffsets(theta []float64) []float64 {
	if len(m.groups) == 0 {
		return nil
	}
	offsets := make([]float64, len(m.y))
	base := m.famPar + len(m.groups)
	for _, g := range m.groups {
		for i, idx := range g.index {
			offsets[i] += theta[base+idx]
		}
		base += len(g.levels)
	}
	return offsets
}

// pointwise returns the per-observation log-likelihood under theta.
func (m *bayesModel) pointwise(theta []float64) []float64 {
	offsets := m.reOffsets(theta)
	out := make([]float64, len(m.y))

	switch m.spec.Family {
	case model.FamilyGaussian:
		sigma := math.Exp(theta[m.famPar-1])
		for i, yi := range m.y {
			mu := rowDot(m.design, i, theta) + at(offsets, i)
			z := (yi - mu) / sigma
			out[i] = -0.5*z*z - math.Log(sigma) - 0.5*math.Log(2*math.Pi)
		}
	case model.FamilyBeta:
		phi := math.Exp(theta[m.famPar-1])
		for i, yi := range m.y {
			mu := logistic(rowDot(m.design, i, theta) + at(offsets, i))
			a, b := mu*phi, (1-mu)*phi
			if a <= 0 || b <= 0 {
				out[i] = math.Inf(-1)
				continue
			}
			lgPhi, _ := math.Lgamma(phi)
			lgA, _ := math.Lgamma(a)
			lgB, _ := math.Lgamma(b)
			out[i] = lgPhi - lgA - lgB + (a-1)*math.Log(yi) + (b-1)*math.Log(1-yi)
		}
	case model.FamilyOrdinal:
		tau := m.ordLayout.thresholds(theta)
		K := len(m.ordLevels)
		for i, c := range m.ordCodes {
			eta := slopeDot(m.ordLayout, m.design, i, theta) + at(offsets, i)
			var upper, lower float64
			if c == K-1 {
				upper = 1
			} else {
				upper = logistic(tau[c] - eta)
			}
			if c > 0 {
				lower = logistic(tau[c-1] - eta)
			}
			p := upper - lower
			if p <= 0 {
				out[i] = math.Inf(-1)
				continue
			}
			out[i] = math.Log(p)
		}
	}
	return out
}

// logPosterior is the pointwise log-likelihood plus weakly-informative
// priors: normal(0, 2.5) on location parameters, normal(0, 1) on log-scale
// parameters, and hierarchical normal(0, sd_g) on group intercepts.
func (m *bayesModel) logPosterior(theta []float64) float64 {
	lp := 0.0
	for _, ll := range m.pointwise(theta) {
		lp += ll
	}
	if math.IsInf(lp, -1) {
		return lp
	}

	for j := 0; j < m.famPar; j++ {
		if m.isScalePar(j) {
			lp += logNormPdf(theta[j], 0, 1)
		} else {
			lp += logNormPdf(theta[j], 0, 2.5)
		}
	}

	base := m.famPar + len(m.groups)
	for gi, g := range m.groups {
		logSD := theta[m.famPar+gi]
		sd := math.Exp(logSD)
		lp += logNormPdf(logSD, 0, 1)
		for li := range g.levels {
			lp += logNormPdf(theta[base+li], 0, sd)
		}
		base += len(g.levels)
	}
	return lp
}

// isScalePar reports whether family parameter j lives on a log scale.
func (m *bayesModel) isScalePar(j int) bool {
	switch m.spec.Family {
	case model.FamilyGaussian, model.FamilyBeta:
		return j == m.famPar-1
	case model.FamilyOrdinal:
		// log-increments between thresholds
		return j >= 1 && j < m.ordLayout.numThresholds
	}
	return false
}

// predict returns the expected response per row under theta.
func (m *bayesModel) predict(theta []float64) []float64 {
	offsets := m.reOffsets(theta)
	out := make([]float64, len(m.y))
	switch m.spec.Family {
	case model.FamilyGaussian:
		for i := range m.y {
			out[i] = rowDot(m.design, i, theta) + at(offsets, i)
		}
	case model.FamilyBeta:
		for i := range m.y {
			out[i] = logistic(rowDot(m.design, i, theta) + at(offsets, i))
		}
	case model.FamilyOrdinal:
		tau := m.ordLayout.thresholds(theta)
		K := len(m.ordLevels)
		for i := range m.y {
			eta := slopeDot(m.ordLayout, m.design, i, theta) + at(offsets, i)
			ev, prev := 0.0, 0.0
			for c := 0; c < K; c++ {
				cdf := 1.0
				if c < K-1 {
					cdf = logistic(tau[c] - eta)
				}
				ev += m.ordLevels[c] * (cdf - prev)
				prev = cdf
			}
			out[i] = ev
		}
	}
	return out
}

// simulate draws one replicated dataset from the fitted distribution at
// theta, for posterior predictive checks.
func (m *bayesModel) simulate(theta []float64, rng *rand.Rand) []float64 {
	offsets := m.reOffsets(theta)
	out := make([]float64, len(m.y))
	switch m.spec.Family {
	case model.FamilyGaussian:
		sigma := math.Exp(theta[m.famPar-1])
		for i := range m.y {
			mu := rowDot(m.design, i, theta) + at(offsets, i)
			out[i] = mu + sigma*rng.NormFloat64()
		}
	case model.FamilyBeta:
		phi := math.Exp(theta[m.famPar-1])
		for i := range m.y {
			mu := logistic(rowDot(m.design, i, theta) + at(offsets, i))
			b := distuv.Beta{Alpha: mu * phi, Beta: (1 - mu) * phi, Src: rng}
			out[i] = b.Rand()
		}
	case model.FamilyOrdinal:
		tau := m.ordLayout.thresholds(theta)
		K := len(m.ordLevels)
		for i := range m.y {
			eta := slopeDot(m.ordLayout, m.design, i, theta) + at(offsets, i)
			u := rng.Float64()
			cat := K - 1
			for c := 0; c < K-1; c++ {
				if u <= logistic(tau[c]-eta) {
					cat = c
					break
				}
			}
			out[i] = m.ordLevels[cat]
		}
	}
	return out
}

// fitBayes runs adaptive random-walk Metropolis over independent chains,
// pools the draws once all chains complete, and assembles the fitted model.
// A fit that fails convergence diagnostics is still returned, alongside a
// convergence error carrying the diagnostics, so the caller can report it.
func (e *Engine) fitBayes(ctx context.Context, spec model.Spec, design *Design, data *dataset.Frame, y []float64, outcome core.OutcomeFingerprint) (*model.Fitted, error) {
	m, err := newBayesModel(spec, design, data, y)
	if err != nil {
		return nil, err
	}
	ctl := spec.Sampler

	// One derived seed per chain so chains never share RNG state.
	master := rand.New(rand.NewSource(ctl.Seed))
	seeds := make([]int64, ctl.Chains)
	for c := range seeds {
		seeds[c] = master.Int63()
	}

	chains := make([][][]float64, ctl.Chains)
	accepts := make([]float64, ctl.Chains)
	var wg sync.WaitGroup
	wg.Add(ctl.Chains)
	for c := 0; c < ctl.Chains; c++ {
		go func(c int) {
			defer wg.Done()
			chains[c], accepts[c] = runChain(ctx, m, ctl, seeds[c])
		}(c)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Pool draws across chains after all complete.
	pooled := make([][]float64, 0, ctl.Chains*ctl.Iterations)
	for _, ch := range chains {
		pooled = append(pooled, ch...)
	}

	diag := samplerDiagnostics(chains, m.numReported())
	diag.AcceptRate = meanOf(accepts)

	fitted := assembleBayesFit(m, pooled, diag, outcome, ctl.Seed)

	if !diag.Converged {
		return fitted, core.NewConvergenceError(spec.Name,
			fmt.Sprintf("max Rhat %.3f, min ESS %.0f, accept rate %.2f", diag.MaxRhat, diag.MinESS, diag.AcceptRate))
	}
	return fitted, nil
}

// runChain samples one chain: warmup with proposal-scale adaptation toward
// the target acceptance rate, then a fixed-scale sampling phase whose draws
// are kept. Returns the kept draws and the sampling-phase acceptance rate.
func runChain(ctx context.Context, m *bayesModel, ctl model.SamplerControls, seed int64) ([][]float64, float64) {
	rng := rand.New(rand.NewSource(seed))
	dim := m.dim()

	theta := m.initTheta()
	// Jitter the start so chains explore from dispersed points.
	for j := range theta {
		theta[j] += 0.1 * rng.NormFloat64()
	}
	lp := m.logPosterior(theta)

	scale := 0.1
	const adaptEvery = 50
	adaptAccepts := 0

	total := ctl.Warmup + ctl.Iterations
	draws := make([][]float64, 0, ctl.Iterations)
	accepted := 0

	prop := make([]float64, dim)
	for it := 0; it < total; it++ {
		if it%256 == 0 && ctx.Err() != nil {
			break
		}

		for j := range prop {
			prop[j] = theta[j] + scale*rng.NormFloat64()
		}
		propLP := m.logPosterior(prop)

		accept := false
		if propLP >= lp {
			accept = true
		} else if math.Log(rng.Float64()) < propLP-lp {
			accept = true
		}
		if accept {
			copy(theta, prop)
			lp = propLP
			if it < ctl.Warmup {
				adaptAccepts++
			} else {
				accepted++
			}
		}

		// Robbins-Monro-style scale adaptation, warmup only.
		if it < ctl.Warmup && (it+1)%adaptEvery == 0 {
			rate := float64(adaptAccepts) / adaptEvery
			scale *= math.Exp(rate - ctl.TargetAccept)
			adaptAccepts = 0
		}

		if it >= ctl.Warmup {
			draw := make([]float64, dim)
			copy(draw, theta)
			draws = append(draws, draw)
		}
	}

	acceptRate := 0.0
	if len(draws) > 0 {
		acceptRate = float64(accepted) / float64(len(draws))
	}
	return draws, acceptRate
}

// assembleBayesFit turns pooled draws into the immutable fitted model:
// posterior means and central 95% intervals for reported parameters,
// posterior-mean fitted values, the pointwise log-likelihood matrix for
// LOO, and thinned posterior predictive replicates.
func assembleBayesFit(m *bayesModel, pooled [][]float64, diag model.Convergence, outcome core.OutcomeFingerprint, seed int64) *model.Fitted {
	names := m.paramNames()
	reported := m.numReported()
	S := len(pooled)

	coefs := make([]model.Coefficient, reported)
	for j := 0; j < reported; j++ {
		col := make([]float64, S)
		for s, draw := range pooled {
			col[s] = draw[j]
		}
		est, _ := stats.Mean(col)
		lo, _ := stats.Percentile(col, 2.5)
		hi, _ := stats.Percentile(col, 97.5)
		sd, _ := stats.StandardDeviation(col)
		coefs[j] = model.Coefficient{
			Name:     names[j],
			Estimate: est,
			SE:       sd,
			Lower:    lo,
			Upper:    hi,
			Draws:    col,
		}
	}

	n := len(m.y)
	fittedValues := make([]float64, n)
	pointwise := make([][]float64, S)
	for s, draw := range pooled {
		pointwise[s] = m.pointwise(draw)
		for i, p := range m.predict(draw) {
			fittedValues[i] += p / float64(S)
		}
	}

	// Replicates get their own RNG stream; thin evenly when draws exceed
	// the cap.
	repRNG := rand.New(rand.NewSource(seed ^ 0x5eed))
	step := 1
	if S > maxReplicates {
		step = S / maxReplicates
	}
	var reps [][]float64
	for s := 0; s < S; s += step {
		reps = append(reps, m.simulate(pooled[s], repRNG))
	}

	return &model.Fitted{
		ID:           core.FitID(core.NewID()),
		Spec:         m.spec,
		Coefficients: coefs,
		FittedValues: fittedValues,
		Stats: model.FitStats{
			NumPar:          m.dim(),
			PointwiseLogLik: pointwise,
		},
		Diagnostics: diag,
		Outcome:     outcome,
		Replicates:  reps,
		FittedAt:    core.Now(),
	}
}

func at(xs []float64, i int) float64 {
	if xs == nil {
		return 0
	}
	return xs[i]
}

func logNormPdf(x, mu, sd float64) float64 {
	z := (x - mu) / sd
	return -0.5*z*z - math.Log(sd) - 0.5*math.Log(2*math.Pi)
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/internal/compare"
)

// transformLabel is the response-representation tag attached to rescaled
// frames; it carries the N so two rescalings of different subsets never
// look interchangeable.
func transformLabel(n int) string {
	return fmt.Sprintf("rescaled(n=%d)", n)
}

// Report is the pipeline output: every fit attempt, the AIC rankings, the
// pairwise LOO comparisons, and the posterior predictive checks.
type Report struct {
	RunID           core.RunID
	TotalRead       int
	AnalysisSetSize int

	Fits             []FitResult
	Rankings         []compare.Ranking
	LOO              []compare.LOOComparison
	PPCs             []compare.PPCResult
	ComparisonErrors []error
}

// Render writes the report as plain text tables.
func (r *Report) Render(w io.Writer) error {
	fmt.Fprintf(w, "run %s: %d participants read, %d in analysis set\n\n",
		r.RunID, r.TotalRead, r.AnalysisSetSize)

	for _, fit := range r.Fits {
		if err := renderFit(w, fit); err != nil {
			return err
		}
	}
	for _, ranking := range r.Rankings {
		if err := renderRanking(w, ranking); err != nil {
			return err
		}
	}
	for _, loo := range r.LOO {
		renderLOO(w, loo)
	}
	for _, ppc := range r.PPCs {
		if err := renderPPC(w, ppc); err != nil {
			return err
		}
	}
	if len(r.ComparisonErrors) > 0 {
		fmt.Fprintln(w, "comparison errors:")
		for _, err := range r.ComparisonErrors {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}
	return nil
}

func renderFit(w io.Writer, fit FitResult) error {
	fmt.Fprintf(w, "=== %s ===\n", fit.Name)
	if fit.Err != nil {
		fmt.Fprintf(w, "FAILED: %v\n", fit.Err)
		if fit.Fitted == nil {
			fmt.Fprintln(w)
			return nil
		}
		fmt.Fprintln(w, "partial estimates follow:")
	}

	f := fit.Fitted
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "coefficient\testimate\tse\t2.5%\t97.5%")
	for _, c := range f.Coefficients {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\n", c.Name, c.Estimate, c.SE, c.Lower, c.Upper)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if f.IsBayesian() {
		fmt.Fprintf(w, "draws pooled: %d; max Rhat %.3f, min ESS %.0f, accept %.2f\n",
			len(f.Stats.PointwiseLogLik), f.Diagnostics.MaxRhat, f.Diagnostics.MinESS, f.Diagnostics.AcceptRate)
	} else {
		fmt.Fprintf(w, "logLik %.3f, AIC %.3f, k=%d\n", f.Stats.LogLik, f.Stats.AIC, f.Stats.NumPar)
	}
	fmt.Fprintln(w)
	return nil
}

func renderRanking(w io.Writer, ranking compare.Ranking) error {
	fmt.Fprintf(w, "=== AIC ranking (outcome %s) ===\n", shortHash(string(ranking.Outcome)))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "model\tAIC\tdelta\tweight\tk")
	for _, m := range ranking.Models {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%d\n", m.Name, m.AIC, m.Delta, m.Weight, m.NumPar)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "preferred: %s\n\n", ranking.Best())
	return nil
}

func renderLOO(w io.Writer, loo compare.LOOComparison) {
	fmt.Fprintf(w, "=== LOO: %s vs %s ===\n", loo.ModelA, loo.ModelB)
	fmt.Fprintf(w, "elpd %.3f vs %.3f; diff %.3f (se %.3f)\n", loo.ElpdA, loo.ElpdB, loo.Diff, loo.SE)
	if loo.NotDistinguishable {
		fmt.Fprintln(w, "models are not distinguishable (|diff| < 2 se)")
	} else {
		fmt.Fprintf(w, "favored: %s\n", loo.Favored())
	}
	fmt.Fprintln(w)
}

func renderPPC(w io.Writer, ppc compare.PPCResult) error {
	fmt.Fprintf(w, "=== posterior predictive check: %s (%d replicates) ===\n",
		ppc.Model, len(ppc.Replicates))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "statistic\tobserved\treplicate mean\tp")
	for _, s := range ppc.Summaries {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.3f\n", s.Statistic, s.Observed, s.Replicate, s.PValue)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func shortHash(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return strings.TrimSpace(s)
}

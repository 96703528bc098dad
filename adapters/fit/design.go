package fit

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
)

// Design is the expanded model matrix for the fixed part of a model:
// an intercept column followed by one column per contrast, plus the
// coefficient names aligned to the columns.
type Design struct {
	X     *mat.Dense
	Names []string
}

// NumPar returns the number of fixed-effect columns.
func (d *Design) NumPar() int {
	_, p := d.X.Dims()
	return p
}

// column is one expanded predictor column before assembly.
type column struct {
	name   string
	values []float64
}

// BuildDesign expands the spec's fixed terms against the frame into a model
// matrix with treatment contrasts. Categorical predictors are coded against
// a reference level: "Control" when present, otherwise the first level in
// sort order. Interaction terms are elementwise products of their expanded
// components.
func BuildDesign(spec model.Spec, f *dataset.Frame) (*Design, error) {
	cols := []column{{name: "intercept", values: ones(f.N)}}

	for _, term := range spec.FixedTerms {
		expanded, err := expandTerm(term, f)
		if err != nil {
			return nil, err
		}
		cols = append(cols, expanded...)
	}

	X := mat.NewDense(f.N, len(cols), nil)
	names := make([]string, len(cols))
	for j, c := range cols {
		names[j] = c.name
		X.SetCol(j, c.values)
	}
	return &Design{X: X, Names: names}, nil
}

// expandTerm expands one term to its contrast columns. A term with several
// variables becomes the products of the component expansions.
func expandTerm(term model.Term, f *dataset.Frame) ([]column, error) {
	if len(term.Variables) == 0 {
		return nil, fmt.Errorf("%w: empty term", core.ErrInvalidSpec)
	}

	parts := make([][]column, 0, len(term.Variables))
	for _, v := range term.Variables {
		expanded, err := expandVariable(v, f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, expanded)
	}

	// Fold left: product of component column sets.
	acc := parts[0]
	for _, next := range parts[1:] {
		crossed := make([]column, 0, len(acc)*len(next))
		for _, a := range acc {
			for _, b := range next {
				prod := make([]float64, f.N)
				for i := range prod {
					prod[i] = a.values[i] * b.values[i]
				}
				crossed = append(crossed, column{name: a.name + ":" + b.name, values: prod})
			}
		}
		acc = crossed
	}
	return acc, nil
}

// expandVariable turns one predictor into columns: numeric passes through,
// categorical becomes reference-coded indicators.
func expandVariable(name string, f *dataset.Frame) ([]column, error) {
	if vals, ok := f.Numeric[name]; ok {
		return []column{{name: name, values: vals}}, nil
	}
	levels, ok := f.Categorical[name]
	if !ok {
		return nil, fmt.Errorf("%w: predictor %q", core.ErrUnknownVariable, name)
	}

	contrast := contrastLevels(levels)
	cols := make([]column, 0, len(contrast))
	for _, lvl := range contrast {
		ind := make([]float64, f.N)
		for i, v := range levels {
			if v == lvl {
				ind[i] = 1
			}
		}
		cols = append(cols, column{name: name + "=" + lvl, values: ind})
	}
	return cols, nil
}

// contrastLevels returns the non-reference levels in sort order. The
// reference is "Control" when present, otherwise the first level.
func contrastLevels(values []string) []string {
	seen := make(map[string]bool)
	levels := make([]string, 0, 4)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)

	ref := levels[0]
	if seen[string(dataset.ConditionControl)] {
		ref = string(dataset.ConditionControl)
	}
	contrast := make([]string, 0, len(levels)-1)
	for _, lvl := range levels {
		if lvl != ref {
			contrast = append(contrast, lvl)
		}
	}
	return contrast
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

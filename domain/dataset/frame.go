package dataset

import (
	"fmt"

	"github.com/derekpowell/cava-rep/domain/core"
)

// Frame is the column-oriented table handed to model fitting. Numeric
// columns hold responses and quantitative predictors; categorical columns
// hold contrast-coded factors and grouping labels. Frames are derived from
// participant records or long tables and never mutated by fitting.
type Frame struct {
	N           int
	Numeric     map[string][]float64
	Categorical map[string][]string

	// Transform labels the response representation this frame carries
	// ("raw" for untouched scores, "rescaled(n=214)" after the shrink
	// transform, ...). Comparison uses it to refuse AIC comparisons
	// across different representations.
	Transform string
}

// Column names shared by the standard frames.
const (
	ColPretest     = "pretest"
	ColPosttest    = "posttest"
	ColChange      = "change"
	ColResponse    = "response"
	ColPhase       = "phase"
	ColCondition   = "condition"
	ColParticipant = "participant"
	ColItem        = "item"
)

// HasNumeric reports whether the frame carries a numeric column.
func (f *Frame) HasNumeric(name string) bool {
	_, ok := f.Numeric[name]
	return ok
}

// HasCategorical reports whether the frame carries a categorical column.
func (f *Frame) HasCategorical(name string) bool {
	_, ok := f.Categorical[name]
	return ok
}

// Has reports whether the frame carries the column under either type.
func (f *Frame) Has(name string) bool {
	return f.HasNumeric(name) || f.HasCategorical(name)
}

// GroupSizes tallies observations per level of a categorical column.
func (f *Frame) GroupSizes(name string) (map[string]int, error) {
	col, ok := f.Categorical[name]
	if !ok {
		return nil, fmt.Errorf("%w: categorical column %q", core.ErrUnknownVariable, name)
	}
	sizes := make(map[string]int)
	for _, v := range col {
		sizes[v]++
	}
	return sizes, nil
}

// WithNumeric returns a copy of the frame with one numeric column replaced
// or added. The receiver is unchanged; other columns are shared.
func (f *Frame) WithNumeric(name string, values []float64) (*Frame, error) {
	if len(values) != f.N {
		return nil, fmt.Errorf("%w: column %q has %d values for %d rows",
			core.ErrInvalidSpec, name, len(values), f.N)
	}
	num := make(map[string][]float64, len(f.Numeric)+1)
	for k, v := range f.Numeric {
		num[k] = v
	}
	num[name] = values
	return &Frame{N: f.N, Numeric: num, Categorical: f.Categorical, Transform: f.Transform}, nil
}

// WithTransform returns a copy of the frame relabeled with a new response
// representation.
func (f *Frame) WithTransform(label string) *Frame {
	return &Frame{N: f.N, Numeric: f.Numeric, Categorical: f.Categorical, Transform: label}
}

// WideFrame builds the one-row-per-participant frame: pretest, posttest,
// change scores plus the condition factor.
func WideFrame(participants []Participant) (*Frame, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", core.ErrEmptyData)
	}
	n := len(participants)
	pre := make([]float64, n)
	post := make([]float64, n)
	change := make([]float64, n)
	cond := make([]string, n)
	pid := make([]string, n)
	for i, p := range participants {
		pre[i] = p.Pretest
		post[i] = p.Posttest
		change[i] = p.ChangeScore()
		cond[i] = string(p.Condition)
		pid[i] = p.ID.String()
	}
	return &Frame{
		N: n,
		Numeric: map[string][]float64{
			ColPretest:  pre,
			ColPosttest: post,
			ColChange:   change,
		},
		Categorical: map[string][]string{
			ColCondition:   cond,
			ColParticipant: pid,
		},
		Transform: "raw",
	}, nil
}

// LongFrame builds the one-row-per-observation frame from a long table:
// the response column, the 0/1 phase code, and the condition, participant
// and item factors.
func LongFrame(long LongTable) (*Frame, error) {
	if len(long.Rows) == 0 {
		return nil, fmt.Errorf("%w: no observations", core.ErrEmptyData)
	}
	n := len(long.Rows)
	value := make([]float64, n)
	phase := make([]float64, n)
	cond := make([]string, n)
	pid := make([]string, n)
	item := make([]string, n)
	for i, r := range long.Rows {
		value[i] = r.Value
		phase[i] = r.Phase.Code()
		cond[i] = string(r.Condition)
		pid[i] = r.Participant.String()
		item[i] = r.Item
	}
	return &Frame{
		N: n,
		Numeric: map[string][]float64{
			ColResponse: value,
			ColPhase:    phase,
		},
		Categorical: map[string][]string{
			ColCondition:   cond,
			ColParticipant: pid,
			ColItem:        item,
		},
		Transform: "raw",
	}, nil
}

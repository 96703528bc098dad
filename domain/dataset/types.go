package dataset

import (
	"fmt"
	"sort"

	"github.com/derekpowell/cava-rep/domain/core"
)

// Condition is the experimental condition label. "Control" is always the
// reference level for contrast coding.
type Condition string

const (
	ConditionControl Condition = "Control"
)

// Phase identifies the measurement occasion.
type Phase string

const (
	PhasePretest  Phase = "pretest"
	PhasePosttest Phase = "posttest"
)

// Code returns the 0/1 coding used in long-format model matrices.
func (p Phase) Code() float64 {
	if p == PhasePosttest {
		return 1
	}
	return 0
}

// AggregateItem is the item label used for the composite pre/posttest score
// in long format, alongside the five sub-scale labels.
const AggregateItem = "aggregate"

// ScaleBounds is the closed interval the raw scores live on.
type ScaleBounds struct {
	Lower float64
	Upper float64
}

// Validate checks the bounds are a proper interval.
func (b ScaleBounds) Validate() error {
	if b.Lower >= b.Upper {
		return fmt.Errorf("%w: scale bounds [%g,%g]", core.ErrInvalidSpec, b.Lower, b.Upper)
	}
	return nil
}

// Reflect reverse-codes a score on these bounds (lo+hi-x).
func (b ScaleBounds) Reflect(x float64) float64 {
	return b.Lower + b.Upper - x
}

// Contains reports whether x lies inside the closed interval.
func (b ScaleBounds) Contains(x float64) bool {
	return x >= b.Lower && x <= b.Upper
}

// DefaultBounds is the study's 1-6 agreement scale.
var DefaultBounds = ScaleBounds{Lower: 1, Upper: 6}

// Participant is one wide-format study record. Records are read once at
// ingestion and never mutated; transformations produce derived datasets.
type Participant struct {
	ID        core.ParticipantID `json:"id"`
	Condition Condition          `json:"condition"`

	Eligible bool `json:"eligible_to_return"`
	Returned bool `json:"returned"`
	Excluded bool `json:"excluded"`

	// Composite attitude scores, one per phase, bounded on the study scale.
	Pretest  float64 `json:"pretest"`
	Posttest float64 `json:"posttest"`

	// Sub-scale scores keyed by item label, reverse-coded items already
	// corrected at ingestion.
	PreItems  map[string]float64 `json:"pre_items"`
	PostItems map[string]float64 `json:"post_items"`
}

// InAnalysisSet reports whether the participant enters analysis:
// eligible, returned, and not excluded.
func (p Participant) InAnalysisSet() bool {
	return p.Eligible && p.Returned && !p.Excluded
}

// ChangeScore is posttest minus pretest.
func (p Participant) ChangeScore() float64 {
	return p.Posttest - p.Pretest
}

// Items returns the sorted union of item labels present on either phase.
func (p Participant) Items() []string {
	seen := make(map[string]bool, len(p.PreItems)+len(p.PostItems))
	for k := range p.PreItems {
		seen[k] = true
	}
	for k := range p.PostItems {
		seen[k] = true
	}
	items := make([]string, 0, len(seen))
	for k := range seen {
		items = append(items, k)
	}
	sort.Strings(items)
	return items
}

// AnalysisSet filters participants to the analysis set. The input slice is
// not modified.
func AnalysisSet(participants []Participant) []Participant {
	out := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if p.InAnalysisSet() {
			out = append(out, p)
		}
	}
	return out
}

// ConditionLevels returns the distinct condition labels in first-appearance
// order, with the reference level "Control" forced to the front when present.
func ConditionLevels(participants []Participant) []Condition {
	seen := make(map[Condition]bool)
	levels := make([]Condition, 0, 4)
	for _, p := range participants {
		if !seen[p.Condition] {
			seen[p.Condition] = true
			levels = append(levels, p.Condition)
		}
	}
	for i, c := range levels {
		if c == ConditionControl && i != 0 {
			copy(levels[1:i+1], levels[:i])
			levels[0] = ConditionControl
			break
		}
	}
	return levels
}

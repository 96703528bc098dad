// Package testkit generates synthetic study data for tests: participant
// records with a known condition effect, so fits against them have a
// ground truth to recover.
package testkit

import (
	"fmt"
	"math/rand"

	"github.com/derekpowell/cava-rep/domain/core"
	"github.com/derekpowell/cava-rep/domain/dataset"
)

// ItemLabels are the five sub-items every synthetic participant answers.
var ItemLabels = []string{"safety", "efficacy", "trust", "intent", "norms"}

// Options configures the generator. Zero values fall back to the defaults
// in NewOptions.
type Options struct {
	N          int
	Conditions []dataset.Condition
	// Effect shifts posttest scores for non-control conditions.
	Effect float64
	Bounds dataset.ScaleBounds
	Seed   int64
	// DropoutRate is the fraction of participants who never return.
	DropoutRate float64
}

// NewOptions returns a reasonable default configuration.
func NewOptions() Options {
	return Options{
		N:           120,
		Conditions:  []dataset.Condition{dataset.ConditionControl, "Treatment"},
		Effect:      0.8,
		Bounds:      dataset.DefaultBounds,
		Seed:        42,
		DropoutRate: 0.1,
	}
}

// Generate produces a deterministic cohort of synthetic participants.
// Pretest scores center mid-scale; posttest scores add the condition
// effect plus noise, clamped to the bounds.
func Generate(opts Options) []dataset.Participant {
	rng := rand.New(rand.NewSource(opts.Seed))
	mid := (opts.Bounds.Lower + opts.Bounds.Upper) / 2

	participants := make([]dataset.Participant, opts.N)
	for i := range participants {
		cond := opts.Conditions[i%len(opts.Conditions)]
		effect := 0.0
		if cond != dataset.ConditionControl {
			effect = opts.Effect
		}

		p := dataset.Participant{
			ID:        core.ParticipantID(fmt.Sprintf("p%03d", i+1)),
			Condition: cond,
			Eligible:  true,
			Returned:  rng.Float64() >= opts.DropoutRate,
			PreItems:  make(map[string]float64, len(ItemLabels)),
			PostItems: make(map[string]float64, len(ItemLabels)),
		}

		baseline := mid + 0.5*rng.NormFloat64()
		for _, item := range ItemLabels {
			pre := clampRound(baseline+0.7*rng.NormFloat64(), opts.Bounds)
			post := clampRound(baseline+effect+0.7*rng.NormFloat64(), opts.Bounds)
			p.PreItems[item] = pre
			p.PostItems[item] = post
			p.Pretest += pre / float64(len(ItemLabels))
			p.Posttest += post / float64(len(ItemLabels))
		}

		participants[i] = p
	}
	return participants
}

// clampRound snaps a latent score onto the discrete response scale.
func clampRound(x float64, b dataset.ScaleBounds) float64 {
	v := float64(int(x + 0.5))
	if v < b.Lower {
		v = b.Lower
	}
	if v > b.Upper {
		v = b.Upper
	}
	return v
}

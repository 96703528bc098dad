package dataset

import (
	"fmt"
	"sort"

	"github.com/derekpowell/cava-rep/domain/core"
)

// Observation is one long-format row: a single response by one participant
// to one item (or the composite aggregate) at one phase.
type Observation struct {
	Participant core.ParticipantID `json:"participant"`
	Condition   Condition          `json:"condition"`
	Phase       Phase              `json:"phase"`
	Item        string             `json:"item"`
	Value       float64            `json:"value"`
}

// LongTable is the long-format representation: one row per
// participant-by-item-by-phase, ordered participant-major then item then
// phase for deterministic downstream model matrices.
type LongTable struct {
	Rows []Observation
}

// Values extracts the response column.
func (t LongTable) Values() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Value
	}
	return out
}

// Items returns the sorted distinct item labels in the table.
func (t LongTable) Items() []string {
	seen := make(map[string]bool)
	for _, r := range t.Rows {
		seen[r.Item] = true
	}
	items := make([]string, 0, len(seen))
	for it := range seen {
		items = append(items, it)
	}
	sort.Strings(items)
	return items
}

// FilterItems returns a new table containing only rows whose item label is
// in keep. The receiver is unchanged.
func (t LongTable) FilterItems(keep func(item string) bool) LongTable {
	rows := make([]Observation, 0, len(t.Rows))
	for _, r := range t.Rows {
		if keep(r.Item) {
			rows = append(rows, r)
		}
	}
	return LongTable{Rows: rows}
}

// Lengthen converts wide participant records to long format. Each
// participant contributes one row per (item, phase) for every item present
// anywhere in the record set, plus one aggregate row per phase from the
// composite pre/posttest scores. A participant missing any item-by-phase
// cell is an incomplete record and aborts the reshape.
func Lengthen(participants []Participant) (LongTable, error) {
	if len(participants) == 0 {
		return LongTable{}, fmt.Errorf("%w: no participants to reshape", core.ErrEmptyData)
	}

	// The item universe is the union across all records, so a participant
	// missing an item someone else answered is caught, not silently dropped.
	universe := make(map[string]bool)
	for _, p := range participants {
		for _, it := range p.Items() {
			universe[it] = true
		}
	}
	items := make([]string, 0, len(universe))
	for it := range universe {
		items = append(items, it)
	}
	sort.Strings(items)

	rows := make([]Observation, 0, len(participants)*(len(items)+1)*2)
	for _, p := range participants {
		rows = append(rows,
			Observation{Participant: p.ID, Condition: p.Condition, Phase: PhasePretest, Item: AggregateItem, Value: p.Pretest},
			Observation{Participant: p.ID, Condition: p.Condition, Phase: PhasePosttest, Item: AggregateItem, Value: p.Posttest},
		)
		for _, it := range items {
			pre, ok := p.PreItems[it]
			if !ok {
				return LongTable{}, core.NewIncompleteRecordError(p.ID, it, string(PhasePretest))
			}
			post, ok := p.PostItems[it]
			if !ok {
				return LongTable{}, core.NewIncompleteRecordError(p.ID, it, string(PhasePosttest))
			}
			rows = append(rows,
				Observation{Participant: p.ID, Condition: p.Condition, Phase: PhasePretest, Item: it, Value: pre},
				Observation{Participant: p.ID, Condition: p.Condition, Phase: PhasePosttest, Item: it, Value: post},
			)
		}
	}
	return LongTable{Rows: rows}, nil
}

// Widen reconstructs wide participant records from a long table, the
// near-inverse of Lengthen: Widen(Lengthen(x)) recovers x up to row and
// column ordering. Duplicate or missing item-by-phase cells are errors.
func Widen(long LongTable) ([]Participant, error) {
	if len(long.Rows) == 0 {
		return nil, fmt.Errorf("%w: no observations to widen", core.ErrEmptyData)
	}

	order := make([]core.ParticipantID, 0)
	byID := make(map[core.ParticipantID]*Participant)
	seen := make(map[string]bool) // participant|item|phase occupancy

	for _, r := range long.Rows {
		p, ok := byID[r.Participant]
		if !ok {
			p = &Participant{
				ID:        r.Participant,
				Condition: r.Condition,
				Eligible:  true,
				Returned:  true,
				PreItems:  make(map[string]float64),
				PostItems: make(map[string]float64),
			}
			byID[r.Participant] = p
			order = append(order, r.Participant)
		}

		cell := fmt.Sprintf("%s|%s|%s", r.Participant, r.Item, r.Phase)
		if seen[cell] {
			return nil, fmt.Errorf("%w: duplicate observation for participant %s item %q phase %s",
				core.ErrIncompleteRecord, r.Participant, r.Item, r.Phase)
		}
		seen[cell] = true

		switch {
		case r.Item == AggregateItem && r.Phase == PhasePretest:
			p.Pretest = r.Value
		case r.Item == AggregateItem && r.Phase == PhasePosttest:
			p.Posttest = r.Value
		case r.Phase == PhasePretest:
			p.PreItems[r.Item] = r.Value
		case r.Phase == PhasePosttest:
			p.PostItems[r.Item] = r.Value
		}
	}

	// Every participant must fill the full item-by-phase cross. When the
	// table carries aggregate rows at all, every participant needs both
	// aggregate cells too, or their composite scores would silently
	// widen to zero.
	items := long.Items()
	hasAggregate := false
	for _, it := range items {
		if it == AggregateItem {
			hasAggregate = true
		}
	}
	out := make([]Participant, 0, len(order))
	for _, id := range order {
		p := byID[id]
		for _, it := range items {
			if it == AggregateItem {
				continue
			}
			if _, ok := p.PreItems[it]; !ok {
				return nil, core.NewIncompleteRecordError(id, it, string(PhasePretest))
			}
			if _, ok := p.PostItems[it]; !ok {
				return nil, core.NewIncompleteRecordError(id, it, string(PhasePosttest))
			}
		}
		if hasAggregate {
			if !seen[fmt.Sprintf("%s|%s|%s", id, AggregateItem, PhasePretest)] {
				return nil, core.NewIncompleteRecordError(id, AggregateItem, string(PhasePretest))
			}
			if !seen[fmt.Sprintf("%s|%s|%s", id, AggregateItem, PhasePosttest)] {
				return nil, core.NewIncompleteRecordError(id, AggregateItem, string(PhasePosttest))
			}
		}
		out = append(out, *p)
	}
	return out, nil
}

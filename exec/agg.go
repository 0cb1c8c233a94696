package exec

import (
	"sort"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/plan"
)

// aggregateSource buffers its input on the first pull, folds every row
// into its group, then emits one row per group in first-appearance
// order. Without a GROUP BY there is exactly one group, emitted even
// when the input is empty.
type aggregateSource struct {
	node  plan.AggregateOp
	input rowSource

	groups []*aggGroup
	loaded bool
	pos    int
}

type aggGroup struct {
	keys   []core.Value
	states []aggState
}

type aggState struct {
	count    int64
	intSum   int64
	floatSum float64
	isFloat  bool
	min, max core.Value
	seen     bool
}

func (s *aggregateSource) next() ([]core.Value, error) {
	if !s.loaded {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	if s.pos >= len(s.groups) {
		return nil, nil
	}
	group := s.groups[s.pos]
	s.pos++

	out := make([]core.Value, 0, len(group.keys)+len(s.node.Aggs))
	out = append(out, group.keys...)
	for i, agg := range s.node.Aggs {
		out = append(out, group.states[i].finalize(agg))
	}
	return out, nil
}

func (s *aggregateSource) load() error {
	s.loaded = true
	index := make(map[string]*aggGroup)

	for {
		row, err := s.input.next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}

		keys := make([]core.Value, len(s.node.GroupBy))
		for i, col := range s.node.GroupBy {
			keys[i] = row[col]
		}
		id := string(core.EncodeRow(keys))

		group := index[id]
		if group == nil {
			group = &aggGroup{keys: keys, states: make([]aggState, len(s.node.Aggs))}
			index[id] = group
			s.groups = append(s.groups, group)
		}
		for i, agg := range s.node.Aggs {
			group.states[i].fold(agg, row)
		}
	}

	if len(s.groups) == 0 && len(s.node.GroupBy) == 0 {
		s.groups = append(s.groups, &aggGroup{states: make([]aggState, len(s.node.Aggs))})
	}
	return nil
}

func (a *aggState) fold(agg plan.Aggregate, row []core.Value) {
	if agg.Col < 0 {
		a.count++ // COUNT(*) counts rows, NULLs included
		return
	}
	value := row[agg.Col]
	if value.IsNull() {
		return
	}
	a.count++

	switch agg.Function {
	case "SUM", "AVG":
		if value.Type() == core.TypeReal {
			a.isFloat = true
		}
		if i, err := value.Int(); err == nil && !a.isFloat {
			a.intSum += i
		}
		if f, err := value.Float(); err == nil {
			a.floatSum += f
		}
	case "MIN":
		if !a.seen || value.Compare(a.min) < 0 {
			a.min = value
		}
	case "MAX":
		if !a.seen || value.Compare(a.max) > 0 {
			a.max = value
		}
	}
	a.seen = true
}

func (a *aggState) finalize(agg plan.Aggregate) core.Value {
	switch agg.Function {
	case "COUNT", "COUNT(*)":
		return core.Integer(a.count)
	case "SUM":
		if a.count == 0 {
			return core.Null()
		}
		if a.isFloat {
			return core.Real(a.floatSum)
		}
		return core.Integer(a.intSum)
	case "AVG":
		if a.count == 0 {
			return core.Null()
		}
		return core.Real(a.floatSum / float64(a.count))
	case "MIN":
		if !a.seen {
			return core.Null()
		}
		return a.min
	case "MAX":
		if !a.seen {
			return core.Null()
		}
		return a.max
	}
	return core.Null()
}

// sortSource buffers its input and emits it ordered by the sort keys.
type sortSource struct {
	node  plan.SortOp
	input rowSource

	rows   [][]core.Value
	loaded bool
	pos    int
}

func (s *sortSource) next() ([]core.Value, error) {
	if !s.loaded {
		s.loaded = true
		for {
			row, err := s.input.next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				break
			}
			s.rows = append(s.rows, row)
		}
		sort.SliceStable(s.rows, func(i, j int) bool {
			for _, key := range s.node.Keys {
				cmp := s.rows[i][key.Col].Compare(s.rows[j][key.Col])
				if cmp == 0 {
					continue
				}
				if key.Descending {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

package exec

import (
	"errors"

	"github.com/zqlite/zqlite-go/btree"
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/op"
	"github.com/zqlite/zqlite-go/plan"
)

// Done reports that a cursor has produced its last row.
var Done = errors.New("no more rows")

// Env supplies the storage a cursor runs against: the transaction's
// store and the catalog opened over it. Interrupted is polled between
// row productions.
type Env struct {
	Catalog     *op.Catalog
	Store       btree.Store
	Interrupted func() bool
}

func (e *Env) interrupted() bool {
	return e.Interrupted != nil && e.Interrupted()
}

type cursorState int

const (
	stateReady cursorState = iota
	stateDone
	stateFailed
)

// Cursor is one execution of a plan. Cursors are single-shot; the
// statement layer builds a new one to re-run after a reset.
type Cursor struct {
	plan  *plan.Plan
	env   *Env
	args  []core.Value
	src   rowSource
	state cursorState

	changes    int64
	lastInsert int64
}

// Run builds a cursor over a compiled plan with the given bindings.
func Run(p *plan.Plan, args []core.Value, env *Env) (*Cursor, error) {
	c := &Cursor{plan: p, env: env, args: args}
	if p.Kind == plan.QueryPlanKind {
		src, err := buildSource(p.Root, args, env)
		if err != nil {
			return nil, err
		}
		c.src = src
	}
	return c, nil
}

// Columns returns the output metadata for query plans.
func (c *Cursor) Columns() []plan.ResultColumn {
	return c.plan.Columns
}

// Changes returns the affected-row count of a completed mutation.
func (c *Cursor) Changes() int64 {
	return c.changes
}

// LastInsertRowid returns the rowid of the last row a completed insert
// produced.
func (c *Cursor) LastInsertRowid() int64 {
	return c.lastInsert
}

// Next produces the following row, or Done. Mutations run in full on
// the first call and yield Done immediately. Calling Next again after
// Done is a usage error.
func (c *Cursor) Next() ([]core.Value, error) {
	switch c.state {
	case stateDone:
		return nil, core.NewError(core.KindUsage, "cursor stepped after done without reset")
	case stateFailed:
		return nil, core.NewError(core.KindUsage, "cursor stepped after error")
	}
	if c.env.interrupted() {
		c.state = stateFailed
		return nil, core.NewError(core.KindInterrupt, "interrupted")
	}

	if c.plan.Kind != plan.QueryPlanKind {
		if err := c.mutate(); err != nil {
			c.state = stateFailed
			return nil, err
		}
		c.state = stateDone
		return nil, Done
	}

	row, err := c.src.next()
	if err != nil {
		c.state = stateFailed
		return nil, err
	}
	if row == nil {
		c.state = stateDone
		return nil, Done
	}
	return row, nil
}

// rowSource is the internal pull interface; next returns (nil, nil) when
// exhausted.
type rowSource interface {
	next() ([]core.Value, error)
}

func buildSource(node plan.Operator, args []core.Value, env *Env) (rowSource, error) {
	switch n := node.(type) {
	case plan.ScanOp:
		tableOp, err := op.GetTable(env.Catalog, env.Store, n.Table.Name)
		if err != nil {
			return nil, err
		}
		rows, err := tableOp.Scan(nil, nil)
		if err != nil {
			return nil, err
		}
		return &scanSource{rows: rows, env: env}, nil

	case plan.IndexLookupOp:
		return buildIndexSource(n, args, env)

	case plan.FilterOp:
		input, err := buildSource(n.Input, args, env)
		if err != nil {
			return nil, err
		}
		return &filterSource{input: input, pred: n.Pred, args: args}, nil

	case plan.JoinOp:
		left, err := buildSource(n.Left, args, env)
		if err != nil {
			return nil, err
		}
		right, err := buildSource(n.Right, args, env)
		if err != nil {
			return nil, err
		}
		return &joinSource{node: n, left: left, right: right}, nil

	case plan.ProjectOp:
		input, err := buildSource(n.Input, args, env)
		if err != nil {
			return nil, err
		}
		return &projectSource{input: input, cols: n.Cols}, nil

	case plan.AggregateOp:
		input, err := buildSource(n.Input, args, env)
		if err != nil {
			return nil, err
		}
		return &aggregateSource{node: n, input: input}, nil

	case plan.SortOp:
		input, err := buildSource(n.Input, args, env)
		if err != nil {
			return nil, err
		}
		return &sortSource{node: n, input: input}, nil

	case plan.LimitOp:
		input, err := buildSource(n.Input, args, env)
		if err != nil {
			return nil, err
		}
		return &limitSource{input: input, limit: n.Limit, offset: n.Offset}, nil

	default:
		return nil, core.Errorf(core.KindInternal, "unknown plan operator %T", node)
	}
}

type scanSource struct {
	rows *op.Rows
	env  *Env
}

func (s *scanSource) next() ([]core.Value, error) {
	if s.env.interrupted() {
		return nil, core.NewError(core.KindInterrupt, "interrupted")
	}
	_, row, ok, err := s.rows.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return row, nil
}

// indexSource resolves the bound range, fetches the matching primary
// keys once, then pulls the rows one by one.
type indexSource struct {
	tableOp *op.TableOp
	keys    []core.Value
	pos     int
}

func buildIndexSource(n plan.IndexLookupOp, args []core.Value, env *Env) (rowSource, error) {
	tableOp, err := op.GetTable(env.Catalog, env.Store, n.Table.Name)
	if err != nil {
		return nil, err
	}

	var lo, hi *core.Value
	if n.Lo != nil {
		v := n.Lo.Resolve(args)
		if v.Type() == core.TypeNull {
			return &indexSource{tableOp: tableOp}, nil // NULL matches nothing
		}
		lo = &v
	}
	if n.Hi != nil {
		v := n.Hi.Resolve(args)
		if v.Type() == core.TypeNull {
			return &indexSource{tableOp: tableOp}, nil
		}
		hi = &v
	}

	keys, err := tableOp.IndexKeys(n.Column, lo, hi, n.LoExcl, n.HiExcl)
	if err != nil {
		return nil, err
	}
	return &indexSource{tableOp: tableOp, keys: keys}, nil
}

func (s *indexSource) next() ([]core.Value, error) {
	for s.pos < len(s.keys) {
		key := s.keys[s.pos]
		s.pos++
		row, found, err := s.tableOp.Get(key)
		if err != nil {
			return nil, err
		}
		if found {
			return row, nil
		}
	}
	return nil, nil
}

type filterSource struct {
	input rowSource
	pred  plan.Predicate
	args  []core.Value
}

func (s *filterSource) next() ([]core.Value, error) {
	for {
		row, err := s.input.next()
		if err != nil || row == nil {
			return nil, err
		}
		match, err := evalPredicate(s.pred, row, s.args)
		if err != nil {
			return nil, err
		}
		if match {
			return row, nil
		}
	}
}

// joinSource materializes the inner side once, then nested-loops over
// it per outer row.
type joinSource struct {
	node  plan.JoinOp
	left  rowSource
	right rowSource

	inner    [][]core.Value
	loaded   bool
	outer    []core.Value
	innerPos int
	matched  bool
}

func (s *joinSource) next() ([]core.Value, error) {
	if !s.loaded {
		for {
			row, err := s.right.next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				break
			}
			s.inner = append(s.inner, row)
		}
		s.loaded = true
	}

	for {
		if s.outer == nil {
			row, err := s.left.next()
			if err != nil || row == nil {
				return nil, err
			}
			s.outer = row
			s.innerPos = 0
			s.matched = false
		}

		for s.innerPos < len(s.inner) {
			inner := s.inner[s.innerPos]
			s.innerPos++
			if sqlEquals(s.outer[s.node.LeftCol], inner[s.node.RightCol]) {
				s.matched = true
				return concatRows(s.outer, inner), nil
			}
		}

		outer := s.outer
		s.outer = nil
		if s.node.Kind == "LEFT" && !s.matched {
			padding := make([]core.Value, s.node.RightLen)
			for i := range padding {
				padding[i] = core.Null()
			}
			return concatRows(outer, padding), nil
		}
	}
}

func concatRows(left, right []core.Value) []core.Value {
	row := make([]core.Value, 0, len(left)+len(right))
	row = append(row, left...)
	return append(row, right...)
}

type projectSource struct {
	input rowSource
	cols  []int
}

func (s *projectSource) next() ([]core.Value, error) {
	row, err := s.input.next()
	if err != nil || row == nil {
		return nil, err
	}
	out := make([]core.Value, len(s.cols))
	for i, col := range s.cols {
		out[i] = row[col]
	}
	return out, nil
}

type limitSource struct {
	input   rowSource
	limit   int
	offset  int
	skipped int
	emitted int
}

func (s *limitSource) next() ([]core.Value, error) {
	for s.skipped < s.offset {
		row, err := s.input.next()
		if err != nil || row == nil {
			return nil, err
		}
		s.skipped++
	}
	if s.limit >= 0 && s.emitted >= s.limit {
		return nil, nil
	}
	row, err := s.input.next()
	if err != nil || row == nil {
		return nil, err
	}
	s.emitted++
	return row, nil
}

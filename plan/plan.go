package plan

import (
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/sql"
)

type PlanKind int

const (
	QueryPlanKind PlanKind = iota
	InsertPlanKind
	UpdatePlanKind
	DeletePlanKind
	CreateTablePlanKind
	DropTablePlanKind
	CreateIndexPlanKind
	DropIndexPlanKind
)

// Plan is a compiled statement. Queries carry an operator tree under
// Root; mutations and DDL carry their own flat fields.
type Plan struct {
	Kind    PlanKind
	Params  int
	Columns []ResultColumn // query output metadata

	Root Operator // queries

	Table   core.Table  // resolved target table (mutations)
	Inserts [][]Operand // one full-width row per VALUES tuple
	Sets    []SetTarget
	Pred    Predicate

	Definition core.Table // CREATE TABLE / CREATE INDEX
	DropName   string     // DROP TABLE / DROP INDEX
}

// ResultColumn describes one output column of a query.
type ResultColumn struct {
	Name string
	Type core.ColumnType
}

// Operand is a literal value or a parameter slot, resolved at step time.
type Operand struct {
	Value core.Value
	Param int // 1-based placeholder number, 0 for a literal
}

// Resolve returns the operand's value given the statement bindings.
// Unbound parameters read as NULL.
func (o Operand) Resolve(args []core.Value) core.Value {
	if o.Param > 0 {
		if o.Param <= len(args) {
			return args[o.Param-1]
		}
		return core.Null()
	}
	return o.Value
}

// SetTarget is one column assignment of an UPDATE.
type SetTarget struct {
	Col   int
	Value Operand
}

// Predicate is a bound WHERE clause: column positions instead of names.
type Predicate struct {
	Conditions []Condition
	Ops        []sql.LogicalOperator
}

func (p Predicate) Empty() bool {
	return len(p.Conditions) == 0
}

type Condition struct {
	Col      int
	Operator sql.WhereOperator
	Value    Operand
	InValues []Operand
	Negated  bool
}

// Operator is a node of the pull tree the execution engine drives.
type Operator interface {
	operatorNode()
}

// ScanOp reads every row of a table in key order.
type ScanOp struct {
	Table core.Table
}

// IndexLookupOp reads the rows whose indexed column falls in a bound
// range, using a secondary index instead of a full scan.
type IndexLookupOp struct {
	Table  core.Table
	Column string
	Lo, Hi *Operand
	LoExcl bool
	HiExcl bool
}

// FilterOp drops rows failing the predicate.
type FilterOp struct {
	Input Operator
	Pred  Predicate
}

// JoinOp is a nested-loop join; output rows are left columns followed by
// right columns. A LEFT join pads unmatched left rows with NULLs.
type JoinOp struct {
	Kind     string // INNER, LEFT
	Left     Operator
	Right    Operator
	LeftCol  int // position in the left row
	RightCol int // position in the right row
	RightLen int // right row width, for NULL padding
}

// ProjectOp narrows rows to the listed column positions.
type ProjectOp struct {
	Input Operator
	Cols  []int
}

// AggregateOp buffers its input and emits one row per group.
type AggregateOp struct {
	Input   Operator
	GroupBy []int
	Aggs    []Aggregate
}

type Aggregate struct {
	Function string // COUNT, COUNT(*), SUM, AVG, MIN, MAX
	Col      int    // -1 for COUNT(*)
}

// SortOp buffers its input and emits rows ordered by the sort keys.
type SortOp struct {
	Input Operator
	Keys  []SortKey
}

type SortKey struct {
	Col        int
	Descending bool
}

// LimitOp passes at most Limit rows after skipping Offset.
type LimitOp struct {
	Input  Operator
	Limit  int // -1 for unbounded
	Offset int
}

func (ScanOp) operatorNode()        {}
func (IndexLookupOp) operatorNode() {}
func (FilterOp) operatorNode()      {}
func (JoinOp) operatorNode()        {}
func (ProjectOp) operatorNode()     {}
func (AggregateOp) operatorNode()   {}
func (SortOp) operatorNode()        {}
func (LimitOp) operatorNode()       {}

package sql

import "github.com/zqlite/zqlite-go/core"

type StatementType int

const (
	SelectStatementType StatementType = iota
	InsertStatementType
	UpdateStatementType
	DeleteStatementType
	CreateTableStatementType
	DropTableStatementType
	CreateIndexStatementType
	DropIndexStatementType
	BeginStatementType
	CommitStatementType
	RollbackStatementType
	VacuumStatementType
)

type Statement interface {
	Type() StatementType
}

// Literal is a typed constant or a positional parameter slot. Param is
// the 1-based placeholder number, or 0 for an inline value.
type Literal struct {
	Value core.Value
	Param int
}

func (l Literal) IsParam() bool {
	return l.Param > 0
}

type SelectStatement struct {
	Table      string
	TableAlias string
	Columns    []string
	Aggregates []AggregateExpr
	CountAll   bool
	Joins      []JoinClause
	Where      WhereClause
	GroupBy    []string
	OrderBy    []OrderByClause
	Limit      int // -1 when absent
	Offset     int
}

type JoinClause struct {
	Kind       string // INNER, LEFT
	Table      string
	TableAlias string
	LeftCol    string
	RightCol   string
}

type AggregateExpr struct {
	Function string // COUNT, SUM, AVG, MIN, MAX
	Column   string
	Alias    string
}

type InsertStatement struct {
	Table   string
	Columns []string
	Rows    [][]Literal
}

type UpdateStatement struct {
	Table string
	Sets  []SetClause
	Where WhereClause
}

type SetClause struct {
	Column string
	Value  Literal
}

type DeleteStatement struct {
	Table string
	Where WhereClause
}

type CreateTableStatement struct {
	Table   string
	Columns []core.Column
}

type DropTableStatement struct {
	Table string
}

type CreateIndexStatement struct {
	Name   string
	Table  string
	Column string
	Unique bool
}

type DropIndexStatement struct {
	Name string
}

type BeginStatement struct{}
type CommitStatement struct{}
type RollbackStatement struct{}
type VacuumStatement struct{}

type WhereClause struct {
	Conditions []WhereCondition
	LogicalOps []LogicalOperator // AND/OR between conditions
}

// Empty reports whether the clause has no conditions.
func (w WhereClause) Empty() bool {
	return len(w.Conditions) == 0
}

type LogicalOperator int

const (
	LogicalAnd LogicalOperator = iota
	LogicalOr
)

type WhereCondition struct {
	Column   string
	Operator WhereOperator
	Value    Literal
	InValues []Literal // for IN
	Negated  bool      // for NOT
}

type WhereOperator int

const (
	EqualsOperator WhereOperator = iota
	NotEqualsOperator
	LessThanOperator
	GreaterThanOperator
	LessThanOrEqualOperator
	GreaterThanOrEqualOperator
	LikeOperator
	IsNullOperator
	IsNotNullOperator
	InOperator
)

type OrderByClause struct {
	Column     string
	Descending bool
}

func (s SelectStatement) Type() StatementType {
	return SelectStatementType
}

func (s InsertStatement) Type() StatementType {
	return InsertStatementType
}

func (s UpdateStatement) Type() StatementType {
	return UpdateStatementType
}

func (s DeleteStatement) Type() StatementType {
	return DeleteStatementType
}

func (s CreateTableStatement) Type() StatementType {
	return CreateTableStatementType
}

func (s DropTableStatement) Type() StatementType {
	return DropTableStatementType
}

func (s CreateIndexStatement) Type() StatementType {
	return CreateIndexStatementType
}

func (s DropIndexStatement) Type() StatementType {
	return DropIndexStatementType
}

func (s BeginStatement) Type() StatementType {
	return BeginStatementType
}

func (s CommitStatement) Type() StatementType {
	return CommitStatementType
}

func (s RollbackStatement) Type() StatementType {
	return RollbackStatementType
}

func (s VacuumStatement) Type() StatementType {
	return VacuumStatementType
}

package db

import (
	"github.com/zqlite/zqlite-go/btree"
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/exec"
	"github.com/zqlite/zqlite-go/op"
	"github.com/zqlite/zqlite-go/plan"
	"github.com/zqlite/zqlite-go/sql"
)

// StepStatus is the outcome of one Step call.
type StepStatus int

const (
	StatusRow StepStatus = iota
	StatusDone
)

// Stmt is a prepared statement: one compiled plan plus its parameter
// bindings, stepped a row at a time. Bindings survive Reset; a
// finalized statement rejects every later call.
type Stmt struct {
	conn     *Conn
	compiled *plan.Plan
	args     []core.Value

	cursor      *exec.Cursor
	catalogRoot *op.Catalog
	row         []core.Value
	implicit    bool
	finalized   bool
}

// Prepare compiles one statement for repeated execution.
func (c *Conn) Prepare(query string) (*Stmt, error) {
	if c.isClosed() {
		return nil, c.fail(core.NewError(core.KindUsage, "connection is closed"))
	}

	parsed, err := sql.NewParser(query).Parse()
	if err != nil {
		return nil, c.fail(err)
	}
	switch parsed.Type() {
	case sql.BeginStatementType, sql.CommitStatementType, sql.RollbackStatementType, sql.VacuumStatementType:
		return nil, c.fail(core.NewError(core.KindUsage, "statement cannot be prepared"))
	}

	catalog, err := op.OpenCatalog(c.currentStore(), c.schemaRoot())
	if err != nil {
		return nil, c.fail(err)
	}
	compiled, err := plan.Compile(parsed, catalog)
	if err != nil {
		return nil, c.fail(err)
	}

	args := make([]core.Value, compiled.Params)
	for i := range args {
		args[i] = core.Null()
	}
	return &Stmt{conn: c, compiled: compiled, args: args}, nil
}

func (s *Stmt) bind(index int, value core.Value) error {
	if s.finalized {
		return s.conn.fail(core.NewError(core.KindUsage, "statement is finalized"))
	}
	if index < 1 || index > len(s.args) {
		return s.conn.fail(core.Errorf(core.KindRange, "bind index %d out of range (1..%d)", index, len(s.args)))
	}
	s.args[index-1] = value
	return nil
}

// BindInt binds an integer to the 1-based parameter slot.
func (s *Stmt) BindInt(index int, value int64) error {
	return s.bind(index, core.Integer(value))
}

func (s *Stmt) BindReal(index int, value float64) error {
	return s.bind(index, core.Real(value))
}

func (s *Stmt) BindText(index int, value string) error {
	return s.bind(index, core.Text(value))
}

func (s *Stmt) BindBlob(index int, value []byte) error {
	return s.bind(index, core.Blob(value))
}

func (s *Stmt) BindNull(index int) error {
	return s.bind(index, core.Null())
}

// Step advances the statement one row. Queries produce StatusRow per
// row and StatusDone after the last; mutations run in full on the
// first call and produce StatusDone.
func (s *Stmt) Step() (StepStatus, error) {
	if s.finalized {
		return StatusDone, s.conn.fail(core.NewError(core.KindUsage, "statement is finalized"))
	}

	if s.cursor == nil {
		if err := s.start(); err != nil {
			return StatusDone, s.conn.fail(err)
		}
	}

	row, err := s.cursor.Next()
	if err == exec.Done {
		return StatusDone, s.conn.fail(s.finish())
	}
	if err != nil {
		s.abort()
		return StatusDone, s.conn.fail(err)
	}
	s.row = row
	return StatusRow, s.conn.fail(nil)
}

func (s *Stmt) start() error {
	conn := s.conn
	var store btree.Store
	if s.compiled.Kind == plan.QueryPlanKind {
		store = conn.currentStore()
	} else {
		current, started, err := conn.manager.Ensure()
		if err != nil {
			return err
		}
		store = current.Store()
		s.implicit = started
	}

	catalog, err := op.OpenCatalog(store, conn.schemaRoot())
	if err != nil {
		s.abort()
		return err
	}
	env := &exec.Env{Catalog: catalog, Store: store, Interrupted: conn.interrupted.Load}
	cursor, err := exec.Run(s.compiled, s.args, env)
	if err != nil {
		s.abort()
		return err
	}
	s.cursor = cursor
	s.catalogRoot = catalog
	return nil
}

// finish settles a completed statement: mutation counters, catalog
// root, and the implicit transaction if this statement started one.
func (s *Stmt) finish() error {
	s.row = nil
	if s.compiled.Kind == plan.QueryPlanKind {
		return nil
	}

	conn := s.conn
	conn.recordMutation(s.cursor, s.compiled)
	if current := conn.manager.Current(); current != nil {
		current.SetRoot(s.catalogRoot.Root())
	}
	if s.implicit {
		s.implicit = false
		if err := conn.manager.Commit(); err != nil {
			conn.manager.Rollback()
			return err
		}
	}
	return nil
}

func (s *Stmt) abort() {
	s.row = nil
	if s.implicit {
		s.implicit = false
		s.conn.manager.Rollback()
	}
}

// Reset rewinds the statement for re-execution. Bindings are kept.
func (s *Stmt) Reset() error {
	if s.finalized {
		return s.conn.fail(core.NewError(core.KindUsage, "statement is finalized"))
	}
	s.abort()
	s.cursor = nil
	return nil
}

// Finalize releases the statement; every call after it is a usage
// error.
func (s *Stmt) Finalize() error {
	if s.finalized {
		return nil
	}
	s.abort()
	s.cursor = nil
	s.finalized = true
	return nil
}

// ColumnCount returns the number of output columns.
func (s *Stmt) ColumnCount() int {
	return len(s.compiled.Columns)
}

// ColumnName returns the name of an output column.
func (s *Stmt) ColumnName(col int) string {
	if col < 0 || col >= len(s.compiled.Columns) {
		return ""
	}
	return s.compiled.Columns[col].Name
}

func (s *Stmt) cell(col int) (core.Value, error) {
	if s.row == nil {
		return core.Null(), core.NewError(core.KindUsage, "no current row")
	}
	if col < 0 || col >= len(s.row) {
		return core.Null(), core.Errorf(core.KindRange, "column %d out of range", col)
	}
	return s.row[col], nil
}

// ColumnType returns the storage type of the current row's column.
func (s *Stmt) ColumnType(col int) core.Type {
	value, err := s.cell(col)
	if err != nil {
		return core.TypeNull
	}
	return value.Type()
}

func (s *Stmt) GetText(col int) (string, error) {
	value, err := s.cell(col)
	if err != nil {
		return "", err
	}
	return value.Text()
}

func (s *Stmt) GetInt(col int) (int64, error) {
	value, err := s.cell(col)
	if err != nil {
		return 0, err
	}
	return value.Int()
}

func (s *Stmt) GetReal(col int) (float64, error) {
	value, err := s.cell(col)
	if err != nil {
		return 0, err
	}
	return value.Float()
}

func (s *Stmt) GetBlob(col int) ([]byte, error) {
	value, err := s.cell(col)
	if err != nil {
		return nil, err
	}
	return value.Blob()
}

package plan

import (
	"testing"

	"github.com/go-git/go-billy/v6/memfs"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/op"
	"github.com/zqlite/zqlite-go/pager"
	"github.com/zqlite/zqlite-go/sql"
)

func testCatalog(t *testing.T) *op.Catalog {
	t.Helper()
	p, err := pager.Open(memfs.New(), "plan.db", pager.Options{})
	if err != nil {
		t.Fatalf("failed to open pager: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	catalog, err := op.CreateCatalog(p)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	if _, err := op.CreateTable(catalog, p, core.Table{
		Name: "users",
		Columns: []core.Column{
			{Name: "id", Type: core.IntegerType, PrimaryKey: true},
			{Name: "name", Type: core.TextType},
			{Name: "age", Type: core.IntegerType},
		},
	}); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := op.CreateTable(catalog, p, core.Table{
		Name: "orders",
		Columns: []core.Column{
			{Name: "id", Type: core.IntegerType, PrimaryKey: true},
			{Name: "user_id", Type: core.IntegerType},
			{Name: "total", Type: core.FloatType},
		},
	}); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if err := op.CreateIndex(catalog, p, "idx_age", "users", "age", false); err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	return catalog
}

func compile(t *testing.T, catalog *op.Catalog, query string) *Plan {
	t.Helper()
	stmt, err := sql.NewParser(query).Parse()
	if err != nil {
		t.Fatalf("parse %q failed: %v", query, err)
	}
	p, err := Compile(stmt, catalog)
	if err != nil {
		t.Fatalf("compile %q failed: %v", query, err)
	}
	return p
}

func compileErr(t *testing.T, catalog *op.Catalog, query string) error {
	t.Helper()
	stmt, err := sql.NewParser(query).Parse()
	if err != nil {
		t.Fatalf("parse %q failed: %v", query, err)
	}
	_, err = Compile(stmt, catalog)
	if err == nil {
		t.Fatalf("compile %q should have failed", query)
	}
	return err
}

func TestCompileSelect(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "SELECT name FROM users WHERE id = 2")
	if p.Kind != QueryPlanKind {
		t.Fatalf("kind %v", p.Kind)
	}
	if len(p.Columns) != 1 || p.Columns[0].Name != "name" || p.Columns[0].Type != core.TextType {
		t.Errorf("columns %+v", p.Columns)
	}

	project, ok := p.Root.(ProjectOp)
	if !ok {
		t.Fatalf("root is %T", p.Root)
	}
	filter, ok := project.Input.(FilterOp)
	if !ok {
		t.Fatalf("below project is %T", project.Input)
	}
	if _, ok := filter.Input.(ScanOp); !ok {
		t.Fatalf("below filter is %T", filter.Input)
	}
	if filter.Pred.Conditions[0].Col != 0 {
		t.Errorf("condition bound to column %d", filter.Pred.Conditions[0].Col)
	}
}

func TestCompileSelectStar(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "SELECT * FROM users")
	if len(p.Columns) != 3 {
		t.Errorf("columns %+v", p.Columns)
	}
	project := p.Root.(ProjectOp)
	if _, ok := project.Input.(ScanOp); !ok {
		t.Errorf("expected bare scan, got %T", project.Input)
	}
}

func TestCompileIndexSelection(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "SELECT name FROM users WHERE age = 30 AND name = 'x'")
	filter := p.Root.(ProjectOp).Input.(FilterOp)
	lookup, ok := filter.Input.(IndexLookupOp)
	if !ok {
		t.Fatalf("expected index lookup, got %T", filter.Input)
	}
	if lookup.Column != "age" || lookup.Lo == nil || lookup.Hi == nil {
		t.Errorf("lookup %+v", lookup)
	}

	// range predicate also drives the index
	p = compile(t, catalog, "SELECT name FROM users WHERE age > 21")
	filter = p.Root.(ProjectOp).Input.(FilterOp)
	lookup, ok = filter.Input.(IndexLookupOp)
	if !ok {
		t.Fatalf("expected index lookup, got %T", filter.Input)
	}
	if lookup.Lo == nil || !lookup.LoExcl || lookup.Hi != nil {
		t.Errorf("lookup %+v", lookup)
	}

	// OR disables index use
	p = compile(t, catalog, "SELECT name FROM users WHERE age = 30 OR id = 1")
	filter = p.Root.(ProjectOp).Input.(FilterOp)
	if _, ok := filter.Input.(ScanOp); !ok {
		t.Errorf("expected scan under OR, got %T", filter.Input)
	}

	// unindexed column scans
	p = compile(t, catalog, "SELECT name FROM users WHERE name = 'x'")
	filter = p.Root.(ProjectOp).Input.(FilterOp)
	if _, ok := filter.Input.(ScanOp); !ok {
		t.Errorf("expected scan, got %T", filter.Input)
	}
}

func TestCompileJoin(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "SELECT u.name, o.total FROM users u INNER JOIN orders o ON u.id = o.user_id")
	if len(p.Columns) != 2 || p.Columns[1].Name != "total" {
		t.Errorf("columns %+v", p.Columns)
	}
	project := p.Root.(ProjectOp)
	join, ok := project.Input.(JoinOp)
	if !ok {
		t.Fatalf("expected join, got %T", project.Input)
	}
	if join.LeftCol != 0 || join.RightCol != 1 || join.RightLen != 3 {
		t.Errorf("join %+v", join)
	}
	// total is column 2 of orders, at offset 3 in the combined row
	if project.Cols[1] != 5 {
		t.Errorf("projection %v", project.Cols)
	}
}

func TestCompileAggregates(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "SELECT COUNT(*) FROM users")
	agg := p.Root.(ProjectOp).Input.(AggregateOp)
	if len(agg.Aggs) != 1 || agg.Aggs[0].Col != -1 {
		t.Errorf("aggregates %+v", agg.Aggs)
	}
	if p.Columns[0].Name != "COUNT(*)" || p.Columns[0].Type != core.IntegerType {
		t.Errorf("columns %+v", p.Columns)
	}

	p = compile(t, catalog, "SELECT name, AVG(age) AS mean FROM users GROUP BY name ORDER BY mean DESC")
	sort := p.Root.(ProjectOp).Input.(SortOp)
	if _, ok := sort.Input.(AggregateOp); !ok {
		t.Fatalf("expected aggregate under sort, got %T", sort.Input)
	}
	if p.Columns[1].Name != "mean" || p.Columns[1].Type != core.FloatType {
		t.Errorf("columns %+v", p.Columns)
	}

	err := compileErr(t, catalog, "SELECT name, COUNT(*) FROM users")
	if !core.IsKind(err, core.KindUnsupported) {
		t.Errorf("expected unsupported error, got %v", err)
	}
}

func TestCompileSchemaErrors(t *testing.T) {
	catalog := testCatalog(t)

	if err := compileErr(t, catalog, "SELECT * FROM missing"); !core.IsKind(err, core.KindSchema) {
		t.Errorf("unknown table: %v", err)
	}
	if err := compileErr(t, catalog, "SELECT nope FROM users"); !core.IsKind(err, core.KindSchema) {
		t.Errorf("unknown column: %v", err)
	}
	if err := compileErr(t, catalog, "INSERT INTO users (id, nope) VALUES (1, 2)"); !core.IsKind(err, core.KindSchema) {
		t.Errorf("unknown insert column: %v", err)
	}
	if err := compileErr(t, catalog, "INSERT INTO users VALUES (1, 'a')"); !core.IsKind(err, core.KindSchema) {
		t.Errorf("arity mismatch: %v", err)
	}
	if err := compileErr(t, catalog, "SELECT id FROM users u INNER JOIN orders o ON u.id = o.id WHERE id = 1"); !core.IsKind(err, core.KindSchema) {
		t.Errorf("ambiguous column: %v", err)
	}
}

func TestCompileInsert(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "INSERT INTO users (name, id) VALUES ('a', 1), (?, ?)")
	if p.Kind != InsertPlanKind || len(p.Inserts) != 2 {
		t.Fatalf("plan %+v", p)
	}
	// listed columns land in schema positions, the rest default to NULL
	row := p.Inserts[0]
	if i, _ := row[0].Value.Int(); i != 1 {
		t.Errorf("id operand %+v", row[0])
	}
	if text, _ := row[1].Value.Text(); text != "a" {
		t.Errorf("name operand %+v", row[1])
	}
	if row[2].Value.Type() != core.TypeNull {
		t.Errorf("age operand %+v", row[2])
	}
	if p.Inserts[1][1].Param != 1 || p.Inserts[1][0].Param != 2 {
		t.Errorf("params %+v", p.Inserts[1])
	}
	if p.Params != 2 {
		t.Errorf("param count %d", p.Params)
	}
}

func TestCompileUpdateDelete(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "UPDATE users SET age = 31 WHERE name = 'x'")
	if p.Kind != UpdatePlanKind || len(p.Sets) != 1 || p.Sets[0].Col != 2 {
		t.Errorf("plan %+v", p)
	}

	p = compile(t, catalog, "DELETE FROM users")
	if p.Kind != DeletePlanKind || !p.Pred.Empty() {
		t.Errorf("plan %+v", p)
	}
}

func TestCompileDDL(t *testing.T) {
	catalog := testCatalog(t)

	p := compile(t, catalog, "CREATE TABLE t (a INTEGER)")
	if p.Kind != CreateTablePlanKind || p.Definition.Name != "t" {
		t.Errorf("plan %+v", p)
	}

	p = compile(t, catalog, "CREATE UNIQUE INDEX idx_name ON users (name)")
	if p.Kind != CreateIndexPlanKind || !p.Definition.Unique || p.Definition.OnColumn != "name" {
		t.Errorf("plan %+v", p)
	}

	if err := compileErr(t, catalog, "CREATE INDEX i ON users (nope)"); !core.IsKind(err, core.KindSchema) {
		t.Errorf("unknown index column: %v", err)
	}

	p = compile(t, catalog, "DROP TABLE orders")
	if p.Kind != DropTablePlanKind || p.DropName != "orders" {
		t.Errorf("plan %+v", p)
	}
}

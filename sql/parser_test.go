package sql

import (
	"testing"

	"github.com/zqlite/zqlite-go/core"
)

func mustParse(t *testing.T, query string) Statement {
	t.Helper()
	stmt, err := NewParser(query).Parse()
	if err != nil {
		t.Fatalf("parse %q failed: %v", query, err)
	}
	return stmt
}

func TestParseCreateTable(t *testing.T) {
	stmt := mustParse(t, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score FLOAT, photo BLOB)")

	create, ok := stmt.(CreateTableStatement)
	if !ok {
		t.Fatalf("expected CreateTableStatement, got %T", stmt)
	}
	if create.Table != "users" {
		t.Errorf("table %q", create.Table)
	}
	if len(create.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(create.Columns))
	}
	if !create.Columns[0].PrimaryKey || create.Columns[0].Type != core.IntegerType {
		t.Errorf("id column parsed as %+v", create.Columns[0])
	}
	if !create.Columns[1].NotNull || create.Columns[1].Type != core.TextType {
		t.Errorf("name column parsed as %+v", create.Columns[1])
	}
	if create.Columns[2].Type != core.FloatType || create.Columns[3].Type != core.BlobType {
		t.Errorf("column types parsed as %v %v", create.Columns[2].Type, create.Columns[3].Type)
	}
}

func TestParseInsertMultiRow(t *testing.T) {
	stmt := mustParse(t, "INSERT INTO t (id, v) VALUES (1, 'a'), (2, 'b')")

	insert, ok := stmt.(InsertStatement)
	if !ok {
		t.Fatalf("expected InsertStatement, got %T", stmt)
	}
	if insert.Table != "t" || len(insert.Columns) != 2 || len(insert.Rows) != 2 {
		t.Fatalf("parsed %+v", insert)
	}
	if insert.Rows[0][0].Value.Type() != core.TypeInteger {
		t.Errorf("first value type %v", insert.Rows[0][0].Value.Type())
	}
	text, err := insert.Rows[1][1].Value.Text()
	if err != nil || text != "b" {
		t.Errorf("second row text %q, %v", text, err)
	}
}

func TestParseInsertPlaceholders(t *testing.T) {
	parser := NewParser("INSERT INTO t VALUES (?, ?)")
	stmt, err := parser.Parse()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	insert := stmt.(InsertStatement)
	if insert.Rows[0][0].Param != 1 || insert.Rows[0][1].Param != 2 {
		t.Errorf("placeholders numbered %d, %d", insert.Rows[0][0].Param, insert.Rows[0][1].Param)
	}
	if parser.ParamCount() != 2 {
		t.Errorf("param count %d", parser.ParamCount())
	}
}

func TestParseSelectWhere(t *testing.T) {
	stmt := mustParse(t, "SELECT v FROM t WHERE id = 2")

	sel, ok := stmt.(SelectStatement)
	if !ok {
		t.Fatalf("expected SelectStatement, got %T", stmt)
	}
	if len(sel.Columns) != 1 || sel.Columns[0] != "v" || sel.Table != "t" {
		t.Fatalf("parsed %+v", sel)
	}
	if len(sel.Where.Conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(sel.Where.Conditions))
	}
	cond := sel.Where.Conditions[0]
	if cond.Column != "id" || cond.Operator != EqualsOperator {
		t.Errorf("condition %+v", cond)
	}
	i, err := cond.Value.Value.Int()
	if err != nil || i != 2 {
		t.Errorf("condition value %d, %v", i, err)
	}
}

func TestParseSelectFullClause(t *testing.T) {
	stmt := mustParse(t, "SELECT a, b FROM t WHERE a > 1 AND b IS NOT NULL OR a IN (1, 2, 3) ORDER BY a DESC, b LIMIT 10 OFFSET 5")

	sel := stmt.(SelectStatement)
	if len(sel.Where.Conditions) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(sel.Where.Conditions))
	}
	if sel.Where.LogicalOps[0] != LogicalAnd || sel.Where.LogicalOps[1] != LogicalOr {
		t.Errorf("logical ops %v", sel.Where.LogicalOps)
	}
	if sel.Where.Conditions[1].Operator != IsNotNullOperator {
		t.Errorf("second condition %+v", sel.Where.Conditions[1])
	}
	if len(sel.Where.Conditions[2].InValues) != 3 {
		t.Errorf("IN values %+v", sel.Where.Conditions[2].InValues)
	}
	if len(sel.OrderBy) != 2 || !sel.OrderBy[0].Descending || sel.OrderBy[1].Descending {
		t.Errorf("order by %+v", sel.OrderBy)
	}
	if sel.Limit != 10 || sel.Offset != 5 {
		t.Errorf("limit %d offset %d", sel.Limit, sel.Offset)
	}
}

func TestParseNegatedOperators(t *testing.T) {
	stmt := mustParse(t, "SELECT * FROM t WHERE v NOT IN (1, 2) AND name NOT LIKE 'a%'")

	sel := stmt.(SelectStatement)
	if len(sel.Where.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(sel.Where.Conditions))
	}
	first := sel.Where.Conditions[0]
	if !first.Negated || first.Operator != InOperator || len(first.InValues) != 2 {
		t.Errorf("NOT IN parsed as %+v", first)
	}
	second := sel.Where.Conditions[1]
	if !second.Negated || second.Operator != LikeOperator {
		t.Errorf("NOT LIKE parsed as %+v", second)
	}

	if _, err := NewParser("SELECT * FROM t WHERE v NOT > 1").Parse(); err == nil {
		t.Error("NOT before a comparison operator should not parse")
	}
}

func TestParseSelectAggregates(t *testing.T) {
	stmt := mustParse(t, "SELECT COUNT(*) FROM t")
	if sel := stmt.(SelectStatement); !sel.CountAll {
		t.Errorf("parsed %+v", sel)
	}

	stmt = mustParse(t, "SELECT dept, SUM(salary) AS total FROM emp GROUP BY dept")
	sel := stmt.(SelectStatement)
	if len(sel.Aggregates) != 1 || sel.Aggregates[0].Function != "SUM" || sel.Aggregates[0].Alias != "total" {
		t.Errorf("aggregates %+v", sel.Aggregates)
	}
	if len(sel.GroupBy) != 1 || sel.GroupBy[0] != "dept" {
		t.Errorf("group by %v", sel.GroupBy)
	}
}

func TestParseSelectJoin(t *testing.T) {
	stmt := mustParse(t, "SELECT u.name, o.total FROM users u INNER JOIN orders o ON u.id = o.user_id")

	sel := stmt.(SelectStatement)
	if sel.TableAlias != "u" {
		t.Errorf("alias %q", sel.TableAlias)
	}
	if len(sel.Joins) != 1 {
		t.Fatalf("joins %+v", sel.Joins)
	}
	join := sel.Joins[0]
	if join.Kind != "INNER" || join.Table != "orders" || join.TableAlias != "o" {
		t.Errorf("join %+v", join)
	}
	if join.LeftCol != "u.id" || join.RightCol != "o.user_id" {
		t.Errorf("join columns %q = %q", join.LeftCol, join.RightCol)
	}
}

func TestParseLeftJoin(t *testing.T) {
	stmt := mustParse(t, "SELECT * FROM a LEFT JOIN b ON a.id = b.aid")
	sel := stmt.(SelectStatement)
	if len(sel.Joins) != 1 || sel.Joins[0].Kind != "LEFT" {
		t.Errorf("joins %+v", sel.Joins)
	}
}

func TestParseUpdateDelete(t *testing.T) {
	stmt := mustParse(t, "UPDATE t SET v = 'x', n = 3 WHERE id = ?")
	update := stmt.(UpdateStatement)
	if len(update.Sets) != 2 || update.Sets[0].Column != "v" {
		t.Errorf("sets %+v", update.Sets)
	}
	if !update.Where.Conditions[0].Value.IsParam() {
		t.Error("expected placeholder in WHERE")
	}

	stmt = mustParse(t, "DELETE FROM t WHERE id > 10")
	del := stmt.(DeleteStatement)
	if del.Table != "t" || del.Where.Empty() {
		t.Errorf("parsed %+v", del)
	}
}

func TestParseIndexStatements(t *testing.T) {
	stmt := mustParse(t, "CREATE UNIQUE INDEX idx_email ON users (email)")
	create := stmt.(CreateIndexStatement)
	if !create.Unique || create.Name != "idx_email" || create.Table != "users" || create.Column != "email" {
		t.Errorf("parsed %+v", create)
	}

	stmt = mustParse(t, "DROP INDEX idx_email")
	if drop := stmt.(DropIndexStatement); drop.Name != "idx_email" {
		t.Errorf("parsed %+v", drop)
	}
}

func TestParseTransactionStatements(t *testing.T) {
	if _, ok := mustParse(t, "BEGIN").(BeginStatement); !ok {
		t.Error("BEGIN not parsed")
	}
	if _, ok := mustParse(t, "COMMIT;").(CommitStatement); !ok {
		t.Error("COMMIT not parsed")
	}
	if _, ok := mustParse(t, "rollback").(RollbackStatement); !ok {
		t.Error("ROLLBACK not parsed")
	}
	if _, ok := mustParse(t, "VACUUM").(VacuumStatement); !ok {
		t.Error("VACUUM not parsed")
	}
}

func TestParseNegativeNumbers(t *testing.T) {
	stmt := mustParse(t, "INSERT INTO t VALUES (-5, -2.5)")
	insert := stmt.(InsertStatement)
	i, _ := insert.Rows[0][0].Value.Int()
	if i != -5 {
		t.Errorf("integer %d", i)
	}
	f, _ := insert.Rows[0][1].Value.Float()
	if f != -2.5 {
		t.Errorf("float %v", f)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	bad := []string{
		"",
		"SELEC * FROM t",
		"SELECT FROM t",
		"SELECT * FROM",
		"INSERT t VALUES (1)",
		"INSERT INTO t VALUES 1",
		"CREATE TABLE t",
		"CREATE TABLE t ()",
		"UPDATE t WHERE id = 1",
		"DELETE t WHERE id = 1",
		"SELECT * FROM t WHERE id ==",
		"SELECT * FROM t LIMIT abc",
		"SELECT * FROM t; extra",
	}
	for _, query := range bad {
		_, err := NewParser(query).Parse()
		if err == nil {
			t.Errorf("expected syntax error for %q", query)
			continue
		}
		if !core.IsKind(err, core.KindSyntax) {
			t.Errorf("expected syntax kind for %q, got %v", query, err)
		}
	}
}

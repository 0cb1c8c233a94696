package plan

import (
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/op"
	"github.com/zqlite/zqlite-go/sql"
)

// Compile binds a parsed statement against the catalog and lowers it to
// an executable plan. BEGIN/COMMIT/ROLLBACK/VACUUM never reach the
// planner; the connection handles them directly.
func Compile(stmt sql.Statement, catalog *op.Catalog) (*Plan, error) {
	c := &compiler{catalog: catalog}

	var p *Plan
	var err error
	switch s := stmt.(type) {
	case sql.SelectStatement:
		p, err = c.compileSelect(s)
	case sql.InsertStatement:
		p, err = c.compileInsert(s)
	case sql.UpdateStatement:
		p, err = c.compileUpdate(s)
	case sql.DeleteStatement:
		p, err = c.compileDelete(s)
	case sql.CreateTableStatement:
		p = &Plan{Kind: CreateTablePlanKind, Definition: core.Table{Name: s.Table, Columns: s.Columns}}
	case sql.DropTableStatement:
		p, err = c.compileDropTable(s)
	case sql.CreateIndexStatement:
		p, err = c.compileCreateIndex(s)
	case sql.DropIndexStatement:
		p = &Plan{Kind: DropIndexPlanKind, DropName: s.Name}
	default:
		return nil, core.Errorf(core.KindUnsupported, "cannot plan this statement")
	}
	if err != nil {
		return nil, err
	}
	p.Params = c.params
	return p, nil
}

type compiler struct {
	catalog *op.Catalog
	params  int
}

// scopeCol is one visible column during name resolution.
type scopeCol struct {
	qualifiers []string // alias and table name
	name       string
	typ        core.ColumnType
}

func tableScope(table core.Table, alias string) []scopeCol {
	quals := []string{table.Name}
	if alias != "" && alias != table.Name {
		quals = append(quals, alias)
	}
	scope := make([]scopeCol, len(table.Columns))
	for i, col := range table.Columns {
		scope[i] = scopeCol{qualifiers: quals, name: col.Name, typ: col.Type}
	}
	return scope
}

// resolve finds a possibly qualified column name in the scope.
func resolve(scope []scopeCol, name string) (int, error) {
	qualifier := ""
	bare := name
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			qualifier = name[:i]
			bare = name[i+1:]
			break
		}
	}

	found := -1
	for i, col := range scope {
		if col.name != bare {
			continue
		}
		if qualifier != "" && !hasQualifier(col, qualifier) {
			continue
		}
		if found >= 0 {
			return 0, core.Errorf(core.KindSchema, "ambiguous column name: %s", name)
		}
		found = i
	}
	if found < 0 {
		return 0, core.Errorf(core.KindSchema, "no such column: %s", name)
	}
	return found, nil
}

func hasQualifier(col scopeCol, qualifier string) bool {
	for _, q := range col.qualifiers {
		if q == qualifier {
			return true
		}
	}
	return false
}

func (c *compiler) operand(lit sql.Literal) Operand {
	if lit.Param > c.params {
		c.params = lit.Param
	}
	return Operand{Value: lit.Value, Param: lit.Param}
}

func (c *compiler) predicate(where sql.WhereClause, scope []scopeCol) (Predicate, error) {
	pred := Predicate{Ops: where.LogicalOps}
	for _, cond := range where.Conditions {
		col, err := resolve(scope, cond.Column)
		if err != nil {
			return Predicate{}, err
		}
		bound := Condition{
			Col:      col,
			Operator: cond.Operator,
			Value:    c.operand(cond.Value),
			Negated:  cond.Negated,
		}
		for _, in := range cond.InValues {
			bound.InValues = append(bound.InValues, c.operand(in))
		}
		pred.Conditions = append(pred.Conditions, bound)
	}
	return pred, nil
}

func (c *compiler) compileSelect(s sql.SelectStatement) (*Plan, error) {
	table, err := c.catalog.Get(s.Table)
	if err != nil {
		return nil, err
	}
	if table.IsIndex {
		return nil, core.Errorf(core.KindSchema, "%s is an index, not a table", s.Table)
	}
	scope := tableScope(*table, s.TableAlias)
	var root Operator = ScanOp{Table: *table}

	for _, join := range s.Joins {
		right, err := c.catalog.Get(join.Table)
		if err != nil {
			return nil, err
		}
		if right.IsIndex {
			return nil, core.Errorf(core.KindSchema, "%s is an index, not a table", join.Table)
		}
		rightScope := tableScope(*right, join.TableAlias)

		// the ON columns may be written in either order
		leftIdx, leftErr := resolve(scope, join.LeftCol)
		rightIdx, rightErr := resolve(rightScope, join.RightCol)
		if leftErr != nil || rightErr != nil {
			leftIdx, leftErr = resolve(scope, join.RightCol)
			rightIdx, rightErr = resolve(rightScope, join.LeftCol)
			if leftErr != nil || rightErr != nil {
				return nil, core.Errorf(core.KindSchema, "cannot resolve join condition %s = %s", join.LeftCol, join.RightCol)
			}
		}

		root = JoinOp{
			Kind:     join.Kind,
			Left:     root,
			Right:    ScanOp{Table: *right},
			LeftCol:  leftIdx,
			RightCol: rightIdx,
			RightLen: len(right.Columns),
		}
		scope = append(scope, rightScope...)
	}

	var pred Predicate
	if !s.Where.Empty() {
		pred, err = c.predicate(s.Where, scope)
		if err != nil {
			return nil, err
		}
	}

	// a single-table conjunctive predicate can drive an index
	if len(s.Joins) == 0 && !pred.Empty() {
		if lookup, ok := c.chooseIndex(*table, pred); ok {
			root = lookup
		}
	}
	if !pred.Empty() {
		root = FilterOp{Input: root, Pred: pred}
	}

	if s.CountAll || len(s.Aggregates) > 0 {
		return c.compileAggregateSelect(s, *table, scope, root)
	}

	// plain projection
	var cols []int
	var out []ResultColumn
	if len(s.Columns) == 0 {
		for i, col := range scope {
			cols = append(cols, i)
			out = append(out, ResultColumn{Name: col.name, Type: col.typ})
		}
	} else {
		for _, name := range s.Columns {
			i, err := resolve(scope, name)
			if err != nil {
				return nil, err
			}
			cols = append(cols, i)
			out = append(out, ResultColumn{Name: scope[i].name, Type: scope[i].typ})
		}
	}

	if len(s.OrderBy) > 0 {
		var keys []SortKey
		for _, clause := range s.OrderBy {
			i, err := resolve(scope, clause.Column)
			if err != nil {
				return nil, err
			}
			keys = append(keys, SortKey{Col: i, Descending: clause.Descending})
		}
		root = SortOp{Input: root, Keys: keys}
	}

	root = ProjectOp{Input: root, Cols: cols}

	if s.Limit >= 0 || s.Offset > 0 {
		root = LimitOp{Input: root, Limit: s.Limit, Offset: s.Offset}
	}

	return &Plan{Kind: QueryPlanKind, Root: root, Columns: out}, nil
}

func (c *compiler) compileAggregateSelect(s sql.SelectStatement, table core.Table, scope []scopeCol, input Operator) (*Plan, error) {
	var groupBy []int
	for _, name := range s.GroupBy {
		i, err := resolve(scope, name)
		if err != nil {
			return nil, err
		}
		groupBy = append(groupBy, i)
	}

	// bare columns are only legal when grouped by
	var plainPos []int // position within groupBy
	for _, name := range s.Columns {
		i, err := resolve(scope, name)
		if err != nil {
			return nil, err
		}
		pos := -1
		for g, col := range groupBy {
			if col == i {
				pos = g
				break
			}
		}
		if pos < 0 {
			return nil, core.Errorf(core.KindUnsupported, "column %s must appear in GROUP BY", name)
		}
		plainPos = append(plainPos, pos)
	}

	var aggs []Aggregate
	var aggCols []ResultColumn
	if s.CountAll {
		aggs = append(aggs, Aggregate{Function: "COUNT", Col: -1})
		aggCols = append(aggCols, ResultColumn{Name: "COUNT(*)", Type: core.IntegerType})
	}
	for _, agg := range s.Aggregates {
		i, err := resolve(scope, agg.Column)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, Aggregate{Function: agg.Function, Col: i})

		name := agg.Alias
		if name == "" {
			name = agg.Function + "(" + scope[i].name + ")"
		}
		typ := scope[i].typ
		switch agg.Function {
		case "COUNT":
			typ = core.IntegerType
		case "AVG":
			typ = core.FloatType
		}
		aggCols = append(aggCols, ResultColumn{Name: name, Type: typ})
	}

	root := Operator(AggregateOp{Input: input, GroupBy: groupBy, Aggs: aggs})

	// aggregate output: group columns in GROUP BY order, then aggregates
	var cols []int
	var out []ResultColumn
	for k, pos := range plainPos {
		cols = append(cols, pos)
		i, _ := resolve(scope, s.Columns[k])
		out = append(out, ResultColumn{Name: scope[i].name, Type: scope[i].typ})
	}
	for a, col := range aggCols {
		cols = append(cols, len(groupBy)+a)
		out = append(out, col)
	}

	if len(s.OrderBy) > 0 {
		var keys []SortKey
		for _, clause := range s.OrderBy {
			pos := -1
			for i, col := range out {
				if col.Name == clause.Column {
					pos = cols[i]
					break
				}
			}
			if pos < 0 {
				return nil, core.Errorf(core.KindUnsupported, "ORDER BY %s is not in the select list", clause.Column)
			}
			keys = append(keys, SortKey{Col: pos, Descending: clause.Descending})
		}
		root = SortOp{Input: root, Keys: keys}
	}

	root = ProjectOp{Input: root, Cols: cols}

	if s.Limit >= 0 || s.Offset > 0 {
		root = LimitOp{Input: root, Limit: s.Limit, Offset: s.Offset}
	}

	return &Plan{Kind: QueryPlanKind, Root: root, Columns: out}, nil
}

// chooseIndex converts the first usable AND-joined comparison on an
// indexed column into an index lookup. The filter above re-checks the
// full predicate, so over-approximation is safe.
func (c *compiler) chooseIndex(table core.Table, pred Predicate) (Operator, bool) {
	for _, op := range pred.Ops {
		if op != sql.LogicalAnd {
			return nil, false
		}
	}
	indexes, err := c.catalog.IndexesOn(table.Name)
	if err != nil || len(indexes) == 0 {
		return nil, false
	}
	indexed := map[string]bool{}
	for _, idx := range indexes {
		indexed[idx.OnColumn] = true
	}

	for _, cond := range pred.Conditions {
		if cond.Negated || !indexed[table.Columns[cond.Col].Name] {
			continue
		}
		column := table.Columns[cond.Col].Name
		value := cond.Value
		switch cond.Operator {
		case sql.EqualsOperator:
			return IndexLookupOp{Table: table, Column: column, Lo: &value, Hi: &value}, true
		case sql.LessThanOperator:
			return IndexLookupOp{Table: table, Column: column, Hi: &value, HiExcl: true}, true
		case sql.LessThanOrEqualOperator:
			return IndexLookupOp{Table: table, Column: column, Hi: &value}, true
		case sql.GreaterThanOperator:
			return IndexLookupOp{Table: table, Column: column, Lo: &value, LoExcl: true}, true
		case sql.GreaterThanOrEqualOperator:
			return IndexLookupOp{Table: table, Column: column, Lo: &value}, true
		}
	}
	return nil, false
}

func (c *compiler) compileInsert(s sql.InsertStatement) (*Plan, error) {
	table, err := c.catalog.Get(s.Table)
	if err != nil {
		return nil, err
	}
	if table.IsIndex {
		return nil, core.Errorf(core.KindSchema, "%s is an index, not a table", s.Table)
	}

	// map listed column names to positions; no list means all columns
	positions := make([]int, 0, len(table.Columns))
	if len(s.Columns) == 0 {
		for i := range table.Columns {
			positions = append(positions, i)
		}
	} else {
		seen := map[int]bool{}
		for _, name := range s.Columns {
			i := table.ColumnIndex(name)
			if i < 0 {
				return nil, core.Errorf(core.KindSchema, "table %s has no column named %s", s.Table, name)
			}
			if seen[i] {
				return nil, core.Errorf(core.KindSchema, "duplicate column name: %s", name)
			}
			seen[i] = true
			positions = append(positions, i)
		}
	}

	p := &Plan{Kind: InsertPlanKind, Table: *table}
	for _, row := range s.Rows {
		if len(row) != len(positions) {
			return nil, core.Errorf(core.KindSchema, "%d values for %d columns", len(row), len(positions))
		}
		full := make([]Operand, len(table.Columns))
		for i := range full {
			full[i] = Operand{Value: core.Null()}
		}
		for i, lit := range row {
			full[positions[i]] = c.operand(lit)
		}
		p.Inserts = append(p.Inserts, full)
	}
	return p, nil
}

func (c *compiler) compileUpdate(s sql.UpdateStatement) (*Plan, error) {
	table, err := c.catalog.Get(s.Table)
	if err != nil {
		return nil, err
	}
	if table.IsIndex {
		return nil, core.Errorf(core.KindSchema, "%s is an index, not a table", s.Table)
	}
	scope := tableScope(*table, "")

	p := &Plan{Kind: UpdatePlanKind, Table: *table}
	for _, set := range s.Sets {
		col, err := resolve(scope, set.Column)
		if err != nil {
			return nil, err
		}
		p.Sets = append(p.Sets, SetTarget{Col: col, Value: c.operand(set.Value)})
	}
	if !s.Where.Empty() {
		p.Pred, err = c.predicate(s.Where, scope)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (c *compiler) compileDelete(s sql.DeleteStatement) (*Plan, error) {
	table, err := c.catalog.Get(s.Table)
	if err != nil {
		return nil, err
	}
	if table.IsIndex {
		return nil, core.Errorf(core.KindSchema, "%s is an index, not a table", s.Table)
	}

	p := &Plan{Kind: DeletePlanKind, Table: *table}
	if !s.Where.Empty() {
		p.Pred, err = c.predicate(s.Where, tableScope(*table, ""))
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (c *compiler) compileDropTable(s sql.DropTableStatement) (*Plan, error) {
	table, err := c.catalog.Get(s.Table)
	if err != nil {
		return nil, err
	}
	if table.IsIndex {
		return nil, core.Errorf(core.KindSchema, "use DROP INDEX to drop %s", s.Table)
	}
	return &Plan{Kind: DropTablePlanKind, DropName: s.Table}, nil
}

func (c *compiler) compileCreateIndex(s sql.CreateIndexStatement) (*Plan, error) {
	table, err := c.catalog.Get(s.Table)
	if err != nil {
		return nil, err
	}
	if table.ColumnIndex(s.Column) < 0 {
		return nil, core.Errorf(core.KindSchema, "no such column: %s.%s", s.Table, s.Column)
	}
	return &Plan{
		Kind: CreateIndexPlanKind,
		Definition: core.Table{
			Name:     s.Name,
			IsIndex:  true,
			OnTable:  s.Table,
			OnColumn: s.Column,
			Unique:   s.Unique,
		},
	}, nil
}

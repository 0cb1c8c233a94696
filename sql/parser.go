package sql

import (
	"strconv"

	"github.com/zqlite/zqlite-go/core"
)

type Parser struct {
	lexer  *Lexer
	params int
}

func NewParser(sql string) *Parser {
	lexer := NewLexer(sql)
	return &Parser{lexer: lexer}
}

// ParamCount returns how many `?` placeholders the parsed statement uses.
// Valid after Parse returns.
func (parser *Parser) ParamCount() int {
	return parser.params
}

func (parser *Parser) errorf(format string, args ...any) error {
	return core.Errorf(core.KindSyntax, format+" at position %d", append(args, parser.lexer.Position())...)
}

func (parser *Parser) Parse() (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case Select:
		return ParseSelect(parser)
	case Insert:
		return ParseInsert(parser)
	case Update:
		return ParseUpdate(parser)
	case Delete:
		return ParseDelete(parser)
	case Create:
		return ParseCreate(parser)
	case Drop:
		return ParseDrop(parser)
	case Begin:
		return BeginStatement{}, parser.expectEnd()
	case Commit:
		return CommitStatement{}, parser.expectEnd()
	case Rollback:
		return RollbackStatement{}, parser.expectEnd()
	case Vacuum:
		return VacuumStatement{}, parser.expectEnd()
	case EOF:
		return nil, parser.errorf("empty statement")
	default:
		return nil, parser.errorf("unexpected %s", token)
	}
}

// expectEnd consumes an optional trailing semicolon and requires EOF.
func (parser *Parser) expectEnd() error {
	token := parser.lexer.NextToken()
	if token.Type == Semicolon {
		token = parser.lexer.NextToken()
	}
	if token.Type != EOF {
		return parser.errorf("unexpected %s after statement", token)
	}
	return nil
}

func (parser *Parser) isEnd(token Token) bool {
	if token.Type == Semicolon {
		token = parser.lexer.NextToken()
	}
	return token.Type == EOF
}

// parseLiteral turns a single token into a typed literal. Placeholders
// are numbered in order of appearance.
func (parser *Parser) parseLiteral(token Token) (Literal, error) {
	switch token.Type {
	case String:
		return Literal{Value: core.Text(token.Value)}, nil
	case Int:
		i, err := strconv.ParseInt(token.Value, 10, 64)
		if err != nil {
			return Literal{}, parser.errorf("bad integer %q", token.Value)
		}
		return Literal{Value: core.Integer(i)}, nil
	case Float:
		f, err := strconv.ParseFloat(token.Value, 64)
		if err != nil {
			return Literal{}, parser.errorf("bad number %q", token.Value)
		}
		return Literal{Value: core.Real(f)}, nil
	case Null:
		return Literal{Value: core.Null()}, nil
	case True:
		return Literal{Value: core.Integer(1)}, nil
	case False:
		return Literal{Value: core.Integer(0)}, nil
	case Placeholder:
		parser.params++
		return Literal{Param: parser.params}, nil
	default:
		return Literal{}, parser.errorf("expected a value, got %s", token)
	}
}

func ParseSelect(parser *Parser) (Statement, error) {
	selectStatement := SelectStatement{Limit: -1}

	token := parser.lexer.NextToken()

	// projection list: *, aggregates, or plain columns
	switch {
	case token.Type == Wildcard:
		token = parser.lexer.NextToken()
	case isAggregate(token.Type):
		for {
			agg, next, err := parseAggregate(parser, token)
			if err != nil {
				return nil, err
			}
			if agg.Function == "COUNT" && agg.Column == "*" {
				selectStatement.CountAll = true
			} else {
				selectStatement.Aggregates = append(selectStatement.Aggregates, agg)
			}
			token = next
			if token.Type != Comma {
				break
			}
			token = parser.lexer.NextToken()
			if !isAggregate(token.Type) && token.Type != Identifier {
				return nil, parser.errorf("expected aggregate or column, got %s", token)
			}
			if token.Type == Identifier {
				selectStatement.Columns = append(selectStatement.Columns, token.Value)
				token = parser.lexer.NextToken()
				for token.Type == Comma {
					token = parser.lexer.NextToken()
					if token.Type != Identifier {
						return nil, parser.errorf("expected column name, got %s", token)
					}
					selectStatement.Columns = append(selectStatement.Columns, token.Value)
					token = parser.lexer.NextToken()
				}
				break
			}
		}
	case token.Type == Identifier:
		selectStatement.Columns = append(selectStatement.Columns, token.Value)
		token = parser.lexer.NextToken()
		for token.Type == Comma {
			token = parser.lexer.NextToken()
			if token.Type == Identifier {
				selectStatement.Columns = append(selectStatement.Columns, token.Value)
				token = parser.lexer.NextToken()
			} else if isAggregate(token.Type) {
				agg, next, err := parseAggregate(parser, token)
				if err != nil {
					return nil, err
				}
				if agg.Function == "COUNT" && agg.Column == "*" {
					selectStatement.CountAll = true
				} else {
					selectStatement.Aggregates = append(selectStatement.Aggregates, agg)
				}
				token = next
			} else {
				return nil, parser.errorf("expected column name, got %s", token)
			}
		}
	default:
		return nil, parser.errorf("expected projection, got %s", token)
	}

	if token.Type != From {
		return nil, parser.errorf("expected FROM, got %s", token)
	}
	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected table name, got %s", token)
	}
	selectStatement.Table = token.Value

	token = parser.lexer.NextToken()

	// optional alias
	if token.Type == As {
		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return nil, parser.errorf("expected alias after AS, got %s", token)
		}
		selectStatement.TableAlias = token.Value
		token = parser.lexer.NextToken()
	} else if token.Type == Identifier {
		selectStatement.TableAlias = token.Value
		token = parser.lexer.NextToken()
	}

	// joins
	for token.Type == Inner || token.Type == Left || token.Type == Join {
		join, next, err := parseJoin(parser, token)
		if err != nil {
			return nil, err
		}
		selectStatement.Joins = append(selectStatement.Joins, join)
		token = next
	}

	if token.Type == Where {
		where, next, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		selectStatement.Where = where
		token = next
	}

	if token.Type == Group {
		token = parser.lexer.NextToken()
		if token.Type != By {
			return nil, parser.errorf("expected BY after GROUP, got %s", token)
		}
		for {
			token = parser.lexer.NextToken()
			if token.Type != Identifier {
				return nil, parser.errorf("expected column in GROUP BY, got %s", token)
			}
			selectStatement.GroupBy = append(selectStatement.GroupBy, token.Value)
			token = parser.lexer.NextToken()
			if token.Type != Comma {
				break
			}
		}
	}

	if token.Type == Order {
		token = parser.lexer.NextToken()
		if token.Type != By {
			return nil, parser.errorf("expected BY after ORDER, got %s", token)
		}
		for {
			token = parser.lexer.NextToken()
			if token.Type != Identifier {
				return nil, parser.errorf("expected column in ORDER BY, got %s", token)
			}
			clause := OrderByClause{Column: token.Value}
			token = parser.lexer.NextToken()
			if token.Type == Asc {
				token = parser.lexer.NextToken()
			} else if token.Type == Desc {
				clause.Descending = true
				token = parser.lexer.NextToken()
			}
			selectStatement.OrderBy = append(selectStatement.OrderBy, clause)
			if token.Type != Comma {
				break
			}
		}
	}

	if token.Type == Limit {
		token = parser.lexer.NextToken()
		if token.Type != Int {
			return nil, parser.errorf("expected number after LIMIT, got %s", token)
		}
		limit, err := strconv.Atoi(token.Value)
		if err != nil || limit < 0 {
			return nil, parser.errorf("bad LIMIT %q", token.Value)
		}
		selectStatement.Limit = limit
		token = parser.lexer.NextToken()

		if token.Type == Offset {
			token = parser.lexer.NextToken()
			if token.Type != Int {
				return nil, parser.errorf("expected number after OFFSET, got %s", token)
			}
			offset, err := strconv.Atoi(token.Value)
			if err != nil || offset < 0 {
				return nil, parser.errorf("bad OFFSET %q", token.Value)
			}
			selectStatement.Offset = offset
			token = parser.lexer.NextToken()
		}
	}

	if !parser.isEnd(token) {
		return nil, parser.errorf("unexpected %s", token)
	}
	return selectStatement, nil
}

func isAggregate(t TokenType) bool {
	return t == Count || t == Sum || t == Avg || t == Min || t == Max
}

// parseAggregate parses FUNC(col) or COUNT(*) with an optional AS alias.
// The function token has already been consumed; returns the lookahead.
func parseAggregate(parser *Parser, token Token) (AggregateExpr, Token, error) {
	var funcName string
	switch token.Type {
	case Count:
		funcName = "COUNT"
	case Sum:
		funcName = "SUM"
	case Avg:
		funcName = "AVG"
	case Min:
		funcName = "MIN"
	case Max:
		funcName = "MAX"
	}

	token = parser.lexer.NextToken()
	if token.Type != ParenOpen {
		return AggregateExpr{}, token, parser.errorf("expected '(' after %s", funcName)
	}
	token = parser.lexer.NextToken()

	agg := AggregateExpr{Function: funcName}
	switch {
	case token.Type == Wildcard && funcName == "COUNT":
		agg.Column = "*"
	case token.Type == Identifier:
		agg.Column = token.Value
	default:
		return AggregateExpr{}, token, parser.errorf("expected column in %s(), got %s", funcName, token)
	}

	token = parser.lexer.NextToken()
	if token.Type != ParenClose {
		return AggregateExpr{}, token, parser.errorf("expected ')' after %s()", funcName)
	}

	token = parser.lexer.NextToken()
	if token.Type == As {
		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return AggregateExpr{}, token, parser.errorf("expected alias after AS, got %s", token)
		}
		agg.Alias = token.Value
		token = parser.lexer.NextToken()
	}
	return agg, token, nil
}

// parseJoin parses [INNER|LEFT] JOIN table [alias] ON a.x = b.y.
// The leading token has been consumed; returns the lookahead.
func parseJoin(parser *Parser, token Token) (JoinClause, Token, error) {
	join := JoinClause{Kind: "INNER"}

	if token.Type == Inner || token.Type == Left {
		if token.Type == Left {
			join.Kind = "LEFT"
		}
		token = parser.lexer.NextToken()
	}
	if token.Type != Join {
		return join, token, parser.errorf("expected JOIN, got %s", token)
	}

	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return join, token, parser.errorf("expected table name after JOIN, got %s", token)
	}
	join.Table = token.Value

	token = parser.lexer.NextToken()
	if token.Type == As {
		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return join, token, parser.errorf("expected alias after AS, got %s", token)
		}
		join.TableAlias = token.Value
		token = parser.lexer.NextToken()
	} else if token.Type == Identifier {
		join.TableAlias = token.Value
		token = parser.lexer.NextToken()
	}

	if token.Type != On {
		return join, token, parser.errorf("expected ON, got %s", token)
	}
	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return join, token, parser.errorf("expected column in ON, got %s", token)
	}
	join.LeftCol = token.Value

	token = parser.lexer.NextToken()
	if token.Type != Equals {
		return join, token, parser.errorf("expected '=' in ON, got %s", token)
	}
	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return join, token, parser.errorf("expected column in ON, got %s", token)
	}
	join.RightCol = token.Value

	return join, parser.lexer.NextToken(), nil
}

// ParseWhere parses the condition list after WHERE. Returns the clause
// and the first token past it.
func ParseWhere(parser *Parser) (WhereClause, Token, error) {
	var where WhereClause

	for {
		condition, next, err := parseCondition(parser)
		if err != nil {
			return where, next, err
		}
		where.Conditions = append(where.Conditions, condition)

		switch next.Type {
		case And:
			where.LogicalOps = append(where.LogicalOps, LogicalAnd)
		case Or:
			where.LogicalOps = append(where.LogicalOps, LogicalOr)
		default:
			return where, next, nil
		}
	}
}

func parseCondition(parser *Parser) (WhereCondition, Token, error) {
	var condition WhereCondition

	token := parser.lexer.NextToken()
	if token.Type == Not {
		condition.Negated = true
		token = parser.lexer.NextToken()
	}
	if token.Type != Identifier {
		return condition, token, parser.errorf("expected column name, got %s", token)
	}
	condition.Column = token.Value

	token = parser.lexer.NextToken()
	if token.Type == Not {
		// NOT between the column and its operator: col NOT IN (...),
		// col NOT LIKE '...'
		condition.Negated = true
		token = parser.lexer.NextToken()
		if token.Type != In && token.Type != Like {
			return condition, token, parser.errorf("expected IN or LIKE after NOT, got %s", token)
		}
	}
	switch token.Type {
	case Equals:
		condition.Operator = EqualsOperator
	case NotEquals:
		condition.Operator = NotEqualsOperator
	case LessThan:
		condition.Operator = LessThanOperator
	case GreaterThan:
		condition.Operator = GreaterThanOperator
	case LessThanOrEqual:
		condition.Operator = LessThanOrEqualOperator
	case GreaterThanOrEqual:
		condition.Operator = GreaterThanOrEqualOperator
	case Like:
		condition.Operator = LikeOperator
	case Is:
		token = parser.lexer.NextToken()
		if token.Type == Not {
			token = parser.lexer.NextToken()
			if token.Type != Null {
				return condition, token, parser.errorf("expected NULL after IS NOT, got %s", token)
			}
			condition.Operator = IsNotNullOperator
		} else if token.Type == Null {
			condition.Operator = IsNullOperator
		} else {
			return condition, token, parser.errorf("expected NULL after IS, got %s", token)
		}
		return condition, parser.lexer.NextToken(), nil
	case In:
		condition.Operator = InOperator
		token = parser.lexer.NextToken()
		if token.Type != ParenOpen {
			return condition, token, parser.errorf("expected '(' after IN, got %s", token)
		}
		for {
			token = parser.lexer.NextToken()
			literal, err := parser.parseLiteral(token)
			if err != nil {
				return condition, token, err
			}
			condition.InValues = append(condition.InValues, literal)
			token = parser.lexer.NextToken()
			if token.Type == ParenClose {
				break
			}
			if token.Type != Comma {
				return condition, token, parser.errorf("expected ',' or ')' in IN list, got %s", token)
			}
		}
		return condition, parser.lexer.NextToken(), nil
	default:
		return condition, token, parser.errorf("expected comparison operator, got %s", token)
	}

	token = parser.lexer.NextToken()
	literal, err := parser.parseLiteral(token)
	if err != nil {
		return condition, token, err
	}
	condition.Value = literal

	return condition, parser.lexer.NextToken(), nil
}

func ParseInsert(parser *Parser) (Statement, error) {
	var insertStatement InsertStatement

	token := parser.lexer.NextToken()
	if token.Type != Into {
		return nil, parser.errorf("expected INTO, got %s", token)
	}
	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected table name, got %s", token)
	}
	insertStatement.Table = token.Value

	token = parser.lexer.NextToken()
	if token.Type == ParenOpen {
		for {
			token = parser.lexer.NextToken()
			if token.Type != Identifier {
				return nil, parser.errorf("expected column name, got %s", token)
			}
			insertStatement.Columns = append(insertStatement.Columns, token.Value)
			token = parser.lexer.NextToken()
			if token.Type == ParenClose {
				break
			}
			if token.Type != Comma {
				return nil, parser.errorf("expected ',' or ')' in column list, got %s", token)
			}
		}
		token = parser.lexer.NextToken()
	}

	if token.Type != Values {
		return nil, parser.errorf("expected VALUES, got %s", token)
	}

	for {
		token = parser.lexer.NextToken()
		if token.Type != ParenOpen {
			return nil, parser.errorf("expected '(' before row values, got %s", token)
		}
		var row []Literal
		for {
			token = parser.lexer.NextToken()
			literal, err := parser.parseLiteral(token)
			if err != nil {
				return nil, err
			}
			row = append(row, literal)
			token = parser.lexer.NextToken()
			if token.Type == ParenClose {
				break
			}
			if token.Type != Comma {
				return nil, parser.errorf("expected ',' or ')' in row values, got %s", token)
			}
		}
		insertStatement.Rows = append(insertStatement.Rows, row)

		token = parser.lexer.NextToken()
		if token.Type != Comma {
			break
		}
	}

	if !parser.isEnd(token) {
		return nil, parser.errorf("unexpected %s", token)
	}
	return insertStatement, nil
}

func ParseUpdate(parser *Parser) (Statement, error) {
	var updateStatement UpdateStatement

	token := parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected table name, got %s", token)
	}
	updateStatement.Table = token.Value

	token = parser.lexer.NextToken()
	if token.Type != Set {
		return nil, parser.errorf("expected SET, got %s", token)
	}

	for {
		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return nil, parser.errorf("expected column name, got %s", token)
		}
		set := SetClause{Column: token.Value}

		token = parser.lexer.NextToken()
		if token.Type != Equals {
			return nil, parser.errorf("expected '=' after %s, got %s", set.Column, token)
		}

		token = parser.lexer.NextToken()
		literal, err := parser.parseLiteral(token)
		if err != nil {
			return nil, err
		}
		set.Value = literal
		updateStatement.Sets = append(updateStatement.Sets, set)

		token = parser.lexer.NextToken()
		if token.Type != Comma {
			break
		}
	}

	if token.Type == Where {
		where, next, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		updateStatement.Where = where
		token = next
	}

	if !parser.isEnd(token) {
		return nil, parser.errorf("unexpected %s", token)
	}
	return updateStatement, nil
}

func ParseDelete(parser *Parser) (Statement, error) {
	var deleteStatement DeleteStatement

	token := parser.lexer.NextToken()
	if token.Type != From {
		return nil, parser.errorf("expected FROM, got %s", token)
	}
	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected table name, got %s", token)
	}
	deleteStatement.Table = token.Value

	token = parser.lexer.NextToken()
	if token.Type == Where {
		where, next, err := ParseWhere(parser)
		if err != nil {
			return nil, err
		}
		deleteStatement.Where = where
		token = next
	}

	if !parser.isEnd(token) {
		return nil, parser.errorf("unexpected %s", token)
	}
	return deleteStatement, nil
}

func ParseCreate(parser *Parser) (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case TableIdentifier:
		return ParseCreateTable(parser)
	case Unique:
		token = parser.lexer.NextToken()
		if token.Type != IndexIdentifier {
			return nil, parser.errorf("expected INDEX after UNIQUE, got %s", token)
		}
		return ParseCreateIndex(parser, true)
	case IndexIdentifier:
		return ParseCreateIndex(parser, false)
	default:
		return nil, parser.errorf("expected TABLE or INDEX, got %s", token)
	}
}

func ParseCreateTable(parser *Parser) (Statement, error) {
	var createStatement CreateTableStatement

	token := parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected table name, got %s", token)
	}
	createStatement.Table = token.Value

	token = parser.lexer.NextToken()
	if token.Type != ParenOpen {
		return nil, parser.errorf("expected '(' after table name, got %s", token)
	}

	for {
		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return nil, parser.errorf("expected column name, got %s", token)
		}
		column := core.Column{Name: token.Value}

		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return nil, parser.errorf("expected column type, got %s", token)
		}
		columnType, ok := columnTypeFor(token.Value)
		if !ok {
			return nil, parser.errorf("unknown column type %q", token.Value)
		}
		column.Type = columnType

		token = parser.lexer.NextToken()
		for token.Type == PrimaryKey || token.Type == Not {
			if token.Type == PrimaryKey {
				column.PrimaryKey = true
				token = parser.lexer.NextToken()
			} else {
				token = parser.lexer.NextToken()
				if token.Type != Null {
					return nil, parser.errorf("expected NULL after NOT, got %s", token)
				}
				column.NotNull = true
				token = parser.lexer.NextToken()
			}
		}
		createStatement.Columns = append(createStatement.Columns, column)

		if token.Type == ParenClose {
			break
		}
		if token.Type != Comma {
			return nil, parser.errorf("expected ',' or ')' in column list, got %s", token)
		}
	}

	if len(createStatement.Columns) == 0 {
		return nil, parser.errorf("table %s has no columns", createStatement.Table)
	}
	if err := parser.expectEnd(); err != nil {
		return nil, err
	}
	return createStatement, nil
}

func columnTypeFor(name string) (core.ColumnType, bool) {
	switch toUpper(name) {
	case "INTEGER", "INT":
		return core.IntegerType, true
	case "FLOAT", "REAL", "DOUBLE":
		return core.FloatType, true
	case "TEXT", "VARCHAR", "STRING":
		return core.TextType, true
	case "BLOB":
		return core.BlobType, true
	default:
		return core.NullType, false
	}
}

func ParseCreateIndex(parser *Parser, unique bool) (Statement, error) {
	createStatement := CreateIndexStatement{Unique: unique}

	token := parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected index name, got %s", token)
	}
	createStatement.Name = token.Value

	token = parser.lexer.NextToken()
	if token.Type != On {
		return nil, parser.errorf("expected ON, got %s", token)
	}
	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected table name, got %s", token)
	}
	createStatement.Table = token.Value

	token = parser.lexer.NextToken()
	if token.Type != ParenOpen {
		return nil, parser.errorf("expected '(' after table name, got %s", token)
	}
	token = parser.lexer.NextToken()
	if token.Type != Identifier {
		return nil, parser.errorf("expected column name, got %s", token)
	}
	createStatement.Column = token.Value
	token = parser.lexer.NextToken()
	if token.Type != ParenClose {
		return nil, parser.errorf("expected ')' after column name, got %s", token)
	}

	if err := parser.expectEnd(); err != nil {
		return nil, err
	}
	return createStatement, nil
}

func ParseDrop(parser *Parser) (Statement, error) {
	token := parser.lexer.NextToken()
	switch token.Type {
	case TableIdentifier:
		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return nil, parser.errorf("expected table name, got %s", token)
		}
		if err := parser.expectEnd(); err != nil {
			return nil, err
		}
		return DropTableStatement{Table: token.Value}, nil
	case IndexIdentifier:
		token = parser.lexer.NextToken()
		if token.Type != Identifier {
			return nil, parser.errorf("expected index name, got %s", token)
		}
		if err := parser.expectEnd(); err != nil {
			return nil, err
		}
		return DropIndexStatement{Name: token.Value}, nil
	default:
		return nil, parser.errorf("expected TABLE or INDEX, got %s", token)
	}
}

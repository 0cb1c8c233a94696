package sql

type Token struct {
	Type  TokenType
	Value string
}

type TokenType int

const (
	Identifier TokenType = iota
	TableIdentifier
	IndexIdentifier
	Wildcard
	String
	Int
	Float
	Placeholder
	PrimaryKey
	Unique
	Comma
	ParenOpen
	ParenClose
	Semicolon
	Equals
	NotEquals
	LessThan
	GreaterThan
	LessThanOrEqual
	GreaterThanOrEqual
	And
	Or
	Not
	Is
	Null
	Like
	In
	On
	True
	False
	Select
	From
	Where
	Limit
	Offset
	Order
	By
	Asc
	Desc
	Count
	Sum
	Avg
	Min
	Max
	Distinct
	Group
	Create
	Drop
	Insert
	Update
	Delete
	Set
	Into
	Values
	Begin
	Commit
	Rollback
	Vacuum
	Join
	Inner
	Left
	As
	EOF
	Unknown
)

func (token Token) String() string {
	switch token.Type {
	case Identifier:
		return "Identifier(" + token.Value + ")"
	case TableIdentifier:
		return "TableIdentifier"
	case IndexIdentifier:
		return "IndexIdentifier"
	case Wildcard:
		return "Wildcard"
	case String:
		return "String(" + token.Value + ")"
	case Int:
		return "Int(" + token.Value + ")"
	case Float:
		return "Float(" + token.Value + ")"
	case Placeholder:
		return "Placeholder"
	case PrimaryKey:
		return "PrimaryKey"
	case Unique:
		return "Unique"
	case Comma:
		return "Comma"
	case ParenOpen:
		return "ParenOpen"
	case ParenClose:
		return "ParenClose"
	case Semicolon:
		return "Semicolon"
	case Equals:
		return "Equals"
	case NotEquals:
		return "NotEquals"
	case LessThan:
		return "LessThan"
	case GreaterThan:
		return "GreaterThan"
	case LessThanOrEqual:
		return "LessThanOrEqual"
	case GreaterThanOrEqual:
		return "GreaterThanOrEqual"
	case And:
		return "And"
	case Or:
		return "Or"
	case Not:
		return "Not"
	case Is:
		return "Is"
	case Null:
		return "Null"
	case Like:
		return "Like"
	case In:
		return "In"
	case On:
		return "On"
	case True:
		return "True"
	case False:
		return "False"
	case Select:
		return "Select"
	case From:
		return "From"
	case Where:
		return "Where"
	case Limit:
		return "Limit"
	case Offset:
		return "Offset"
	case Order:
		return "Order"
	case By:
		return "By"
	case Asc:
		return "Asc"
	case Desc:
		return "Desc"
	case Count:
		return "Count"
	case Sum:
		return "Sum"
	case Avg:
		return "Avg"
	case Min:
		return "Min"
	case Max:
		return "Max"
	case Distinct:
		return "Distinct"
	case Group:
		return "Group"
	case Create:
		return "Create"
	case Drop:
		return "Drop"
	case Insert:
		return "Insert"
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	case Set:
		return "Set"
	case Into:
		return "Into"
	case Values:
		return "Values"
	case Begin:
		return "Begin"
	case Commit:
		return "Commit"
	case Rollback:
		return "Rollback"
	case Vacuum:
		return "Vacuum"
	case Join:
		return "Join"
	case Inner:
		return "Inner"
	case Left:
		return "Left"
	case As:
		return "As"
	case EOF:
		return "EOF"
	default:
		return "Unknown(" + token.Value + ")"
	}
}

type Lexer struct {
	sql          string
	position     int
	readPosition int
	ch           byte
}

func NewLexer(sql string) *Lexer {
	lexer := &Lexer{sql: sql}
	lexer.readChar()
	return lexer
}

func (lexer *Lexer) readChar() {
	if lexer.readPosition >= len(lexer.sql) {
		lexer.ch = 0
	} else {
		lexer.ch = lexer.sql[lexer.readPosition]
	}
	lexer.position = lexer.readPosition
	lexer.readPosition++
}

// Position returns the byte offset of the current character, used for
// syntax error reporting.
func (lexer *Lexer) Position() int {
	return lexer.position
}

func (lexer *Lexer) NextToken() Token {
	var token Token

	lexer.skipWhitespace()

	switch lexer.ch {
	case ',':
		token = Token{Type: Comma, Value: string(lexer.ch)}
	case '(':
		token = Token{Type: ParenOpen, Value: string(lexer.ch)}
	case ')':
		token = Token{Type: ParenClose, Value: string(lexer.ch)}
	case ';':
		token = Token{Type: Semicolon, Value: string(lexer.ch)}
	case '?':
		token = Token{Type: Placeholder, Value: string(lexer.ch)}
	case 0:
		token = Token{Type: EOF, Value: ""}
	case '\'':
		token = Token{Type: String, Value: lexer.readString()}
	case '*':
		token = Token{Type: Wildcard, Value: string(lexer.ch)}
	case '-':
		lexer.readChar()
		if !isDigit(lexer.ch) {
			return Token{Type: Unknown, Value: "-"}
		}
		return lexer.readNumberToken("-")
	default:
		if isOperator(lexer.ch) {
			operator := lexer.readOperator()
			switch operator {
			case "=":
				return Token{Type: Equals, Value: operator}
			case "!=", "<>":
				return Token{Type: NotEquals, Value: operator}
			case "<":
				return Token{Type: LessThan, Value: operator}
			case ">":
				return Token{Type: GreaterThan, Value: operator}
			case "<=":
				return Token{Type: LessThanOrEqual, Value: operator}
			case ">=":
				return Token{Type: GreaterThanOrEqual, Value: operator}
			default:
				return Token{Type: Unknown, Value: operator}
			}
		} else if isDigit(lexer.ch) {
			return lexer.readNumberToken("")
		} else if isAlphaNumeric(lexer.ch) {
			literal := lexer.readIdentifier()
			if toUpper(literal) == "PRIMARY" {
				lexer.skipWhitespace()
				nextLiteral := lexer.readIdentifier()
				if toUpper(nextLiteral) == "KEY" {
					return Token{Type: PrimaryKey, Value: "PRIMARY KEY"}
				}
				return Token{Type: Unknown, Value: literal + " " + nextLiteral}
			}
			tokenType := lookupIdentifier(literal)
			return Token{Type: tokenType, Value: literal}
		} else {
			token = Token{Type: Unknown, Value: string(lexer.ch)}
		}
	}

	lexer.readChar()
	return token
}

func (lexer *Lexer) PeekToken() Token {
	// Save current state
	savedPosition := lexer.position
	savedReadPosition := lexer.readPosition
	savedCh := lexer.ch

	token := lexer.NextToken()

	// Restore state
	lexer.position = savedPosition
	lexer.readPosition = savedReadPosition
	lexer.ch = savedCh

	return token
}

func (lexer *Lexer) skipWhitespace() {
	for lexer.ch == ' ' || lexer.ch == '\t' || lexer.ch == '\n' || lexer.ch == '\r' {
		lexer.readChar()
	}
}

func (lexer *Lexer) readIdentifier() string {
	position := lexer.position
	for isAlphaNumeric(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readString() string {
	lexer.readChar() // skip opening quote
	position := lexer.position
	for lexer.ch != '\'' && lexer.ch != 0 {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readNumberToken(sign string) Token {
	num := lexer.readNumber()
	if lexer.ch == '.' {
		lexer.readChar() // consume '.'
		decimal := lexer.readNumber()
		return Token{Type: Float, Value: sign + num + "." + decimal}
	}
	return Token{Type: Int, Value: sign + num}
}

func (lexer *Lexer) readNumber() string {
	position := lexer.position
	for isDigit(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readOperator() string {
	position := lexer.position
	for isOperator(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func isAlphaNumeric(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_' || ch == '.' || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isOperator(ch byte) bool {
	return ch == '=' || ch == '!' || ch == '<' || ch == '>'
}

func lookupIdentifier(id string) TokenType {
	switch toUpper(id) {
	case "TABLE":
		return TableIdentifier
	case "INDEX":
		return IndexIdentifier
	case "UNIQUE":
		return Unique
	case "AND":
		return And
	case "OR":
		return Or
	case "NOT":
		return Not
	case "IS":
		return Is
	case "NULL":
		return Null
	case "LIKE":
		return Like
	case "IN":
		return In
	case "ON":
		return On
	case "TRUE":
		return True
	case "FALSE":
		return False
	case "SELECT":
		return Select
	case "FROM":
		return From
	case "WHERE":
		return Where
	case "LIMIT":
		return Limit
	case "OFFSET":
		return Offset
	case "ORDER":
		return Order
	case "BY":
		return By
	case "ASC":
		return Asc
	case "DESC":
		return Desc
	case "COUNT":
		return Count
	case "SUM":
		return Sum
	case "AVG":
		return Avg
	case "MIN":
		return Min
	case "MAX":
		return Max
	case "DISTINCT":
		return Distinct
	case "GROUP":
		return Group
	case "CREATE":
		return Create
	case "DROP":
		return Drop
	case "INSERT":
		return Insert
	case "UPDATE":
		return Update
	case "DELETE":
		return Delete
	case "SET":
		return Set
	case "INTO":
		return Into
	case "VALUES":
		return Values
	case "BEGIN":
		return Begin
	case "COMMIT":
		return Commit
	case "ROLLBACK":
		return Rollback
	case "VACUUM":
		return Vacuum
	case "JOIN":
		return Join
	case "INNER":
		return Inner
	case "LEFT":
		return Left
	case "AS":
		return As
	default:
		return Identifier
	}
}

// toUpper converts a string to uppercase without allocating for ASCII strings
func toUpper(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'a' && s[i] <= 'z' {
			// Need to convert, allocate a new string
			b := make([]byte, len(s))
			for j := 0; j < len(s); j++ {
				if s[j] >= 'a' && s[j] <= 'z' {
					b[j] = s[j] - 32
				} else {
					b[j] = s[j]
				}
			}
			return string(b)
		}
	}
	return s
}

// Package sql provides SQL lexing and parsing for zqlite.
//
// The package includes a lexer that tokenizes SQL strings and a parser
// that produces abstract syntax trees for SQL statements. Positional
// `?` placeholders are numbered left to right, starting at 1, and carry
// their slot number into the AST.
//
// # Lexer Usage
//
//	lexer := sql.NewLexer("SELECT * FROM users")
//	for {
//	    token := lexer.NextToken()
//	    if token.Type == sql.EOF {
//	        break
//	    }
//	    fmt.Printf("Token: %s = %s\n", token.Type, token.Value)
//	}
//
// # Parser Usage
//
//	parser := sql.NewParser("SELECT * FROM users WHERE id = ?")
//	statement, err := parser.Parse()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse failures carry the syntax error kind and the byte offset at
// which parsing stopped.
//
// # Supported Statements
//
//   - SelectStatement
//   - InsertStatement
//   - UpdateStatement
//   - DeleteStatement
//   - CreateTableStatement, DropTableStatement
//   - CreateIndexStatement, DropIndexStatement
//   - BeginStatement, CommitStatement, RollbackStatement
//   - VacuumStatement
package sql

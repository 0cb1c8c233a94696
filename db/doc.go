// Package db is the connection surface of the engine: it ties the
// pager, write-ahead log, transaction manager, SQL compiler and
// execution engine together behind a single Conn.
//
//	conn, err := db.Open("app.db", db.Options{})
//	defer conn.Close()
//
//	err = conn.Execute("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
//	result, err := conn.Query("SELECT id, name FROM users WHERE id > ?", core.Integer(10))
//	for i := 0; i < result.RowCount(); i++ {
//	    name, _ := result.GetText(i, 1)
//	}
//
// Query materializes its rows; Prepare returns a statement stepped one
// row at a time with 1-based parameter binds. Bare statements run in an
// implicit transaction committed on success; BEGIN/COMMIT/ROLLBACK (or
// the Begin/Commit/Rollback methods) control explicit ones. One
// connection talks to one database file; connections to the same file
// share a pager through the process-wide registry and serialize writes
// on its writer lock.
package db

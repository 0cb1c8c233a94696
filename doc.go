// Package zqlite is an embedded relational database engine: a
// single-file page store with optional authenticated encryption, a
// write-ahead log, B-tree tables and secondary indexes, and a SQL
// layer compiled to pull-based execution plans.
//
// # Quick Start
//
//	conn, _ := zqlite.Open("app.db")
//	defer conn.Close()
//
//	conn.Execute("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
//	conn.Execute("INSERT INTO users VALUES (1, 'Alice'), (2, 'Bob')")
//
//	result, _ := conn.Query("SELECT * FROM users WHERE id > ?", core.Integer(1))
//	result.Display()
//
// # Supported SQL
//
//   - CREATE/DROP TABLE, CREATE [UNIQUE]/DROP INDEX
//   - INSERT (multi-row), SELECT, UPDATE, DELETE
//   - WHERE with comparison operators, LIKE, IN, IS [NOT] NULL, NOT
//   - ? placeholders with 1-based binds
//   - ORDER BY, LIMIT, OFFSET
//   - Aggregates COUNT, SUM, AVG, MIN, MAX with GROUP BY
//   - JOINs: INNER, LEFT
//   - Transactions: BEGIN, COMMIT, ROLLBACK
//   - VACUUM
//
// Statements outside an explicit transaction run in an implicit one,
// committed on success and rolled back on failure. With the
// write-ahead log enabled, commits are durable once the log is synced
// and fold into the main file on checkpoint.
package zqlite

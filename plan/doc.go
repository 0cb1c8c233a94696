// Package plan lowers parsed SQL statements into executable plans.
//
// Compile resolves table and column names against the schema catalog,
// types literals, numbers parameter placeholders, and builds a tree of
// pull operators for queries or a flat description for mutations and
// DDL. Name resolution failures are schema errors; constructs the
// planner cannot lower are unsupported errors; both are distinct from
// the parser's syntax errors.
//
//	statement, err := sql.NewParser(query).Parse()
//	compiled, err := plan.Compile(statement, catalog)
//
// Plans reference tables by resolved definition but hold no storage
// handles; the execution engine binds them to a transaction's store.
package plan

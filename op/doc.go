// Package op provides high-level operations for working with zqlite
// tables and the schema catalog.
//
// The op package sits between the execution engine (exec/) and the btree
// storage layer (btree/), translating typed rows into encoded keys and
// records and keeping secondary indexes in step with every mutation.
//
// # Catalog
//
// The catalog is itself a btree, rooted at the header's schema root page,
// mapping object names to their definitions:
//
//	catalog, err := op.OpenCatalog(store, schemaRoot)
//	table, err := catalog.Get("users")
//	tables, err := catalog.List()
//
// # TableOp
//
// TableOp wraps one table for CRUD and scanning:
//
//	tableOp, err := op.GetTable(catalog, store, "users")
//
//	rowid, err := tableOp.Insert(row)
//	row, found, err := tableOp.Get(key)
//	err = tableOp.Update(key, newRow)
//	found, err = tableOp.Delete(key)
//
//	rows, err := tableOp.Scan(nil, nil)
//	for {
//	    key, row, ok, err := rows.Next()
//	    if err != nil { ... }
//	    if !ok {
//	        break
//	    }
//	    // process row
//	}
//
// # Architecture
//
// The layering is:
//
//	SQL Parser (sql/)
//	     ↓
//	Planner (plan/) and Execution (exec/)
//	     ↓
//	Operations (op/)     ← This package
//	     ↓
//	B+tree (btree/)
//	     ↓
//	Page Store (pager/)
package op

package op

import (
	"bytes"

	"github.com/zqlite/zqlite-go/btree"
	"github.com/zqlite/zqlite-go/core"
)

type TableOp struct {
	Table   core.Table
	catalog *Catalog
	store   btree.Store
	tree    *btree.Tree
	pkIndex int // column position of the primary key, -1 for rowid tables
	indexes []indexOp
}

type indexOp struct {
	meta core.Table
	tree *btree.Tree
	col  int // position of the indexed column in the owning table
}

// CreateTable validates a table definition, allocates its btree, and
// registers it in the catalog.
func CreateTable(catalog *Catalog, store btree.Store, table core.Table) (*TableOp, error) {
	if len(table.Columns) == 0 {
		return nil, core.Errorf(core.KindSchema, "table %s has no columns", table.Name)
	}
	pkCount := 0
	seen := map[string]bool{}
	for _, col := range table.Columns {
		if seen[col.Name] {
			return nil, core.Errorf(core.KindSchema, "duplicate column name: %s", col.Name)
		}
		seen[col.Name] = true
		if col.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return nil, core.Errorf(core.KindSchema, "table %s has more than one primary key", table.Name)
	}

	tree, err := btree.Create(store)
	if err != nil {
		return nil, err
	}
	table.Root = tree.Root()
	if err := catalog.Create(table); err != nil {
		return nil, err
	}

	return &TableOp{
		Table:   table,
		catalog: catalog,
		store:   store,
		tree:    tree,
		pkIndex: pkPosition(table),
	}, nil
}

// GetTable opens a table and its indexes.
func GetTable(catalog *Catalog, store btree.Store, name string) (*TableOp, error) {
	table, err := catalog.Get(name)
	if err != nil {
		return nil, err
	}
	if table.IsIndex {
		return nil, core.Errorf(core.KindSchema, "%s is an index, not a table", name)
	}
	tree, err := btree.Open(store, table.Root)
	if err != nil {
		return nil, err
	}

	tableOp := &TableOp{
		Table:   *table,
		catalog: catalog,
		store:   store,
		tree:    tree,
		pkIndex: pkPosition(*table),
	}

	indexes, err := catalog.IndexesOn(name)
	if err != nil {
		return nil, err
	}
	for _, meta := range indexes {
		indexTree, err := btree.Open(store, meta.Root)
		if err != nil {
			return nil, err
		}
		col := table.ColumnIndex(meta.OnColumn)
		if col < 0 {
			return nil, core.Errorf(core.KindCorrupt, "index %s references unknown column %s", meta.Name, meta.OnColumn)
		}
		tableOp.indexes = append(tableOp.indexes, indexOp{meta: meta, tree: indexTree, col: col})
	}
	return tableOp, nil
}

func pkPosition(table core.Table) int {
	for i, col := range table.Columns {
		if col.PrimaryKey {
			return i
		}
	}
	return -1
}

// PrimaryKey returns the declared primary key column, or nil for rowid
// tables.
func (op *TableOp) PrimaryKey() *core.Column {
	return op.Table.PrimaryKey()
}

// saveMeta writes the catalog entry back when a mutation moved a btree
// root or advanced the rowid counter.
func (op *TableOp) saveMeta() error {
	dirty := false
	if op.tree.Root() != op.Table.Root {
		op.Table.Root = op.tree.Root()
		dirty = true
	}
	if dirty {
		if err := op.catalog.Put(op.Table); err != nil {
			return err
		}
	}
	for i := range op.indexes {
		idx := &op.indexes[i]
		if idx.tree.Root() != idx.meta.Root {
			idx.meta.Root = idx.tree.Root()
			if err := op.catalog.Put(idx.meta); err != nil {
				return err
			}
		}
	}
	return nil
}

func (op *TableOp) validateRow(row []core.Value) error {
	if len(row) != len(op.Table.Columns) {
		return core.Errorf(core.KindSchema, "table %s has %d columns but %d values were supplied",
			op.Table.Name, len(op.Table.Columns), len(row))
	}
	for i, col := range op.Table.Columns {
		if (col.NotNull || col.PrimaryKey) && row[i].Type() == core.TypeNull {
			return core.Errorf(core.KindConstraint, "NOT NULL constraint failed: %s.%s", op.Table.Name, col.Name)
		}
	}
	return nil
}

// Insert adds a row and returns its rowid. The primary key must be new;
// unique indexes are enforced before anything is written.
func (op *TableOp) Insert(row []core.Value) (int64, error) {
	if err := op.validateRow(row); err != nil {
		return 0, err
	}

	var key core.Value
	var rowid int64
	if op.pkIndex >= 0 {
		key = row[op.pkIndex]
		if i, err := key.Int(); err == nil {
			rowid = i
			if rowid > op.Table.Seq {
				op.Table.Seq = rowid
			}
		}
		exists, err := op.tree.Has(core.EncodeKey(key))
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, core.Errorf(core.KindConstraint, "UNIQUE constraint failed: %s.%s",
				op.Table.Name, op.Table.Columns[op.pkIndex].Name)
		}
	} else {
		op.Table.Seq++
		rowid = op.Table.Seq
		key = core.Integer(rowid)
	}
	keyBytes := core.EncodeKey(key)

	for _, idx := range op.indexes {
		conflict, err := op.indexConflict(idx, row[idx.col], nil)
		if err != nil {
			return 0, err
		}
		if conflict {
			return 0, core.Errorf(core.KindConstraint, "UNIQUE constraint failed: %s.%s",
				op.Table.Name, idx.meta.OnColumn)
		}
	}

	if err := op.tree.Insert(keyBytes, core.EncodeRow(row)); err != nil {
		return 0, err
	}
	for _, idx := range op.indexes {
		if err := op.indexInsert(idx, row[idx.col], keyBytes); err != nil {
			return 0, err
		}
	}

	// rowid tables advance Seq on every insert, so the entry is rewritten
	if op.pkIndex < 0 {
		if err := op.catalog.Put(op.Table); err != nil {
			return 0, err
		}
	}
	return rowid, op.saveMeta()
}

// Get reads the row stored under key.
func (op *TableOp) Get(key core.Value) ([]core.Value, bool, error) {
	value, err := op.tree.Get(core.EncodeKey(key))
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	row, err := core.DecodeRow(value)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Update replaces the row stored under key. A primary key change moves
// the row, subject to the usual uniqueness checks.
func (op *TableOp) Update(key core.Value, row []core.Value) error {
	if err := op.validateRow(row); err != nil {
		return err
	}

	oldKeyBytes := core.EncodeKey(key)
	oldValue, err := op.tree.Get(oldKeyBytes)
	if err != nil {
		return err
	}
	oldRow, err := core.DecodeRow(oldValue)
	if err != nil {
		return err
	}

	newKey := key
	if op.pkIndex >= 0 {
		newKey = row[op.pkIndex]
	}
	newKeyBytes := core.EncodeKey(newKey)
	moved := !bytes.Equal(oldKeyBytes, newKeyBytes)
	if moved {
		exists, err := op.tree.Has(newKeyBytes)
		if err != nil {
			return err
		}
		if exists {
			return core.Errorf(core.KindConstraint, "UNIQUE constraint failed: %s.%s",
				op.Table.Name, op.Table.Columns[op.pkIndex].Name)
		}
	}

	for _, idx := range op.indexes {
		conflict, err := op.indexConflict(idx, row[idx.col], oldKeyBytes)
		if err != nil {
			return err
		}
		if conflict {
			return core.Errorf(core.KindConstraint, "UNIQUE constraint failed: %s.%s",
				op.Table.Name, idx.meta.OnColumn)
		}
	}

	if moved {
		if _, err := op.tree.Delete(oldKeyBytes); err != nil {
			return err
		}
	}
	if err := op.tree.Insert(newKeyBytes, core.EncodeRow(row)); err != nil {
		return err
	}
	for _, idx := range op.indexes {
		if err := op.indexDelete(idx, oldRow[idx.col], oldKeyBytes); err != nil {
			return err
		}
		if err := op.indexInsert(idx, row[idx.col], newKeyBytes); err != nil {
			return err
		}
	}
	return op.saveMeta()
}

// Delete removes the row stored under key, reporting whether it existed.
func (op *TableOp) Delete(key core.Value) (bool, error) {
	keyBytes := core.EncodeKey(key)
	value, err := op.tree.Get(keyBytes)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	row, err := core.DecodeRow(value)
	if err != nil {
		return false, err
	}

	if _, err := op.tree.Delete(keyBytes); err != nil {
		return false, err
	}
	for _, idx := range op.indexes {
		if err := op.indexDelete(idx, row[idx.col], keyBytes); err != nil {
			return false, err
		}
	}
	return true, op.saveMeta()
}

// Count returns the number of rows.
func (op *TableOp) Count() (int64, error) {
	rows, err := op.Scan(nil, nil)
	if err != nil {
		return 0, err
	}
	var count int64
	for {
		_, _, ok, err := rows.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return count, nil
		}
		count++
	}
}

// Scan iterates rows in key order; nil bounds are open, hi is exclusive.
func (op *TableOp) Scan(lo, hi *core.Value) (*Rows, error) {
	var loBytes, hiBytes []byte
	if lo != nil {
		loBytes = core.EncodeKey(*lo)
	}
	if hi != nil {
		hiBytes = core.EncodeKey(*hi)
	}
	it, err := op.tree.Scan(loBytes, hiBytes)
	if err != nil {
		return nil, err
	}
	return &Rows{it: it}, nil
}

// Drop removes the table, its indexes, and their catalog entries.
func (op *TableOp) Drop() error {
	for _, idx := range op.indexes {
		if err := idx.tree.Drop(); err != nil {
			return err
		}
		if err := op.catalog.Drop(idx.meta.Name); err != nil {
			return err
		}
	}
	if err := op.tree.Drop(); err != nil {
		return err
	}
	return op.catalog.Drop(op.Table.Name)
}

// Rows is a pull iterator over table rows in key order.
type Rows struct {
	it *btree.Iterator
}

// Next returns the next key and decoded row; ok is false at the end.
func (r *Rows) Next() (core.Value, []core.Value, bool, error) {
	if !r.it.Valid() {
		return core.Value{}, nil, false, nil
	}
	key, err := core.DecodeKey(r.it.Key())
	if err != nil {
		return core.Value{}, nil, false, err
	}
	row, err := core.DecodeRow(r.it.Value())
	if err != nil {
		return core.Value{}, nil, false, err
	}
	if err := r.it.Next(); err != nil {
		return core.Value{}, nil, false, err
	}
	return key, row, true, nil
}

package op

import (
	"bytes"

	"github.com/zqlite/zqlite-go/btree"
	"github.com/zqlite/zqlite-go/core"
)

/*

Index entries map indexed value -> primary key. The entry key is the
order-preserving encoding of the value followed by the encoded primary
key, so duplicate values sort by primary key and a value prefix bounds a
range scan. NULL values are not indexed; NULL never equals anything, so
equality and range lookups cannot match it.

*/

// entryKey builds the composite index entry key.
func entryKey(value core.Value, pk []byte) []byte {
	prefix := core.EncodeKey(value)
	key := make([]byte, 0, len(prefix)+len(pk))
	key = append(key, prefix...)
	return append(key, pk...)
}

// prefixEnd returns the smallest key greater than every composite key
// with the given value prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix)+1)
	copy(end, prefix)
	end[len(prefix)] = 0xff
	return end
}

func (op *TableOp) indexInsert(idx indexOp, value core.Value, pk []byte) error {
	if value.Type() == core.TypeNull {
		return nil
	}
	return idx.tree.Insert(entryKey(value, pk), pk)
}

func (op *TableOp) indexDelete(idx indexOp, value core.Value, pk []byte) error {
	if value.Type() == core.TypeNull {
		return nil
	}
	_, err := idx.tree.Delete(entryKey(value, pk))
	return err
}

// indexConflict reports whether a unique index already holds value for a
// row other than self.
func (op *TableOp) indexConflict(idx indexOp, value core.Value, self []byte) (bool, error) {
	if !idx.meta.Unique || value.Type() == core.TypeNull {
		return false, nil
	}
	prefix := core.EncodeKey(value)
	it, err := idx.tree.Scan(prefix, prefixEnd(prefix))
	if err != nil {
		return false, err
	}
	for it.Valid() {
		if self == nil || !bytes.Equal(it.Value(), self) {
			return true, nil
		}
		if err := it.Next(); err != nil {
			return false, err
		}
	}
	return false, nil
}

// HasIndex reports whether a column is covered by an index.
func (op *TableOp) HasIndex(column string) bool {
	for _, idx := range op.indexes {
		if idx.meta.OnColumn == column {
			return true
		}
	}
	return false
}

// IndexKeys returns the primary keys of rows whose indexed column lies
// within the given bounds, in index order. Nil bounds are open; bounds
// are inclusive unless the matching Excl flag is set.
func (op *TableOp) IndexKeys(column string, lo, hi *core.Value, loExcl, hiExcl bool) ([]core.Value, error) {
	var index *indexOp
	for i := range op.indexes {
		if op.indexes[i].meta.OnColumn == column {
			index = &op.indexes[i]
			break
		}
	}
	if index == nil {
		return nil, core.Errorf(core.KindInternal, "no index on %s.%s", op.Table.Name, column)
	}

	var loBytes, hiBytes []byte
	if lo != nil {
		loBytes = core.EncodeKey(*lo)
		if loExcl {
			loBytes = prefixEnd(loBytes)
		}
	}
	if hi != nil {
		hiBytes = core.EncodeKey(*hi)
		if !hiExcl {
			hiBytes = prefixEnd(hiBytes)
		}
	}

	it, err := index.tree.Scan(loBytes, hiBytes)
	if err != nil {
		return nil, err
	}
	var keys []core.Value
	for it.Valid() {
		key, err := core.DecodeKey(it.Value())
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// CreateIndex defines an index over an existing table and backfills it
// from the current rows.
func CreateIndex(catalog *Catalog, store btree.Store, name, tableName, columnName string, unique bool) error {
	taken, err := catalog.Exists(name)
	if err != nil {
		return err
	}
	if taken {
		return core.Errorf(core.KindSchema, "object %s already exists", name)
	}

	tableOp, err := GetTable(catalog, store, tableName)
	if err != nil {
		return err
	}
	col := tableOp.Table.ColumnIndex(columnName)
	if col < 0 {
		return core.Errorf(core.KindSchema, "no such column: %s.%s", tableName, columnName)
	}

	tree, err := btree.Create(store)
	if err != nil {
		return err
	}
	meta := core.Table{
		Name:     name,
		Root:     tree.Root(),
		IsIndex:  true,
		OnTable:  tableName,
		OnColumn: columnName,
		Unique:   unique,
	}
	index := indexOp{meta: meta, tree: tree, col: col}

	rows, err := tableOp.Scan(nil, nil)
	if err != nil {
		return err
	}
	for {
		key, row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		value := row[col]
		conflict, err := tableOp.indexConflict(index, value, nil)
		if err != nil {
			return err
		}
		if conflict {
			return core.Errorf(core.KindConstraint, "UNIQUE constraint failed: %s.%s", tableName, columnName)
		}
		if err := tableOp.indexInsert(index, value, core.EncodeKey(key)); err != nil {
			return err
		}
	}

	meta.Root = tree.Root()
	return catalog.Create(meta)
}

// DropIndex removes an index and frees its pages.
func DropIndex(catalog *Catalog, store btree.Store, name string) error {
	meta, err := catalog.Get(name)
	if err != nil {
		if core.IsKind(err, core.KindSchema) {
			return core.Errorf(core.KindSchema, "no such index: %s", name)
		}
		return err
	}
	if !meta.IsIndex {
		return core.Errorf(core.KindSchema, "%s is a table, not an index", name)
	}
	tree, err := btree.Open(store, meta.Root)
	if err != nil {
		return err
	}
	if err := tree.Drop(); err != nil {
		return err
	}
	return catalog.Drop(name)
}

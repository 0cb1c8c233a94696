// Package btree implements the on-page B+tree holding every table and
// index. Keys and values are opaque byte strings; ordering comes from
// bytes.Compare, so callers encode keys in an order-preserving form.
//
// Leaves hold the values and are chained left to right, which makes a
// full scan a walk along the leaf level:
//
//	tree, err := btree.Open(store, root)
//	it, err := tree.ScanAll()
//	for it.Valid() {
//		key, value := it.Key(), it.Value()
//		if err := it.Next(); err != nil { ... }
//	}
//
// A tree never shrinks its height on deletion; empty leaves stay chained
// and scans skip them.
package btree

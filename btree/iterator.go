package btree

import "bytes"

// Iterator is a forward-only scan along the leaf chain, yielding entries
// in ascending key order.
type Iterator struct {
	tree  *Tree
	leaf  *node
	index int
	end   []byte // exclusive upper bound, nil for unbounded
	valid bool
}

// ScanAll positions an iterator at the smallest key.
func (t *Tree) ScanAll() (*Iterator, error) {
	return t.Scan(nil, nil)
}

// Scan positions an iterator at the first key >= start. A nil start means
// the smallest key; a non-nil end stops the scan before that key.
func (t *Tree) Scan(start, end []byte) (*Iterator, error) {
	it := &Iterator{tree: t, end: end}

	n, err := t.readNode(t.root)
	if err != nil {
		return nil, err
	}
	for !n.leaf {
		var child uint32
		if start == nil {
			child = n.children[0]
		} else {
			_, child = n.childFor(start)
		}
		if n, err = t.readNode(child); err != nil {
			return nil, err
		}
	}

	it.leaf = n
	if start != nil {
		it.index = search(n.keys, start)
	}
	it.valid = true
	if err := it.settle(); err != nil {
		return nil, err
	}
	return it, nil
}

// settle skips exhausted and empty leaves, then applies the upper bound.
func (it *Iterator) settle() error {
	for it.index >= len(it.leaf.keys) {
		if it.leaf.next == 0 {
			it.valid = false
			return nil
		}
		next, err := it.tree.readNode(it.leaf.next)
		if err != nil {
			return err
		}
		it.leaf = next
		it.index = 0
	}
	if it.end != nil && bytes.Compare(it.leaf.keys[it.index], it.end) >= 0 {
		it.valid = false
	}
	return nil
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.valid
}

// Next advances to the following entry.
func (it *Iterator) Next() error {
	if !it.valid {
		return nil
	}
	it.index++
	return it.settle()
}

// Key returns the current key. Only valid while Valid() is true.
func (it *Iterator) Key() []byte {
	return it.leaf.keys[it.index]
}

// Value returns the current value. Only valid while Valid() is true.
func (it *Iterator) Value() []byte {
	return it.leaf.vals[it.index]
}

package btree

import (
	"bytes"
	"sort"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/pager"
)

// Store is the page persistence the tree runs on. *pager.Pager satisfies
// it, as does a transaction's dirty-page overlay.
type Store interface {
	Allocate() (uint32, error)
	Read(pageNo uint32) ([]byte, error)
	Write(pageNo uint32, payload []byte) error
	Free(pageNo uint32) error
}

// Tree is a B+tree rooted at a single page. The root page number can
// change on insert; callers persist Root() in their catalog entry.
type Tree struct {
	store Store
	root  uint32
}

// Create allocates an empty tree and returns it with a fresh root leaf.
func Create(store Store) (*Tree, error) {
	pageNo, err := store.Allocate()
	if err != nil {
		return nil, err
	}
	root := &node{pageNo: pageNo, leaf: true}
	if err := store.Write(pageNo, root.encode()); err != nil {
		return nil, err
	}
	return &Tree{store: store, root: pageNo}, nil
}

// Open attaches to an existing tree by its root page.
func Open(store Store, root uint32) (*Tree, error) {
	if root == 0 {
		return nil, core.NewError(core.KindInternal, "btree root page 0")
	}
	return &Tree{store: store, root: root}, nil
}

// Root returns the current root page number.
func (t *Tree) Root() uint32 {
	return t.root
}

func (t *Tree) readNode(pageNo uint32) (*node, error) {
	payload, err := t.store.Read(pageNo)
	if err != nil {
		return nil, err
	}
	return decodeNode(pageNo, payload)
}

func (t *Tree) writeNode(n *node) error {
	return t.store.Write(n.pageNo, n.encode())
}

// search returns the index of the first key >= target.
func search(keys [][]byte, target []byte) int {
	return sort.Search(len(keys), func(i int) bool {
		return bytes.Compare(keys[i], target) >= 0
	})
}

// childFor picks the subtree for target in an internal node.
func (n *node) childFor(target []byte) (int, uint32) {
	i := sort.Search(len(n.keys), func(j int) bool {
		return bytes.Compare(n.keys[j], target) > 0
	})
	return i, n.children[i]
}

// Get returns the value stored under key, or a NotFound error.
func (t *Tree) Get(key []byte) ([]byte, error) {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	i := search(leaf.keys, key)
	if i < len(leaf.keys) && bytes.Equal(leaf.keys[i], key) {
		return leaf.vals[i], nil
	}
	return nil, core.NewError(core.KindNotFound, "key not found")
}

// Has reports whether key is present.
func (t *Tree) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if err == nil {
		return true, nil
	}
	if core.IsKind(err, core.KindNotFound) {
		return false, nil
	}
	return false, err
}

func (t *Tree) findLeaf(key []byte) (*node, error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, err
	}
	for !n.leaf {
		_, child := n.childFor(key)
		if n, err = t.readNode(child); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// split carries a promoted separator up to the parent after a child split.
type split struct {
	key   []byte
	right uint32
}

// Insert stores value under key, replacing any existing value.
func (t *Tree) Insert(key, value []byte) error {
	if len(key)+len(value) > MaxEntry {
		return core.Errorf(core.KindTooBig, "entry of %d bytes exceeds the %d byte page budget", len(key)+len(value), MaxEntry)
	}

	promoted, err := t.insert(t.root, key, value)
	if err != nil {
		return err
	}
	if promoted == nil {
		return nil
	}

	// root split: grow the tree by one level
	pageNo, err := t.store.Allocate()
	if err != nil {
		return err
	}
	newRoot := &node{
		pageNo:   pageNo,
		keys:     [][]byte{promoted.key},
		children: []uint32{t.root, promoted.right},
	}
	if err := t.writeNode(newRoot); err != nil {
		return err
	}
	t.root = pageNo
	return nil
}

func (t *Tree) insert(pageNo uint32, key, value []byte) (*split, error) {
	n, err := t.readNode(pageNo)
	if err != nil {
		return nil, err
	}

	if n.leaf {
		i := search(n.keys, key)
		if i < len(n.keys) && bytes.Equal(n.keys[i], key) {
			n.vals[i] = value
		} else {
			n.keys = append(n.keys, nil)
			copy(n.keys[i+1:], n.keys[i:])
			n.keys[i] = key
			n.vals = append(n.vals, nil)
			copy(n.vals[i+1:], n.vals[i:])
			n.vals[i] = value
		}
		return t.splitIfNeeded(n)
	}

	slot, child := n.childFor(key)
	promoted, err := t.insert(child, key, value)
	if err != nil {
		return nil, err
	}
	if promoted == nil {
		return nil, nil
	}

	n.keys = append(n.keys, nil)
	copy(n.keys[slot+1:], n.keys[slot:])
	n.keys[slot] = promoted.key
	n.children = append(n.children, 0)
	copy(n.children[slot+2:], n.children[slot+1:])
	n.children[slot+1] = promoted.right
	return t.splitIfNeeded(n)
}

// splitIfNeeded writes n back, splitting it first when it no longer fits
// in a page.
func (t *Tree) splitIfNeeded(n *node) (*split, error) {
	if n.size() <= pager.Payload || len(n.keys) < 2 {
		if err := t.writeNode(n); err != nil {
			return nil, err
		}
		return nil, nil
	}

	mid := len(n.keys) / 2
	rightPage, err := t.store.Allocate()
	if err != nil {
		return nil, err
	}

	var promoted []byte
	right := &node{pageNo: rightPage, leaf: n.leaf}
	if n.leaf {
		right.keys = append(right.keys, n.keys[mid:]...)
		right.vals = append(right.vals, n.vals[mid:]...)
		right.next = n.next
		n.keys = n.keys[:mid]
		n.vals = n.vals[:mid]
		n.next = rightPage
		promoted = right.keys[0]
	} else {
		// the middle key moves up, it does not stay in either half
		promoted = n.keys[mid]
		right.keys = append(right.keys, n.keys[mid+1:]...)
		right.children = append(right.children, n.children[mid+1:]...)
		n.keys = n.keys[:mid]
		n.children = n.children[:mid+1]
	}

	if err := t.writeNode(right); err != nil {
		return nil, err
	}
	if err := t.writeNode(n); err != nil {
		return nil, err
	}
	return &split{key: promoted, right: rightPage}, nil
}

// pathStep records one internal node on a root-to-leaf descent and the
// child slot taken through it.
type pathStep struct {
	n    *node
	slot int
}

// Delete removes key and reports whether it was present. A leaf that
// empties out is spliced out of the sibling chain, dropped from its
// parent and freed; the root collapses when underflow leaves it with a
// single child. The root page number can change, as on insert.
func (t *Tree) Delete(key []byte) (bool, error) {
	var path []pathStep
	n, err := t.readNode(t.root)
	if err != nil {
		return false, err
	}
	for !n.leaf {
		slot, child := n.childFor(key)
		path = append(path, pathStep{n: n, slot: slot})
		if n, err = t.readNode(child); err != nil {
			return false, err
		}
	}

	i := search(n.keys, key)
	if i >= len(n.keys) || !bytes.Equal(n.keys[i], key) {
		return false, nil
	}
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.vals = append(n.vals[:i], n.vals[i+1:]...)

	if len(n.keys) > 0 || len(path) == 0 {
		if err := t.writeNode(n); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := t.unlinkLeaf(path, n); err != nil {
		return false, err
	}
	if err := t.store.Free(n.pageNo); err != nil {
		return false, err
	}

	// drop the emptied child from its parent; an internal node emptied
	// in turn propagates upward
	for level := len(path) - 1; level >= 0; level-- {
		parent := path[level]
		removeChild(parent.n, parent.slot)
		if len(parent.n.children) > 0 {
			if err := t.writeNode(parent.n); err != nil {
				return false, err
			}
			break
		}
		if level == 0 {
			// the whole tree emptied; restart the root as an empty leaf
			empty := &node{pageNo: parent.n.pageNo, leaf: true}
			return true, t.writeNode(empty)
		}
		if err := t.store.Free(parent.n.pageNo); err != nil {
			return false, err
		}
	}
	return true, t.collapseRoot()
}

// unlinkLeaf points the left neighbor past a leaf about to be removed.
// The neighbor is the rightmost leaf under the nearest ancestor subtree
// to the left; the leftmost leaf of the tree has none.
func (t *Tree) unlinkLeaf(path []pathStep, leaf *node) error {
	top := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i].slot > 0 {
			top = i
			break
		}
	}
	if top < 0 {
		return nil
	}
	n, err := t.readNode(path[top].n.children[path[top].slot-1])
	if err != nil {
		return err
	}
	for !n.leaf {
		if n, err = t.readNode(n.children[len(n.children)-1]); err != nil {
			return err
		}
	}
	n.next = leaf.next
	return t.writeNode(n)
}

// removeChild drops child pointer slot and its separator key. Separator
// copies higher up may go stale; they still partition correctly.
func removeChild(n *node, slot int) {
	n.children = append(n.children[:slot], n.children[slot+1:]...)
	if len(n.keys) > 0 {
		k := slot - 1
		if k < 0 {
			k = 0
		}
		n.keys = append(n.keys[:k], n.keys[k+1:]...)
	}
}

// collapseRoot shrinks the tree while the root is an internal node left
// with at most one child.
func (t *Tree) collapseRoot() error {
	for {
		root, err := t.readNode(t.root)
		if err != nil {
			return err
		}
		if root.leaf || len(root.children) > 1 {
			return nil
		}
		child := root.children[0]
		if err := t.store.Free(root.pageNo); err != nil {
			return err
		}
		t.root = child
	}
}

// Drop frees every page of the tree.
func (t *Tree) Drop() error {
	return t.drop(t.root)
}

func (t *Tree) drop(pageNo uint32) error {
	n, err := t.readNode(pageNo)
	if err != nil {
		return err
	}
	if !n.leaf {
		for _, child := range n.children {
			if err := t.drop(child); err != nil {
				return err
			}
		}
	}
	return t.store.Free(pageNo)
}

package btree

import (
	"encoding/binary"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/pager"
)

/*

Node page layout (inside a pager payload):

	| TYPE (1) | NKEYS (2) | NEXT (4) | RESERVED (1) | entries...

Leaf entries:     | KLEN (2) | KEY | VLEN (4) | VALUE |  per key
Internal entries: | KLEN (2) | KEY |                   per key,
                  then NKEYS+1 child page numbers (4 each)

Keys are kept sorted; internal children[i] holds keys < keys[i],
children[nkeys] holds the rest.

*/

const (
	nodeLeaf     = byte(0)
	nodeInternal = byte(1)

	nodeHeaderSize = 8

	// MaxEntry bounds a single key+value pair so a post-split node always
	// has room for at least two entries.
	MaxEntry = (pager.Payload - nodeHeaderSize - 12) / 2
)

type node struct {
	pageNo   uint32
	leaf     bool
	keys     [][]byte
	vals     [][]byte // leaf only, len == len(keys)
	children []uint32 // internal only, len == len(keys)+1
	next     uint32   // leaf only, right sibling
}

func (n *node) size() int {
	size := nodeHeaderSize
	for _, k := range n.keys {
		size += 2 + len(k)
	}
	if n.leaf {
		for _, v := range n.vals {
			size += 4 + len(v)
		}
	} else {
		size += 4 * len(n.children)
	}
	return size
}

func (n *node) encode() []byte {
	buf := make([]byte, n.size())
	if n.leaf {
		buf[0] = nodeLeaf
	} else {
		buf[0] = nodeInternal
	}
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(n.keys)))
	binary.BigEndian.PutUint32(buf[3:7], n.next)

	offset := nodeHeaderSize
	for i, k := range n.keys {
		binary.BigEndian.PutUint16(buf[offset:], uint16(len(k)))
		offset += 2
		copy(buf[offset:], k)
		offset += len(k)
		if n.leaf {
			v := n.vals[i]
			binary.BigEndian.PutUint32(buf[offset:], uint32(len(v)))
			offset += 4
			copy(buf[offset:], v)
			offset += len(v)
		}
	}
	if !n.leaf {
		for _, c := range n.children {
			binary.BigEndian.PutUint32(buf[offset:], c)
			offset += 4
		}
	}
	return buf
}

func decodeNode(pageNo uint32, payload []byte) (*node, error) {
	if len(payload) < nodeHeaderSize {
		return nil, core.Errorf(core.KindCorrupt, "page %d: truncated node", pageNo)
	}
	n := &node{pageNo: pageNo}
	switch payload[0] {
	case nodeLeaf:
		n.leaf = true
	case nodeInternal:
	default:
		return nil, core.Errorf(core.KindCorrupt, "page %d: unknown node type %d", pageNo, payload[0])
	}
	nkeys := int(binary.BigEndian.Uint16(payload[1:3]))
	n.next = binary.BigEndian.Uint32(payload[3:7])

	offset := nodeHeaderSize
	n.keys = make([][]byte, 0, nkeys)
	if n.leaf {
		n.vals = make([][]byte, 0, nkeys)
	}
	for i := 0; i < nkeys; i++ {
		if offset+2 > len(payload) {
			return nil, core.Errorf(core.KindCorrupt, "page %d: truncated key %d", pageNo, i)
		}
		klen := int(binary.BigEndian.Uint16(payload[offset:]))
		offset += 2
		if offset+klen > len(payload) {
			return nil, core.Errorf(core.KindCorrupt, "page %d: truncated key %d", pageNo, i)
		}
		key := make([]byte, klen)
		copy(key, payload[offset:offset+klen])
		offset += klen
		n.keys = append(n.keys, key)

		if n.leaf {
			if offset+4 > len(payload) {
				return nil, core.Errorf(core.KindCorrupt, "page %d: truncated value %d", pageNo, i)
			}
			vlen := int(binary.BigEndian.Uint32(payload[offset:]))
			offset += 4
			if offset+vlen > len(payload) {
				return nil, core.Errorf(core.KindCorrupt, "page %d: truncated value %d", pageNo, i)
			}
			val := make([]byte, vlen)
			copy(val, payload[offset:offset+vlen])
			offset += vlen
			n.vals = append(n.vals, val)
		}
	}
	if !n.leaf {
		n.children = make([]uint32, 0, nkeys+1)
		for i := 0; i <= nkeys; i++ {
			if offset+4 > len(payload) {
				return nil, core.Errorf(core.KindCorrupt, "page %d: truncated child %d", pageNo, i)
			}
			n.children = append(n.children, binary.BigEndian.Uint32(payload[offset:]))
			offset += 4
		}
	}
	return n, nil
}

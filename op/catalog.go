package op

import (
	"encoding/json"

	"github.com/zqlite/zqlite-go/btree"
	"github.com/zqlite/zqlite-go/core"
)

// Catalog is the schema directory: a btree mapping object names (tables
// and indexes share one namespace) to their definitions.
type Catalog struct {
	store btree.Store
	tree  *btree.Tree
}

// CreateCatalog allocates an empty catalog btree.
func CreateCatalog(store btree.Store) (*Catalog, error) {
	tree, err := btree.Create(store)
	if err != nil {
		return nil, err
	}
	return &Catalog{store: store, tree: tree}, nil
}

// OpenCatalog attaches to the catalog rooted at the given page.
func OpenCatalog(store btree.Store, root uint32) (*Catalog, error) {
	tree, err := btree.Open(store, root)
	if err != nil {
		return nil, err
	}
	return &Catalog{store: store, tree: tree}, nil
}

// Root returns the catalog's current root page, for the file header.
func (c *Catalog) Root() uint32 {
	return c.tree.Root()
}

func nameKey(name string) []byte {
	return core.EncodeKey(core.Text(name))
}

// Get looks up a schema object by name.
func (c *Catalog) Get(name string) (*core.Table, error) {
	value, err := c.tree.Get(nameKey(name))
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil, core.Errorf(core.KindSchema, "no such table: %s", name)
		}
		return nil, err
	}
	var table core.Table
	if err := json.Unmarshal(value, &table); err != nil {
		return nil, core.Errorf(core.KindCorrupt, "catalog entry %s: %v", name, err)
	}
	return &table, nil
}

// Exists reports whether a schema object with this name is defined.
func (c *Catalog) Exists(name string) (bool, error) {
	return c.tree.Has(nameKey(name))
}

// Create registers a new schema object; the name must be free.
func (c *Catalog) Create(table core.Table) error {
	taken, err := c.Exists(table.Name)
	if err != nil {
		return err
	}
	if taken {
		return core.Errorf(core.KindSchema, "object %s already exists", table.Name)
	}
	return c.Put(table)
}

// Put writes a schema object, replacing any previous definition.
func (c *Catalog) Put(table core.Table) error {
	value, err := json.Marshal(table)
	if err != nil {
		return core.Errorf(core.KindInternal, "encode catalog entry: %v", err)
	}
	return c.tree.Insert(nameKey(table.Name), value)
}

// Drop removes a schema object by name.
func (c *Catalog) Drop(name string) error {
	found, err := c.tree.Delete(nameKey(name))
	if err != nil {
		return err
	}
	if !found {
		return core.Errorf(core.KindSchema, "no such table: %s", name)
	}
	return nil
}

// List returns every schema object in name order.
func (c *Catalog) List() ([]core.Table, error) {
	it, err := c.tree.ScanAll()
	if err != nil {
		return nil, err
	}
	var tables []core.Table
	for it.Valid() {
		var table core.Table
		if err := json.Unmarshal(it.Value(), &table); err != nil {
			return nil, core.Errorf(core.KindCorrupt, "catalog entry: %v", err)
		}
		tables = append(tables, table)
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

// IndexesOn returns the indexes defined over a table.
func (c *Catalog) IndexesOn(tableName string) ([]core.Table, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	var indexes []core.Table
	for _, entry := range all {
		if entry.IsIndex && entry.OnTable == tableName {
			indexes = append(indexes, entry)
		}
	}
	return indexes, nil
}

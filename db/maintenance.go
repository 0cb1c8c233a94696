package db

import (
	"github.com/zqlite/zqlite-go/btree"
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/op"
	"github.com/zqlite/zqlite-go/pager"
	"github.com/zqlite/zqlite-go/txn"
)

// Vacuum rebuilds the database file, rewriting every tree into a fresh
// file and dropping free pages. Not allowed inside a transaction.
func (c *Conn) Vacuum() error {
	if c.manager.Current() != nil {
		return c.fail(core.NewError(core.KindUsage, "cannot vacuum during a transaction"))
	}
	if err := c.shared.LockWriter(c.manager.Timeout()); err != nil {
		return c.fail(err)
	}
	defer c.shared.UnlockWriter()

	// fold the log so the main file is complete before copying
	if log := c.manager.WAL(); log != nil {
		p := c.shared.Pager
		if err := log.Checkpoint(txn.Apply(p)); err != nil {
			return c.fail(err)
		}
		if err := p.Sync(); err != nil {
			return c.fail(err)
		}
	}

	p := c.shared.Pager
	fs := p.Filesystem()
	freshPath := p.Path() + ".vacuum"
	fs.Remove(freshPath)

	fresh, err := pager.Open(fs, freshPath, c.pagerOpts)
	if err != nil {
		return c.fail(err)
	}
	// journaling mode survives the rebuild; without the flag the next
	// open would skip log recovery
	if p.Flag(pager.FlagWAL) {
		fresh.SetFlag(pager.FlagWAL, true)
	}
	if err := c.copyInto(fresh); err != nil {
		fresh.Close()
		fs.Remove(freshPath)
		return c.fail(err)
	}
	if err := fresh.Close(); err != nil {
		fs.Remove(freshPath)
		return c.fail(err)
	}

	if err := fs.Rename(freshPath, p.Path()); err != nil {
		fs.Remove(freshPath)
		return c.fail(core.Errorf(core.KindIO, "swap vacuumed file: %v", err))
	}

	reopened, err := pager.Open(fs, p.Path(), c.pagerOpts)
	if err != nil {
		return c.fail(err)
	}
	c.shared.Pager = reopened
	p.Close()
	return c.fail(nil)
}

// copyInto rewrites every catalog object into the destination pager.
// Raw tree entries are copied, so rowids, sequences and index contents
// survive unchanged.
func (c *Conn) copyInto(dest *pager.Pager) error {
	src := c.shared.Pager
	catalog, err := op.OpenCatalog(src, src.SchemaRoot())
	if err != nil {
		return err
	}
	objects, err := catalog.List()
	if err != nil {
		return err
	}

	destCatalog, err := op.CreateCatalog(dest)
	if err != nil {
		return err
	}
	for _, meta := range objects {
		srcTree, err := btree.Open(src, meta.Root)
		if err != nil {
			return err
		}
		destTree, err := btree.Create(dest)
		if err != nil {
			return err
		}
		it, err := srcTree.ScanAll()
		if err != nil {
			return err
		}
		for it.Valid() {
			if err := destTree.Insert(it.Key(), it.Value()); err != nil {
				return err
			}
			if err := it.Next(); err != nil {
				return err
			}
		}
		meta.Root = destTree.Root()
		if err := destCatalog.Create(meta); err != nil {
			return err
		}
	}
	dest.SetSchemaRoot(destCatalog.Root())
	return dest.Sync()
}

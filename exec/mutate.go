package exec

import (
	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/op"
	"github.com/zqlite/zqlite-go/plan"
)

func (c *Cursor) mutate() error {
	switch c.plan.Kind {
	case plan.InsertPlanKind:
		return c.runInsert()
	case plan.UpdatePlanKind:
		return c.runUpdate()
	case plan.DeletePlanKind:
		return c.runDelete()
	case plan.CreateTablePlanKind:
		_, err := op.CreateTable(c.env.Catalog, c.env.Store, c.plan.Definition)
		return err
	case plan.DropTablePlanKind:
		tableOp, err := op.GetTable(c.env.Catalog, c.env.Store, c.plan.DropName)
		if err != nil {
			return err
		}
		return tableOp.Drop()
	case plan.CreateIndexPlanKind:
		def := c.plan.Definition
		return op.CreateIndex(c.env.Catalog, c.env.Store, def.Name, def.OnTable, def.OnColumn, def.Unique)
	case plan.DropIndexPlanKind:
		return op.DropIndex(c.env.Catalog, c.env.Store, c.plan.DropName)
	default:
		return core.Errorf(core.KindInternal, "unknown plan kind %d", c.plan.Kind)
	}
}

func (c *Cursor) runInsert() error {
	tableOp, err := op.GetTable(c.env.Catalog, c.env.Store, c.plan.Table.Name)
	if err != nil {
		return err
	}
	for _, operands := range c.plan.Inserts {
		if c.env.interrupted() {
			return core.NewError(core.KindInterrupt, "interrupted")
		}
		row := make([]core.Value, len(operands))
		for i, operand := range operands {
			row[i] = operand.Resolve(c.args)
		}
		rowid, err := tableOp.Insert(row)
		if err != nil {
			return err
		}
		c.changes++
		c.lastInsert = rowid
	}
	return nil
}

// matchingKeys collects the primary keys of the rows the predicate
// accepts. Mutations collect first and apply second so the applying
// loop never walks a tree it is rewriting.
func (c *Cursor) matchingKeys(tableOp *op.TableOp) ([]core.Value, error) {
	rows, err := tableOp.Scan(nil, nil)
	if err != nil {
		return nil, err
	}
	var keys []core.Value
	for {
		if c.env.interrupted() {
			return nil, core.NewError(core.KindInterrupt, "interrupted")
		}
		key, row, ok, err := rows.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return keys, nil
		}
		match, err := evalPredicate(c.plan.Pred, row, c.args)
		if err != nil {
			return nil, err
		}
		if match {
			keys = append(keys, key)
		}
	}
}

func (c *Cursor) runUpdate() error {
	tableOp, err := op.GetTable(c.env.Catalog, c.env.Store, c.plan.Table.Name)
	if err != nil {
		return err
	}
	keys, err := c.matchingKeys(tableOp)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if c.env.interrupted() {
			return core.NewError(core.KindInterrupt, "interrupted")
		}
		row, found, err := tableOp.Get(key)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		for _, set := range c.plan.Sets {
			row[set.Col] = set.Value.Resolve(c.args)
		}
		if err := tableOp.Update(key, row); err != nil {
			return err
		}
		c.changes++
	}
	return nil
}

func (c *Cursor) runDelete() error {
	tableOp, err := op.GetTable(c.env.Catalog, c.env.Store, c.plan.Table.Name)
	if err != nil {
		return err
	}
	keys, err := c.matchingKeys(tableOp)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if c.env.interrupted() {
			return core.NewError(core.KindInterrupt, "interrupted")
		}
		existed, err := tableOp.Delete(key)
		if err != nil {
			return err
		}
		if existed {
			c.changes++
		}
	}
	return nil
}

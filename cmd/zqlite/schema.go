package main

import (
	"fmt"
	"strings"

	"github.com/zqlite/zqlite-go/core"
)

// formatSchema renders a catalog object as the SQL that would recreate it.
func formatSchema(object core.Table) string {
	if object.IsIndex {
		unique := ""
		if object.Unique {
			unique = "UNIQUE "
		}
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);", unique, object.Name, object.OnTable, object.OnColumn)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", object.Name)
	for i, column := range object.Columns {
		fmt.Fprintf(&b, "  %s %s", column.Name, column.Type)
		if column.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if column.NotNull {
			b.WriteString(" NOT NULL")
		}
		if i < len(object.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

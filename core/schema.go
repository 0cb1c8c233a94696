package core

type ColumnType int

const (
	IntegerType ColumnType = iota
	FloatType
	TextType
	BlobType
	NullType
)

func (t ColumnType) String() string {
	switch t {
	case IntegerType:
		return "INTEGER"
	case FloatType:
		return "FLOAT"
	case TextType:
		return "TEXT"
	case BlobType:
		return "BLOB"
	default:
		return "NULL"
	}
}

type Column struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	PrimaryKey bool       `json:"primaryKey"`
	NotNull    bool       `json:"notNull"`
}

// Table describes one schema object: a table or an index. Root tracks the
// object's btree root page and is rewritten in the catalog whenever a
// split moves it. Seq is the rowid counter for tables without a declared
// primary key.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Root    uint32   `json:"root"`
	Seq     int64    `json:"seq,omitempty"`

	// Index metadata. For an index, OnTable/OnColumn name the owning
	// table and the indexed column.
	IsIndex  bool   `json:"isIndex,omitempty"`
	OnTable  string `json:"onTable,omitempty"`
	OnColumn string `json:"onColumn,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
}

// PrimaryKey returns the declared primary key column, or nil when the
// table uses the implicit rowid.
func (t *Table) PrimaryKey() *Column {
	for i := range t.Columns {
		if t.Columns[i].PrimaryKey {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnIndex returns the position of a named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

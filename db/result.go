package db

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zqlite/zqlite-go/core"
	"github.com/zqlite/zqlite-go/plan"
)

// Result holds the fully materialized rows of one query.
type Result struct {
	cols      []plan.ResultColumn
	rows      [][]core.Value
	precision int
}

func emptyResult(precision int) *Result {
	return &Result{precision: precision}
}

func (r *Result) RowCount() int {
	return len(r.rows)
}

func (r *Result) ColumnCount() int {
	return len(r.cols)
}

// ColumnName returns the name of an output column.
func (r *Result) ColumnName(col int) string {
	if col < 0 || col >= len(r.cols) {
		return ""
	}
	return r.cols[col].Name
}

func (r *Result) cell(row, col int) (core.Value, error) {
	if row < 0 || row >= len(r.rows) || col < 0 || col >= len(r.rows[row]) {
		return core.Null(), core.Errorf(core.KindRange, "cell (%d, %d) out of range", row, col)
	}
	return r.rows[row][col], nil
}

// ColumnType returns the storage type of one cell; individual cells of
// a column can differ, NULLs in particular.
func (r *Result) ColumnType(row, col int) core.Type {
	value, err := r.cell(row, col)
	if err != nil {
		return core.TypeNull
	}
	return value.Type()
}

// IsNull reports whether a cell holds NULL.
func (r *Result) IsNull(row, col int) bool {
	return r.ColumnType(row, col) == core.TypeNull
}

// DisplayCell renders one cell as text, using the connection's
// precision at the time of the query. Out-of-range cells render empty.
func (r *Result) DisplayCell(row, col int) string {
	value, err := r.cell(row, col)
	if err != nil {
		return ""
	}
	return value.Display(r.precision)
}

// GetText returns a text cell; any other type is a mismatch.
func (r *Result) GetText(row, col int) (string, error) {
	value, err := r.cell(row, col)
	if err != nil {
		return "", err
	}
	return value.Text()
}

// GetInt returns an integer cell; any other type is a mismatch.
func (r *Result) GetInt(row, col int) (int64, error) {
	value, err := r.cell(row, col)
	if err != nil {
		return 0, err
	}
	return value.Int()
}

// GetReal returns a real cell; integers widen, anything else is a
// mismatch.
func (r *Result) GetReal(row, col int) (float64, error) {
	value, err := r.cell(row, col)
	if err != nil {
		return 0, err
	}
	return value.Float()
}

// GetBlob returns a blob cell; any other type is a mismatch.
func (r *Result) GetBlob(row, col int) ([]byte, error) {
	value, err := r.cell(row, col)
	if err != nil {
		return nil, err
	}
	return value.Blob()
}

// Display renders the result as an ASCII table on stdout followed by a
// row-count line.
func (r *Result) Display() {
	r.Render(os.Stdout)
}

// Render writes the result table to w.
func (r *Result) Render(w io.Writer) {
	if len(r.cols) > 0 {
		table := newTable(w)
		headers := make([]string, len(r.cols))
		for i, col := range r.cols {
			headers[i] = col.Name
		}
		table.header(headers)
		for _, row := range r.rows {
			cells := make([]string, len(row))
			for i, value := range row {
				cells[i] = value.Display(r.precision)
			}
			table.row(cells)
		}
		table.render()
	}
	fmt.Fprintf(w, "%d rows\n", len(r.rows))
}

// table is a minimal left-aligned ASCII table writer.
type table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
}

func newTable(w io.Writer) *table {
	return &table{writer: w}
}

func (t *table) header(headers []string) {
	t.headers = headers
}

func (t *table) row(row []string) {
	t.rows = append(t.rows, row)
}

func (t *table) render() {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("-", w+2)
	}
	separator := "+" + strings.Join(parts, "+") + "+"

	fmt.Fprintln(t.writer, separator)
	fmt.Fprintln(t.writer, t.formatRow(t.headers, widths))
	fmt.Fprintln(t.writer, separator)
	for _, row := range t.rows {
		fmt.Fprintln(t.writer, t.formatRow(row, widths))
	}
	fmt.Fprintln(t.writer, separator)
}

func (t *table) formatRow(row []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		parts[i] = " " + cell + strings.Repeat(" ", w-len(cell)+1)
	}
	return "|" + strings.Join(parts, "|") + "|"
}

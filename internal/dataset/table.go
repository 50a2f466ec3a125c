// Package dataset holds the tabular shape shared by every provider: a header
// of column names and rows of nullable cells.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// DateColumn is the name of the column holding the row key of date-indexed tables
const DateColumn = "Date"

// NA is the "no value" marker
var NA = null.String{}

// Row is one record, aligned with the table's Columns
type Row []null.String

// Table is a wide table with a header row
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given columns
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Text wraps a string cell value
func Text(s string) null.String {
	return null.StringFrom(s)
}

// Number renders a decimal as a cell value
func Number(d decimal.Decimal) null.String {
	return null.StringFrom(d.String())
}

// Float renders an optional float as a cell value; nil becomes NA
func Float(f *float64) null.String {
	if f == nil {
		return NA
	}
	return Number(decimal.NewFromFloat(*f))
}

// AppendRow adds a row. The number of values must match the number of columns.
func (t *Table) AppendRow(values ...null.String) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, Row(append([]null.String(nil), values...)))
	return nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table is nil or has no rows
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Index returns the position of a column, or -1
func (t *Table) Index(column string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has a column with the given name
func (t *Table) HasColumn(column string) bool {
	return t.Index(column) >= 0
}

// Value returns the cell at row i for the named column, NA when either is missing
func (t *Table) Value(i int, column string) null.String {
	c := t.Index(column)
	if c < 0 || i < 0 || i >= t.Len() {
		return NA
	}
	return t.Rows[i][c]
}

// Column returns every value of the named column, nil when the column is missing
func (t *Table) Column(column string) []null.String {
	c := t.Index(column)
	if c < 0 {
		return nil
	}
	out := make([]null.String, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[c]
	}
	return out
}

// SortBy orders rows ascending by the string value of the named column. NA sorts first.
func (t *Table) SortBy(column string) {
	c := t.Index(column)
	if c < 0 {
		return
	}
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i][c].String < t.Rows[j][c].String
	})
}

// OuterJoin combines tables on the key column. Every key present in any table
// appears once in the result, sorted ascending; cells a table does not provide
// are NA. Columns keep the order of the input tables. A column already present
// from an earlier table is not duplicated: its NA cells are filled from the
// later table. Nil or empty tables are skipped; the result is nil when no
// table contributes a row.
func OuterJoin(key string, tables ...*Table) *Table {
	out := New(key)
	rowByKey := make(map[string]int)

	for _, t := range tables {
		if t.Empty() {
			continue
		}
		k := t.Index(key)
		if k < 0 {
			continue
		}

		// map this table's columns onto the output, adding new ones
		target := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			if i == k {
				target[i] = 0
				continue
			}
			if j := out.Index(c); j >= 0 {
				target[i] = j
				continue
			}
			out.Columns = append(out.Columns, c)
			for r := range out.Rows {
				out.Rows[r] = append(out.Rows[r], NA)
			}
			target[i] = len(out.Columns) - 1
		}

		for _, row := range t.Rows {
			keyValue := row[k]
			if !keyValue.Valid {
				continue
			}
			r, ok := rowByKey[keyValue.String]
			if !ok {
				newRow := make(Row, len(out.Columns))
				newRow[0] = keyValue
				out.Rows = append(out.Rows, newRow)
				r = len(out.Rows) - 1
				rowByKey[keyValue.String] = r
			}
			for i, v := range row {
				if i == k || !v.Valid {
					continue
				}
				if !out.Rows[r][target[i]].Valid {
					out.Rows[r][target[i]] = v
				}
			}
		}
	}

	if out.Empty() {
		return nil
	}

	out.SortBy(key)
	return out
}

// WriteCSV writes the table with a header row. NA cells are written as empty fields.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i].Valid {
				record[i] = row[i].String
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

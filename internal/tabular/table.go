// Package tabular holds the flat table model shared by the extraction
// pipeline, the catalog scraper and the publisher, plus xlsx/csv I/O.
package tabular

import (
	"strconv"
	"strings"
)

// Table is a rectangular set of rows under named columns. An empty string
// is the null marker for a cell.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New returns an empty table with the given header.
func New(columns ...string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

// Width returns the number of columns.
func (t Table) Width() int {
	return len(t.Columns)
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Append adds a row, padding or truncating it to the table width.
func (t *Table) Append(row []string) {
	t.Rows = append(t.Rows, fit(row, len(t.Columns)))
}

// Column returns the index of the named column, or -1.
func (t Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Filter returns a copy holding only the rows keep accepts.
func (t Table) Filter(keep func(row []string) bool) Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Map applies fn to every cell, passing the column name.
func (t Table) Map(fn func(value, column string) string) Table {
	out := New(t.Columns...)
	out.Rows = make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := make([]string, len(r))
		for i, v := range r {
			nr[i] = fn(v, t.Columns[i])
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// DropEmptyColumns removes columns that are null in every row.
func (t Table) DropEmptyColumns() Table {
	keep := make([]int, 0, len(t.Columns))
	for ci := range t.Columns {
		for _, r := range t.Rows {
			if ci < len(r) && strings.TrimSpace(r[ci]) != "" {
				keep = append(keep, ci)
				break
			}
		}
	}
	out := Table{Columns: make([]string, 0, len(keep))}
	for _, ci := range keep {
		out.Columns = append(out.Columns, t.Columns[ci])
	}
	for _, r := range t.Rows {
		nr := make([]string, 0, len(keep))
		for _, ci := range keep {
			nr = append(nr, r[ci])
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// DropEmptyRows removes rows where every cell is null.
func (t Table) DropEmptyRows() Table {
	return t.Filter(func(r []string) bool { return !RowEmpty(r) })
}

// Concat stacks tables vertically. Columns are unioned by name in order of
// first appearance; missing cells are null.
func Concat(tables ...Table) Table {
	var cols []string
	index := map[string]int{}
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := index[c]; !ok {
				index[c] = len(cols)
				cols = append(cols, c)
			}
		}
	}
	out := New(cols...)
	for _, t := range tables {
		for _, r := range t.Rows {
			nr := make([]string, len(cols))
			for i, v := range r {
				if i < len(t.Columns) {
					nr[index[t.Columns[i]]] = v
				}
			}
			out.Rows = append(out.Rows, nr)
		}
	}
	return out
}

// FromRows builds a table whose width is the longest row, padding short rows.
// Column names are positional ("0", "1", ...) unless header is given, in
// which case rows are cut to the header width.
func FromRows(rows [][]string, header []string) Table {
	width := len(header)
	if width == 0 {
		for _, r := range rows {
			width = max(width, len(r))
		}
		header = make([]string, width)
		for i := range header {
			header[i] = strconv.Itoa(i)
		}
	}
	t := New(header...)
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// RowEmpty reports whether every cell of r is blank.
func RowEmpty(r []string) bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

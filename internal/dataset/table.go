package dataset

import (
	"fmt"
	"math"
)

// Table is a numeric, column-oriented dataset. A missing cell is stored as NaN,
// so a literal NaN read from a file and an absent value are the same thing.
type Table struct {
	names []string
	index map[string]int
	cols  [][]float64
	// Skipped lists columns dropped on load because no cell parsed as a number.
	Skipped []string
}

// NewTable builds a Table from parallel column names and values.
// All columns must have the same length and names must be unique.
func NewTable(names []string, cols [][]float64) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("new table: %d names for %d columns", len(names), len(cols))
	}
	t := emptyTable()
	for i, name := range names {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("new table: duplicate column %q", name)
		}
		if i > 0 && len(cols[i]) != len(cols[0]) {
			return nil, fmt.Errorf("new table: column %q has %d rows, want %d", name, len(cols[i]), len(cols[0]))
		}
		vals := make([]float64, len(cols[i]))
		copy(vals, cols[i])
		t.add(name, vals)
	}
	return t, nil
}

func emptyTable() *Table {
	return &Table{index: map[string]int{}}
}

func (t *Table) add(name string, vals []float64) {
	t.index[name] = len(t.names)
	t.names = append(t.names, name)
	t.cols = append(t.cols, vals)
}

// Columns returns the column names in file order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(t.cols[i]))
	copy(out, t.cols[i])
	return out, true
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0])
}

// Empty reports whether the table has no columns or no rows.
func (t *Table) Empty() bool {
	return t == nil || len(t.names) == 0 || t.Rows() == 0
}

// Missing counts missing cells across all columns.
func (t *Table) Missing() int {
	n := 0
	for _, col := range t.cols {
		for _, v := range col {
			if math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// rename moves column from to the name to. An existing column called to is
// replaced by the renamed one.
func (t *Table) rename(from, to string) {
	i, ok := t.index[from]
	if !ok || from == to {
		return
	}
	if j, exists := t.index[to]; exists {
		t.drop(j)
		i = t.index[from]
	}
	delete(t.index, from)
	t.names[i] = to
	t.index[to] = i
}

func (t *Table) drop(i int) {
	t.names = append(t.names[:i], t.names[i+1:]...)
	t.cols = append(t.cols[:i], t.cols[i+1:]...)
	t.index = make(map[string]int, len(t.names))
	for k, name := range t.names {
		t.index[name] = k
	}
}

// keepRows retains only the rows for which keep is true.
func (t *Table) keepRows(keep []bool) {
	for c, col := range t.cols {
		out := col[:0]
		for r, v := range col {
			if keep[r] {
				out = append(out, v)
			}
		}
		t.cols[c] = out
	}
}

package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Feature column names, in matrix order.
const (
	ColumnYear  = "year"
	ColumnMonth = "month"
)

// Features holds the model inputs: one row of X and one value of Y per observation.
type Features struct {
	// Columns names the columns of X.
	Columns []string
	X       [][]float64
	Y       []float64
}

// Len returns the number of observations.
func (f Features) Len() int { return len(f.Y) }

// Empty reports whether there are no observations.
func (f Features) Empty() bool { return len(f.X) == 0 || len(f.Y) == 0 }

// Extract selects (year[, month]) as X and the target column as Y.
//
// Without a "year" column or the target column it returns empty Features and an
// error matching ErrUnavailable; a month column alone never forms a matrix.
func Extract(t *Table, target string) (Features, error) {
	empty := Features{X: [][]float64{}, Y: []float64{}}
	if t.Empty() {
		return empty, &UnavailableError{Reason: "table has no rows"}
	}
	if !t.Has(ColumnYear) || !t.Has(target) {
		return empty, &UnavailableError{Reason: fmt.Sprintf("missing required columns %q and %q", ColumnYear, target)}
	}
	cols := []string{ColumnYear}
	if t.Has(ColumnMonth) {
		cols = append(cols, ColumnMonth)
	}
	rows := t.Rows()
	x := make([][]float64, rows)
	for r := range x {
		x[r] = make([]float64, len(cols))
		for c, name := range cols {
			x[r][c] = t.cols[t.index[name]][r]
		}
	}
	y, _ := t.Column(target)
	return Features{Columns: cols, X: x, Y: y}, nil
}

// Standardize returns a copy of x with every column rescaled to zero mean and
// unit population standard deviation. A constant column yields non-finite values.
func Standardize(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return [][]float64{}
	}
	ncol := len(x[0])
	out := make([][]float64, len(x))
	for r := range out {
		out[r] = make([]float64, ncol)
	}
	col := make([]float64, len(x))
	for c := 0; c < ncol; c++ {
		for r := range x {
			col[r] = x[r][c]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		for r := range x {
			out[r][c] = (x[r][c] - mean) / std
		}
	}
	return out
}

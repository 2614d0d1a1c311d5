package dataset

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Sentinel is the upstream marker for a missing observation.
const Sentinel = -9999.0

// CleanReport summarizes what Clean changed.
type CleanReport struct {
	SentinelsReplaced int
	RowsDropped       int
	RowsKept          int
	// Normalized is true when the target column was present and rescaled.
	Normalized bool
	// TargetMissing is true when the target column does not exist.
	TargetMissing bool
	// Degenerate is true when the target's standard deviation was zero or
	// undefined. The rescaled values are then non-finite and left as computed.
	Degenerate bool
	Mean       float64
	Std        float64
}

// Clean replaces sentinels with missing values, drops incomplete rows and
// z-score-normalizes the target column, in place. An empty table is left alone.
func Clean(t *Table, target string) CleanReport {
	var rep CleanReport
	if t.Empty() {
		rep.TargetMissing = !t.Has(target)
		return rep
	}
	rep.SentinelsReplaced = ReplaceSentinel(t)
	rep.RowsDropped = DropIncomplete(t)
	rep.RowsKept = t.Rows()
	if t.Empty() {
		rep.TargetMissing = !t.Has(target)
		return rep
	}
	n := Normalize(t, target)
	rep.Normalized = n.Normalized
	rep.TargetMissing = !n.Normalized
	rep.Degenerate = n.Degenerate
	rep.Mean, rep.Std = n.Mean, n.Std
	return rep
}

// ReplaceSentinel turns every cell equal to Sentinel into a missing value and
// returns how many were replaced.
func ReplaceSentinel(t *Table) int {
	n := 0
	for _, col := range t.cols {
		for i, v := range col {
			if v == Sentinel {
				col[i] = math.NaN()
				n++
			}
		}
	}
	return n
}

// DropIncomplete removes every row holding a missing value in any column and
// returns how many rows were removed.
func DropIncomplete(t *Table) int {
	rows := t.Rows()
	keep := make([]bool, rows)
	dropped := 0
	for r := 0; r < rows; r++ {
		keep[r] = true
		for _, col := range t.cols {
			if math.IsNaN(col[r]) {
				keep[r] = false
				dropped++
				break
			}
		}
	}
	if dropped > 0 {
		t.keepRows(keep)
	}
	return dropped
}

// NormalizeResult describes a single column normalization.
type NormalizeResult struct {
	Normalized bool
	Degenerate bool
	Mean       float64
	Std        float64
}

// Normalize rescales the named column to zero mean and unit sample standard
// deviation (n-1 denominator). A missing column is a no-op. A zero or undefined
// deviation is reported as Degenerate and the division is still applied.
func Normalize(t *Table, name string) NormalizeResult {
	i, ok := t.index[name]
	if !ok {
		return NormalizeResult{}
	}
	col := t.cols[i]
	mean, std := stat.MeanStdDev(col, nil)
	for k, v := range col {
		col[k] = (v - mean) / std
	}
	return NormalizeResult{
		Normalized: true,
		Degenerate: std == 0 || math.IsNaN(std),
		Mean:       mean,
		Std:        std,
	}
}

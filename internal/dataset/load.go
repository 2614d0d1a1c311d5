package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Options controls how delimited files are read.
type Options struct {
	// Delimiter for fields. If 0, '\t' for .tsv files and ',' otherwise.
	Delimiter rune
	// Comment starts a line that is skipped entirely.
	Comment rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
}

// DefaultOptions returns the options used for climate data files.
func DefaultOptions() Options {
	return Options{Comment: '#'}
}

// Load reads a delimited file into a Table, normalizing column names and
// renaming the value column to target (see RenameTarget).
//
// Load never returns a nil Table. When the file cannot be read or parsed it
// returns an empty Table and an error matching ErrUnavailable; callers check the
// error (or Empty) before going further. A nil error with an empty Table means
// the file had a header but no rows.
func Load(path, target string, opt Options) (*Table, error) {
	t, err := readTable(path, opt)
	if err != nil {
		return emptyTable(), &UnavailableError{Path: path, Reason: "load", Err: err}
	}
	if from, ok := RenameTarget(t.names, target); ok {
		t.rename(from, target)
	}
	return t, nil
}

// NormalizeName lower-cases and trims a column header.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RenameTarget decides which raw column should take the target name. A column
// called "value" wins over one called "anomaly". An empty target disables the
// rename, as does a target equal to the chosen column.
func RenameTarget(columns []string, target string) (string, bool) {
	if target == "" {
		return "", false
	}
	for _, candidate := range []string{"value", "anomaly"} {
		for _, c := range columns {
			if c == candidate {
				return c, c != target
			}
		}
	}
	return "", false
}

func readTable(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim
	r.Comment = opt.Comment

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := dedupe(header)
	ncol := len(names)

	cols := make([][]float64, ncol)
	numeric := make([]int, ncol)
	text := make([]int, ncol)
	line := 1
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		line++
		if len(rec) > ncol {
			return nil, fmt.Errorf("row %d: %d fields, header has %d", line, len(rec), ncol)
		}
		for j := 0; j < ncol; j++ {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			if isMissingToken(v) {
				cols[j] = append(cols[j], math.NaN())
				continue
			}
			x, ok := parseNumeric(v, opt)
			if !ok {
				text[j]++
				cols[j] = append(cols[j], math.NaN())
				continue
			}
			numeric[j]++
			cols[j] = append(cols[j], x)
		}
	}

	t := emptyTable()
	for j, name := range names {
		if numeric[j] == 0 && text[j] > 0 {
			t.Skipped = append(t.Skipped, name)
			continue
		}
		vals := cols[j]
		if vals == nil {
			vals = []float64{}
		}
		t.add(name, vals)
	}
	return t, nil
}

// dedupe normalizes header names and suffixes repeats with ".1", ".2", ...
func dedupe(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := NormalizeName(h)
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

func isMissingToken(v string) bool {
	switch strings.ToLower(v) {
	case "", "na", "nan", "n/a", "null", "none":
		return true
	}
	return false
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(strings.TrimSpace(s), "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	dec := opt.DecimalSeparator
	thou := opt.ThousandsSeparator
	if dec == 0 {
		cpos := strings.LastIndex(raw, ",")
		dpos := strings.LastIndex(raw, ".")
		switch {
		case cpos >= 0 && dpos >= 0:
			if cpos > dpos {
				dec, thou = ',', '.'
			} else {
				dec, thou = '.', ','
			}
		case cpos >= 0:
			dec = ','
		default:
			dec = '.'
		}
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else if thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

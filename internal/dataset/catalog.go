package dataset

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Known target column names.
const (
	TargetTemperature   = "temperature"
	TargetPrecipitation = "precipitation"
	TargetAnomaly       = "anomaly"
)

// DetectTarget guesses the target column from the file name, then from the
// column names. It returns false when nothing matches.
func DetectTarget(filename string, columns []string) (string, bool) {
	lower := strings.ToLower(filepath.Base(filename))
	switch {
	case strings.Contains(lower, "temp"):
		return TargetTemperature, true
	case strings.Contains(lower, "precip"):
		return TargetPrecipitation, true
	case strings.Contains(lower, "anom"):
		return TargetAnomaly, true
	}
	for _, col := range columns {
		switch col {
		case TargetTemperature, TargetPrecipitation, TargetAnomaly:
			return col, true
		}
		c := strings.ToLower(col)
		if strings.Contains(c, "temp") || strings.Contains(c, "precip") || strings.Contains(c, "anom") {
			return col, true
		}
	}
	return "", false
}

// ListFiles returns every .csv file under dir as a slash-separated path
// relative to dir, sorted.
func ListFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Resolve joins a catalog-relative name onto dir and rejects names that escape it.
func Resolve(dir, name string) (string, bool) {
	if name == "" || filepath.IsAbs(name) {
		return "", false
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(dir, clean), true
}

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCmd is a helper to execute the root command with args and capture stdout.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag to its default; bound variables and Changed
// state otherwise persist across invocations.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// setupHome isolates HOME and writes a small data dir with one file per target.
func setupHome(t *testing.T) (home, dataDir string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	dataDir = filepath.Join(home, "data")
	if err := os.MkdirAll(filepath.Join(dataDir, "temperature"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var b strings.Builder
	b.WriteString("# monthly means\nyear,month,value\n")
	for y := 1990; y < 1993; y++ {
		for m := 1; m <= 12; m++ {
			fmt.Fprintf(&b, "%d,%d,%.2f\n", y, m, 14+0.03*float64((y-1990)*12+m)+0.2*float64(m%3))
		}
	}
	if err := os.WriteFile(filepath.Join(dataDir, "temperature", "global.csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	precip := "year,precipitation\n2000,80\n2001,-9999\n2002,95\n2003,70\n2004,88\n"
	if err := os.WriteFile(filepath.Join(dataDir, "rain_precip.csv"), []byte(precip), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	t.Setenv("CLIMALYZER_DATA_DIR", dataDir)
	t.Setenv("CLIMALYZER_OUTPUT_DIR", filepath.Join(home, "output"))
	return home, dataDir
}

func TestCLI_RunPredictWritesReportAndChart(t *testing.T) {
	home, _ := setupHome(t)
	reportPath := filepath.Join(home, "out", "report.md")
	plotPath := filepath.Join(home, "out", "trend.png")

	out, err := runCmd(t, "", "run", "--folder", "temperature", "--file", "global.csv",
		"--action", "predict", "--target", "temperature", "--lr", "0.05",
		"--output", reportPath, "--plot", plotPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "✓ Wrote report to") || !strings.Contains(out, "✓ Wrote chart to") {
		t.Fatalf("unexpected output: %s", out)
	}
	md, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	for _, want := range []string{"[RUN SUMMARY]", "Target: temperature", "[TREND PREDICTION]", "- weight[year]"} {
		if !strings.Contains(string(md), want) {
			t.Fatalf("report missing %q:\n%s", want, md)
		}
	}
	if info, err := os.Stat(plotPath); err != nil || info.Size() == 0 {
		t.Fatalf("chart not written: %v", err)
	}

	// The run is recorded in history.
	out, err = runCmd(t, "", "history", "--limit", "5")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "global.csv") || !strings.Contains(out, "predict") {
		t.Fatalf("history missing run: %s", out)
	}
}

func TestCLI_RunJSONAutoDetectsTarget(t *testing.T) {
	_, dataDir := setupHome(t)
	out, err := runCmd(t, "", "run", "--file", filepath.Join(dataDir, "rain_precip.csv"),
		"--action", "anomalies", "--json", "--no-history")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, `"target": "precipitation"`) || !strings.Contains(out, `"sentinels_replaced": 1`) {
		t.Fatalf("unexpected json: %s", out)
	}
}

func TestCLI_RunErrors(t *testing.T) {
	setupHome(t)
	cases := [][]string{
		{"run", "--file", "global.csv", "--folder", "temperature", "--action", "forecast", "--target", "temperature"},
		{"run", "--file", "missing.csv", "--action", "predict", "--target", "temperature"},
		{"run", "--file", "../../etc/passwd", "--folder", "temperature", "--action", "predict"},
		{"run", "--file", "global.csv", "--folder", "temperature", "--action", "cluster", "--target", "temperature", "--clusters", "0"},
		{"run", "--file", "global.csv", "--folder", "temperature", "--action", "predict", "--delimiter", "|"},
	}
	for _, args := range cases {
		if _, err := runCmd(t, "", args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestCLI_RunInsufficientData(t *testing.T) {
	_, dataDir := setupHome(t)
	if err := os.WriteFile(filepath.Join(dataDir, "temp_no_year.csv"), []byte("month,value\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := runCmd(t, "", "run", "--file", "temp_no_year.csv", "--action", "predict", "--target", "temperature", "--no-history")
	if err == nil || !strings.Contains(err.Error(), "skipping temp_no_year.csv") {
		t.Fatalf("expected skipping error, got %v", err)
	}
}

func TestCLI_FilesAndPick(t *testing.T) {
	home, _ := setupHome(t)
	out, err := runCmd(t, "", "files")
	if err != nil {
		t.Fatalf("files failed: %v", err)
	}
	if !strings.Contains(out, "- rain_precip.csv (target: precipitation)") ||
		!strings.Contains(out, "- temperature/global.csv (target: ?)") {
		t.Fatalf("unexpected files output: %s", out)
	}

	// Files are sorted, so choice 1 is rain_precip.csv.
	out, err = runCmd(t, "1\n", "pick")
	if err != nil {
		t.Fatalf("pick failed: %v", err)
	}
	for _, want := range []string{"1. rain_precip.csv", "Detected target column: 'precipitation'", "[CLUSTERS]", "[ANOMALIES]", "✓ Done"} {
		if !strings.Contains(out, want) {
			t.Fatalf("pick output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(home, "output", "rain_precip_anomalies.png")); err != nil {
		t.Fatalf("anomalies chart not written: %v", err)
	}

	if _, err := runCmd(t, "9\n", "pick"); err == nil {
		t.Fatalf("expected invalid selection error")
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home, _ := setupHome(t)
	if _, err := runCmd(t, "", "config", "set", "window_size", "5"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(home, ".climalyzer", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(b), "window_size: 5") {
		t.Fatalf("config not saved: %s", b)
	}
	out, err := runCmd(t, "", "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "window_size: 5") {
		t.Fatalf("config show missing saved value: %s", out)
	}
	if _, err := runCmd(t, "", "config", "set", "window_size", "wide"); err == nil {
		t.Fatalf("expected invalid value error")
	}
}

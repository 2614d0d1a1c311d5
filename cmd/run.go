package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "github.com/KaramelBytes/climalyzer/internal/config"
	"github.com/KaramelBytes/climalyzer/internal/dataset"
	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/KaramelBytes/climalyzer/internal/plot"
	"github.com/KaramelBytes/climalyzer/internal/report"
	"github.com/KaramelBytes/climalyzer/internal/utils"
	"github.com/spf13/cobra"
)

var (
	runFile       string
	runFolder     string
	runAction     string
	runTarget     string
	runPlotPath   string
	runOutputPath string
	runJSON       bool
	runNoHistory  bool
	runDelimiter  string
	runDecimal    string
	runThousands  string
	runLR         float64
	runIterations int
	runClusters   int
	runWindow     int
	runThreshold  float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run predict, cluster or anomalies on one data file",
	Example: `  climalyzer run --folder temperature --file global.csv --action predict --target temperature
  climalyzer run --file data/precip.csv --action anomalies --target precipitation --plot out.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		applyRunOverrides(cmd, c)
		if err := c.Validate(); err != nil {
			return err
		}
		action, err := pipeline.ParseAction(runAction)
		if err != nil {
			return err
		}
		path, err := resolveDataFile(c.DataDir, runFolder, runFile)
		if err != nil {
			return err
		}
		loadOpt, err := parseLoadOptions(runDelimiter, runDecimal, runThousands)
		if err != nil {
			return err
		}

		opts := []pipeline.Option{pipeline.WithLoadOptions(loadOpt)}
		if !runNoHistory {
			if store := openHistory(c); store != nil {
				defer store.Close()
				opts = append(opts, pipeline.WithRecorder(store))
			}
		}
		runner := pipeline.New(settingsFrom(c), logger, opts...)
		res, err := runner.Run(cmd.Context(), pipeline.Request{Path: path, Target: runTarget, Action: action})
		if err != nil {
			if errors.Is(err, pipeline.ErrInsufficientData) {
				return fmt.Errorf("skipping %s: %w", filepath.Base(path), err)
			}
			return err
		}
		return writeResult(cmd.OutOrStdout(), res, runOutputPath, runPlotPath, runJSON)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "CSV file: a path, or a name inside the data dir (required)")
	runCmd.Flags().StringVar(&runFolder, "folder", "", "subfolder of the data dir holding --file")
	runCmd.Flags().StringVarP(&runAction, "action", "a", "", "predict | cluster | anomalies | all (required)")
	runCmd.Flags().StringVarP(&runTarget, "target", "t", "", "target column, e.g. temperature, precipitation, anomaly (auto-detect if omitted)")
	runCmd.Flags().StringVar(&runPlotPath, "plot", "", "write a chart to this path (.png, .svg, .pdf)")
	runCmd.Flags().StringVarP(&runOutputPath, "output", "o", "", "write the report to this path instead of stdout")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "write the result as JSON instead of Markdown")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "do not record this run in the history database")
	runCmd.Flags().StringVar(&runDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (auto if omitted)")
	runCmd.Flags().StringVar(&runDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma'")
	runCmd.Flags().StringVar(&runThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space'")
	runCmd.Flags().Float64Var(&runLR, "lr", 0, "gradient descent learning rate (overrides config)")
	runCmd.Flags().IntVar(&runIterations, "iterations", 0, "gradient descent iterations (overrides config)")
	runCmd.Flags().IntVarP(&runClusters, "clusters", "k", 0, "number of clusters (overrides config)")
	runCmd.Flags().IntVar(&runWindow, "window", 0, "moving average window (overrides config)")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "anomaly threshold in standard deviations (overrides config)")
	_ = runCmd.MarkFlagRequired("file")
	_ = runCmd.MarkFlagRequired("action")
}

func applyRunOverrides(cmd *cobra.Command, c *cfgpkg.Global) {
	f := cmd.Flags()
	if f.Changed("lr") {
		c.LearningRate = runLR
	}
	if f.Changed("iterations") {
		c.Iterations = runIterations
	}
	if f.Changed("clusters") {
		c.Clusters = runClusters
	}
	if f.Changed("window") {
		c.WindowSize = runWindow
	}
	if f.Changed("threshold") {
		c.Threshold = runThreshold
	}
}

// resolveDataFile accepts an existing path as given; otherwise it looks the
// name up inside dataDir/folder.
func resolveDataFile(dataDir, folder, file string) (string, error) {
	if folder == "" {
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			return file, nil
		}
	}
	path, ok := dataset.Resolve(dataDir, filepath.ToSlash(filepath.Join(folder, file)))
	if !ok {
		return "", fmt.Errorf("invalid data file %q: must stay inside %s", file, dataDir)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file not found at %s", path)
	}
	return path, nil
}

func parseLoadOptions(delimiter, decimal, thousands string) (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	switch delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", delimiter)
	}
	// Locale separators
	switch strings.ToLower(strings.TrimSpace(decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", decimal)
	}
	switch strings.ToLower(strings.TrimSpace(thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", thousands)
	}
	return opt, nil
}

// writeResult prints or saves the report and, when asked, the chart.
func writeResult(out io.Writer, res *pipeline.Result, outputPath, plotPath string, asJSON bool) error {
	var body []byte
	if asJSON {
		b, err := report.JSON(res)
		if err != nil {
			return err
		}
		body = b
	} else {
		body = []byte(report.Markdown(res))
	}

	if res.Prediction != nil && res.Prediction.Skipped {
		fmt.Fprintf(os.Stderr, "⚠ Prediction skipped: %s\n", res.Prediction.Reason)
	}
	if outputPath != "" {
		if err := utils.SafeWriteFile(outputPath, body); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote report to %s\n", outputPath)
	} else {
		fmt.Fprintln(out, string(body))
	}

	if plotPath != "" {
		p, err := plot.ForResult(res)
		if err != nil {
			return fmt.Errorf("plot: %w", err)
		}
		if dir := filepath.Dir(plotPath); dir != "." {
			if err := utils.EnsureDir(dir); err != nil {
				return err
			}
		}
		if err := plot.Save(p, plotPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote chart to %s\n", plotPath)
	}
	return nil
}

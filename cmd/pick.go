package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/KaramelBytes/climalyzer/internal/dataset"
	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/KaramelBytes/climalyzer/internal/plot"
	"github.com/KaramelBytes/climalyzer/internal/report"
	"github.com/KaramelBytes/climalyzer/internal/utils"
	"github.com/spf13/cobra"
	gplot "gonum.org/v1/plot"
)

var pickNoPlots bool

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Choose a data file interactively and run every analysis on it",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		files, err := dataset.ListFiles(c.DataDir)
		if err != nil {
			return fmt.Errorf("list %s: %w", c.DataDir, err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no CSV files found in %s", c.DataDir)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Available data files:")
		for i, f := range files {
			fmt.Fprintf(out, "%d. %s\n", i+1, f)
		}
		fmt.Fprint(out, "\nEnter the number of the file to analyze: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return errors.New("no selection made")
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n < 1 || n > len(files) {
			return fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
		}
		selected := files[n-1]
		path, _ := dataset.Resolve(c.DataDir, selected)
		fmt.Fprintf(out, "\nSelected file: %s\n", selected)

		var opts []pipeline.Option
		if store := openHistory(c); store != nil {
			defer store.Close()
			opts = append(opts, pipeline.WithRecorder(store))
		}
		runner := pipeline.New(settingsFrom(c), logger, opts...)
		res, err := runner.Run(cmd.Context(), pipeline.Request{Path: path, Action: pipeline.ActionAll})
		if err != nil {
			if errors.Is(err, pipeline.ErrNoTarget) {
				return fmt.Errorf("%w; rename the file or a column to include 'temp', 'precip' or 'anom'", err)
			}
			return err
		}
		fmt.Fprintf(out, "Detected target column: '%s'\n\n", res.Target)
		if res.Prediction != nil && res.Prediction.Skipped {
			fmt.Fprintf(out, "⚠ Prediction skipped: %s\n", res.Prediction.Reason)
		}
		fmt.Fprintln(out, report.Markdown(res))

		if !pickNoPlots {
			if err := savePickCharts(out, res, c.OutputDir); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, "✓ Done, all steps completed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pickCmd)
	pickCmd.Flags().BoolVar(&pickNoPlots, "no-plots", false, "skip writing charts to the output dir")
}

// savePickCharts writes one chart per analysis that produced data.
func savePickCharts(out io.Writer, res *pipeline.Result, dir string) error {
	charts := map[string]func() (*gplot.Plot, error){
		"trend": func() (*gplot.Plot, error) {
			if res.Prediction == nil || res.Prediction.Skipped {
				return nil, plot.ErrNoData
			}
			return plot.Trend(res.Time, res.Y, res.Prediction.Predictions)
		},
		"clusters": func() (*gplot.Plot, error) {
			if res.Clusters == nil {
				return nil, plot.ErrNoData
			}
			return plot.Clusters(res.X, res.Clusters.Labels)
		},
		"anomalies": func() (*gplot.Plot, error) {
			if res.Anomalies == nil {
				return nil, plot.ErrNoData
			}
			return plot.Anomalies(res.Time, res.Y, res.Anomalies.Mask)
		},
	}
	for _, name := range []string{"trend", "clusters", "anomalies"} {
		p, err := charts[name]()
		if errors.Is(err, plot.ErrNoData) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s chart: %w", name, err)
		}
		path := utils.OutputPath(dir, res.File, name, ".png")
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
		if err := plot.Save(p, path); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote %s chart to %s\n", name, path)
	}
	return nil
}

package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/KaramelBytes/climalyzer/internal/history"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent analysis runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(c.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded yet")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tFILE\tACTION\tTARGET\tROWS\tOUTCOME\tDURATION")
		for _, r := range runs {
			outcome := r.Outcome
			if r.Error != "" {
				outcome += ": " + r.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04"), r.File, r.Action, r.Target, r.Rows, outcome,
				r.Duration.Round(time.Millisecond))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}

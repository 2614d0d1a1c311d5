package cmd

import (
	"fmt"

	"github.com/KaramelBytes/climalyzer/internal/dataset"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List CSV files in the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		files, err := dataset.ListFiles(c.DataDir)
		if err != nil {
			return fmt.Errorf("list %s: %w", c.DataDir, err)
		}
		out := cmd.OutOrStdout()
		if len(files) == 0 {
			fmt.Fprintf(out, "No CSV files found in %s\n", c.DataDir)
			return nil
		}
		for _, f := range files {
			target, ok := dataset.DetectTarget(f, nil)
			if !ok {
				target = "?"
			}
			fmt.Fprintf(out, "- %s (target: %s)\n", f, target)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	cfgpkg "github.com/KaramelBytes/climalyzer/internal/config"
	"github.com/KaramelBytes/climalyzer/internal/history"
	"github.com/KaramelBytes/climalyzer/internal/observability"
	"github.com/KaramelBytes/climalyzer/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	// Global flags (override config if set)
	cfgFile       string
	debug         bool
	flagDataDir   string
	flagLogLevel  string
	flagLogFormat string

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "climalyzer",
	Short: "Climalyzer: trend, cluster and anomaly analysis for climate CSV data",
	Long: `Climalyzer loads climate observations (temperature, precipitation or anomaly series
indexed by year and month), cleans and normalizes them, and runs a linear trend
prediction, a centroid clustering or a moving-average anomaly check.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)

	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.climalyzer/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory holding CSV data files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text|json (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands call requireConfig when they need it
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = nil
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("data-dir") && flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if f.Changed("log-level") && flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("log-format") && flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	logger = observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func requireConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	return cfg, nil
}

func settingsFrom(c *cfgpkg.Global) pipeline.Settings {
	return pipeline.Settings{
		LearningRate:  c.LearningRate,
		Iterations:    c.Iterations,
		Clusters:      c.Clusters,
		ClusterRounds: c.ClusterRounds,
		WindowSize:    c.WindowSize,
		Threshold:     c.Threshold,
	}
}

// openHistory opens the run log. Failure is not fatal: runs still work
// without it.
func openHistory(c *cfgpkg.Global) *history.Store {
	if c.HistoryPath == "" {
		return nil
	}
	store, err := history.Open(c.HistoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: run history disabled: %v\n", err)
		return nil
	}
	return store
}

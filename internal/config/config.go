package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	HistoryPath string `mapstructure:"history_path" yaml:"history_path"`

	// Algorithm settings
	LearningRate  float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	Iterations    int     `mapstructure:"iterations" yaml:"iterations"`
	Clusters      int     `mapstructure:"clusters" yaml:"clusters"`
	ClusterRounds int     `mapstructure:"cluster_rounds" yaml:"cluster_rounds"`
	WindowSize    int     `mapstructure:"window_size" yaml:"window_size"`
	Threshold     float64 `mapstructure:"threshold" yaml:"threshold"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Web server
	HTTPAddr           string `mapstructure:"http_addr" yaml:"http_addr"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// ShutdownTimeout returns the graceful shutdown budget for the web server.
func (c *Global) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// Validate rejects settings the algorithms cannot run with.
func (c *Global) Validate() error {
	switch {
	case c.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be positive, got %v", c.LearningRate)
	case c.Iterations < 1:
		return fmt.Errorf("iterations must be at least 1, got %d", c.Iterations)
	case c.Clusters < 1:
		return fmt.Errorf("clusters must be at least 1, got %d", c.Clusters)
	case c.ClusterRounds < 1:
		return fmt.Errorf("cluster_rounds must be at least 1, got %d", c.ClusterRounds)
	case c.WindowSize < 1:
		return fmt.Errorf("window_size must be at least 1, got %d", c.WindowSize)
	case c.Threshold <= 0:
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	}
	return nil
}

// Set assigns a single key from its string form, as used by `config set`.
func (c *Global) Set(key, val string) error {
	switch key {
	case "data_dir":
		c.DataDir = val
	case "output_dir":
		c.OutputDir = val
	case "history_path":
		c.HistoryPath = val
	case "learning_rate":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid positive float for learning_rate: %v", val)
		}
		c.LearningRate = f
	case "threshold":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid positive float for threshold: %v", val)
		}
		c.Threshold = f
	case "iterations", "clusters", "cluster_rounds", "window_size", "shutdown_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		switch key {
		case "iterations":
			c.Iterations = i
		case "clusters":
			c.Clusters = i
		case "cluster_rounds":
			c.ClusterRounds = i
		case "window_size":
			c.WindowSize = i
		case "shutdown_timeout_sec":
			c.ShutdownTimeoutSec = i
		}
	case "log_level":
		switch val {
		case "debug", "info", "warn", "error":
			c.LogLevel = val
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "log_format":
		switch val {
		case "text", "json":
			c.LogFormat = val
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	case "http_addr":
		c.HTTPAddr = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// Dir returns ~/.climalyzer.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".climalyzer"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.climalyzer/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CLIMALYZER")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data_dir", "data")
	v.SetDefault("output_dir", "output")
	v.SetDefault("history_path", "")
	v.SetDefault("learning_rate", 0.001)
	v.SetDefault("iterations", 1000)
	v.SetDefault("clusters", 3)
	v.SetDefault("cluster_rounds", 10)
	v.SetDefault("window_size", 3)
	v.SetDefault("threshold", 1.5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("shutdown_timeout_sec", 10)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve history_path default: ~/.climalyzer/history.db
	if c.HistoryPath == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.HistoryPath = filepath.Join(dir, "history.db")
	}
	return &c, nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascade-labs/cascade/internal/config"
	"github.com/cascade-labs/cascade/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	quiet     bool

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Hierarchical workflow executor for capability agents",
	Long: `cascade decomposes a request into tasks, subtasks and executable
steps, schedules them along their dependency graph, and drives registered
capability agents until the request completes. Failed units are cleared
and replanned with the accumulated error context.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .cascade.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress trace output")
}

// loadConfig reads and validates configuration, applying CLI overrides.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	if logLevel != "" {
		loader.Set("log.level", logLevel)
	}
	if logFormat != "" {
		loader.Set("log.format", logFormat)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

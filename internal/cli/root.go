// Package cli provides the command-line interface for biocurator.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/raphaelgruber/biocurator-go/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	verbose    bool
	logFile    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "biocurator",
	Short: "Curate biological literature with an LLM assistant",
	Long: `Biocurator runs a set of curation prompts against scientific papers using
a remote LLM assistant and writes one answer file per document and prompt.

Configuration is read from BIOCURATOR_* environment variables, then an
optional YAML file (--config), then command-line flags.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")

	// Add subcommands
	rootCmd.AddCommand(curateCmd)
	rootCmd.AddCommand(sectionsCmd)
	rootCmd.AddCommand(assistantsCmd)
	rootCmd.AddCommand(tokensCmd)
}

// loadConfig reads the configuration and applies the global flags.
// Command-specific flags are applied by each command.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if verbose {
		cfg.LogLevel = "DEBUG"
	}
	return cfg, nil
}

// newLogger builds the process logger. stderr may be nil when another
// component owns the terminal. The returned func closes the log file.
func newLogger(cfg config.Config, stderr io.Writer) (*slog.Logger, func()) {
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.Level(), stderr)
	return logger, func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	}
}

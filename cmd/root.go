// Package cmd implements the incomesync CLI commands.
package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/theirongolddev/incomesync/internal/config"
	"github.com/theirongolddev/incomesync/internal/logger"

	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagQuiet  bool
)

var rootCmd = &cobra.Command{
	Use:           "incomesync",
	Short:         "Project game income and sync it to a spreadsheet",
	Long:          "Track a player's credit, technology and ideology income between game updates and push the projected totals to a spreadsheet bridge.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.Path(), "Settings file (.json or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress informational output and warnings")
}

// loadConfig reads the settings file. Problems are logged and never fatal:
// the returned config is always usable.
func loadConfig(log *logger.Logger) config.Config {
	cfg, err := config.Load(flagConfig)
	switch {
	case err == nil:
	case errors.Is(err, config.ErrMissingSheetID):
		log.Errorf("%v; pushes will carry no destination sheet (run `incomesync setup`)", err)
	default:
		log.Errorf("reading %s: %v; using defaults", flagConfig, err)
	}
	return cfg
}

func newLogger() *logger.Logger {
	if flagQuiet {
		return logger.New(io.Discard, os.Stderr)
	}
	return logger.Default()
}

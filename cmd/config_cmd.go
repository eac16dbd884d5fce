package cmd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/theirongolddev/incomesync/internal/cli"
	"github.com/theirongolddev/incomesync/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective settings",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)

	fmt.Printf("  Config file: %s\n", flagConfig)
	switch {
	case err == nil:
		fmt.Println("  Status: loaded")
	case errors.Is(err, config.ErrMissingSheetID):
		fmt.Println("  Status: loaded, but no sheetId is set")
	case errors.Is(err, config.ErrUnavailable):
		fmt.Println("  Status: using defaults (file not readable)")
	default:
		fmt.Printf("  Status: using defaults (%v)\n", err)
	}
	fmt.Println()

	sheet := cfg.SheetID
	if sheet == "" {
		sheet = "not configured"
	}
	reset := "never (restart to re-arm)"
	if cfg.ResetOnSuccess {
		reset = "on success"
	}
	fmt.Print(cli.RenderKV([][2]string{
		{"Endpoint", cfg.URL},
		{"Sheet", sheet},
		{"Interval", cfg.Interval().String()},
		{"Request timeout", cfg.RequestTimeout().String()},
		{"Trip after", fmt.Sprintf("%d failures", cfg.FailureThreshold)},
		{"Circuit reset", reset},
		{"Game mode", cfg.Mode},
	}))
	fmt.Println()

	keys := make([]string, 0, len(cfg.CellLocations))
	for k := range cfg.CellLocations {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, cfg.CellLocations[k]})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Cell locations",
		Headers: []string{"Field", "Cell"},
		Rows:    rows,
	}))
	fmt.Println()
	fmt.Println("  Run `incomesync setup` to reconfigure.")
	return nil
}

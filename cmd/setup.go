package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/theirongolddev/incomesync/internal/config"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive settings wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupValues holds the form fields as text until they are validated.
type setupValues struct {
	url       string
	sheetID   string
	interval  string
	threshold string
	reset     bool
	cells     map[string]*string
}

var cellFields = []string{"income_total", "income_rate", "tech_total", "tech_rate", "ideo_total", "ideo_rate"}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load(flagConfig)

	vals := setupValues{
		url:       cfg.URL,
		sheetID:   cfg.SheetID,
		interval:  strconv.Itoa(cfg.IntervalSec),
		threshold: strconv.Itoa(cfg.FailureThreshold),
		reset:     cfg.ResetOnSuccess,
		cells:     make(map[string]*string, len(cellFields)),
	}

	cellInputs := make([]huh.Field, 0, len(cellFields))
	for _, name := range cellFields {
		v := cfg.CellLocations[name]
		vals.cells[name] = &v
		cellInputs = append(cellInputs, huh.NewInput().
			Title(name).
			Value(vals.cells[name]).
			Validate(notBlank))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Spreadsheet bridge URL").
				Description("Pushes go to <url>/income_update").
				Value(&vals.url).
				Validate(validateURL),
			huh.NewInput().
				Title("Google Sheets ID").
				Value(&vals.sheetID).
				Validate(notBlank),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Push interval (seconds)").
				Value(&vals.interval).
				Validate(positiveInt),
			huh.NewInput().
				Title("Stop pushing after N consecutive failures").
				Value(&vals.threshold).
				Validate(positiveInt),
			huh.NewConfirm().
				Title("Re-arm after a successful push?").
				Value(&vals.reset),
		),
		huh.NewGroup(cellInputs...).Title("Cell locations"),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup canceled; nothing saved.")
			return nil
		}
		return err
	}

	cfg = applySetup(cfg, vals)
	if err := config.Save(flagConfig, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", flagConfig)
	fmt.Println("  Run `incomesync setup` anytime to reconfigure.")
	return nil
}

func applySetup(cfg config.Config, v setupValues) config.Config {
	cfg.URL = strings.TrimSpace(v.url)
	cfg.SheetID = strings.TrimSpace(v.sheetID)
	if n, err := strconv.Atoi(strings.TrimSpace(v.interval)); err == nil && n > 0 {
		cfg.IntervalSec = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v.threshold)); err == nil && n > 0 {
		cfg.FailureThreshold = n
	}
	cfg.ResetOnSuccess = v.reset

	cells := make(map[string]string, len(cfg.CellLocations))
	for k, c := range cfg.CellLocations {
		cells[k] = c
	}
	for k, c := range v.cells {
		cells[k] = strings.TrimSpace(*c)
	}
	cfg.CellLocations = cells
	return cfg
}

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("expected http(s)://host[:port]")
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("expected a positive whole number")
	}
	return nil
}

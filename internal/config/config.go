// Package config loads the income sync settings file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the settings file the game mod ships with.
const FileName = "incomeupdate_config.json"

// LegacyMode is the game speed whose sessions are synced.
const LegacyMode = "slow"

var (
	// ErrUnavailable means the file could not be read. Defaults are in effect.
	ErrUnavailable = errors.New("config: unavailable")
	// ErrMalformed means the file could not be parsed. Defaults are in effect.
	ErrMalformed = errors.New("config: malformed")
	// ErrMissingSheetID means the file parsed but names no destination sheet.
	ErrMissingSheetID = errors.New("config: sheetId is required")
)

// Config holds the sync destination and scheduler settings.
type Config struct {
	URL           string            `json:"url" toml:"url"`
	SheetID       string            `json:"sheetId" toml:"sheetId"`
	CellLocations map[string]string `json:"cell_locations" toml:"cell_locations"`

	IntervalSec      int    `json:"interval_sec,omitempty" toml:"interval_sec,omitempty"`
	RequestTimeoutMs int    `json:"request_timeout_ms,omitempty" toml:"request_timeout_ms,omitempty"`
	FailureThreshold int    `json:"failure_threshold,omitempty" toml:"failure_threshold,omitempty"`
	ResetOnSuccess   bool   `json:"reset_on_success,omitempty" toml:"reset_on_success,omitempty"`
	Mode             string `json:"mode,omitempty" toml:"mode,omitempty"`
}

// DefaultCellLocations maps each pushed field to its spreadsheet cell.
func DefaultCellLocations() map[string]string {
	return map[string]string{
		"income_total": "B2",
		"income_rate":  "B3",
		"tech_total":   "C2",
		"tech_rate":    "C3",
		"ideo_total":   "D2",
		"ideo_rate":    "D3",
	}
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		URL:              "http://localhost:8080",
		CellLocations:    DefaultCellLocations(),
		IntervalSec:      60,
		RequestTimeoutMs: 2000,
		FailureThreshold: 100,
		Mode:             LegacyMode,
	}
}

// Interval is the push cadence.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// RequestTimeout bounds a single push.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "incomesync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "incomesync")
}

// Path returns the default settings file path.
func Path() string {
	return filepath.Join(Dir(), FileName)
}

// Exists reports whether a file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads path. It always returns a usable Config: on ErrUnavailable or
// ErrMalformed the defaults are returned untouched, and on ErrMissingSheetID
// the parsed settings are returned without a sheet.
func Load(path string) (Config, error) {
	//nolint:gosec // config path is chosen by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Parse(data, formatOf(path))
}

// Parse decodes data in the given format ("json" or "toml") over the
// defaults.
func Parse(data []byte, format string) (Config, error) {
	var file Config
	if err := decode(data, format, &file); err != nil {
		return DefaultConfig(), fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	cfg := merge(DefaultConfig(), file)
	if strings.TrimSpace(cfg.SheetID) == "" {
		return cfg, ErrMissingSheetID
	}
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var buf bytes.Buffer
	switch formatOf(path) {
	case "toml":
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "json"
}

func decode(data []byte, format string, dst *Config) error {
	if format == "toml" {
		_, err := toml.Decode(string(data), dst)
		return err
	}
	return json.Unmarshal(data, dst)
}

// merge overlays the non-zero settings from file onto base. Cell locations
// are merged key by key so a partial map keeps the remaining defaults.
func merge(base, file Config) Config {
	if u := strings.TrimSpace(file.URL); u != "" {
		base.URL = u
	}
	base.SheetID = strings.TrimSpace(file.SheetID)
	maps.Copy(base.CellLocations, file.CellLocations)

	if file.IntervalSec > 0 {
		base.IntervalSec = file.IntervalSec
	}
	if file.RequestTimeoutMs > 0 {
		base.RequestTimeoutMs = file.RequestTimeoutMs
	}
	if file.FailureThreshold > 0 {
		base.FailureThreshold = file.FailureThreshold
	}
	if file.Mode != "" {
		base.Mode = file.Mode
	}
	base.ResetOnSuccess = file.ResetOnSuccess
	return base
}

package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/incomesync/internal/config"
	"github.com/theirongolddev/incomesync/internal/logger"
	"github.com/theirongolddev/incomesync/internal/projection"
	"github.com/theirongolddev/incomesync/internal/store"
	"github.com/theirongolddev/incomesync/internal/syncer"
)

func TestApplySetup(t *testing.T) {
	cell := " Z1 "
	got := applySetup(config.DefaultConfig(), setupValues{
		url:       " http://bridge.local:8080 ",
		sheetID:   "sheet-9",
		interval:  "30",
		threshold: "oops",
		reset:     true,
		cells:     map[string]*string{"income_total": &cell},
	})

	assert.Equal(t, "http://bridge.local:8080", got.URL)
	assert.Equal(t, "sheet-9", got.SheetID)
	assert.Equal(t, 30, got.IntervalSec)
	assert.Equal(t, 100, got.FailureThreshold)
	assert.True(t, got.ResetOnSuccess)
	assert.Equal(t, "Z1", got.CellLocations["income_total"])
	assert.Equal(t, "B3", got.CellLocations["income_rate"])
	assert.Equal(t, "B2", config.DefaultCellLocations()["income_total"])
}

func TestSetupValidators(t *testing.T) {
	assert.NoError(t, validateURL("http://localhost:8080"))
	assert.Error(t, validateURL("localhost:8080"))
	assert.Error(t, validateURL("ftp://host"))
	assert.NoError(t, positiveInt("60"))
	assert.Error(t, positiveInt("0"))
	assert.Error(t, positiveInt("x"))
	assert.Error(t, notBlank("   "))
}

func TestPIDRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incomesync.pid")
	require.NoError(t, writePID(path, os.Getpid()))

	pid, err := readPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, processAlive(pid))

	// A live pid blocks a second instance.
	assert.Error(t, ensureNotRunning(path))

	require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o600))
	_, err = readPID(path)
	assert.Error(t, err)

	assert.NoError(t, ensureNotRunning(filepath.Join(t.TempDir(), "missing.pid")))
}

func TestRuntimeStateRoundTrip(t *testing.T) {
	path := statePath(filepath.Join(t.TempDir(), "x.pid"))
	in := runtimeState{PID: 7, Addr: "127.0.0.1:9", StartedAt: time.Unix(100, 0).UTC(), Config: "c.json"}
	require.NoError(t, writeState(path, in))

	out, err := readState(path)
	require.NoError(t, err)
	assert.Equal(t, in.Addr, out.Addr)
	assert.Equal(t, in.PID, out.PID)
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
}

func TestRenderStatus(t *testing.T) {
	now := time.Now()
	out := renderStatus(42, syncer.Status{
		State:            syncer.StateTripped,
		Failures:         100,
		FailureThreshold: 100,
		Pushes:           1234,
		LastPushAt:       now.Add(-30 * time.Second),
		IntervalMs:       60_000,
		Sheet:            "sheet-1",
		LastError:        "sheets: push rejected: 503 Service Unavailable",
		Resources: projection.Resources{
			Cred: projection.Resource{Value: 130, Change: 30},
		},
	}, now)

	assert.Contains(t, out, "tripped")
	assert.Contains(t, out, "100 / 100")
	assert.Contains(t, out, "1,234 sent")
	assert.Contains(t, out, "30s ago")
	assert.Contains(t, out, "sheet-1")
	assert.Contains(t, out, "130.0")
	assert.Contains(t, out, "+30.0/3m")
	assert.Contains(t, out, "1m0s")
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]store.PushRecord{
		{CompletedAt: time.Now(), Outcome: store.OutcomeRejected, StatusCode: 502, CredValue: 10},
		{CompletedAt: time.Now(), Outcome: store.OutcomeOK, StatusCode: 200},
	})
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "502")
	assert.Contains(t, out, "10.0")
}

func TestLoadConfig_MalformedFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"url": "http://elsewhere", "sheetId": `), 0o600))

	old := flagConfig
	flagConfig = path
	t.Cleanup(func() { flagConfig = old })

	var errOut bytes.Buffer
	cfg := loadConfig(logger.New(io.Discard, &errOut))

	assert.Equal(t, config.DefaultConfig().URL, cfg.URL)
	assert.Equal(t, config.DefaultCellLocations(), cfg.CellLocations)
	assert.Equal(t, 60*time.Second, cfg.Interval())
	assert.Contains(t, errOut.String(), "ERROR")
	assert.Contains(t, errOut.String(), "using defaults")
}

func TestLoadConfig_MissingSheetIDKeepsURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"url": "http://bridge:9000"}`), 0o600))

	old := flagConfig
	flagConfig = path
	t.Cleanup(func() { flagConfig = old })

	var errOut bytes.Buffer
	cfg := loadConfig(logger.New(io.Discard, &errOut))

	assert.Equal(t, "http://bridge:9000", cfg.URL)
	assert.Empty(t, cfg.SheetID)
	assert.Contains(t, errOut.String(), "ERROR")
}

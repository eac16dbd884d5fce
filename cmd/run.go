package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/theirongolddev/incomesync/internal/host"
	"github.com/theirongolddev/incomesync/internal/logger"
	"github.com/theirongolddev/incomesync/internal/projection"
	"github.com/theirongolddev/incomesync/internal/sheets"
	"github.com/theirongolddev/incomesync/internal/store"
	"github.com/theirongolddev/incomesync/internal/syncer"

	"github.com/spf13/cobra"
)

type runtimeState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Config    string    `json:"config"`
}

var (
	flagAddr      string
	flagPIDFile   string
	flagEvents    string
	flagInstance  string
	flagMode      string
	flagJournal   string
	flagNoJournal bool
	flagInterval  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume host events and push projected income on a schedule",
	Long: "Reads newline-delimited JSON frames from the game host (stdin by default),\n" +
		"projects income between player updates and pushes it to the configured endpoint.",
	RunE: runRun,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sync process",
	RunE:  runStop,
}

func init() {
	defaultPID := filepath.Join(filepath.Dir(store.DefaultPath()), "incomesync.pid")

	for _, c := range []*cobra.Command{runCmd, stopCmd, statusCmd} {
		c.Flags().StringVar(&flagPIDFile, "pid-file", defaultPID, "PID file path")
	}
	runCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8791", "Status API listen address (empty to disable)")
	runCmd.Flags().StringVar(&flagEvents, "events", "-", "Host event stream (- for stdin)")
	runCmd.Flags().StringVar(&flagInstance, "instance", "", "Game instance id until the host reports one")
	runCmd.Flags().StringVar(&flagMode, "mode", "", "Game speed until the host reports one")
	runCmd.Flags().StringVar(&flagJournal, "journal", store.DefaultPath(), "Push journal database")
	runCmd.Flags().BoolVar(&flagNoJournal, "no-journal", false, "Do not record push attempts")
	runCmd.Flags().DurationVar(&flagInterval, "interval", 0, "Override the configured push interval")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
}

func runRun(_ *cobra.Command, _ []string) error {
	if err := ensureNotRunning(flagPIDFile); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(flagPIDFile), 0o750); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}

	pid := os.Getpid()
	if err := writePID(flagPIDFile, pid); err != nil {
		return err
	}
	defer func() { _ = os.Remove(flagPIDFile) }()

	_ = writeState(statePath(flagPIDFile), runtimeState{
		PID:       pid,
		Addr:      flagAddr,
		StartedAt: time.Now(),
		Config:    flagConfig,
	})
	defer func() { _ = os.Remove(statePath(flagPIDFile)) }()

	log := newLogger()
	cfg := loadConfig(log)

	interval := cfg.Interval()
	if flagInterval > 0 {
		interval = flagInterval
	}

	var journal syncer.Journal
	if !flagNoJournal {
		j, err := store.Open(flagJournal)
		if err != nil {
			log.Warnf("push journal unavailable: %v", err)
		} else {
			defer func() { _ = j.Close() }()
			journal = j
		}
	}

	input, closeInput, err := openEvents(flagEvents)
	if err != nil {
		return err
	}
	defer closeInput()

	game := host.NewStateContext(flagMode, flagInstance)
	client := sheets.NewClient(cfg.URL, cfg.RequestTimeout())
	sched := syncer.New(syncer.Config{
		Interval:         interval,
		FailureThreshold: cfg.FailureThreshold,
		ResetOnSuccess:   cfg.ResetOnSuccess,
		SheetID:          cfg.SheetID,
		CellLocations:    cfg.CellLocations,
		Addr:             flagAddr,
	}, projection.New(), client, game, log, journal)
	listener := host.NewListener(game, sched, cfg.Mode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infof("pushing to %s every %s", client.Endpoint(), interval)
	if flagAddr != "" {
		log.Infof("status API on http://%s/v1/status", flagAddr)
	}

	go feedHost(ctx, input, listener, game, log)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// feedHost pumps host frames into the listener. The push loop keeps running
// after the host stream ends so the last known income is still projected.
func feedHost(ctx context.Context, r io.Reader, l *host.Listener, game *host.StateContext, log *logger.Logger) {
	st, err := host.Feed(ctx, r, l, game)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("host feed: %v", err)
	}
	log.Infof("host feed ended: %d frames, %d player updates, %d ignored, %d malformed",
		st.Lines, st.Forwarded, st.Ignored, st.Malformed)
}

func openEvents(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	//nolint:gosec // event stream path is chosen by the local user
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open host events: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func runStop(_ *cobra.Command, _ []string) error {
	pid, err := readPID(flagPIDFile)
	if err != nil {
		return errors.New("incomesync is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process: %w", err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			_ = os.Remove(flagPIDFile)
			_ = os.Remove(statePath(flagPIDFile))
			fmt.Printf("  Stopped incomesync (pid %d)\n", pid)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}

	return fmt.Errorf("incomesync (pid %d) did not exit in time", pid)
}

func ensureNotRunning(pidFile string) error {
	pid, err := readPID(pidFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if processAlive(pid) {
		return fmt.Errorf("incomesync already running (pid %d)", pid)
	}
	_ = os.Remove(pidFile)
	_ = os.Remove(statePath(pidFile))
	return nil
}

func writePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

func readPID(path string) (int, error) {
	//nolint:gosec // pid path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", path)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func statePath(pidFile string) string {
	return pidFile + ".json"
}

func writeState(path string, st runtimeState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func readState(path string) (runtimeState, error) {
	var st runtimeState
	//nolint:gosec // state path is configured by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	return st, nil
}

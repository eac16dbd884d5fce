package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/theirongolddev/incomesync/internal/cli"
	"github.com/theirongolddev/incomesync/internal/projection"
	"github.com/theirongolddev/incomesync/internal/syncer"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running sync process, circuit state and projected income",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8791", "Status API address if no state file is found")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	pid, err := readPID(flagPIDFile)
	if err != nil {
		fmt.Println("  incomesync: not running (pid file not found)")
		return nil
	}
	if !processAlive(pid) {
		fmt.Printf("  incomesync: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := flagAddr
	if st, err := readState(statePath(flagPIDFile)); err == nil && st.Addr != "" {
		addr = st.Addr
	}

	st, err := fetchStatus(addr)
	if err != nil {
		fmt.Printf("  PID %d, API unreachable at %s (%v)\n", pid, addr, err)
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("incomesync"))
	fmt.Println()
	fmt.Print(renderStatus(pid, st, time.Now()))
	return nil
}

func fetchStatus(addr string) (syncer.Status, error) {
	var st syncer.Status

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/v1/status") //nolint:noctx // short status request
	if err != nil {
		return st, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("malformed response: %w", err)
	}
	return st, nil
}

func renderStatus(pid int, st syncer.Status, now time.Time) string {
	failures := fmt.Sprintf("%d / %d", st.Failures, st.FailureThreshold)
	pairs := [][2]string{
		{"PID", strconv.Itoa(pid)},
		{"State", cli.RenderState(string(st.State))},
		{"Failures", failures},
		{"Pushes", fmt.Sprintf("%s sent, %s ok, %d in flight",
			cli.FormatNumber(st.Pushes), cli.FormatNumber(st.Succeeded), st.InFlight)},
		{"Last push", cli.FormatAgo(st.LastPushAt, now)},
		{"Last update", cli.FormatAgo(st.LastUpdateAt, now)},
		{"Interval", (time.Duration(st.IntervalMs) * time.Millisecond).String()},
	}
	if st.Instance != "" {
		pairs = append(pairs, [2]string{"Instance", st.Instance})
	}
	if st.Sheet != "" {
		pairs = append(pairs, [2]string{"Sheet", st.Sheet})
	}
	if st.LastError != "" {
		pairs = append(pairs, [2]string{"Last error", st.LastError})
	}

	rows := make([][]string, 0, len(projection.Kinds))
	for _, k := range projection.Kinds {
		r := st.Resources.Get(k)
		rows = append(rows, []string{k.String(), cli.FormatAmount(r.Value), cli.FormatRate(r.Change)})
	}

	return cli.RenderKV(pairs) + "\n" + cli.RenderTable(cli.Table{
		Title:   "Projected income",
		Headers: []string{"Resource", "Total", "Rate"},
		Rows:    rows,
	})
}

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/theirongolddev/incomesync/internal/cli"
	"github.com/theirongolddev/incomesync/internal/store"

	"github.com/spf13/cobra"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent push attempts from the journal",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&flagJournal, "journal", store.DefaultPath(), "Push journal database")
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "Number of attempts to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	j, err := store.Open(flagJournal)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	totals, err := j.Totals()
	if err != nil {
		return fmt.Errorf("reading journal totals: %w", err)
	}
	recs, err := j.Recent(flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}

	fmt.Println()
	fmt.Print(cli.RenderKV([][2]string{
		{"Attempts", cli.FormatNumber(int64(totals.Attempts))},
		{"Succeeded", cli.FormatNumber(int64(totals.OK))},
		{"Rejected", cli.FormatNumber(int64(totals.Rejected))},
		{"Transport", cli.FormatNumber(int64(totals.Transport))},
	}))
	fmt.Println()

	if len(recs) == 0 {
		fmt.Println("  No pushes recorded yet.")
		return nil
	}
	fmt.Print(renderHistory(recs))
	return nil
}

func renderHistory(recs []store.PushRecord) string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		status := ""
		if r.StatusCode != 0 {
			status = strconv.Itoa(r.StatusCode)
		}
		rows = append(rows, []string{
			r.CompletedAt.Local().Format(time.DateTime),
			cli.RenderState(string(r.Outcome)),
			status,
			cli.FormatAmount(r.CredValue),
			cli.FormatAmount(r.TechValue),
			cli.FormatAmount(r.IdeoValue),
		})
	}
	return cli.RenderTable(cli.Table{
		Title:   "Recent pushes",
		Headers: []string{"Completed", "Outcome", "HTTP", "cred", "tech", "ideo"},
		Rows:    rows,
	})
}

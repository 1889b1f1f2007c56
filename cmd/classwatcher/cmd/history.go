package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/classwatcher/classwatcher/internal/adapters/history"
	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent upload attempts",
	Long: `Show recent upload attempts from the local history database, newest first.

Examples:
  classwatcher history
  classwatcher history --limit 100
  classwatcher history --json`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "number of rows to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output machine-readable JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.History.Enabled {
		return domain.ErrHistoryDisabled
	}
	if historyLimit < 1 {
		return fmt.Errorf("--limit must be at least 1")
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		fmt.Fprintln(out, "No uploads recorded yet.")
		return nil
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open upload history: %w", err)
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read upload history: %w", err)
	}

	if historyJSON {
		if records == nil {
			records = []domain.UploadRecord{}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	}
	printHistory(out, records)
	return nil
}

func printHistory(w io.Writer, records []domain.UploadRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No uploads recorded yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOUTCOME\tFILE\tSIZE\tERROR")
	for _, r := range records {
		msg := r.Error
		if r.ErrorKind != "" {
			msg = fmt.Sprintf("[%s] %s", r.ErrorKind, r.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.FinishedAt.Local().Format(time.DateTime),
			r.Outcome,
			r.Path,
			r.Size,
			msg,
		)
	}
	_ = tw.Flush()
}

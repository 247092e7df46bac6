package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkarev/driftbrief/internal/history"
)

var (
	historyDays int
	historyDate string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [ticker]",
	Short: "Inspect the stored claim history",
	Long: `History shows what the claim store has accumulated. Without
arguments it prints store-level statistics; with a ticker it lists that
ticker's claims over the lookback window.

Example:
  driftbrief history
  driftbrief history META --days 14`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyDays, "days", 7, "lookback window in days")
	historyCmd.Flags().StringVar(&historyDate, "date", "", "reference date as YYYY-MM-DD (default: today)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("open claim history: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "close history: %v\n", cerr)
		}
	}()

	if len(args) == 0 {
		stats, err := store.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Claim history: %s\n", cfg.HistoryPath)
		fmt.Printf("  claims:  %d\n", stats.TotalClaims)
		fmt.Printf("  tickers: %d\n", stats.UniqueTickers)
		fmt.Printf("  sources: %d\n", stats.UniqueSources)
		fmt.Printf("  days:    %d\n", stats.DaysTracked)
		return nil
	}

	date := historyDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid --date %q: %w", date, err)
	}

	ticker := args[0]
	records, err := store.ForTicker(ticker, historyDays, date, false)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No claims for %s in the last %d days.\n", ticker, historyDays)
		return nil
	}

	fmt.Printf("%s: %d claims in the last %d days\n\n", ticker, len(records), historyDays)
	for _, r := range records {
		fmt.Printf("[%s] %s\n", r.DateStored, r.Claim.Text())
		fmt.Printf("  confidence=%s time=%s pressure=%s\n",
			r.Claim.ConfidenceLevel, r.Claim.TimeSensitivity, r.Claim.BeliefPressure)
		fmt.Printf("  %s\n\n", r.Claim.CitationString())
	}

	return nil
}

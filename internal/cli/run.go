package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkarev/driftbrief/internal/pipeline"
)

var (
	runDate     string
	runInbox    string
	runOutput   string
	runTimeout  time.Duration
	runNoCache  bool
	llmProvider string
	llmModel    string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate today's briefing",
	Long: `Run collects from all configured sources, extracts cited claims,
compares them against the stored claim history, and writes the daily
briefing markdown to the output directory.

Example:
  driftbrief run
  driftbrief run --date 2026-02-04 --inbox data/inbox
  driftbrief run --llm-provider anthropic --llm-model claude-sonnet-4-5`,
	RunE: runBriefing,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDate, "date", "", "briefing date as YYYY-MM-DD (default: today)")
	runCmd.Flags().StringVar(&runInbox, "inbox", "", "override the document inbox directory")
	runCmd.Flags().StringVar(&runOutput, "output", "", "override the briefing output directory")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 15*time.Minute, "overall run timeout")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "disable the LLM response cache")

	runCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	runCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

func runBriefing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runInbox != "" {
		cfg.Collect.InboxDir = runInbox
	}
	if runOutput != "" {
		cfg.Briefing.OutputDir = runOutput
	}
	if runNoCache {
		cfg.Cache.Enabled = false
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
		// Re-resolve the key for the overridden provider
		switch llmProvider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	date := time.Now()
	if runDate != "" {
		date, err = time.Parse("2006-01-02", runDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", runDate, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "close history: %v\n", cerr)
		}
	}()

	stats, err := p.Run(ctx, date)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Printf("Briefing written: %s\n", stats.OutputPath)
	fmt.Printf("  documents: %d (%d duplicates dropped)\n", stats.Documents, stats.Duplicates)
	fmt.Printf("  chunks:    %d classified, %d irrelevant, %d triaged\n", stats.Classified, stats.Irrelevant, stats.Triaged)
	fmt.Printf("  claims:    %d\n", stats.Claims)
	fmt.Printf("  drift:     %d signals\n", stats.DriftSignals)
	fmt.Printf("  length:    %d words (%.1f pages)\n", stats.Words, stats.Pages)
	if stats.Thin {
		fmt.Println("  note:      thin briefing, few claims survived filtering")
	}
	if stats.Truncated {
		fmt.Println("  note:      truncated to the word budget")
	}
	for source, ferr := range stats.SourceFailures {
		fmt.Fprintf(os.Stderr, "  source %s failed: %v\n", source, ferr)
	}

	return nil
}

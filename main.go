package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Optional .env next to the binary; real env always wins.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "neurofix",
		Short:         "Sanitize and enrich bilingual research paper records",
		Long:          "neurofix walks every paper record in the digest store, removes template placeholder findings, repairs untranslated fields, and enriches findings lists with LLM-generated or abstract-mined conclusions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAnalyzeCmd(),
		newJobCmd("clean", "Remove template-junk and too-short findings", CleanJob()),
		newJobCmd("translate", "Re-translate _ru fields that still read as English", TranslateJob()),
		newJobCmd("enrich", "Extend findings lists up to the target count", EnrichJob()),
		newJobCmd("fix-all", "Run translation repair and findings repair in one pass", FixAllJob()),
	)
	return root
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Report corpus statistics without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(false)
			if err != nil {
				return err
			}
			ctx, stop := runContext()
			defer stop()

			store := NewStore(cfg)
			if _, err := RunAnalyze(ctx, store, cfg); err != nil {
				return err
			}
			printRecentRuns(cfg)
			return nil
		},
	}
}

func newJobCmd(name, short string, job Job) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(job.NeedsLLM)
			if err != nil {
				return err
			}
			ctx, stop := runContext()
			defer stop()

			var llm Completer
			if job.NeedsLLM {
				client, err := NewLLMClient(cfg)
				if err != nil {
					return err
				}
				llm = client
			}

			store := NewStore(cfg)
			repairer := NewRepairer(llm, cfg)
			reporter := buildReporter(cfg)
			driver := NewDriver(store, repairer, reporter, cfg)

			started := time.Now()
			stats, err := driver.Run(ctx, job)
			if err != nil {
				// Per-record errors never reach here; this is a failed list
				// or a cancelled run.
				return err
			}
			recordRunHistory(cfg, job.Name, started, stats)
			return nil
		},
	}
}

func buildReporter(cfg Config) Reporter {
	sinks := []Reporter{NewLogReporter()}
	if cfg.SlackConfigured() {
		sinks = append(sinks, NewSlackReporter(cfg.SlackBotToken, cfg.SlackChannelID))
	}
	return NewMultiReporter(sinks...)
}

func recordRunHistory(cfg Config, command string, started time.Time, stats RunStats) {
	db, err := InitHistoryDB(cfg.HistoryDBPath)
	if err != nil {
		log.Printf("run history unavailable path=%s err=%v", cfg.HistoryDBPath, err)
		return
	}
	defer db.Close()

	rec := RunRecord{
		Command:    command,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Stats:      stats,
	}
	if err := InsertRunHistory(db, rec); err != nil {
		log.Printf("run history insert error: %v", err)
	}
}

func printRecentRuns(cfg Config) {
	db, err := InitHistoryDB(cfg.HistoryDBPath)
	if err != nil {
		return
	}
	defer db.Close()

	runs, err := RecentRuns(db, 10)
	if err != nil || len(runs) == 0 {
		return
	}
	log.Printf("recent runs (%d):", len(runs))
	for _, r := range runs {
		log.Printf("  %s %s patched=%d unchanged=%d failed=%d compliant=%d",
			r.StartedAt.Format("2006-01-02 15:04"), r.Command,
			r.Stats.Patched, r.Stats.Unchanged, r.Stats.Failed, r.Stats.Compliant)
	}
}

func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GuavaAi/auto-media/internal/ingest"
	"github.com/GuavaAi/auto-media/internal/types"
)

var (
	ingestSource string
	ingestForce  bool
)

// ingestCmd creates the "ingest" subcommand.
func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass for a configured source",
		Long: `Fetch the source's seed pages, extract and clean their text, store
deduplicated records, and fetch discovered sub-pages under the configured
budget. Use --force to overwrite today's existing records in place.`,
		RunE: runIngest,
	}

	cmd.Flags().StringVarP(&ingestSource, "source", "s", "", "configured source name (required)")
	cmd.Flags().BoolVar(&ingestForce, "force", false, "overwrite today's records instead of skipping them")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	ds, ok := cfg.SourceByName(ingestSource)
	if !ok {
		return fmt.Errorf("no configured source named %q", ingestSource)
	}

	orch := ingest.New(ingest.Options{
		Contents: db,
		Keys:     db,
		Reports:  db,
		Sources:  db,
		Logger:   logger,
	})

	report, err := orch.Run(ctx, ds, ingestForce)
	var failed *types.RunFailedError
	if errors.As(err, &failed) {
		printReport(report)
		return err
	}
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func printReport(report *types.RunReport) {
	if report == nil {
		return
	}
	fmt.Printf("ingested:      %d\n", report.Ingested)
	fmt.Printf("dedup skipped: %d\n", report.Stats.DedupSkipped)
	fmt.Printf("empty skipped: %d\n", report.Stats.EmptySkipped)
	fmt.Printf("fetch failed:  %d\n", report.Stats.FetchFailed)
	for _, d := range report.SkippedDetails {
		fmt.Printf("  skip %-22s %s\n", d.Reason, d.URL)
	}
}

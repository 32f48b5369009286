package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var reportsSource string

// reportsCmd creates the "reports" subcommand.
func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Show recent run reports for a source",
		RunE:  runReports,
	}
	cmd.Flags().StringVarP(&reportsSource, "source", "s", "", "configured source name (required)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func runReports(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	ds, ok := cfg.SourceByName(reportsSource)
	if !ok {
		return fmt.Errorf("no configured source named %q", reportsSource)
	}

	reports, err := db.Recent(ctx, ds.ID)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Printf("no runs recorded for %q\n", ds.Name)
		return nil
	}
	for _, r := range reports {
		mode := ""
		if r.Force {
			mode = " (forced)"
		}
		fmt.Printf("%s%s  ingested=%d dedup=%d empty=%d failed=%d\n",
			r.TriggeredAt.Format("2006-01-02 15:04:05"), mode,
			r.Ingested, r.Stats.DedupSkipped, r.Stats.EmptySkipped, r.Stats.FetchFailed)
	}
	return nil
}

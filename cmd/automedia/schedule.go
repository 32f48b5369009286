package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/ingest"
)

// scheduleCmd creates the "schedule" subcommand.
func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the cron scheduler for all scheduled sources",
		Long: `Start a long-running scheduler that triggers an ingestion run for
every source with enable_schedule set, on its schedule_cron expression.
Stops cleanly on SIGINT/SIGTERM after in-flight runs finish.`,
		RunE: runSchedule,
	}
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	orch := ingest.New(ingest.Options{
		Contents: db,
		Keys:     db,
		Reports:  db,
		Sources:  db,
		Logger:   logger,
	})

	c := cron.New()
	scheduled := 0
	for i := range cfg.Sources {
		ds := &cfg.Sources[i]
		if !ds.EnableSchedule || ds.ScheduleCron == "" {
			continue
		}
		_, err := c.AddFunc(ds.ScheduleCron, func() {
			runScheduled(ctx, orch, ds, logger)
		})
		if err != nil {
			return fmt.Errorf("source %q: bad schedule_cron %q: %w", ds.Name, ds.ScheduleCron, err)
		}
		scheduled++
		logger.Info("source scheduled", "source", ds.Name, "cron", ds.ScheduleCron)
	}
	if scheduled == 0 {
		return fmt.Errorf("no sources have enable_schedule set")
	}

	c.Start()
	logger.Info("scheduler started", "sources", scheduled)

	<-ctx.Done()
	logger.Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

func runScheduled(ctx context.Context, orch *ingest.Orchestrator, ds *config.DataSource, logger *slog.Logger) {
	report, err := orch.Run(ctx, ds, false)
	if err != nil {
		logger.Warn("scheduled run failed", "source", ds.Name, "error", err)
		return
	}
	logger.Info("scheduled run done", "source", ds.Name, "ingested", report.Ingested)
}

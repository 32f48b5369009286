package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/store"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "automedia",
		Short: "AutoMedia — content ingestion and daily hotspot clustering",
		Long: `AutoMedia ingests configured web sources into a deduplicated content
store and clusters each day's records into ranked hotspot events.

Commands:
  ingest    run one ingestion pass for a configured source
  hotspots  cluster a day's content into hotspot events
  schedule  run the cron scheduler for all scheduled sources
  reports   show recent run reports for a source`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(hotspotsCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(reportsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("automedia %s\n", config.Version)
		},
	}
}

// setupLogger creates a structured logger from the logging config. The
// --verbose flag forces debug level regardless of configuration.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// bootstrap loads the config, builds the logger and connects the store.
func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, *store.Mongo, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	db, err := store.NewMongo(connectCtx, cfg.Mongo, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect store: %w", err)
	}
	return cfg, logger, db, nil
}

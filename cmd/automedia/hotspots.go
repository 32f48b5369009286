package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GuavaAi/auto-media/internal/hotspot"
)

var (
	hotspotsDay   string
	hotspotsLimit int
)

// hotspotsCmd creates the "hotspots" subcommand.
func hotspotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hotspots",
		Short: "Cluster a day's ingested content into hotspot events",
		Long: `Group the day's records by title similarity, pick each cluster's
leading document, extract ranked bullets and quotes, score the clusters
and replace the day's stored events. Re-running a day is idempotent.`,
		RunE: runHotspots,
	}

	cmd.Flags().StringVarP(&hotspotsDay, "day", "d", "", "day to cluster, YYYY-MM-DD (default today)")
	cmd.Flags().IntVarP(&hotspotsLimit, "limit", "l", 0, "override the configured cluster limit")

	return cmd
}

func runHotspots(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	day := hotspotsDay
	if day == "" {
		day = time.Now().Format("2006-01-02")
	}
	hcfg := cfg.Hotspot
	if hotspotsLimit > 0 {
		hcfg.Limit = hotspotsLimit
	}

	builder := hotspot.NewBuilder(db, db.Clusters(), hcfg, logger)
	bundles, err := builder.Run(ctx, day)
	if err != nil {
		return err
	}

	fmt.Printf("day %s: %d hotspot clusters\n", day, len(bundles))
	for i, b := range bundles {
		fmt.Printf("%2d. [%.1f] %s (%d sources, %d items)\n",
			i+1, b.Cluster.HotScore, b.Cluster.Title, len(b.Sources), len(b.Items))
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/service"
	"github.com/timmy/cloudnet/internal/source/staging"
)

// siteRun runs one site and returns its stats.
type siteRun func(ctx context.Context, site domain.Site, report func(service.Report)) (*service.RunStats, error)

func cmdProcess(cmd *cobra.Command, args []string) error {
	dates, kinds, err := processArgs.parse()
	if err != nil {
		return err
	}
	opts := service.ProcessOptions{Reprocess: processArgs.reprocess, Freeze: processArgs.freeze}

	return withProcessService(cmd, args, func(svc *service.ProcessService) siteRun {
		return func(ctx context.Context, site domain.Site, report func(service.Report)) (*service.RunStats, error) {
			return svc.Run(ctx, site, dates, kinds, opts, report)
		}
	})
}

func cmdFreeze(cmd *cobra.Command, args []string) error {
	dates, kinds, err := freezeArgs.parse()
	if err != nil {
		return err
	}
	return withProcessService(cmd, args, func(svc *service.ProcessService) siteRun {
		return func(ctx context.Context, site domain.Site, report func(service.Report)) (*service.RunStats, error) {
			return svc.Freeze(ctx, site, dates, kinds, report)
		}
	})
}

func withProcessService(cmd *cobra.Command, siteIDs []string, build func(*service.ProcessService) siteRun) error {
	ctx := logger.SetComponent(cmd.Context(), "process")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	defer a.pushMetrics(ctx)

	sites, err := a.sites(siteIDs)
	if err != nil {
		return err
	}
	svc, err := a.processService()
	if err != nil {
		return err
	}
	return runSites(ctx, cmd.OutOrStdout(), sites, a.cfg.Processing.SiteWorkers, build(svc))
}

// runSites runs every site and prints one status line per unit. Only
// process-scoped failures are returned; failed units are reported in their
// status line and do not change the exit code.
func runSites(ctx context.Context, out io.Writer, sites []domain.Site, workers int, run siteRun) error {
	var mu sync.Mutex
	report := func(r service.Report) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(out, r.String())
	}

	err := service.ForEachSite(ctx, sites, workers, func(ctx context.Context, site domain.Site) error {
		stats, err := run(ctx, site, report)
		if stats != nil {
			logger.With(logger.Fields{
				logger.FieldSite:       site.ID,
				logger.FieldCount:      stats.Units,
				logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
			}).Info(ctx, "Site finished: failed=%d", stats.Failed())
		}
		return err
	})
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted: %w", err)
	}
	return err
}

func cmdImport(cmd *cobra.Command, args []string) error {
	ctx := logger.SetComponent(cmd.Context(), "import")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	defer a.pushMetrics(ctx)

	src := staging.NewAdapter(args[0])
	svc := service.NewImportService(a.submissions, &service.ImportConfig{Workers: a.cfg.Processing.ImportWorkers})
	stats, err := svc.Import(ctx, src)
	if stats != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d files: %d duplicates, %d failed, %d manifest lines skipped\n",
			stats.CreatedItems, stats.TotalItems, stats.SkippedItems, stats.FailedItems, src.Skipped())
	}
	return err
}

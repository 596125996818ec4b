package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/timmy/cloudnet/internal/config"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/observability"
	"github.com/timmy/cloudnet/internal/repository"
	"github.com/timmy/cloudnet/internal/service"
	"github.com/timmy/cloudnet/internal/source"
	"github.com/timmy/cloudnet/internal/storage"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg         *config.Config
	registry    *prometheus.Registry
	metrics     *observability.Metrics
	directory   *repository.Directory
	archive     *storage.Archive
	submissions *service.SubmissionService
	close       func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, domain.ErrConfig.Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, domain.ErrConfig.Wrap(err)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, domain.ErrDirectory.Wrap(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, domain.ErrDirectory.Wrap(err)
	}

	archive, err := storage.OpenArchive(storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Region:    cfg.Storage.Region,
	}, cfg.Storage.RawBucket, cfg.Storage.ProductBucket, cfg.Storage.VolatileBucket)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := archive.EnsureBuckets(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ensure buckets: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	directory := repository.NewDirectory(db)

	return &app{
		cfg:         cfg,
		registry:    registry,
		metrics:     metrics,
		directory:   directory,
		archive:     archive,
		submissions: service.NewSubmissionService(directory.Raw(), archive, cfg, metrics),
		close:       func() { sqlDB.Close() },
	}, nil
}

func (a *app) processService() (*service.ProcessService, error) {
	converter := service.NewConverterClient(&service.ConverterConfig{
		BaseURL: a.cfg.Converter.BaseURL,
		APIKey:  a.cfg.Converter.APIKey,
		Timeout: a.cfg.Converter.Timeout,
	})
	pids := service.NewPIDClient(&service.PIDConfig{
		BaseURL: a.cfg.PID.BaseURL,
		Timeout: a.cfg.PID.Timeout,
	})

	ranking := domain.NewModelRanking(a.cfg.Models)
	selector, err := source.NewSelector(a.directory, a.archive, source.DefaultStrategies(converter, ranking))
	if err != nil {
		return nil, err
	}

	return service.NewProcessService(
		a.directory,
		a.archive,
		selector,
		converter,
		service.NewIdentityAssigner(converter, pids),
		a.metrics,
		&service.ProcessConfig{TempDir: a.cfg.Processing.TempDir},
	), nil
}

// sites resolves site ids against the configuration.
func (a *app) sites(ids []string) ([]domain.Site, error) {
	sites := make([]domain.Site, 0, len(ids))
	for _, id := range ids {
		site, err := a.cfg.Site(id)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// pushMetrics sends the run's metrics to the Pushgateway when one is
// configured. Failures are logged, never returned.
func (a *app) pushMetrics(ctx context.Context) {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	// Push even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)
	pusher := push.New(url, a.cfg.Metrics.Job).
		Gatherer(a.registry).
		Grouping("instance", hostname())
	if err := pusher.PushContext(ctx); err != nil {
		logger.CtxWarn(ctx, "Failed to push metrics: url=%s, error=%v", url, err)
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

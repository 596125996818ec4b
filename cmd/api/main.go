package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/timmy/cloudnet/internal/api"
	"github.com/timmy/cloudnet/internal/config"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/observability"
	"github.com/timmy/cloudnet/internal/repository"
	"github.com/timmy/cloudnet/internal/service"
	"github.com/timmy/cloudnet/internal/storage"
)

func main() {
	appLogger := logger.NewFromEnv(logger.LoadFromEnv("cloudnet-api"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get database handle")
	}
	defer sqlDB.Close()
	directory := repository.NewDirectory(db)

	ctx := context.Background()
	archive, err := storage.OpenArchive(storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Region:    cfg.Storage.Region,
	}, cfg.Storage.RawBucket, cfg.Storage.ProductBucket, cfg.Storage.VolatileBucket)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if err := archive.EnsureBuckets(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure storage buckets")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	submissions := service.NewSubmissionService(directory.Raw(), archive, cfg, metrics)
	importer := service.NewImportService(submissions, &service.ImportConfig{
		Workers: cfg.Processing.ImportWorkers,
	})

	router := api.SetupRouter(api.Dependencies{
		Submitter: submissions,
		Products:  directory.Products(),
		Raws:      directory.Raw(),
		Importer:  importer,
		DB:        sqlDB,
		Gatherer:  registry,
		Logger:    appLogger,
	}, api.Options{
		Mode:        cfg.Server.Mode,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		CORSOrigins: cfg.Server.CORSOrigins,
		StagingDir:  cfg.Processing.StagingDir,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

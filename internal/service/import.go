package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/source/staging"
)

// StagingSource yields staged raw files in batches.
type StagingSource interface {
	FetchBatch(ctx context.Context, cursor string, limit int) ([]staging.Item, string, error)
}

// ImportService submits staged raw files through the submission service.
type ImportService struct {
	submissions *SubmissionService
	workers     int
	batchSize   int
}

// ImportConfig holds configuration for the import service.
type ImportConfig struct {
	Workers   int
	BatchSize int
}

// NewImportService creates a new import service.
func NewImportService(submissions *SubmissionService, cfg *ImportConfig) *ImportService {
	workers, batchSize := cfg.Workers, cfg.BatchSize
	if workers < 1 {
		workers = 1
	}
	if batchSize < 1 {
		batchSize = 50
	}
	return &ImportService{submissions: submissions, workers: workers, batchSize: batchSize}
}

// ImportStats holds statistics for an import run.
type ImportStats struct {
	TotalItems   int64
	CreatedItems int64
	SkippedItems int64
	FailedItems  int64
	StartTime    time.Time
	EndTime      time.Time
}

// Import submits every staged file. Duplicates count as skipped.
func (s *ImportService) Import(ctx context.Context, src StagingSource) (*ImportStats, error) {
	stats := &ImportStats{StartTime: time.Now()}
	ctx = logger.SetComponent(ctx, "import")

	itemsChan := make(chan staging.Item, s.workers*2)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsChan {
				err := s.importItem(ctx, item)
				switch {
				case err == nil:
					atomic.AddInt64(&stats.CreatedItems, 1)
				case domain.ErrDuplicate.Has(err):
					atomic.AddInt64(&stats.SkippedItems, 1)
				default:
					atomic.AddInt64(&stats.FailedItems, 1)
					logger.FromContext(ctx).WithFields(logger.Fields{
						"filename": item.Filename,
					}).WithError(err).Error("Failed to import item")
				}
			}
		}()
	}

	var fetchErr error
	cursor := ""
fetch:
	for ctx.Err() == nil {
		items, next, err := src.FetchBatch(ctx, cursor, s.batchSize)
		if err != nil {
			fetchErr = fmt.Errorf("failed to fetch batch: %w", err)
			break
		}
		atomic.AddInt64(&stats.TotalItems, int64(len(items)))
		for _, item := range items {
			select {
			case itemsChan <- item:
			case <-ctx.Done():
				break fetch
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	close(itemsChan)
	wg.Wait()
	stats.EndTime = time.Now()

	logger.With(logger.Fields{
		"total":   stats.TotalItems,
		"created": stats.CreatedItems,
		"skipped": stats.SkippedItems,
		"failed":  stats.FailedItems,
	}).WithDuration(stats.StartTime).Info(ctx, "Import completed")

	if fetchErr != nil {
		return stats, fetchErr
	}
	return stats, ctx.Err()
}

func (s *ImportService) importItem(ctx context.Context, item staging.Item) error {
	f, err := os.Open(item.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.submissions.Submit(ctx, Submission{
		Filename:        item.Filename,
		Site:            item.Site,
		MeasurementDate: item.MeasurementDate,
		Instrument:      item.Instrument,
		Model:           item.Model,
	}, f)
	return err
}

package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/cloudnet/internal/domain"
	"github.com/timmy/cloudnet/internal/logger"
	"github.com/timmy/cloudnet/internal/observability"
	"github.com/timmy/cloudnet/internal/storage"
)

// RawCatalog records raw uploads.
type RawCatalog interface {
	Create(ctx context.Context, rec *domain.RawRecord) error
	ExistsByChecksum(ctx context.Context, checksum string) (bool, error)
}

// RawStore stores raw upload objects.
type RawStore interface {
	PutRaw(ctx context.Context, key string, r io.Reader, size int64, md5 string) (*storage.UploadInfo, error)
	DeleteRaw(ctx context.Context, key string) error
}

// SiteCatalog resolves configured sites.
type SiteCatalog interface {
	Site(id string) (domain.Site, error)
}

// Submission describes one raw file offered to the archive.
type Submission struct {
	Filename        string
	Site            string
	MeasurementDate string
	Instrument      string
	Model           string
	// Checksum is the sha256 hex digest the client claims; empty skips
	// the comparison.
	Checksum string
}

// SubmissionService accepts raw files into the archive. It backs both the
// upload API and the staging import.
type SubmissionService struct {
	raws    RawCatalog
	store   RawStore
	sites   SiteCatalog
	metrics *observability.Metrics
}

// NewSubmissionService creates a new submission service.
func NewSubmissionService(raws RawCatalog, store RawStore, sites SiteCatalog, metrics *observability.Metrics) *SubmissionService {
	return &SubmissionService{raws: raws, store: store, sites: sites, metrics: metrics}
}

// Submit stores body and records it as an uploaded raw file. It fails with
// domain.ErrInvalidUpload for bad metadata or a checksum mismatch, and with
// domain.ErrDuplicate when the content was already submitted.
func (s *SubmissionService) Submit(ctx context.Context, sub Submission, body io.ReadSeeker) (*domain.RawRecord, error) {
	rec, err := s.submit(ctx, sub, body)
	s.metrics.Uploads.WithLabelValues(uploadOutcome(err)).Inc()
	return rec, err
}

func (s *SubmissionService) submit(ctx context.Context, sub Submission, body io.ReadSeeker) (*domain.RawRecord, error) {
	if err := s.validate(sub); err != nil {
		return nil, err
	}

	sums, err := storage.HashReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to hash upload: %w", err)
	}
	if sub.Checksum != "" && !strings.EqualFold(sub.Checksum, sums.SHA256) {
		return nil, domain.ErrInvalidUpload.New("checksum mismatch: got %s, expected %s", sums.SHA256, sub.Checksum)
	}

	exists, err := s.raws.ExistsByChecksum(ctx, sums.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to check existence: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicate.New("%s already uploaded", sums.SHA256)
	}

	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind upload: %w", err)
	}

	filename := path.Base(sub.Filename)
	rec := &domain.RawRecord{
		ID:              uuid.New().String(),
		Site:            sub.Site,
		MeasurementDate: sub.MeasurementDate,
		Instrument:      sub.Instrument,
		Model:           sub.Model,
		Filename:        filename,
		Checksum:        sums.SHA256,
		Size:            sums.Size,
		Status:          domain.RawStatusUploaded,
		Format:          strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."),
	}
	rec.S3Key = domain.RawKey(rec.Site, rec.ID, rec.Filename)

	if _, err := s.store.PutRaw(ctx, rec.S3Key, body, sums.Size, sums.MD5); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := s.raws.Create(ctx, rec); err != nil {
		// Rollback: the object key is unique to this submission.
		if delErr := s.store.DeleteRaw(ctx, rec.S3Key); delErr != nil {
			logger.With(logger.Fields{
				logger.FieldSite: rec.Site,
				"storage_key":    rec.S3Key,
			}).Error(ctx, "Failed to rollback raw upload: %v", delErr)
		}
		// A concurrent submission of the same content wins the unique index.
		if exists, _ := s.raws.ExistsByChecksum(ctx, sums.SHA256); exists {
			return nil, domain.ErrDuplicate.New("%s already uploaded", sums.SHA256)
		}
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldSite: rec.Site,
		logger.FieldSize: rec.Size,
	}).Info(ctx, "Accepted raw file %s as %s", rec.Filename, rec.ID)
	return rec, nil
}

func (s *SubmissionService) validate(sub Submission) error {
	if strings.TrimSpace(sub.Filename) == "" {
		return domain.ErrInvalidUpload.New("filename is required")
	}
	if _, err := s.sites.Site(sub.Site); err != nil {
		return domain.ErrInvalidUpload.New("unknown site %q", sub.Site)
	}
	if _, err := domain.ParseDate(sub.MeasurementDate); err != nil {
		return domain.ErrInvalidUpload.Wrap(err)
	}
	if (sub.Instrument == "") == (sub.Model == "") {
		return domain.ErrInvalidUpload.New("exactly one of instrument and model is required")
	}
	return nil
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case domain.ErrDuplicate.Has(err):
		return "duplicate"
	case domain.ErrInvalidUpload.Has(err):
		return "rejected"
	default:
		return "failed"
	}
}

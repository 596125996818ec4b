package repository

import (
	"context"
	"errors"

	"github.com/timmy/cloudnet/internal/domain"
	"gorm.io/gorm"
)

// RawRepository handles raw upload records.
type RawRepository struct {
	db *gorm.DB
}

// NewRawRepository creates a new RawRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RawRepository: repository instance bound to db.
func NewRawRepository(db *gorm.DB) *RawRepository {
	return &RawRepository{db: db}
}

// Create inserts a new raw record.
func (r *RawRepository) Create(ctx context.Context, rec *domain.RawRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// GetByID retrieves a raw record by id.
// Returns:
//   - *domain.RawRecord: record if found.
//   - error: domain.ErrNotFound when no record has that id.
func (r *RawRepository) GetByID(ctx context.Context, id string) (*domain.RawRecord, error) {
	var rec domain.RawRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "raw file %s", id)
	}
	return &rec, nil
}

// ExistsByChecksum checks if a raw file with the given sha256 checksum was uploaded.
func (r *RawRepository) ExistsByChecksum(ctx context.Context, checksum string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.RawRecord{}).
		Where("checksum = ?", checksum).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Query lists raw records matching filter, newest upload first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: site, date, instrument and status constraints.
// Returns:
//   - []domain.RawRecord: matching records, possibly empty.
//   - error: non-nil if the query fails.
func (r *RawRepository) Query(ctx context.Context, filter domain.RawFilter) ([]domain.RawRecord, error) {
	q := r.db.WithContext(ctx).Model(&domain.RawRecord{})
	if filter.Site != "" {
		q = q.Where("site = ?", filter.Site)
	}
	if filter.MeasurementDate != "" {
		q = q.Where("measurement_date = ?", filter.MeasurementDate)
	}
	if filter.Instrument != "" {
		q = q.Where("instrument = ?", filter.Instrument)
	}
	if filter.HasModel {
		q = q.Where("model IS NOT NULL AND model <> ''")
	}
	if filter.OnlyUnprocessed {
		q = q.Where("status = ?", domain.RawStatusUploaded)
	}

	var records []domain.RawRecord
	if err := q.Order("created_at DESC").Order("filename ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateStatus sets the status of one raw record.
// Setting the status it already has is not an error.
func (r *RawRepository) UpdateStatus(ctx context.Context, id string, status domain.RawStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.RawRecord{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either unknown or unchanged; only the former is an error.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound.New(format, args...)
	}
	return err
}

package repository

import (
	"context"
	"errors"

	"github.com/timmy/cloudnet/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository handles published product records.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByUUID retrieves a product by uuid, current or superseded.
func (r *ProductRepository) GetByUUID(ctx context.Context, uuid string) (*domain.ProductRecord, error) {
	var rec domain.ProductRecord
	if err := r.db.WithContext(ctx).First(&rec, "uuid = ?", uuid).Error; err != nil {
		return nil, notFound(err, "product %s", uuid)
	}
	return &rec, nil
}

// Query lists product records matching filter, newest first. Superseded
// records are only included when the filter asks for them.
func (r *ProductRepository) Query(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductRecord, error) {
	q := r.db.WithContext(ctx).Model(&domain.ProductRecord{})
	if filter.Site != "" {
		q = q.Where("site = ?", filter.Site)
	}
	if filter.MeasurementDate != "" {
		q = q.Where("measurement_date = ?", filter.MeasurementDate)
	}
	if filter.Product != "" {
		q = q.Where("product = ?", filter.Product)
	}
	if !filter.IncludeSuperseded {
		q = q.Where("is_current = ?", true)
	}

	var records []domain.ProductRecord
	if err := q.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Publish stores rec as the current product for its site, date and kind.
// When supersedes names another record, that record is demoted in the same
// transaction. A record that already carries a permanent identifier cannot
// be given a different one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: product record to create or replace, keyed by UUID.
//   - supersedes: uuid of the frozen record being replaced, or "".
// Returns:
//   - error: domain.ErrAlreadyFrozen, domain.ErrNotFound or a database error.
func (r *ProductRepository) Publish(ctx context.Context, rec *domain.ProductRecord, supersedes string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.ProductRecord
		err := tx.First(&existing, "uuid = ?", rec.UUID).Error
		switch {
		case err == nil:
			if existing.PID != "" && existing.PID != rec.PID {
				return domain.ErrAlreadyFrozen.New("product %s already has pid %s", rec.UUID, existing.PID)
			}
			rec.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if supersedes != "" && supersedes != rec.UUID {
			res := tx.Model(&domain.ProductRecord{}).
				Where("uuid = ?", supersedes).
				Update("is_current", false)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrNotFound.New("superseded product %s", supersedes)
			}
		}

		rec.Current = true
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uuid"}},
			UpdateAll: true,
		}).Create(rec).Error
	})
}

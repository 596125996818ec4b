package repository

import (
	"context"

	"github.com/timmy/cloudnet/internal/domain"
	"gorm.io/gorm"
)

// Directory is the metadata catalog seen by the processing pipeline: raw
// uploads and published products behind one query surface. Query failures
// are classed as domain.ErrDirectory.
type Directory struct {
	raw      *RawRepository
	products *ProductRepository
}

// NewDirectory creates a Directory over db.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{
		raw:      NewRawRepository(db),
		products: NewProductRepository(db),
	}
}

// Raw returns the raw upload repository.
func (d *Directory) Raw() *RawRepository { return d.raw }

// Products returns the product repository.
func (d *Directory) Products() *ProductRepository { return d.products }

// QueryRaw lists raw records matching filter.

func (d *Directory) QueryRaw(ctx context.Context, filter domain.RawFilter) ([]domain.RawRecord, error) {
	recs, err := d.raw.Query(ctx, filter)
	if err != nil {
		return nil, domain.ErrDirectory.Wrap(err)
	}
	return recs, nil
}

// QueryProducts lists product records matching filter.
func (d *Directory) QueryProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductRecord, error) {
	recs, err := d.products.Query(ctx, filter)
	if err != nil {
		return nil, domain.ErrDirectory.Wrap(err)
	}
	return recs, nil
}

// PutProduct records a published product, retiring supersedes when set.
func (d *Directory) PutProduct(ctx context.Context, rec *domain.ProductRecord, supersedes string) error {
	return d.products.Publish(ctx, rec, supersedes)
}

// PostStatus moves a raw record to status.
func (d *Directory) PostStatus(ctx context.Context, rawID string, status domain.RawStatus) error {
	return d.raw.UpdateStatus(ctx, rawID, status)
}

package service

import (
	"context"

	"github.com/timmy/cloudnet/internal/domain"
)

// State is the pre-run classification of a processing unit.
type State int

const (
	// StateAbsent means no product exists; a new identity is minted.
	StateAbsent State = iota
	// StateVolatile means a volatile product exists and its identity is reused.
	StateVolatile
	// StateFrozenBlocked means a frozen product exists and reprocessing was
	// not requested.
	StateFrozenBlocked
	// StateFrozenReprocess means a frozen product exists and will be
	// superseded by a new version.
	StateFrozenReprocess
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateVolatile:
		return "volatile"
	case StateFrozenBlocked:
		return "frozen"
	case StateFrozenReprocess:
		return "frozen-reprocess"
	default:
		return "unknown"
	}
}

// Status is the resolved state with the existing record, if any.
type Status struct {
	State    State
	Existing *domain.ProductRecord
}

// ExistingUUID returns the identity of the existing product or "".
func (s Status) ExistingUUID() string {
	if s.Existing == nil {
		return ""
	}
	return s.Existing.UUID
}

// ProductQuerier lists product records from the metadata directory.
type ProductQuerier interface {
	QueryProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductRecord, error)
}

// StatusResolver classifies units from the current product records.
type StatusResolver struct {
	products ProductQuerier
}

// NewStatusResolver creates a new status resolver.
func NewStatusResolver(products ProductQuerier) *StatusResolver {
	return &StatusResolver{products: products}
}

// Resolve makes exactly one directory query for unit. More than one current
// record is a domain.ErrIntegrity fault.
func (r *StatusResolver) Resolve(ctx context.Context, unit domain.ProcessingUnit, reprocess bool) (Status, error) {
	recs, err := r.products.QueryProducts(ctx, domain.ProductFilter{
		Site:            unit.Site.ID,
		MeasurementDate: unit.DateString(),
		Product:         unit.Product,
	})
	if err != nil {
		return Status{}, err
	}

	switch len(recs) {
	case 0:
		return Status{State: StateAbsent}, nil
	case 1:
	default:
		return Status{}, domain.ErrIntegrity.New("%d current %s records for %s %s",
			len(recs), unit.Product, unit.Site.ID, unit.DateString())
	}

	existing := recs[0]
	switch {
	case !existing.Frozen():
		return Status{State: StateVolatile, Existing: &existing}, nil
	case reprocess:
		return Status{State: StateFrozenReprocess, Existing: &existing}, nil
	default:
		return Status{State: StateFrozenBlocked, Existing: &existing}, nil
	}
}

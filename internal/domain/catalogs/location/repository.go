package location

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
)

// Repository defines storage operations for the location catalog.
type Repository interface {
	Create(ctx context.Context, sc scope.Scope, l *Location) error
	GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*Location, error)
	SetDeleted(ctx context.Context, sc scope.Scope, locationID id.ID, deleted bool) error
	List(ctx context.Context, sc scope.Scope, filter ListFilter) ([]*Location, error)
	// ListIDsByWarehouse resolves a warehouse to its location IDs; used to
	// expand a warehouse-level reconciliation scope.
	ListIDsByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID) ([]id.ID, error)
	Exists(ctx context.Context, sc scope.Scope, locationID id.ID) (bool, error)
}

// ListFilter narrows location listing.
type ListFilter struct {
	WarehouseID    *id.ID
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

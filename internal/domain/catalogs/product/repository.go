package product

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
)

// Repository defines storage operations for the product catalog.
type Repository interface {
	Create(ctx context.Context, sc scope.Scope, p *Product) error
	GetByID(ctx context.Context, sc scope.Scope, productID id.ID) (*Product, error)
	GetByCode(ctx context.Context, sc scope.Scope, code string) (*Product, error)
	Update(ctx context.Context, sc scope.Scope, p *Product) error
	SetDeleted(ctx context.Context, sc scope.Scope, productID id.ID, deleted bool) error
	List(ctx context.Context, sc scope.Scope, filter ListFilter) ([]*Product, error)
	Exists(ctx context.Context, sc scope.Scope, productID id.ID) (bool, error)
}

// ListFilter narrows product listing.
type ListFilter struct {
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

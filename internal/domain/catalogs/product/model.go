// Package product provides the product catalog, a thin lookup collaborator
// for the ledger core.
package product

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Product is a catalog entry identifying a stock-keeping item.
type Product struct {
	ID       id.ID `db:"id" json:"id"`
	TenantID id.ID `db:"tenant_id" json:"tenantId"`

	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
	Unit string `db:"unit" json:"unit,omitempty"`

	// Deleted is the single lifecycle flag; storage filters it in the base
	// query rather than per call site.
	Deleted bool `db:"deleted" json:"deleted"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// New creates a product with a generated ID.
func New(tenantID id.ID, code, name string) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:        id.New(),
		TenantID:  tenantID,
		Code:      code,
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks entity invariants.
func (p *Product) Validate(ctx context.Context) error {
	if p.Code == "" {
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	}
	if p.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	return nil
}

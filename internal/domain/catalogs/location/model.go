// Package location provides the storage location catalog, a thin lookup
// collaborator for the ledger core. Locations belong to a warehouse.
package location

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Location is a catalog entry identifying a storage place within a warehouse.
type Location struct {
	ID       id.ID `db:"id" json:"id"`
	TenantID id.ID `db:"tenant_id" json:"tenantId"`

	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	Code        string `db:"code" json:"code"`
	Name        string `db:"name" json:"name"`

	Deleted bool `db:"deleted" json:"deleted"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// New creates a location with a generated ID.
func New(tenantID, warehouseID id.ID, code, name string) *Location {
	now := time.Now().UTC()
	return &Location{
		ID:          id.New(),
		TenantID:    tenantID,
		WarehouseID: warehouseID,
		Code:        code,
		Name:        name,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks entity invariants.
func (l *Location) Validate(ctx context.Context) error {
	if id.IsNil(l.WarehouseID) {
		return apperror.NewValidation("warehouse is required").WithDetail("field", "warehouseId")
	}
	if l.Code == "" {
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	}
	return nil
}

// Package projection provides the materialized stock projection: one row per
// (tenant, product, location, lot) holding the current quantity. The row is a
// cache over the movement ledger and must stay derivable from it; the
// reconciliation calculator verifies exactly that.
package projection

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// StockRow is the per-key quantity projection.
type StockRow struct {
	ID       id.ID `db:"id" json:"id"`
	TenantID id.ID `db:"tenant_id" json:"tenantId"`

	ProductID  id.ID  `db:"product_id" json:"productId"`
	LocationID id.ID  `db:"location_id" json:"locationId"`
	LotID      *id.ID `db:"lot_id" json:"lotId,omitempty"`

	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	ReservedQuantity types.Quantity `db:"reserved_quantity" json:"reservedQuantity"`

	MinimumLevel *types.Quantity `db:"minimum_level" json:"minimumLevel,omitempty"`
	MaximumLevel *types.Quantity `db:"maximum_level" json:"maximumLevel,omitempty"`

	LastMovementDate  *time.Time `db:"last_movement_date" json:"lastMovementDate,omitempty"`
	LastInventoryDate *time.Time `db:"last_inventory_date" json:"lastInventoryDate,omitempty"`

	// Version is bumped on every write; writers check it to detect
	// concurrent modification.
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStockRow creates a projection row for a key, starting at zero.
func NewStockRow(tenantID, productID, locationID id.ID, lotID *id.ID) *StockRow {
	now := time.Now().UTC()
	return &StockRow{
		ID:         id.New(),
		TenantID:   tenantID,
		ProductID:  productID,
		LocationID: locationID,
		LotID:      lotID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AvailableQuantity is quantity minus reserved.
func (r *StockRow) AvailableQuantity() types.Quantity {
	return r.Quantity - r.ReservedQuantity
}

// Key returns the stock dimension of the row.
func (r *StockRow) Key() Key {
	return Key{ProductID: r.ProductID, LocationID: r.LocationID, LotID: r.LotID}
}

// BelowMinimum reports whether the row is under its minimum threshold.
func (r *StockRow) BelowMinimum() bool {
	return r.MinimumLevel != nil && r.Quantity < *r.MinimumLevel
}

// AboveMaximum reports whether the row is over its maximum threshold.
func (r *StockRow) AboveMaximum() bool {
	return r.MaximumLevel != nil && r.Quantity > *r.MaximumLevel
}

// Key identifies a stock row within a tenant.
type Key struct {
	ProductID  id.ID
	LocationID id.ID
	LotID      *id.ID
}

// SameLot reports whether two optional lot references match.
func SameLot(a, b *id.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Equal reports whether two keys address the same row.
func (k Key) Equal(other Key) bool {
	return k.ProductID == other.ProductID &&
		k.LocationID == other.LocationID &&
		SameLot(k.LotID, other.LotID)
}

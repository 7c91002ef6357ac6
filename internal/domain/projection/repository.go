package projection

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/types"
)

// Repository defines storage operations for the stock projection.
// Every method takes an explicit tenant scope.
type Repository interface {
	// GetByKey returns the row for a key, or a not found error.
	GetByKey(ctx context.Context, sc scope.Scope, key Key) (*StockRow, error)

	// GetByKeyForUpdate returns the row with a pessimistic row lock.
	// Must be called inside a transaction; the lock is held to commit.
	GetByKeyForUpdate(ctx context.Context, sc scope.Scope, key Key) (*StockRow, error)

	// Create inserts a new row (first movement touching the key).
	Create(ctx context.Context, sc scope.Scope, row *StockRow) error

	// UpdateQuantity overwrites quantity and movement/inventory dates,
	// checking the version column. Returns a concurrent modification error
	// when the row changed since it was read.
	UpdateQuantity(ctx context.Context, sc scope.Scope, row *StockRow, update QuantityUpdate) error

	// SetThresholds updates the min/max levels of a row.
	SetThresholds(ctx context.Context, sc scope.Scope, rowID id.ID, minLevel, maxLevel *types.Quantity) error

	// List returns rows matching the filter, ordered by product then location.
	List(ctx context.Context, sc scope.Scope, filter RowFilter) ([]*StockRow, error)
}

// QuantityUpdate carries the new quantity state for a row write.
type QuantityUpdate struct {
	Quantity          types.Quantity
	ReservedQuantity  types.Quantity
	LastMovementDate  *time.Time
	LastInventoryDate *time.Time

	// ExpectedVersion is the version the caller read; the write fails when
	// the stored version differs.
	ExpectedVersion int
}

// RowFilter narrows projection queries.
type RowFilter struct {
	ProductID   *id.ID
	LocationID  *id.ID
	LocationIDs []id.ID
	LotID       *id.ID
	ExcludeZero bool
	Limit       int
	Offset      int
}

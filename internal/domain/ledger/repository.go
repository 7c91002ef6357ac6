package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/types"
)

// Repository defines storage operations for the movement ledger.
// Every method takes an explicit tenant scope; implementations must filter
// all queries by it.
type Repository interface {
	// Create appends a single movement.
	Create(ctx context.Context, sc scope.Scope, m *Movement) error

	// CreateBatch appends movements in order (used inside the batch apply
	// transaction and by bulk seeding).
	CreateBatch(ctx context.Context, sc scope.Scope, movements []*Movement) error

	// GetByID retrieves a movement.
	GetByID(ctx context.Context, sc scope.Scope, movementID id.ID) (*Movement, error)

	// SetDeleted marks a movement soft-deleted. Recorded quantities are
	// never mutated.
	SetDeleted(ctx context.Context, sc scope.Scope, movementID id.ID, deleted bool) error

	// ListHistory returns movements matching the filter, newest first.
	ListHistory(ctx context.Context, sc scope.Scope, filter HistoryFilter) ([]*Movement, error)

	// ListForReplay returns completed, non-deleted movements touching
	// (product, location, lot) with movement date in [from, to], oldest
	// first. Used by the reconciliation calculator.
	ListForReplay(ctx context.Context, sc scope.Scope, key ReplayKey, from, to time.Time) ([]*Movement, error)
}

// HistoryFilter narrows movement history queries.
type HistoryFilter struct {
	ProductID  *id.ID
	LocationID *id.ID
	LotID      *id.ID
	Type       *MovementType
	Status     *MovementStatus
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}

// ReplayKey identifies the stock dimension a replay runs over.
// A nil LotID matches only movements without a lot.
type ReplayKey struct {
	ProductID  id.ID
	LocationID id.ID
	LotID      *id.ID
}

// SignedTotal sums the given movements signed for the replay key's location.
func SignedTotal(movements []*Movement, locationID id.ID) types.Quantity {
	var total types.Quantity
	for _, m := range movements {
		total += m.SignedQuantityAt(locationID)
	}
	return total
}

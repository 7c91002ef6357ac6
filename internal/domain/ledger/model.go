// Package ledger provides the movement ledger: an append-mostly log of
// stock-affecting events. Movements are immutable once created; history is
// corrected by reversal entries, never by editing recorded quantities.
package ledger

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType is a closed enum of movement kinds.
type MovementType string

const (
	TypeInbound    MovementType = "inbound"
	TypeOutbound   MovementType = "outbound"
	TypeTransfer   MovementType = "transfer"
	TypeAdjustment MovementType = "adjustment"
)

// ParseMovementType parses a movement type, rejecting unknown values.
// There is deliberately no fallback: a typo must fail loudly, not land in a
// catch-all bucket.
func ParseMovementType(s string) (MovementType, error) {
	switch MovementType(s) {
	case TypeInbound, TypeOutbound, TypeTransfer, TypeAdjustment:
		return MovementType(s), nil
	}
	return "", apperror.NewValidation("unknown movement type").WithDetail("value", s)
}

// MovementReason is a closed enum of business reasons for a movement.
type MovementReason string

const (
	ReasonPurchase       MovementReason = "purchase"
	ReasonSale           MovementReason = "sale"
	ReasonTransfer       MovementReason = "transfer"
	ReasonReturn         MovementReason = "return"
	ReasonDamage         MovementReason = "damage"
	ReasonProduction     MovementReason = "production"
	ReasonInventoryCount MovementReason = "inventory_count"
	ReasonReconciliation MovementReason = "reconciliation"
	ReasonOther          MovementReason = "other"
)

// ParseMovementReason parses a movement reason, rejecting unknown values.
// "other" is a legitimate explicit value, not a fallback for bad input.
func ParseMovementReason(s string) (MovementReason, error) {
	switch MovementReason(s) {
	case ReasonPurchase, ReasonSale, ReasonTransfer, ReasonReturn, ReasonDamage,
		ReasonProduction, ReasonInventoryCount, ReasonReconciliation, ReasonOther:
		return MovementReason(s), nil
	}
	return "", apperror.NewValidation("unknown movement reason").WithDetail("value", s)
}

// MovementStatus tracks the movement lifecycle.
type MovementStatus string

const (
	StatusPlanned   MovementStatus = "planned"
	StatusCompleted MovementStatus = "completed"
)

// Movement represents a discrete change in stock at one or two locations.
// Quantity is always a positive magnitude; direction is implied by type and
// the from/to locations.
type Movement struct {
	ID       id.ID `db:"id" json:"id"`
	TenantID id.ID `db:"tenant_id" json:"tenantId"`

	Type   MovementType   `db:"type" json:"type"`
	Reason MovementReason `db:"reason" json:"reason"`
	Status MovementStatus `db:"status" json:"status"`

	ProductID id.ID  `db:"product_id" json:"productId"`
	LotID     *id.ID `db:"lot_id" json:"lotId,omitempty"`
	SerialID  *id.ID `db:"serial_id" json:"serialId,omitempty"`

	FromLocationID *id.ID `db:"from_location_id" json:"fromLocationId,omitempty"`
	ToLocationID   *id.ID `db:"to_location_id" json:"toLocationId,omitempty"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`
	UnitCost *types.Money   `db:"unit_cost" json:"unitCost,omitempty"`

	MovementDate time.Time `db:"movement_date" json:"movementDate"`

	// DocumentID references the causal document, when the movement was
	// produced by posting one.
	DocumentID *id.ID `db:"document_id" json:"documentId,omitempty"`

	// ReversalOf references the movement this one compensates.
	ReversalOf *id.ID `db:"reversal_of" json:"reversalOf,omitempty"`

	// Reconciliation marks a correction created by the reconciliation
	// applier. Replay skips these whatever reason the caller stamped on
	// them, so a correction never feeds back into the next calculation.
	Reconciliation bool `db:"reconciliation" json:"reconciliation,omitempty"`

	Deleted   bool      `db:"deleted" json:"deleted"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
}

// NewMovement creates a completed movement with a generated ID.
func NewMovement(tenantID id.ID, mvType MovementType, productID id.ID, qty types.Quantity, date time.Time) *Movement {
	return &Movement{
		ID:           id.New(),
		TenantID:     tenantID,
		Type:         mvType,
		Reason:       ReasonOther,
		Status:       StatusCompleted,
		ProductID:    productID,
		Quantity:     qty,
		MovementDate: date,
		CreatedAt:    time.Now().UTC(),
	}
}

// ValidateShape checks the location invariants of the movement type:
// inbound requires a destination, outbound a source, transfer both (distinct),
// adjustment exactly one of the two.
func (m *Movement) ValidateShape() error {
	if id.IsNil(m.ProductID) {
		return apperror.NewInvalidMovement("product is required").WithDetail("field", "productId")
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewInvalidMovement("quantity must be positive").
			WithDetail("quantity", m.Quantity.String())
	}

	hasFrom := !id.PtrIsNil(m.FromLocationID)
	hasTo := !id.PtrIsNil(m.ToLocationID)

	switch m.Type {
	case TypeInbound:
		if !hasTo {
			return apperror.NewInvalidMovement("inbound movement requires a destination location")
		}
	case TypeOutbound:
		if !hasFrom {
			return apperror.NewInvalidMovement("outbound movement requires a source location")
		}
	case TypeTransfer:
		if !hasFrom || !hasTo {
			return apperror.NewInvalidMovement("transfer movement requires both source and destination locations")
		}
		if *m.FromLocationID == *m.ToLocationID {
			return apperror.NewInvalidMovement("transfer source and destination must differ")
		}
	case TypeAdjustment:
		if hasFrom == hasTo {
			return apperror.NewInvalidMovement("adjustment movement requires exactly one of source or destination location")
		}
	default:
		return apperror.NewValidation("unknown movement type").WithDetail("value", string(m.Type))
	}

	return nil
}

// SignedQuantityAt returns the quantity signed for the given location:
// positive when the location is the destination, negative when it is the
// source, zero when the movement does not touch it.
func (m *Movement) SignedQuantityAt(locationID id.ID) types.Quantity {
	if m.ToLocationID != nil && *m.ToLocationID == locationID {
		return m.Quantity
	}
	if m.FromLocationID != nil && *m.FromLocationID == locationID {
		return m.Quantity.Neg()
	}
	return 0
}

// Reversed builds the compensating movement: identical magnitude with the
// from/to locations swapped. The reversal is a new ledger entry applied
// through the normal validation path.
func (m *Movement) Reversed(reason MovementReason, actor string) *Movement {
	rev := &Movement{
		ID:             id.New(),
		TenantID:       m.TenantID,
		Type:           m.Type.reversed(),
		Reason:         reason,
		Status:         StatusCompleted,
		ProductID:      m.ProductID,
		LotID:          m.LotID,
		SerialID:       m.SerialID,
		FromLocationID: m.ToLocationID,
		ToLocationID:   m.FromLocationID,
		Quantity:       m.Quantity,
		UnitCost:       m.UnitCost,
		MovementDate:   time.Now().UTC(),
		DocumentID:     m.DocumentID,
		Reconciliation: m.Reconciliation,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      actor,
	}
	original := m.ID
	rev.ReversalOf = &original
	return rev
}

// reversed maps a movement type to the type of its compensating entry.
func (t MovementType) reversed() MovementType {
	switch t {
	case TypeInbound:
		return TypeOutbound
	case TypeOutbound:
		return TypeInbound
	default:
		// Transfer reverses as a transfer with swapped legs; adjustment as an
		// adjustment with the single leg flipped.
		return t
	}
}

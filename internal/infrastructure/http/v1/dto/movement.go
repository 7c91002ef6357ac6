package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/engine"
	"stockledger/internal/domain/ledger"
)

// --- Requests ---

// MovementRequest carries a full movement for the generic apply endpoint.
type MovementRequest struct {
	Type           string   `json:"type" binding:"required"`
	Reason         string   `json:"reason"`
	Status         string   `json:"status"`
	ProductID      string   `json:"productId" binding:"required"`
	LotID          string   `json:"lotId"`
	SerialID       string   `json:"serialId"`
	FromLocationID string   `json:"fromLocationId"`
	ToLocationID   string   `json:"toLocationId"`
	Quantity       float64  `json:"quantity" binding:"required"`
	UnitCost       *float64 `json:"unitCost"`
	MovementDate   string   `json:"movementDate"`
	DocumentID     string   `json:"documentId"`
}

// ToMovement converts the request to a domain movement. Enum fields are
// parsed strictly; unknown values are rejected.
func (r MovementRequest) ToMovement(tenantID id.ID) (*ledger.Movement, error) {
	mvType, err := ledger.ParseMovementType(r.Type)
	if err != nil {
		return nil, err
	}

	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return nil, apperror.NewValidation("invalid productId format")
	}

	date := time.Now().UTC()
	if r.MovementDate != "" {
		parsed, err := time.Parse(time.RFC3339, r.MovementDate)
		if err != nil {
			return nil, apperror.NewValidation("invalid movementDate format, expected RFC3339")
		}
		date = parsed
	}

	m := ledger.NewMovement(tenantID, mvType, productID, types.NewQuantityFromFloat64(r.Quantity), date)

	if r.Reason != "" {
		reason, err := ledger.ParseMovementReason(r.Reason)
		if err != nil {
			return nil, err
		}
		m.Reason = reason
	}
	if r.Status != "" {
		switch ledger.MovementStatus(r.Status) {
		case ledger.StatusPlanned, ledger.StatusCompleted:
			m.Status = ledger.MovementStatus(r.Status)
		default:
			return nil, apperror.NewValidation("unknown movement status").WithDetail("value", r.Status)
		}
	}

	if m.LotID, err = ParseOptionalID(r.LotID); err != nil {
		return nil, apperror.NewValidation("invalid lotId format")
	}
	if m.SerialID, err = ParseOptionalID(r.SerialID); err != nil {
		return nil, apperror.NewValidation("invalid serialId format")
	}
	if m.FromLocationID, err = ParseOptionalID(r.FromLocationID); err != nil {
		return nil, apperror.NewValidation("invalid fromLocationId format")
	}
	if m.ToLocationID, err = ParseOptionalID(r.ToLocationID); err != nil {
		return nil, apperror.NewValidation("invalid toLocationId format")
	}
	if m.DocumentID, err = ParseOptionalID(r.DocumentID); err != nil {
		return nil, apperror.NewValidation("invalid documentId format")
	}
	if r.UnitCost != nil {
		cost := types.NewMoney(*r.UnitCost)
		m.UnitCost = &cost
	}

	return m, nil
}

// BatchMovementRequest carries an ordered batch for atomic apply.
type BatchMovementRequest struct {
	Movements []MovementRequest `json:"movements" binding:"required"`
}

// SimpleMovementRequest carries the fields of a typed convenience endpoint
// (inbound, outbound, transfer, adjustment); the type comes from the route.
type SimpleMovementRequest struct {
	ProductID      string   `json:"productId" binding:"required"`
	LotID          string   `json:"lotId"`
	SerialID       string   `json:"serialId"`
	FromLocationID string   `json:"fromLocationId"`
	ToLocationID   string   `json:"toLocationId"`
	Quantity       float64  `json:"quantity" binding:"required"`
	UnitCost       *float64 `json:"unitCost"`
	MovementDate   string   `json:"movementDate"`
	Reason         string   `json:"reason"`
	DocumentID     string   `json:"documentId"`
}

// ToCommand converts the request to an engine command.
func (r SimpleMovementRequest) ToCommand() (engine.Command, error) {
	var cmd engine.Command

	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return cmd, apperror.NewValidation("invalid productId format")
	}
	cmd.ProductID = productID
	cmd.Quantity = types.NewQuantityFromFloat64(r.Quantity)

	if r.Reason != "" {
		reason, err := ledger.ParseMovementReason(r.Reason)
		if err != nil {
			return cmd, err
		}
		cmd.Reason = reason
	}
	if r.MovementDate != "" {
		parsed, err := time.Parse(time.RFC3339, r.MovementDate)
		if err != nil {
			return cmd, apperror.NewValidation("invalid movementDate format, expected RFC3339")
		}
		cmd.Date = parsed
	}

	if cmd.LotID, err = ParseOptionalID(r.LotID); err != nil {
		return cmd, apperror.NewValidation("invalid lotId format")
	}
	if cmd.SerialID, err = ParseOptionalID(r.SerialID); err != nil {
		return cmd, apperror.NewValidation("invalid serialId format")
	}
	if cmd.FromLocationID, err = ParseOptionalID(r.FromLocationID); err != nil {
		return cmd, apperror.NewValidation("invalid fromLocationId format")
	}
	if cmd.ToLocationID, err = ParseOptionalID(r.ToLocationID); err != nil {
		return cmd, apperror.NewValidation("invalid toLocationId format")
	}
	if r.UnitCost != nil {
		cost := types.NewMoney(*r.UnitCost)
		cmd.UnitCost = &cost
	}

	return cmd, nil
}

// ReverseMovementRequest carries the reason for a reversal.
type ReverseMovementRequest struct {
	Reason string `json:"reason"`
}

// --- Responses ---

// MovementResponse represents a movement in API responses.
type MovementResponse struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Reason         string     `json:"reason"`
	Status         string     `json:"status"`
	ProductID      string     `json:"productId"`
	LotID          string     `json:"lotId,omitempty"`
	SerialID       string     `json:"serialId,omitempty"`
	FromLocationID string     `json:"fromLocationId,omitempty"`
	ToLocationID   string     `json:"toLocationId,omitempty"`
	Quantity       float64    `json:"quantity"`
	UnitCost       *float64   `json:"unitCost,omitempty"`
	MovementDate   time.Time  `json:"movementDate"`
	DocumentID     string     `json:"documentId,omitempty"`
	ReversalOf     string     `json:"reversalOf,omitempty"`
	Deleted        bool       `json:"deleted"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedBy      string     `json:"createdBy,omitempty"`
}

// FromMovement converts a domain movement to a response DTO.
func FromMovement(m *ledger.Movement) MovementResponse {
	resp := MovementResponse{
		ID:             m.ID.String(),
		Type:           string(m.Type),
		Reason:         string(m.Reason),
		Status:         string(m.Status),
		ProductID:      m.ProductID.String(),
		LotID:          IDString(m.LotID),
		SerialID:       IDString(m.SerialID),
		FromLocationID: IDString(m.FromLocationID),
		ToLocationID:   IDString(m.ToLocationID),
		Quantity:       m.Quantity.Float64(),
		MovementDate:   m.MovementDate,
		DocumentID:     IDString(m.DocumentID),
		ReversalOf:     IDString(m.ReversalOf),
		Deleted:        m.Deleted,
		CreatedAt:      m.CreatedAt,
		CreatedBy:      m.CreatedBy,
	}
	if m.UnitCost != nil {
		cost, _ := m.UnitCost.Float64()
		resp.UnitCost = &cost
	}
	return resp
}

// MovementListResponse represents a list of movements.
type MovementListResponse struct {
	Items      []MovementResponse `json:"items"`
	TotalCount int                `json:"totalCount,omitempty"`
}

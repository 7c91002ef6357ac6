package dto

import (
	"time"

	"stockledger/internal/domain/projection"
)

// --- Response DTOs for the stock projection ---

// StockRowResponse represents one stock row in API responses.
type StockRowResponse struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"productId"`
	LocationID        string     `json:"locationId"`
	LotID             string     `json:"lotId,omitempty"`
	Quantity          float64    `json:"quantity"`
	ReservedQuantity  float64    `json:"reservedQuantity"`
	AvailableQuantity float64    `json:"availableQuantity"`
	MinimumLevel      *float64   `json:"minimumLevel,omitempty"`
	MaximumLevel      *float64   `json:"maximumLevel,omitempty"`
	BelowMinimum      bool       `json:"belowMinimum"`
	LastMovementDate  *time.Time `json:"lastMovementDate,omitempty"`
	LastInventoryDate *time.Time `json:"lastInventoryDate,omitempty"`
	Version           int        `json:"version"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// FromStockRow converts a projection row to a response DTO.
func FromStockRow(row *projection.StockRow) StockRowResponse {
	resp := StockRowResponse{
		ID:                row.ID.String(),
		ProductID:         row.ProductID.String(),
		LocationID:        row.LocationID.String(),
		LotID:             IDString(row.LotID),
		Quantity:          row.Quantity.Float64(),
		ReservedQuantity:  row.ReservedQuantity.Float64(),
		AvailableQuantity: row.AvailableQuantity().Float64(),
		BelowMinimum:      row.BelowMinimum(),
		LastMovementDate:  row.LastMovementDate,
		LastInventoryDate: row.LastInventoryDate,
		Version:           row.Version,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.MinimumLevel != nil {
		v := row.MinimumLevel.Float64()
		resp.MinimumLevel = &v
	}
	if row.MaximumLevel != nil {
		v := row.MaximumLevel.Float64()
		resp.MaximumLevel = &v
	}
	return resp
}

// StockRowListResponse represents a list of stock rows.
type StockRowListResponse struct {
	Items []StockRowResponse `json:"items"`
}

// AvailabilityResponse reports available quantity for one key.
type AvailabilityResponse struct {
	ProductID         string  `json:"productId"`
	LocationID        string  `json:"locationId"`
	LotID             string  `json:"lotId,omitempty"`
	Quantity          float64 `json:"quantity"`
	ReservedQuantity  float64 `json:"reservedQuantity"`
	AvailableQuantity float64 `json:"availableQuantity"`
}

// SetThresholdsRequest updates the min/max levels of a stock row.
type SetThresholdsRequest struct {
	MinimumLevel *float64 `json:"minimumLevel"`
	MaximumLevel *float64 `json:"maximumLevel"`
}

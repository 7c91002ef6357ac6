package dto

import (
	"time"

	"stockledger/internal/domain/catalogs/location"
	"stockledger/internal/domain/catalogs/product"
)

// --- Products ---

// CreateProductRequest for creating products.
type CreateProductRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
	Unit string `json:"unit"`
}

// ProductResponse represents a product in API responses.
type ProductResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit,omitempty"`
	Deleted   bool      `json:"deleted"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromProduct converts a product to a response DTO.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID.String(),
		Code:      p.Code,
		Name:      p.Name,
		Unit:      p.Unit,
		Deleted:   p.Deleted,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// --- Locations ---

// CreateLocationRequest for creating locations.
type CreateLocationRequest struct {
	WarehouseID string `json:"warehouseId" binding:"required"`
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name"`
}

// LocationResponse represents a location in API responses.
type LocationResponse struct {
	ID          string    `json:"id"`
	WarehouseID string    `json:"warehouseId"`
	Code        string    `json:"code"`
	Name        string    `json:"name,omitempty"`
	Deleted     bool      `json:"deleted"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FromLocation converts a location to a response DTO.
func FromLocation(l *location.Location) LocationResponse {
	return LocationResponse{
		ID:          l.ID.String(),
		WarehouseID: l.WarehouseID.String(),
		Code:        l.Code,
		Name:        l.Name,
		Deleted:     l.Deleted,
		Version:     l.Version,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

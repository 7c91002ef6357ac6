// Package documents defines the read-only interface to the external document
// ledger (sales/purchase documents and inventory counts). The reconciliation
// calculator consumes it; this core never writes documents.
package documents

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/types"
)

// Row is a single document line affecting stock for one (product, location).
type Row struct {
	DocumentID id.ID     `db:"document_id" json:"documentId"`
	Number     string    `db:"number" json:"number"`
	TypeCode   string    `db:"type_code" json:"typeCode"`
	Date       time.Time `db:"date" json:"date"`

	ProductID  id.ID  `db:"product_id" json:"productId"`
	LocationID id.ID  `db:"location_id" json:"locationId"`
	LotID      *id.ID `db:"lot_id" json:"lotId,omitempty"`

	// Quantity is a positive magnitude; IsStockIncrease carries the sign
	// from the owning document type.
	Quantity        types.Quantity `db:"quantity" json:"quantity"`
	IsStockIncrease bool           `db:"is_stock_increase" json:"isStockIncrease"`
}

// SignedQuantity applies the document type's direction flag.
func (r Row) SignedQuantity() types.Quantity {
	if r.IsStockIncrease {
		return r.Quantity
	}
	return r.Quantity.Neg()
}

// Count is a finalized physical inventory count for one (product, location).
// A count is ground truth at its instant: it replaces, not adds.
type Count struct {
	DocumentID id.ID     `db:"document_id" json:"documentId"`
	Number     string    `db:"number" json:"number"`
	Date       time.Time `db:"date" json:"date"`

	ProductID  id.ID  `db:"product_id" json:"productId"`
	LocationID id.ID  `db:"location_id" json:"locationId"`
	LotID      *id.ID `db:"lot_id" json:"lotId,omitempty"`

	CountedQuantity types.Quantity `db:"counted_quantity" json:"countedQuantity"`
}

// Key identifies the stock dimension a document query runs over.
type Key struct {
	ProductID  id.ID
	LocationID id.ID
	LotID      *id.ID
}

// Source is the consumed document-ledger interface.
type Source interface {
	// ListRows returns document rows for the key with document date in
	// [from, to], oldest first. Only rows of finalized documents.
	ListRows(ctx context.Context, sc scope.Scope, key Key, from, to time.Time) ([]Row, error)

	// LatestFinalizedCount returns the most recent closed inventory count
	// for the key with date in [from, to], or nil when none exists.
	LatestFinalizedCount(ctx context.Context, sc scope.Scope, key Key, from, to time.Time) (*Count, error)
}

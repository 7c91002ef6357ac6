// Package reconcile provides the reconciliation calculator and applier.
// The calculator independently recomputes what the stock projection should
// be by replaying documents, inventory counts and manual movements; the
// applier corrects selected discrepancies in one atomic batch.
package reconcile

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Severity classifies a reconciliation discrepancy.
type Severity string

const (
	SeverityCorrect Severity = "correct"
	SeverityMinor   Severity = "minor"
	SeverityMajor   Severity = "major"
	SeverityMissing Severity = "missing"
)

// SourceKind identifies where a contributing quantity came from.
type SourceKind string

const (
	SourceDocument       SourceKind = "document"
	SourceInventoryCount SourceKind = "inventory_count"
	SourceManualMovement SourceKind = "manual_movement"
)

// SourceMovement is one contribution to a calculated quantity.
type SourceMovement struct {
	Kind      SourceKind `json:"kind"`
	Reference string     `json:"reference,omitempty"`
	Date      time.Time  `json:"date"`

	// Quantity is signed. For a replacement source it is the counted
	// quantity that replaced the running total.
	Quantity types.Quantity `json:"quantity"`

	// IsReplacement is true only for the inventory-count override.
	IsReplacement bool `json:"isReplacement"`
}

// Item is the computed discrepancy for one stock row. It is never persisted.
type Item struct {
	// RowID identifies the projection row; it is the handle the applier
	// selects by.
	RowID id.ID `json:"rowId"`

	ProductID  id.ID  `json:"productId"`
	LocationID id.ID  `json:"locationId"`
	LotID      *id.ID `json:"lotId,omitempty"`

	CurrentQuantity    types.Quantity `json:"currentQuantity"`
	CalculatedQuantity types.Quantity `json:"calculatedQuantity"`
	Difference         types.Quantity `json:"difference"`

	// DifferencePercentage is |difference| relative to the larger magnitude
	// of current and calculated, in percent. Zero when both are zero.
	DifferencePercentage float64 `json:"differencePercentage"`

	Severity Severity `json:"severity"`

	// Sources are the contributing movements, sorted by date ascending.
	Sources []SourceMovement `json:"sources"`
}

// Summary aggregates a reconciliation run.
type Summary struct {
	TotalItems   int `json:"totalItems"`
	CorrectCount int `json:"correctCount"`
	MinorCount   int `json:"minorCount"`
	MajorCount   int `json:"majorCount"`
	MissingCount int `json:"missingCount"`

	// TotalAbsoluteDifference sums |difference| over every scanned row.
	TotalAbsoluteDifference types.Quantity `json:"totalAbsoluteDifference"`
}

// Result is the outcome of one calculator run.
type Result struct {
	Items       []Item    `json:"items"`
	Summary     Summary   `json:"summary"`
	Window      Window    `json:"window"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Window is the date range a reconciliation replays over, inclusive.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Filter narrows which stock rows a reconciliation covers.
type Filter struct {
	ProductID  *id.ID
	LocationID *id.ID
	// WarehouseID expands to all locations of the warehouse.
	WarehouseID *id.ID
}

// Options tunes the calculation.
type Options struct {
	// StartingQuantity seeds the replay (default 0).
	StartingQuantity types.Quantity

	// IncludeDocuments replays document rows.
	IncludeDocuments bool

	// IncludeInventories applies the inventory-count override.
	IncludeInventories bool

	// MajorThresholdPercent is the severity cutoff; when zero the
	// calculator's configured default applies.
	MajorThresholdPercent float64

	// OnlyDiscrepancies drops Correct items from the result list.
	// The summary still covers every scanned row.
	OnlyDiscrepancies bool
}

// ApplyResult reports a reconciliation apply batch.
type ApplyResult struct {
	UpdatedCount     int `json:"updatedCount"`
	MovementsCreated int `json:"movementsCreated"`

	// TotalAdjustmentValue sums the absolute applied adjustments.
	TotalAdjustmentValue types.Quantity `json:"totalAdjustmentValue"`
}

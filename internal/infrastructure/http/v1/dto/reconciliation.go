package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconcile"
)

// --- Requests ---

// ReconciliationOptionsRequest tunes a reconciliation run.
type ReconciliationOptionsRequest struct {
	StartingQuantity      float64 `json:"startingQuantity"`
	IncludeDocuments      *bool   `json:"includeDocuments"`
	IncludeInventories    *bool   `json:"includeInventories"`
	MajorThresholdPercent float64 `json:"majorThresholdPercent"`
	OnlyDiscrepancies     bool    `json:"onlyDiscrepancies"`
}

// ToOptions converts the request; documents and inventories are included by
// default when omitted.
func (r ReconciliationOptionsRequest) ToOptions() reconcile.Options {
	opts := reconcile.Options{
		StartingQuantity:      types.NewQuantityFromFloat64(r.StartingQuantity),
		IncludeDocuments:      true,
		IncludeInventories:    true,
		MajorThresholdPercent: r.MajorThresholdPercent,
		OnlyDiscrepancies:     r.OnlyDiscrepancies,
	}
	if r.IncludeDocuments != nil {
		opts.IncludeDocuments = *r.IncludeDocuments
	}
	if r.IncludeInventories != nil {
		opts.IncludeInventories = *r.IncludeInventories
	}
	return opts
}

// CalculateReconciliationRequest selects the scope and window of a run.
type CalculateReconciliationRequest struct {
	ProductID   string                       `json:"productId"`
	LocationID  string                       `json:"locationId"`
	WarehouseID string                       `json:"warehouseId"`
	From        time.Time                    `json:"from" binding:"required"`
	To          time.Time                    `json:"to" binding:"required"`
	Options     ReconciliationOptionsRequest `json:"options"`
}

// ToFilter converts the request scope fields.
func (r CalculateReconciliationRequest) ToFilter() (reconcile.Filter, error) {
	var filter reconcile.Filter
	var err error
	if filter.ProductID, err = ParseOptionalID(r.ProductID); err != nil {
		return filter, apperror.NewValidation("invalid productId format")
	}
	if filter.LocationID, err = ParseOptionalID(r.LocationID); err != nil {
		return filter, apperror.NewValidation("invalid locationId format")
	}
	if filter.WarehouseID, err = ParseOptionalID(r.WarehouseID); err != nil {
		return filter, apperror.NewValidation("invalid warehouseId format")
	}
	return filter, nil
}

// ApplyReconciliationRequest corrects selected items from a prior run.
type ApplyReconciliationRequest struct {
	ItemIDs           []string                     `json:"itemIds" binding:"required"`
	ProductID         string                       `json:"productId"`
	LocationID        string                       `json:"locationId"`
	WarehouseID       string                       `json:"warehouseId"`
	From              time.Time                    `json:"from" binding:"required"`
	To                time.Time                    `json:"to" binding:"required"`
	Options           ReconciliationOptionsRequest `json:"options"`
	Reason            string                       `json:"reason"`
	CreateAdjustments bool                         `json:"createAdjustments"`
}

// ToApplyRequest converts the request to the domain apply request.
func (r ApplyReconciliationRequest) ToApplyRequest() (reconcile.ApplyRequest, error) {
	var req reconcile.ApplyRequest

	req.ItemIDs = make([]id.ID, 0, len(r.ItemIDs))
	for _, s := range r.ItemIDs {
		parsed, err := id.Parse(s)
		if err != nil {
			return req, apperror.NewValidation("invalid item id format").WithDetail("value", s)
		}
		req.ItemIDs = append(req.ItemIDs, parsed)
	}

	calc := CalculateReconciliationRequest{
		ProductID:   r.ProductID,
		LocationID:  r.LocationID,
		WarehouseID: r.WarehouseID,
	}
	filter, err := calc.ToFilter()
	if err != nil {
		return req, err
	}
	req.Filter = filter
	req.Window = reconcile.Window{From: r.From, To: r.To}
	req.Options = r.Options.ToOptions()
	req.CreateAdjustments = r.CreateAdjustments

	if r.Reason != "" {
		reason, err := ledger.ParseMovementReason(r.Reason)
		if err != nil {
			return req, err
		}
		req.Reason = reason
	}
	return req, nil
}

// --- Responses ---

// SourceMovementResponse is one replay contribution.
type SourceMovementResponse struct {
	Kind          string    `json:"kind"`
	Reference     string    `json:"reference,omitempty"`
	Date          time.Time `json:"date"`
	Quantity      float64   `json:"quantity"`
	IsReplacement bool      `json:"isReplacement"`
}

// ReconciliationItemResponse is one per-row discrepancy.
type ReconciliationItemResponse struct {
	RowID                string                   `json:"rowId"`
	ProductID            string                   `json:"productId"`
	LocationID           string                   `json:"locationId"`
	LotID                string                   `json:"lotId,omitempty"`
	CurrentQuantity      float64                  `json:"currentQuantity"`
	CalculatedQuantity   float64                  `json:"calculatedQuantity"`
	Difference           float64                  `json:"difference"`
	DifferencePercentage float64                  `json:"differencePercentage"`
	Severity             string                   `json:"severity"`
	Sources              []SourceMovementResponse `json:"sources"`
}

// ReconciliationSummaryResponse aggregates a run.
type ReconciliationSummaryResponse struct {
	TotalItems              int     `json:"totalItems"`
	CorrectCount            int     `json:"correctCount"`
	MinorCount              int     `json:"minorCount"`
	MajorCount              int     `json:"majorCount"`
	MissingCount            int     `json:"missingCount"`
	TotalAbsoluteDifference float64 `json:"totalAbsoluteDifference"`
}

// ReconciliationResultResponse is a full calculator run.
type ReconciliationResultResponse struct {
	Items       []ReconciliationItemResponse  `json:"items"`
	Summary     ReconciliationSummaryResponse `json:"summary"`
	From        time.Time                     `json:"from"`
	To          time.Time                     `json:"to"`
	GeneratedAt time.Time                     `json:"generatedAt"`
}

// FromReconciliationResult converts a calculator result.
func FromReconciliationResult(result *reconcile.Result) ReconciliationResultResponse {
	items := make([]ReconciliationItemResponse, len(result.Items))
	for i, item := range result.Items {
		sources := make([]SourceMovementResponse, len(item.Sources))
		for j, s := range item.Sources {
			sources[j] = SourceMovementResponse{
				Kind:          string(s.Kind),
				Reference:     s.Reference,
				Date:          s.Date,
				Quantity:      s.Quantity.Float64(),
				IsReplacement: s.IsReplacement,
			}
		}
		items[i] = ReconciliationItemResponse{
			RowID:                item.RowID.String(),
			ProductID:            item.ProductID.String(),
			LocationID:           item.LocationID.String(),
			LotID:                IDString(item.LotID),
			CurrentQuantity:      item.CurrentQuantity.Float64(),
			CalculatedQuantity:   item.CalculatedQuantity.Float64(),
			Difference:           item.Difference.Float64(),
			DifferencePercentage: item.DifferencePercentage,
			Severity:             string(item.Severity),
			Sources:              sources,
		}
	}
	return ReconciliationResultResponse{
		Items: items,
		Summary: ReconciliationSummaryResponse{
			TotalItems:              result.Summary.TotalItems,
			CorrectCount:            result.Summary.CorrectCount,
			MinorCount:              result.Summary.MinorCount,
			MajorCount:              result.Summary.MajorCount,
			MissingCount:            result.Summary.MissingCount,
			TotalAbsoluteDifference: result.Summary.TotalAbsoluteDifference.Float64(),
		},
		From:        result.Window.From,
		To:          result.Window.To,
		GeneratedAt: result.GeneratedAt,
	}
}

// ApplyReconciliationResponse reports an apply batch.
type ApplyReconciliationResponse struct {
	UpdatedCount         int     `json:"updatedCount"`
	MovementsCreated     int     `json:"movementsCreated"`
	TotalAdjustmentValue float64 `json:"totalAdjustmentValue"`
}

// FromApplyResult converts a domain apply result.
func FromApplyResult(result *reconcile.ApplyResult) ApplyReconciliationResponse {
	return ApplyReconciliationResponse{
		UpdatedCount:         result.UpdatedCount,
		MovementsCreated:     result.MovementsCreated,
		TotalAdjustmentValue: result.TotalAdjustmentValue.Float64(),
	}
}

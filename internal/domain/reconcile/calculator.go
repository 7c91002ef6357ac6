package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/documents"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/reconcile")

// DefaultMajorThresholdPercent separates minor from major discrepancies when
// the caller does not supply a threshold.
const DefaultMajorThresholdPercent = 10.0

// LocationResolver expands a warehouse to its location IDs.
// The location catalog service satisfies it.
type LocationResolver interface {
	ListIDsByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID) ([]id.ID, error)
}

// Calculator recomputes stock quantities from source records without touching
// the projection. A run is pure: same inputs, same result.
type Calculator struct {
	rows      projection.Repository
	movements ledger.Repository
	docs      documents.Source
	locations LocationResolver
}

// NewCalculator creates a reconciliation calculator.
func NewCalculator(
	rows projection.Repository,
	movements ledger.Repository,
	docs documents.Source,
	locations LocationResolver,
) *Calculator {
	return &Calculator{
		rows:      rows,
		movements: movements,
		docs:      docs,
		locations: locations,
	}
}

// Calculate replays source records over the window for every stock row in
// scope and reports per-row discrepancies. Nothing is written.
func (c *Calculator) Calculate(ctx context.Context, sc scope.Scope, filter Filter, window Window, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.Calculate")
	defer span.End()

	if err := sc.Validate(); err != nil {
		return nil, err
	}

	rows, err := c.resolveRows(ctx, sc, filter)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows.count", len(rows)))

	threshold := opts.MajorThresholdPercent
	if threshold <= 0 {
		threshold = DefaultMajorThresholdPercent
	}

	result := &Result{
		Items:       make([]Item, 0, len(rows)),
		Window:      window,
		GeneratedAt: time.Now().UTC(),
	}
	for _, row := range rows {
		item, err := c.calculateRow(ctx, sc, row, window, opts, threshold)
		if err != nil {
			return nil, fmt.Errorf("reconcile row %s: %w", row.ID, err)
		}

		result.Summary.TotalItems++
		result.Summary.TotalAbsoluteDifference += item.Difference.Abs()
		switch item.Severity {
		case SeverityCorrect:
			result.Summary.CorrectCount++
		case SeverityMinor:
			result.Summary.MinorCount++
		case SeverityMajor:
			result.Summary.MajorCount++
		case SeverityMissing:
			result.Summary.MissingCount++
		}

		if opts.OnlyDiscrepancies && item.Severity == SeverityCorrect {
			continue
		}
		result.Items = append(result.Items, item)
	}

	logger.Info(ctx, "reconciliation calculated",
		"rows", result.Summary.TotalItems,
		"discrepancies", result.Summary.TotalItems-result.Summary.CorrectCount,
	)
	return result, nil
}

func (c *Calculator) resolveRows(ctx context.Context, sc scope.Scope, filter Filter) ([]*projection.StockRow, error) {
	rowFilter := projection.RowFilter{
		ProductID:  filter.ProductID,
		LocationID: filter.LocationID,
	}
	if filter.WarehouseID != nil {
		ids, err := c.locations.ListIDsByWarehouse(ctx, sc, *filter.WarehouseID)
		if err != nil {
			return nil, fmt.Errorf("resolve warehouse locations: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		rowFilter.LocationIDs = ids
	}
	return c.rows.List(ctx, sc, rowFilter)
}

// calculateRow replays one stock row. The latest finalized inventory count in
// the window is a hard override: it replaces the running total and moves the
// effective replay start to the count's date, so only later records contribute.
func (c *Calculator) calculateRow(
	ctx context.Context,
	sc scope.Scope,
	row *projection.StockRow,
	window Window,
	opts Options,
	threshold float64,
) (Item, error) {
	calc := opts.StartingQuantity
	var sources []SourceMovement

	var cutoff time.Time
	hasCutoff := false
	if opts.IncludeInventories {
		key := documents.Key{ProductID: row.ProductID, LocationID: row.LocationID, LotID: row.LotID}
		count, err := c.docs.LatestFinalizedCount(ctx, sc, key, window.From, window.To)
		if err != nil {
			return Item{}, fmt.Errorf("latest count: %w", err)
		}
		if count != nil {
			calc = count.CountedQuantity
			cutoff = count.Date
			hasCutoff = true
			sources = append(sources, SourceMovement{
				Kind:          SourceInventoryCount,
				Reference:     count.Number,
				Date:          count.Date,
				Quantity:      count.CountedQuantity,
				IsReplacement: true,
			})
		}
	}

	if opts.IncludeDocuments {
		key := documents.Key{ProductID: row.ProductID, LocationID: row.LocationID, LotID: row.LotID}
		docRows, err := c.docs.ListRows(ctx, sc, key, window.From, window.To)
		if err != nil {
			return Item{}, fmt.Errorf("list document rows: %w", err)
		}
		for _, r := range docRows {
			if hasCutoff && !r.Date.After(cutoff) {
				continue
			}
			signed := r.SignedQuantity()
			calc += signed
			sources = append(sources, SourceMovement{
				Kind:      SourceDocument,
				Reference: r.Number,
				Date:      r.Date,
				Quantity:  signed,
			})
		}
	}

	replayKey := ledger.ReplayKey{ProductID: row.ProductID, LocationID: row.LocationID, LotID: row.LotID}
	movements, err := c.movements.ListForReplay(ctx, sc, replayKey, window.From, window.To)
	if err != nil {
		return Item{}, fmt.Errorf("list movements: %w", err)
	}
	for _, m := range movements {
		// Document-driven movements are already counted through the document
		// ledger; reconciliation corrections align the projection with the
		// sources and replaying them would apply the correction twice. The
		// correction marker is intrinsic, so a correction stays excluded no
		// matter which reason the caller stamped on it.
		if m.DocumentID != nil || m.Reconciliation || m.Reason == ledger.ReasonReconciliation {
			continue
		}
		if hasCutoff && !m.MovementDate.After(cutoff) {
			continue
		}
		signed := m.SignedQuantityAt(row.LocationID)
		calc += signed
		sources = append(sources, SourceMovement{
			Kind:      SourceManualMovement,
			Reference: m.ID.String(),
			Date:      m.MovementDate,
			Quantity:  signed,
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Date.Before(sources[j].Date)
	})

	current := row.Quantity
	diff := calc - current
	pct := differencePercentage(current, calc)

	return Item{
		RowID:                row.ID,
		ProductID:            row.ProductID,
		LocationID:           row.LocationID,
		LotID:                row.LotID,
		CurrentQuantity:      current,
		CalculatedQuantity:   calc,
		Difference:           diff,
		DifferencePercentage: pct,
		Severity:             severityFor(current, calc, pct, threshold),
		Sources:              sources,
	}, nil
}

// differencePercentage relates the discrepancy to the larger magnitude of the
// two quantities. Both zero means no base to compare against, reported as 0.
func differencePercentage(current, calc types.Quantity) float64 {
	base := current.Abs()
	if b := calc.Abs(); b > base {
		base = b
	}
	if base.IsZero() {
		return 0
	}
	return (calc - current).Abs().Float64() / base.Float64() * 100
}

// severityFor classifies in fixed precedence: a missing row beats everything,
// exact equality is correct, then the percentage threshold splits major from
// minor.
func severityFor(current, calc types.Quantity, pct, threshold float64) Severity {
	switch {
	case current.IsZero() && calc.IsPositive():
		return SeverityMissing
	case current == calc:
		return SeverityCorrect
	case pct > threshold:
		return SeverityMajor
	default:
		return SeverityMinor
	}
}

package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/engine"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
	"stockledger/pkg/logger"
)

// ApplyRequest selects which discrepancies to correct and how.
type ApplyRequest struct {
	// ItemIDs are stock row IDs picked from a prior calculator run.
	ItemIDs []id.ID

	// Filter, Window and Options must match the run the items were picked
	// from; the applier recomputes with them rather than trusting stale
	// client-side figures.
	Filter  Filter
	Window  Window
	Options Options

	// Reason is stamped on created adjustment movements. Defaults to the
	// reconciliation reason.
	Reason ledger.MovementReason

	// CreateAdjustments routes each correction through the movement engine
	// so the ledger stays derivable. When false the projection quantity is
	// overwritten directly and no ledger entry is made.
	CreateAdjustments bool
}

// Applier corrects selected stock rows to their recalculated quantities.
// The whole batch is one serializable transaction: recompute and write are
// atomic against concurrent movement applies, and any failure rolls back
// every correction.
type Applier struct {
	calc      *Calculator
	rows      projection.Repository
	engine    *engine.Service
	auditor   audit.Recorder
	txManager tx.Manager
}

// NewApplier creates a reconciliation applier.
func NewApplier(
	calc *Calculator,
	rows projection.Repository,
	eng *engine.Service,
	auditor audit.Recorder,
	txManager tx.Manager,
) *Applier {
	return &Applier{
		calc:      calc,
		rows:      rows,
		engine:    eng,
		auditor:   auditor,
		txManager: txManager,
	}
}

// Apply recomputes the selected rows and corrects each one whose calculated
// quantity differs from the stored one. All-or-nothing: the first failure
// aborts the batch with a transaction failed error and no row is changed.
func (a *Applier) Apply(ctx context.Context, sc scope.Scope, req ApplyRequest) (*ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "reconcile.Apply",
		trace.WithAttributes(attribute.Int("items.count", len(req.ItemIDs))))
	defer span.End()

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if len(req.ItemIDs) == 0 {
		return nil, apperror.NewValidation("no reconciliation items selected")
	}
	reason := req.Reason
	if reason == "" {
		reason = ledger.ReasonReconciliation
	}
	if _, err := ledger.ParseMovementReason(string(reason)); err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	err := a.txManager.RunSerializable(ctx, func(ctx context.Context) error {
		fresh, err := a.calc.Calculate(ctx, sc, req.Filter, req.Window, req.Options)
		if err != nil {
			return err
		}

		items, err := selectItems(fresh, req.ItemIDs)
		if err != nil {
			return err
		}

		for _, item := range items {
			if err := a.applyItem(ctx, sc, item, reason, req.CreateAdjustments, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Business failures carry their own code; anything else is a storage
		// failure that rolled the batch back.
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, apperror.NewTransactionFailed(err)
	}

	logger.Info(ctx, "reconciliation applied",
		"updated", result.UpdatedCount,
		"movements_created", result.MovementsCreated,
	)
	return result, nil
}

// applyItem corrects one row. The row is re-read under lock so the adjustment
// is computed against the quantity the transaction actually sees.
func (a *Applier) applyItem(
	ctx context.Context,
	sc scope.Scope,
	item Item,
	reason ledger.MovementReason,
	createAdjustments bool,
	result *ApplyResult,
) error {
	key := projection.Key{ProductID: item.ProductID, LocationID: item.LocationID, LotID: item.LotID}
	row, err := a.rows.GetByKeyForUpdate(ctx, sc, key)
	if err != nil {
		return fmt.Errorf("lock row %s: %w", item.RowID, err)
	}

	adjustment := item.CalculatedQuantity - row.Quantity
	if adjustment.IsZero() {
		return nil
	}

	if createAdjustments {
		if err := a.createAdjustment(ctx, sc, item, adjustment, reason); err != nil {
			return err
		}
		result.MovementsCreated++
	} else {
		now := time.Now().UTC()
		update := projection.QuantityUpdate{
			Quantity:          item.CalculatedQuantity,
			ReservedQuantity:  row.ReservedQuantity,
			LastMovementDate:  row.LastMovementDate,
			LastInventoryDate: &now,
			ExpectedVersion:   row.Version,
		}
		if err := a.rows.UpdateQuantity(ctx, sc, row, update); err != nil {
			return fmt.Errorf("overwrite row %s: %w", item.RowID, err)
		}
	}

	result.UpdatedCount++
	result.TotalAdjustmentValue += adjustment.Abs()

	return a.auditor.Record(ctx, sc, audit.Entry{
		EntityType: "stock_row",
		EntityID:   item.RowID,
		Action:     audit.ActionReconcile,
		OldValue:   map[string]any{"quantity": row.Quantity.String()},
		NewValue: map[string]any{
			"quantity":   item.CalculatedQuantity.String(),
			"adjustment": adjustment.String(),
		},
		Actor: sc.Actor(),
	})
}

// createAdjustment routes the correction through the movement engine: a
// positive adjustment stocks the location up, a negative one stocks it down.
// The engine runs inside the applier's transaction, so its locks and the
// ledger append commit or roll back with the rest of the batch.
func (a *Applier) createAdjustment(
	ctx context.Context,
	sc scope.Scope,
	item Item,
	adjustment types.Quantity,
	reason ledger.MovementReason,
) error {
	cmd := engine.Command{
		ProductID:      item.ProductID,
		LotID:          item.LotID,
		Quantity:       adjustment.Abs(),
		Reason:         reason,
		Reconciliation: true,
	}
	loc := item.LocationID
	if adjustment.IsPositive() {
		cmd.ToLocationID = &loc
	} else {
		cmd.FromLocationID = &loc
	}

	if _, err := a.engine.ProcessAdjustment(ctx, sc, cmd); err != nil {
		return fmt.Errorf("adjust row %s: %w", item.RowID, err)
	}
	return nil
}

// selectItems resolves requested row IDs against a fresh calculator result.
func selectItems(result *Result, ids []id.ID) ([]Item, error) {
	byRow := make(map[id.ID]Item, len(result.Items))
	for _, item := range result.Items {
		byRow[item.RowID] = item
	}

	items := make([]Item, 0, len(ids))
	for _, rowID := range ids {
		item, ok := byRow[rowID]
		if !ok {
			return nil, apperror.NewNotFound("reconciliation item", rowID.String())
		}
		items = append(items, item)
	}
	return items, nil
}

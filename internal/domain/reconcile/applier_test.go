package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/engine"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
)

type applierFixture struct {
	*calcFixture
	applier *Applier
}

func newApplierFixture() *applierFixture {
	cf := newCalcFixture()
	tx := &memTx{movements: cf.movements, rows: cf.rows}
	eng := engine.NewService(cf.movements, cf.rows, allowAll{}, allowAll{}, audit.Nop{}, tx)
	return &applierFixture{
		calcFixture: cf,
		applier:     NewApplier(cf.calc, cf.rows, eng, audit.Nop{}, tx),
	}
}

func (f *applierFixture) request(rowIDs ...id.ID) ApplyRequest {
	return ApplyRequest{
		ItemIDs: rowIDs,
		Window:  f.window,
		Options: allSources(),
	}
}

func TestApplyWithAdjustmentsConverges(t *testing.T) {
	f := newApplierFixture()
	ctx := context.Background()

	row := f.stock(types.NewQuantityFromInt(10))
	f.movement(ledger.TypeInbound, 14, 1)

	req := f.request(row.ID)
	req.CreateAdjustments = true

	result, err := f.applier.Apply(ctx, f.sc, req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 1, result.MovementsCreated)
	assert.Equal(t, types.NewQuantityFromInt(4), result.TotalAdjustmentValue)

	// The projection now matches the replay.
	stored := f.rows.rows[rowKeyOf(row.Key())]
	assert.Equal(t, types.NewQuantityFromInt(14), stored.Quantity)

	// The correction movement is marked as a reconciliation correction, so a
	// second run sees no discrepancy: apply-then-recalculate converges.
	fresh, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, fresh.Items, 1)
	assert.True(t, fresh.Items[0].Difference.IsZero())
	assert.Equal(t, SeverityCorrect, fresh.Items[0].Severity)
}

func TestApplyCustomReasonConverges(t *testing.T) {
	f := newApplierFixture()
	ctx := context.Background()

	row := f.stock(types.NewQuantityFromInt(10))
	f.movement(ledger.TypeInbound, 14, 1)

	req := f.request(row.ID)
	req.CreateAdjustments = true
	req.Reason = ledger.ReasonDamage

	_, err := f.applier.Apply(ctx, f.sc, req)
	require.NoError(t, err)

	// The correction carries the caller's reason but is still intrinsically
	// marked, so it never feeds back into the replay.
	var corr *ledger.Movement
	for _, m := range f.movements.items {
		if m.Reconciliation {
			corr = m
		}
	}
	require.NotNil(t, corr)
	assert.Equal(t, ledger.ReasonDamage, corr.Reason)

	fresh, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, fresh.Items, 1)
	assert.True(t, fresh.Items[0].Difference.IsZero())
	assert.Equal(t, SeverityCorrect, fresh.Items[0].Severity)
}

func TestApplyNegativeAdjustment(t *testing.T) {
	f := newApplierFixture()
	ctx := context.Background()

	row := f.stock(types.NewQuantityFromInt(20))
	f.movement(ledger.TypeInbound, 15, 1)

	req := f.request(row.ID)
	req.CreateAdjustments = true

	result, err := f.applier.Apply(ctx, f.sc, req)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(5), result.TotalAdjustmentValue)

	stored := f.rows.rows[rowKeyOf(row.Key())]
	assert.Equal(t, types.NewQuantityFromInt(15), stored.Quantity)

	// The stock-down correction is an adjustment with a source leg.
	var corr *ledger.Movement
	for _, m := range f.movements.items {
		if m.Reason == ledger.ReasonReconciliation {
			corr = m
		}
	}
	require.NotNil(t, corr)
	assert.Equal(t, ledger.TypeAdjustment, corr.Type)
	require.NotNil(t, corr.FromLocationID)
	assert.Equal(t, f.locID, *corr.FromLocationID)
}

func TestApplyDirectOverwrite(t *testing.T) {
	f := newApplierFixture()
	ctx := context.Background()

	row := f.stock(types.NewQuantityFromInt(10))
	f.movement(ledger.TypeInbound, 14, 1)
	ledgerBefore := len(f.movements.items)

	result, err := f.applier.Apply(ctx, f.sc, f.request(row.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 0, result.MovementsCreated)

	stored := f.rows.rows[rowKeyOf(row.Key())]
	assert.Equal(t, types.NewQuantityFromInt(14), stored.Quantity)
	assert.NotNil(t, stored.LastInventoryDate)
	assert.Len(t, f.movements.items, ledgerBefore)
}

func TestApplySkipsRowsAlreadyCorrect(t *testing.T) {
	f := newApplierFixture()
	ctx := context.Background()

	row := f.stock(types.NewQuantityFromInt(10))
	f.movement(ledger.TypeInbound, 10, 1)

	result, err := f.applier.Apply(ctx, f.sc, f.request(row.ID))
	require.NoError(t, err)
	assert.Equal(t, 0, result.UpdatedCount)
	assert.True(t, result.TotalAdjustmentValue.IsZero())
}

func TestApplyUnknownItemRejected(t *testing.T) {
	f := newApplierFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(10))

	_, err := f.applier.Apply(ctx, f.sc, f.request(id.New()))
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestApplyEmptySelectionRejected(t *testing.T) {
	f := newApplierFixture()

	_, err := f.applier.Apply(context.Background(), f.sc, f.request())
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestApplyUnknownReasonRejected(t *testing.T) {
	f := newApplierFixture()

	row := f.stock(types.NewQuantityFromInt(10))
	req := f.request(row.ID)
	req.Reason = "shrinkage"

	_, err := f.applier.Apply(context.Background(), f.sc, req)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestApplyRollsBackOnStorageFailure(t *testing.T) {
	f := newApplierFixture()
	ctx := context.Background()

	// Two discrepant rows; the second write fails.
	rowA := f.stock(types.NewQuantityFromInt(10))
	f.movement(ledger.TypeInbound, 14, 1)

	otherLoc := id.New()
	rowB := projection.NewStockRow(f.sc.TenantID, f.productID, otherLoc, nil)
	rowB.Quantity = types.NewQuantityFromInt(20)
	f.rows.rows[rowKeyOf(rowB.Key())] = rowB

	f.rows.failOnUpdate = 2

	_, err := f.applier.Apply(ctx, f.sc, f.request(rowA.ID, rowB.ID))
	require.Error(t, err)

	// Both rows keep their original quantities: all-or-nothing.
	assert.Equal(t, types.NewQuantityFromInt(10), f.rows.rows[rowKeyOf(rowA.Key())].Quantity)
	assert.Equal(t, types.NewQuantityFromInt(20), f.rows.rows[rowKeyOf(rowB.Key())].Quantity)
}

func TestApplyRequiresTenantScope(t *testing.T) {
	f := newApplierFixture()

	_, err := f.applier.Apply(context.Background(), scope.Scope{}, f.request(id.New()))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)
}

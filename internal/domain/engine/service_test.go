package engine

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
)

// --- In-memory fakes ---

type memMovements struct {
	items []*ledger.Movement
}

func (m *memMovements) Create(ctx context.Context, sc scope.Scope, mv *ledger.Movement) error {
	clone := *mv
	m.items = append(m.items, &clone)
	return nil
}

func (m *memMovements) CreateBatch(ctx context.Context, sc scope.Scope, movements []*ledger.Movement) error {
	for _, mv := range movements {
		if err := m.Create(ctx, sc, mv); err != nil {
			return err
		}
	}
	return nil
}

func (m *memMovements) GetByID(ctx context.Context, sc scope.Scope, movementID id.ID) (*ledger.Movement, error) {
	for _, mv := range m.items {
		if mv.ID == movementID {
			clone := *mv
			return &clone, nil
		}
	}
	return nil, apperror.NewNotFound("movement", movementID.String())
}

func (m *memMovements) SetDeleted(ctx context.Context, sc scope.Scope, movementID id.ID, deleted bool) error {
	for _, mv := range m.items {
		if mv.ID == movementID {
			mv.Deleted = deleted
			return nil
		}
	}
	return apperror.NewNotFound("movement", movementID.String())
}

func (m *memMovements) ListHistory(ctx context.Context, sc scope.Scope, filter ledger.HistoryFilter) ([]*ledger.Movement, error) {
	return m.items, nil
}

func (m *memMovements) ListForReplay(ctx context.Context, sc scope.Scope, key ledger.ReplayKey, from, to time.Time) ([]*ledger.Movement, error) {
	var out []*ledger.Movement
	for _, mv := range m.items {
		if mv.Deleted || mv.Status != ledger.StatusCompleted {
			continue
		}
		if mv.ProductID != key.ProductID {
			continue
		}
		if mv.SignedQuantityAt(key.LocationID).IsZero() {
			continue
		}
		if !projection.SameLot(mv.LotID, key.LotID) {
			continue
		}
		if mv.MovementDate.Before(from) || mv.MovementDate.After(to) {
			continue
		}
		out = append(out, mv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MovementDate.Before(out[j].MovementDate)
	})
	return out, nil
}

func (m *memMovements) snapshot() []*ledger.Movement {
	snap := make([]*ledger.Movement, len(m.items))
	for i, mv := range m.items {
		clone := *mv
		snap[i] = &clone
	}
	return snap
}

func (m *memMovements) restore(snap []*ledger.Movement) {
	m.items = snap
}

type memRows struct {
	rows map[string]*projection.StockRow

	// failOnUpdate makes the n-th UpdateQuantity call (1-based) fail,
	// simulating a storage error mid-batch.
	failOnUpdate int
	updateCalls  int
}

func newMemRows() *memRows {
	return &memRows{rows: make(map[string]*projection.StockRow)}
}

func rowKey(k projection.Key) string {
	s := k.ProductID.String() + "|" + k.LocationID.String()
	if k.LotID != nil {
		s += "|" + k.LotID.String()
	}
	return s
}

func (r *memRows) GetByKey(ctx context.Context, sc scope.Scope, key projection.Key) (*projection.StockRow, error) {
	row, ok := r.rows[rowKey(key)]
	if !ok {
		return nil, apperror.NewNotFound("stock row", key.ProductID.String())
	}
	clone := *row
	return &clone, nil
}

func (r *memRows) GetByKeyForUpdate(ctx context.Context, sc scope.Scope, key projection.Key) (*projection.StockRow, error) {
	return r.GetByKey(ctx, sc, key)
}

func (r *memRows) Create(ctx context.Context, sc scope.Scope, row *projection.StockRow) error {
	clone := *row
	r.rows[rowKey(row.Key())] = &clone
	return nil
}

func (r *memRows) UpdateQuantity(ctx context.Context, sc scope.Scope, row *projection.StockRow, update projection.QuantityUpdate) error {
	r.updateCalls++
	if r.failOnUpdate > 0 && r.updateCalls == r.failOnUpdate {
		return apperror.NewInternal(nil).WithDetail("injected", true)
	}

	stored, ok := r.rows[rowKey(row.Key())]
	if !ok {
		return apperror.NewNotFound("stock row", row.ID.String())
	}
	if stored.Version != update.ExpectedVersion {
		return apperror.NewConcurrentModification("stock row", row.ID.String())
	}
	stored.Quantity = update.Quantity
	stored.ReservedQuantity = update.ReservedQuantity
	stored.LastMovementDate = update.LastMovementDate
	stored.LastInventoryDate = update.LastInventoryDate
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memRows) SetThresholds(ctx context.Context, sc scope.Scope, rowID id.ID, minLevel, maxLevel *types.Quantity) error {
	for _, row := range r.rows {
		if row.ID == rowID {
			row.MinimumLevel = minLevel
			row.MaximumLevel = maxLevel
			return nil
		}
	}
	return apperror.NewNotFound("stock row", rowID.String())
}

func (r *memRows) List(ctx context.Context, sc scope.Scope, filter projection.RowFilter) ([]*projection.StockRow, error) {
	var out []*projection.StockRow
	for _, row := range r.rows {
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID.String() < out[j].ProductID.String()
		}
		return out[i].LocationID.String() < out[j].LocationID.String()
	})
	return out, nil
}

func (r *memRows) snapshot() map[string]*projection.StockRow {
	snap := make(map[string]*projection.StockRow, len(r.rows))
	for k, row := range r.rows {
		clone := *row
		snap[k] = &clone
	}
	return snap
}

func (r *memRows) restore(snap map[string]*projection.StockRow) {
	r.rows = snap
}

// memTx rolls back fake-store mutations when fn fails, mirroring the
// transactional behavior the engine relies on.
type memTx struct {
	movements *memMovements
	rows      *memRows
}

func (t *memTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	mvSnap := t.movements.snapshot()
	rowSnap := t.rows.snapshot()
	if err := fn(ctx); err != nil {
		t.movements.restore(mvSnap)
		t.rows.restore(rowSnap)
		return err
	}
	return nil
}

func (t *memTx) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.RunInTransaction(ctx, fn)
}

type allowIDs map[id.ID]bool

func (a allowIDs) Exists(ctx context.Context, sc scope.Scope, entityID id.ID) (bool, error) {
	return a[entityID], nil
}

// --- Fixture ---

type fixture struct {
	sc        scope.Scope
	productID id.ID
	locA      id.ID
	locB      id.ID
	movements *memMovements
	rows      *memRows
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		sc:        scope.New(id.New(), "tester"),
		productID: id.New(),
		locA:      id.New(),
		locB:      id.New(),
		movements: &memMovements{},
		rows:      newMemRows(),
	}
	tx := &memTx{movements: f.movements, rows: f.rows}
	f.svc = NewService(
		f.movements, f.rows,
		allowIDs{f.productID: true},
		allowIDs{f.locA: true, f.locB: true},
		audit.Nop{}, tx,
	)
	return f
}

func (f *fixture) stock(locationID id.ID, qty types.Quantity) *projection.StockRow {
	row := projection.NewStockRow(f.sc.TenantID, f.productID, locationID, nil)
	row.Quantity = qty
	f.rows.rows[rowKey(row.Key())] = row
	return row
}

func (f *fixture) quantityAt(locationID id.ID) types.Quantity {
	key := projection.Key{ProductID: f.productID, LocationID: locationID}
	row, ok := f.rows.rows[rowKey(key)]
	if !ok {
		return 0
	}
	return row.Quantity
}

func inbound(f *fixture, qty int64) *ledger.Movement {
	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeInbound, f.productID, types.NewQuantityFromInt(qty), time.Now().UTC())
	m.ToLocationID = &f.locA
	return m
}

func outbound(f *fixture, qty int64) *ledger.Movement {
	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeOutbound, f.productID, types.NewQuantityFromInt(qty), time.Now().UTC())
	m.FromLocationID = &f.locA
	return m
}

// --- Tests ---

func TestApplyInboundCreatesRow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	applied, err := f.svc.Apply(ctx, f.sc, inbound(f, 10))
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantityFromInt(10), f.quantityAt(f.locA))
	assert.Len(t, f.movements.items, 1)
	assert.Equal(t, ledger.StatusCompleted, applied.Status)
	assert.False(t, id.IsNil(applied.ID))
}

func TestApplyTransferConservesTotal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.stock(f.locA, types.NewQuantityFromInt(10))

	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeTransfer, f.productID, types.NewQuantityFromInt(4), time.Now().UTC())
	m.FromLocationID = &f.locA
	m.ToLocationID = &f.locB

	_, err := f.svc.Apply(ctx, f.sc, m)
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantityFromInt(6), f.quantityAt(f.locA))
	assert.Equal(t, types.NewQuantityFromInt(4), f.quantityAt(f.locB))
	assert.Equal(t, types.NewQuantityFromInt(10), f.quantityAt(f.locA)+f.quantityAt(f.locB))
}

func TestApplyOutboundInsufficientStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.stock(f.locA, types.NewQuantityFromInt(3))

	_, err := f.svc.Apply(ctx, f.sc, outbound(f, 5))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	// Nothing changed.
	assert.Equal(t, types.NewQuantityFromInt(3), f.quantityAt(f.locA))
	assert.Empty(t, f.movements.items)
}

func TestApplyOutboundFromUnstockedLocation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, f.sc, outbound(f, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestApplyOutboundRespectsReservation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	row := f.stock(f.locA, types.NewQuantityFromInt(10))
	row.ReservedQuantity = types.NewQuantityFromInt(8)

	_, err := f.svc.Apply(ctx, f.sc, outbound(f, 5))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "2.0000", appErr.Details["available"])
}

func TestApplyBatchIsAtomic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Second movement overdraws: whole batch must roll back, including the
	// inbound that would have succeeded on its own.
	batch := []*ledger.Movement{
		inbound(f, 5),
		outbound(f, 20),
	}

	_, err := f.svc.ApplyBatch(ctx, f.sc, batch)
	require.Error(t, err)
	assert.True(t, apperror.IsBatchFailed(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 1, appErr.Details["index"])

	assert.Empty(t, f.movements.items)
	assert.True(t, f.quantityAt(f.locA).IsZero())
}

func TestApplyBatchSeesOwnEffects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// The outbound draws on stock the first batch member just put there.
	batch := []*ledger.Movement{
		inbound(f, 5),
		outbound(f, 5),
	}

	applied, err := f.svc.ApplyBatch(ctx, f.sc, batch)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
	assert.True(t, f.quantityAt(f.locA).IsZero())
	assert.Len(t, f.movements.items, 2)
}

func TestApplyEmptyBatchRejected(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ApplyBatch(context.Background(), f.sc, nil)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestApplyPlannedSkipsProjection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m := inbound(f, 10)
	m.Status = ledger.StatusPlanned

	_, err := f.svc.Apply(ctx, f.sc, m)
	require.NoError(t, err)

	assert.True(t, f.quantityAt(f.locA).IsZero())
	require.Len(t, f.movements.items, 1)
	assert.Equal(t, ledger.StatusPlanned, f.movements.items[0].Status)
}

func TestApplyRejectsInvalidShape(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name  string
		build func() *ledger.Movement
	}{
		{"inbound without destination", func() *ledger.Movement {
			m := inbound(f, 1)
			m.ToLocationID = nil
			return m
		}},
		{"outbound without source", func() *ledger.Movement {
			m := outbound(f, 1)
			m.FromLocationID = nil
			return m
		}},
		{"transfer with same locations", func() *ledger.Movement {
			m := ledger.NewMovement(f.sc.TenantID, ledger.TypeTransfer, f.productID, types.NewQuantityFromInt(1), time.Now())
			m.FromLocationID = &f.locA
			m.ToLocationID = &f.locA
			return m
		}},
		{"adjustment with both legs", func() *ledger.Movement {
			m := ledger.NewMovement(f.sc.TenantID, ledger.TypeAdjustment, f.productID, types.NewQuantityFromInt(1), time.Now())
			m.FromLocationID = &f.locA
			m.ToLocationID = &f.locB
			return m
		}},
		{"zero quantity", func() *ledger.Movement {
			m := inbound(f, 1)
			m.Quantity = 0
			return m
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Apply(ctx, f.sc, tt.build())
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Contains(t, []string{apperror.CodeInvalidMovement, apperror.CodeValidation}, appErr.Code)
			assert.Empty(t, f.movements.items)
		})
	}
}

func TestApplyRejectsUnknownReason(t *testing.T) {
	f := newFixture()

	m := inbound(f, 1)
	m.Reason = "shrinkage" // not in the enum

	_, err := f.svc.Apply(context.Background(), f.sc, m)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestApplyUnknownProductRejected(t *testing.T) {
	f := newFixture()

	m := inbound(f, 1)
	m.ProductID = id.New()

	_, err := f.svc.Apply(context.Background(), f.sc, m)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestApplyRequiresTenantScope(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Apply(context.Background(), scope.Scope{}, inbound(f, 1))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)
}

func TestAdjustmentBelowZeroRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.stock(f.locA, types.NewQuantityFromInt(3))

	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeAdjustment, f.productID, types.NewQuantityFromInt(5), time.Now().UTC())
	m.FromLocationID = &f.locA

	_, err := f.svc.Apply(ctx, f.sc, m)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "NEGATIVE_STOCK", appErr.Code)
	assert.Equal(t, types.NewQuantityFromInt(3), f.quantityAt(f.locA))
}

func TestAdjustmentCanConsumeReserved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	row := f.stock(f.locA, types.NewQuantityFromInt(5))
	row.ReservedQuantity = types.NewQuantityFromInt(4)

	// Outbound of 3 would fail (available is 1), but an adjustment is limited
	// only by the at-rest quantity.
	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeAdjustment, f.productID, types.NewQuantityFromInt(3), time.Now().UTC())
	m.FromLocationID = &f.locA

	_, err := f.svc.Apply(ctx, f.sc, m)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(2), f.quantityAt(f.locA))
}

func TestAdjustmentOnMissingRowRejected(t *testing.T) {
	f := newFixture()

	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeAdjustment, f.productID, types.NewQuantityFromInt(1), time.Now().UTC())
	m.FromLocationID = &f.locA

	_, err := f.svc.Apply(context.Background(), f.sc, m)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestReverseRestoresQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	original, err := f.svc.Apply(ctx, f.sc, inbound(f, 10))
	require.NoError(t, err)
	require.Equal(t, types.NewQuantityFromInt(10), f.quantityAt(f.locA))

	rev, err := f.svc.Reverse(ctx, f.sc, original.ID, ledger.ReasonReturn)
	require.NoError(t, err)

	assert.True(t, f.quantityAt(f.locA).IsZero())
	assert.Equal(t, ledger.TypeOutbound, rev.Type)
	assert.Equal(t, original.ToLocationID, rev.FromLocationID)
	require.NotNil(t, rev.ReversalOf)
	assert.Equal(t, original.ID, *rev.ReversalOf)
	assert.Len(t, f.movements.items, 2)
}

func TestReverseRequiresCompleted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m := inbound(f, 10)
	m.Status = ledger.StatusPlanned
	applied, err := f.svc.Apply(ctx, f.sc, m)
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, f.sc, applied.ID, ledger.ReasonOther)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "MOVEMENT_NOT_COMPLETED", appErr.Code)
}

func TestReverseDeletedMovementRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	applied, err := f.svc.Apply(ctx, f.sc, inbound(f, 10))
	require.NoError(t, err)
	require.NoError(t, f.movements.SetDeleted(ctx, f.sc, applied.ID, true))

	_, err = f.svc.Reverse(ctx, f.sc, applied.ID, ledger.ReasonOther)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestValidateDryRunDoesNotMutate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.stock(f.locA, types.NewQuantityFromInt(10))

	err := f.svc.Validate(ctx, f.sc, outbound(f, 5))
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantityFromInt(10), f.quantityAt(f.locA))
	assert.Empty(t, f.movements.items)

	err = f.svc.Validate(ctx, f.sc, outbound(f, 50))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestValidateAdjustmentOnMissingRow(t *testing.T) {
	f := newFixture()

	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeAdjustment, f.productID, types.NewQuantityFromInt(1), time.Now().UTC())
	m.FromLocationID = &f.locA

	// The dry run reports the same error the apply path would.
	err := f.svc.Validate(context.Background(), f.sc, m)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.Apply(context.Background(), f.sc, m)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestProcessTransferConvenience(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.stock(f.locA, types.NewQuantityFromInt(8))

	cmd := Command{
		ProductID:      f.productID,
		FromLocationID: &f.locA,
		ToLocationID:   &f.locB,
		Quantity:       types.NewQuantityFromInt(8),
		Reason:         ledger.ReasonTransfer,
	}
	applied, err := f.svc.ProcessTransfer(ctx, f.sc, cmd)
	require.NoError(t, err)

	assert.Equal(t, ledger.TypeTransfer, applied.Type)
	assert.Equal(t, ledger.ReasonTransfer, applied.Reason)
	assert.True(t, f.quantityAt(f.locA).IsZero())
	assert.Equal(t, types.NewQuantityFromInt(8), f.quantityAt(f.locB))
}

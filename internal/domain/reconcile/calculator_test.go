package reconcile

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
	"stockledger/internal/domain/documents"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
)

// --- In-memory fakes shared by calculator and applier tests ---

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

	failOnUpdate int
	updateCalls  int
}

func newMemRows() *memRows {
	return &memRows{rows: make(map[string]*projection.StockRow)}
}

func rowKeyOf(k projection.Key) string {
	s := k.ProductID.String() + "|" + k.LocationID.String()
	if k.LotID != nil {
		s += "|" + k.LotID.String()
	}
	return s
}

func (r *memRows) GetByKey(ctx context.Context, sc scope.Scope, key projection.Key) (*projection.StockRow, error) {
	row, ok := r.rows[rowKeyOf(key)]
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
	r.rows[rowKeyOf(row.Key())] = &clone
	return nil
}

func (r *memRows) UpdateQuantity(ctx context.Context, sc scope.Scope, row *projection.StockRow, update projection.QuantityUpdate) error {
	r.updateCalls++
	if r.failOnUpdate > 0 && r.updateCalls == r.failOnUpdate {
		return apperror.NewInternal(nil).WithDetail("injected", true)
	}

	stored, ok := r.rows[rowKeyOf(row.Key())]
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
		if filter.ProductID != nil && row.ProductID != *filter.ProductID {
			continue
		}
		if filter.LocationID != nil && row.LocationID != *filter.LocationID {
			continue
		}
		if len(filter.LocationIDs) > 0 {
			found := false
			for _, locID := range filter.LocationIDs {
				if row.LocationID == locID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
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

type fakeDocs struct {
	rows   []documents.Row
	counts []documents.Count
}

func (d *fakeDocs) ListRows(ctx context.Context, sc scope.Scope, key documents.Key, from, to time.Time) ([]documents.Row, error) {
	var out []documents.Row
	for _, r := range d.rows {
		if r.ProductID != key.ProductID || r.LocationID != key.LocationID {
			continue
		}
		if !projection.SameLot(r.LotID, key.LotID) {
			continue
		}
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (d *fakeDocs) LatestFinalizedCount(ctx context.Context, sc scope.Scope, key documents.Key, from, to time.Time) (*documents.Count, error) {
	var latest *documents.Count
	for i := range d.counts {
		c := d.counts[i]
		if c.ProductID != key.ProductID || c.LocationID != key.LocationID {
			continue
		}
		if !projection.SameLot(c.LotID, key.LotID) {
			continue
		}
		if c.Date.Before(from) || c.Date.After(to) {
			continue
		}
		if latest == nil || c.Date.After(latest.Date) {
			latest = &d.counts[i]
		}
	}
	return latest, nil
}

type fakeLocations map[id.ID][]id.ID

func (f fakeLocations) ListIDsByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID) ([]id.ID, error) {
	return f[warehouseID], nil
}

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

type allowAll struct{}

func (allowAll) Exists(ctx context.Context, sc scope.Scope, entityID id.ID) (bool, error) {
	return true, nil
}

// --- Calculator fixture ---

type calcFixture struct {
	sc        scope.Scope
	productID id.ID
	locID     id.ID
	movements *memMovements
	rows      *memRows
	docs      *fakeDocs
	locs      fakeLocations
	calc      *Calculator
	window    Window
}

func newCalcFixture() *calcFixture {
	f := &calcFixture{
		sc:        scope.New(id.New(), "tester"),
		productID: id.New(),
		locID:     id.New(),
		movements: &memMovements{},
		rows:      newMemRows(),
		docs:      &fakeDocs{},
		locs:      fakeLocations{},
		window: Window{
			From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
	f.calc = NewCalculator(f.rows, f.movements, f.docs, f.locs)
	return f
}

func (f *calcFixture) stock(qty types.Quantity) *projection.StockRow {
	row := projection.NewStockRow(f.sc.TenantID, f.productID, f.locID, nil)
	row.Quantity = qty
	f.rows.rows[rowKeyOf(row.Key())] = row
	return row
}

func (f *calcFixture) movement(mvType ledger.MovementType, qty int64, day int) *ledger.Movement {
	date := time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
	m := ledger.NewMovement(f.sc.TenantID, mvType, f.productID, types.NewQuantityFromInt(qty), date)
	switch mvType {
	case ledger.TypeInbound:
		m.ToLocationID = &f.locID
	case ledger.TypeOutbound:
		m.FromLocationID = &f.locID
	}
	f.movements.items = append(f.movements.items, m)
	return m
}

func (f *calcFixture) docRow(qty int64, increase bool, day int) {
	f.docs.rows = append(f.docs.rows, documents.Row{
		DocumentID:      id.New(),
		Number:          "DOC-001",
		Date:            time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC),
		ProductID:       f.productID,
		LocationID:      f.locID,
		Quantity:        types.NewQuantityFromInt(qty),
		IsStockIncrease: increase,
	})
}

func (f *calcFixture) count(qty int64, day int) {
	f.docs.counts = append(f.docs.counts, documents.Count{
		DocumentID:      id.New(),
		Number:          "INV-001",
		Date:            time.Date(2026, 3, day, 18, 0, 0, 0, time.UTC),
		ProductID:       f.productID,
		LocationID:      f.locID,
		CountedQuantity: types.NewQuantityFromInt(qty),
	})
}

func allSources(opts ...func(*Options)) Options {
	o := Options{IncludeDocuments: true, IncludeInventories: true}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// --- Tests ---

func TestCalculateMatchingProjectionIsCorrect(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(12))
	f.movement(ledger.TypeInbound, 15, 1)
	f.movement(ledger.TypeOutbound, 3, 2)

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.Equal(t, types.NewQuantityFromInt(12), item.CalculatedQuantity)
	assert.True(t, item.Difference.IsZero())
	assert.Equal(t, SeverityCorrect, item.Severity)
	assert.Equal(t, 1, result.Summary.CorrectCount)
}

func TestCalculateReplaysDocumentsAndMovements(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(10))
	f.docRow(10, true, 1)  // +10
	f.docRow(3, false, 2)  // -3
	f.movement(ledger.TypeInbound, 5, 3) // +5

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.Equal(t, types.NewQuantityFromInt(12), item.CalculatedQuantity)
	assert.Equal(t, types.NewQuantityFromInt(2), item.Difference)
	assert.Len(t, item.Sources, 3)

	// Sources come back in date order.
	for i := 1; i < len(item.Sources); i++ {
		assert.False(t, item.Sources[i].Date.Before(item.Sources[i-1].Date))
	}
}

func TestCalculateCountOverridesRunningTotal(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(40))
	f.movement(ledger.TypeInbound, 100, 1) // before the count: ignored
	f.count(35, 10)                        // ground truth at day 10
	f.movement(ledger.TypeInbound, 5, 15)  // after the count: replayed

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.Equal(t, types.NewQuantityFromInt(40), item.CalculatedQuantity)
	assert.Equal(t, SeverityCorrect, item.Severity)

	// The count appears as a replacement source.
	require.NotEmpty(t, item.Sources)
	assert.Equal(t, SourceInventoryCount, item.Sources[0].Kind)
	assert.True(t, item.Sources[0].IsReplacement)
}

func TestCalculateRecordsOnCountDateExcluded(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(35))
	f.count(35, 10)

	// Same instant as the count: already reflected in the counted figure.
	m := ledger.NewMovement(f.sc.TenantID, ledger.TypeInbound, f.productID, types.NewQuantityFromInt(7), time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC))
	m.ToLocationID = &f.locID
	f.movements.items = append(f.movements.items, m)

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, types.NewQuantityFromInt(35), result.Items[0].CalculatedQuantity)
}

func TestCalculateSkipsDocumentLinkedMovements(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(10))
	f.docRow(10, true, 1)

	// The posting of that document also wrote a ledger movement; replaying it
	// on top of the document row would count the quantity twice.
	docID := id.New()
	m := f.movement(ledger.TypeInbound, 10, 1)
	m.DocumentID = &docID

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, types.NewQuantityFromInt(10), result.Items[0].CalculatedQuantity)
	assert.Equal(t, SeverityCorrect, result.Items[0].Severity)
}

func TestCalculateSkipsReconciliationCorrections(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(8))
	f.movement(ledger.TypeInbound, 8, 1)

	// A prior correction must not feed back into the replay, or applying a
	// correction and recalculating would never converge.
	corr := f.movement(ledger.TypeAdjustment, 3, 5)
	corr.ToLocationID = &f.locID
	corr.Reason = ledger.ReasonReconciliation

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, types.NewQuantityFromInt(8), result.Items[0].CalculatedQuantity)
}

func TestCalculateSeverityClassification(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		calc     int64
		expected Severity
	}{
		{"exact match", 100, 100, SeverityCorrect},
		{"small drift", 100, 105, SeverityMinor},
		{"boundary is minor", 90, 100, SeverityMinor}, // exactly 10% with threshold 10
		{"large drift", 100, 120, SeverityMajor},
		{"missing row", 0, 50, SeverityMissing},
		{"both zero", 0, 0, SeverityCorrect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCalcFixture()
			f.stock(types.NewQuantityFromInt(tt.current))
			if tt.calc != 0 {
				f.movement(ledger.TypeInbound, tt.calc, 1)
			}

			result, err := f.calc.Calculate(context.Background(), f.sc, Filter{}, f.window, allSources())
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
			assert.Equal(t, tt.expected, result.Items[0].Severity)
		})
	}
}

func TestDifferencePercentage(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		calc     int64
		expected float64
	}{
		{"both zero", 0, 0, 0},
		{"half over base", 100, 150, 100.0 / 3},
		{"drop to zero", 100, 0, 100},
		{"appear from zero", 0, 50, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := differencePercentage(types.NewQuantityFromInt(tt.current), types.NewQuantityFromInt(tt.calc))
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}
}

func TestCalculateOnlyDiscrepanciesKeepsFullSummary(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	// Row 1 matches, row 2 does not.
	f.stock(types.NewQuantityFromInt(10))
	f.movement(ledger.TypeInbound, 10, 1)

	otherLoc := id.New()
	row2 := projection.NewStockRow(f.sc.TenantID, f.productID, otherLoc, nil)
	row2.Quantity = types.NewQuantityFromInt(20)
	f.rows.rows[rowKeyOf(row2.Key())] = row2

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window,
		allSources(func(o *Options) { o.OnlyDiscrepancies = true }))
	require.NoError(t, err)

	// Only the discrepancy is listed, but the summary covers both rows.
	require.Len(t, result.Items, 1)
	assert.NotEqual(t, SeverityCorrect, result.Items[0].Severity)
	assert.Equal(t, 2, result.Summary.TotalItems)
	assert.Equal(t, 1, result.Summary.CorrectCount)
}

func TestCalculateWarehouseFilterExpandsLocations(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(5))
	f.movement(ledger.TypeInbound, 5, 1)

	warehouseID := id.New()
	f.locs[warehouseID] = []id.ID{f.locID}

	result, err := f.calc.Calculate(ctx, f.sc, Filter{WarehouseID: &warehouseID}, f.window, allSources())
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)

	// A warehouse with no locations yields an empty result, not everything.
	emptyWarehouse := id.New()
	result, err = f.calc.Calculate(ctx, f.sc, Filter{WarehouseID: &emptyWarehouse}, f.window, allSources())
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, result.Summary.TotalItems)
}

func TestCalculateSourcesCanBeDisabled(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(0))
	f.docRow(10, true, 1)
	f.count(99, 2)
	f.movement(ledger.TypeInbound, 5, 20)

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, Options{})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	// Documents and counts off: only the manual movement contributes.
	assert.Equal(t, types.NewQuantityFromInt(5), result.Items[0].CalculatedQuantity)
}

func TestCalculateStartingQuantityOffset(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(30))
	f.movement(ledger.TypeInbound, 10, 1)

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window,
		allSources(func(o *Options) { o.StartingQuantity = types.NewQuantityFromInt(20) }))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, types.NewQuantityFromInt(30), result.Items[0].CalculatedQuantity)
	assert.Equal(t, SeverityCorrect, result.Items[0].Severity)
}

func TestCalculateCountOverrideWithStartingQuantity(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(35))
	f.count(30, 10)        // replaces the starting quantity
	f.docRow(5, true, 12)  // after the count: replayed on top of it

	result, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window,
		allSources(func(o *Options) { o.StartingQuantity = types.NewQuantityFromInt(50) }))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	// 30 + 5, not 50 + 30 + 5: the count discards the starting quantity.
	assert.Equal(t, types.NewQuantityFromInt(35), result.Items[0].CalculatedQuantity)
	assert.Equal(t, SeverityCorrect, result.Items[0].Severity)
}

func TestCalculateIsIdempotent(t *testing.T) {
	f := newCalcFixture()
	ctx := context.Background()

	f.stock(types.NewQuantityFromInt(10))
	f.docRow(10, true, 1)
	f.docRow(3, false, 2)
	f.count(6, 4)
	f.movement(ledger.TypeInbound, 5, 8)

	first, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)
	second, err := f.calc.Calculate(ctx, f.sc, Filter{}, f.window, allSources())
	require.NoError(t, err)

	// Same inputs, same result; a calculation writes nothing.
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Items, second.Items)
}

func TestCalculateRequiresTenantScope(t *testing.T) {
	f := newCalcFixture()

	_, err := f.calc.Calculate(context.Background(), scope.Scope{}, Filter{}, f.window, Options{})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)
}

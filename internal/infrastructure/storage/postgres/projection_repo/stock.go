// Package projection_repo provides the PostgreSQL implementation of the stock
// projection repository.
package projection_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/projection"
	"stockledger/internal/infrastructure/storage/postgres"
)

const stockRowsTable = "reg_stock_rows"

var stockRowColumns = []string{
	"id", "tenant_id", "product_id", "location_id", "lot_id",
	"quantity", "reserved_quantity",
	"minimum_level", "maximum_level",
	"last_movement_date", "last_inventory_date",
	"version", "created_at", "updated_at",
}

// StockRepo implements projection.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock projection repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ projection.Repository = (*StockRepo)(nil)

// GetByKey returns the row for a key.
func (r *StockRepo) GetByKey(ctx context.Context, sc scope.Scope, key projection.Key) (*projection.StockRow, error) {
	return r.getByKey(ctx, sc, key, false)
}

// GetByKeyForUpdate returns the row with a pessimistic row lock.
// Must be called inside a transaction; the lock is held to commit.
func (r *StockRepo) GetByKeyForUpdate(ctx context.Context, sc scope.Scope, key projection.Key) (*projection.StockRow, error) {
	return r.getByKey(ctx, sc, key, true)
}

func (r *StockRepo) getByKey(ctx context.Context, sc scope.Scope, key projection.Key, forUpdate bool) (*projection.StockRow, error) {
	lotCond := "lot_id IS NULL"
	args := []any{sc.TenantID, key.ProductID, key.LocationID}
	if key.LotID != nil {
		lotCond = "lot_id = $4"
		args = append(args, *key.LotID)
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE tenant_id = $1 AND product_id = $2 AND location_id = $3 AND %s
	`, strings.Join(stockRowColumns, ", "), stockRowsTable, lotCond)
	if forUpdate {
		sql += " FOR UPDATE"
	}

	var row projection.StockRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock row", key.ProductID.String()).
				WithDetail("location_id", key.LocationID.String())
		}
		return nil, fmt.Errorf("get stock row: %w", err)
	}
	return &row, nil
}

// Create inserts a new row (first movement touching the key).
func (r *StockRepo) Create(ctx context.Context, sc scope.Scope, row *projection.StockRow) error {
	q := r.builder.Insert(stockRowsTable).
		Columns(stockRowColumns...).
		Values(
			row.ID, row.TenantID, row.ProductID, row.LocationID, row.LotID,
			row.Quantity, row.ReservedQuantity,
			row.MinimumLevel, row.MaximumLevel,
			row.LastMovementDate, row.LastInventoryDate,
			row.Version, row.CreatedAt, row.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert stock row: %w", err)
	}
	return nil
}

// UpdateQuantity overwrites quantity state with optimistic version check.
// The write fails with a concurrent modification error when the stored
// version differs from the one the caller read.
func (r *StockRepo) UpdateQuantity(ctx context.Context, sc scope.Scope, row *projection.StockRow, update projection.QuantityUpdate) error {
	now := time.Now().UTC()
	q := r.builder.Update(stockRowsTable).
		Set("quantity", update.Quantity).
		Set("reserved_quantity", update.ReservedQuantity).
		Set("last_movement_date", update.LastMovementDate).
		Set("last_inventory_date", update.LastInventoryDate).
		Set("updated_at", now).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"tenant_id": sc.TenantID,
			"id":        row.ID,
			"version":   update.ExpectedVersion,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock row: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock row", row.ID.String())
	}

	row.Quantity = update.Quantity
	row.ReservedQuantity = update.ReservedQuantity
	row.LastMovementDate = update.LastMovementDate
	row.LastInventoryDate = update.LastInventoryDate
	row.Version = update.ExpectedVersion + 1
	row.UpdatedAt = now
	return nil
}

// SetThresholds updates the min/max levels of a row.
func (r *StockRepo) SetThresholds(ctx context.Context, sc scope.Scope, rowID id.ID, minLevel, maxLevel *types.Quantity) error {
	q := r.builder.Update(stockRowsTable).
		Set("minimum_level", minLevel).
		Set("maximum_level", maxLevel).
		Set("updated_at", time.Now().UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"tenant_id": sc.TenantID, "id": rowID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set thresholds: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("stock row", rowID.String())
	}
	return nil
}

// List returns rows matching the filter, ordered by product then location.
func (r *StockRepo) List(ctx context.Context, sc scope.Scope, filter projection.RowFilter) ([]*projection.StockRow, error) {
	q := r.builder.Select(stockRowColumns...).
		From(stockRowsTable).
		Where(squirrel.Eq{"tenant_id": sc.TenantID})

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if len(filter.LocationIDs) > 0 {
		q = q.Where(squirrel.Eq{"location_id": filter.LocationIDs})
	}
	if filter.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *filter.LotID})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": int64(0)})
	}

	q = q.OrderBy("product_id", "location_id")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*projection.StockRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock rows: %w", err)
	}
	return rows, nil
}

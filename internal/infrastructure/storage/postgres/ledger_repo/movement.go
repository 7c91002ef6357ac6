// Package ledger_repo provides the PostgreSQL implementation of the movement
// ledger repository.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "reg_stock_movements"

var movementColumns = []string{
	"id", "tenant_id", "type", "reason", "status",
	"product_id", "lot_id", "serial_id",
	"from_location_id", "to_location_id",
	"quantity", "unit_cost", "movement_date",
	"document_id", "reversal_of", "reconciliation",
	"deleted", "created_at", "created_by",
}

// MovementRepo implements ledger.Repository.
type MovementRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement ledger repository.
func NewMovementRepo(txManager *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ ledger.Repository = (*MovementRepo)(nil)

// Create appends a single movement.
func (r *MovementRepo) Create(ctx context.Context, sc scope.Scope, m *ledger.Movement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(movementValues(m)...)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// CreateBatch appends movements in order. Inside a transaction the COPY
// protocol is used; large seed loads go through this path.
func (r *MovementRepo) CreateBatch(ctx context.Context, sc scope.Scope, movements []*ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, movementValues(m))
		}
		if _, err := inserter.CopyFromSlice(ctx, movementsTable, movementColumns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(movementsTable).Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(movementValues(m)...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// GetByID retrieves a movement.
func (r *MovementRepo) GetByID(ctx context.Context, sc scope.Scope, movementID id.ID) (*ledger.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"tenant_id": sc.TenantID, "id": movementID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m ledger.Movement
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

// SetDeleted marks a movement soft-deleted. Quantities are never mutated.
func (r *MovementRepo) SetDeleted(ctx context.Context, sc scope.Scope, movementID id.ID, deleted bool) error {
	q := r.builder.Update(movementsTable).
		Set("deleted", deleted).
		Where(squirrel.Eq{"tenant_id": sc.TenantID, "id": movementID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set deleted: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("movement", movementID.String())
	}
	return nil
}

// ListHistory returns movements matching the filter, newest first.
func (r *MovementRepo) ListHistory(ctx context.Context, sc scope.Scope, filter ledger.HistoryFilter) ([]*ledger.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"tenant_id": sc.TenantID, "deleted": false})

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"from_location_id": *filter.LocationID},
			squirrel.Eq{"to_location_id": *filter.LocationID},
		})
	}
	if filter.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *filter.LotID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"type": *filter.Type})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"movement_date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"movement_date": *filter.ToDate})
	}

	q = q.OrderBy("movement_date DESC", "created_at DESC")

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

	var movements []*ledger.Movement
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return movements, nil
}

// ListForReplay returns completed, non-deleted movements touching the key
// with movement date in [from, to], oldest first.
func (r *MovementRepo) ListForReplay(ctx context.Context, sc scope.Scope, key ledger.ReplayKey, from, to time.Time) ([]*ledger.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"tenant_id":  sc.TenantID,
			"product_id": key.ProductID,
			"status":     ledger.StatusCompleted,
			"deleted":    false,
		}).
		Where(squirrel.Or{
			squirrel.Eq{"from_location_id": key.LocationID},
			squirrel.Eq{"to_location_id": key.LocationID},
		}).
		Where(squirrel.GtOrEq{"movement_date": from}).
		Where(squirrel.LtOrEq{"movement_date": to})

	if key.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *key.LotID})
	} else {
		q = q.Where(squirrel.Eq{"lot_id": nil})
	}

	q = q.OrderBy("movement_date ASC", "created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*ledger.Movement
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements for replay: %w", err)
	}
	return movements, nil
}

func movementValues(m *ledger.Movement) []any {
	return []any{
		m.ID, m.TenantID, m.Type, m.Reason, m.Status,
		m.ProductID, m.LotID, m.SerialID,
		m.FromLocationID, m.ToLocationID,
		m.Quantity, m.UnitCost, m.MovementDate,
		m.DocumentID, m.ReversalOf, m.Reconciliation,
		m.Deleted, m.CreatedAt, m.CreatedBy,
	}
}

package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/domain/catalogs/location"
	"stockledger/internal/infrastructure/storage/postgres"
)

const locationsTable = "cat_locations"

var locationColumns = []string{
	"id", "tenant_id", "warehouse_id", "code", "name",
	"deleted", "version", "created_at", "updated_at",
}

// LocationRepo implements location.Repository.
type LocationRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewLocationRepo creates a new location catalog repository.
func NewLocationRepo(txManager *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ location.Repository = (*LocationRepo)(nil)

// Create inserts a new location.
func (r *LocationRepo) Create(ctx context.Context, sc scope.Scope, l *location.Location) error {
	q := r.builder.Insert(locationsTable).
		Columns(locationColumns...).
		Values(
			l.ID, l.TenantID, l.WarehouseID, l.Code, l.Name,
			l.Deleted, l.Version, l.CreatedAt, l.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("location", "code", l.Code)
		}
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

// GetByID retrieves a location.
func (r *LocationRepo) GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*location.Location, error) {
	q := r.builder.Select(locationColumns...).
		From(locationsTable).
		Where(squirrel.Eq{"tenant_id": sc.TenantID, "id": locationID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var l location.Location
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &l, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", locationID.String())
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

// SetDeleted sets or clears the lifecycle flag.
func (r *LocationRepo) SetDeleted(ctx context.Context, sc scope.Scope, locationID id.ID, deleted bool) error {
	q := r.builder.Update(locationsTable).
		Set("deleted", deleted).
		Set("updated_at", time.Now().UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"tenant_id": sc.TenantID, "id": locationID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set deleted: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("location", locationID.String())
	}
	return nil
}

// List retrieves locations with filtering and pagination.
func (r *LocationRepo) List(ctx context.Context, sc scope.Scope, filter location.ListFilter) ([]*location.Location, error) {
	q := r.builder.Select(locationColumns...).
		From(locationsTable).
		Where(squirrel.Eq{"tenant_id": sc.TenantID})

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deleted": false})
	}
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"code": pattern},
		})
	}

	q = q.OrderBy("code ASC")

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

	var locations []*location.Location
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &locations, sql, args...); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// ListIDsByWarehouse resolves a warehouse to its non-deleted location IDs.
func (r *LocationRepo) ListIDsByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID) ([]id.ID, error) {
	q := r.builder.Select("id").
		From(locationsTable).
		Where(squirrel.Eq{
			"tenant_id":    sc.TenantID,
			"warehouse_id": warehouseID,
			"deleted":      false,
		}).
		OrderBy("code ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("list location ids: %w", err)
	}
	return ids, nil
}

// Exists checks location existence within the tenant.
func (r *LocationRepo) Exists(ctx context.Context, sc scope.Scope, locationID id.ID) (bool, error) {
	q := r.builder.Select("1").
		From(locationsTable).
		Where(squirrel.Eq{"tenant_id": sc.TenantID, "id": locationID, "deleted": false}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists int
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

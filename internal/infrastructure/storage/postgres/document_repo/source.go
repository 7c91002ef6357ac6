// Package document_repo provides the PostgreSQL implementation of the
// read-only document ledger source.
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/scope"
	"stockledger/internal/domain/documents"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	documentRowsTable    = "doc_stock_rows"
	inventoryCountsTable = "doc_inventory_counts"
)

// SourceRepo implements documents.Source. The underlying tables are written
// by the document subsystem; this repository only reads finalized records.
type SourceRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewSourceRepo creates a new document source repository.
func NewSourceRepo(txManager *postgres.TxManager) *SourceRepo {
	return &SourceRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var _ documents.Source = (*SourceRepo)(nil)

// ListRows returns rows of finalized documents for the key with document date
// in [from, to], oldest first.
func (r *SourceRepo) ListRows(ctx context.Context, sc scope.Scope, key documents.Key, from, to time.Time) ([]documents.Row, error) {
	q := r.builder.Select(
		"document_id", "number", "type_code", "date",
		"product_id", "location_id", "lot_id",
		"quantity", "is_stock_increase",
	).From(documentRowsTable).
		Where(squirrel.Eq{
			"tenant_id":   sc.TenantID,
			"product_id":  key.ProductID,
			"location_id": key.LocationID,
			"posted":      true,
		}).
		Where(squirrel.GtOrEq{"date": from}).
		Where(squirrel.LtOrEq{"date": to})

	if key.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *key.LotID})
	} else {
		q = q.Where(squirrel.Eq{"lot_id": nil})
	}

	q = q.OrderBy("date ASC", "document_id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []documents.Row
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select document rows: %w", err)
	}
	return rows, nil
}

// LatestFinalizedCount returns the most recent closed inventory count for the
// key with date in [from, to], or nil when none exists.
func (r *SourceRepo) LatestFinalizedCount(ctx context.Context, sc scope.Scope, key documents.Key, from, to time.Time) (*documents.Count, error) {
	q := r.builder.Select(
		"document_id", "number", "date",
		"product_id", "location_id", "lot_id",
		"counted_quantity",
	).From(inventoryCountsTable).
		Where(squirrel.Eq{
			"tenant_id":   sc.TenantID,
			"product_id":  key.ProductID,
			"location_id": key.LocationID,
			"status":      "closed",
		}).
		Where(squirrel.GtOrEq{"date": from}).
		Where(squirrel.LtOrEq{"date": to})

	if key.LotID != nil {
		q = q.Where(squirrel.Eq{"lot_id": *key.LotID})
	} else {
		q = q.Where(squirrel.Eq{"lot_id": nil})
	}

	q = q.OrderBy("date DESC").Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var count documents.Count
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &count, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest count: %w", err)
	}
	return &count, nil
}

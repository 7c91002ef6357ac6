// Package main provides a CLI tool for seeding the database with demo data.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
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

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	tenantID := id.New()
	if slug := os.Getenv("SEED_TENANT_ID"); slug != "" {
		parsed, err := id.Parse(slug)
		if err != nil {
			log.Fatalw("invalid SEED_TENANT_ID", "error", err)
		}
		tenantID = parsed
	}

	products, locations, err := seedCatalogs(ctx, pool, log, tenantID)
	if err != nil {
		log.Fatalw("failed to seed catalogs", "error", err)
	}

	if os.Getenv("SEED_DEMO_MOVEMENTS") == "true" {
		count := getEnvInt("SEED_MOVEMENT_COUNT", 10_000)
		if err := seedMovements(ctx, pool, log, tenantID, products, locations, count); err != nil {
			log.Fatalw("failed to seed movements", "error", err)
		}
	}

	log.Infow("seeding completed successfully", "tenant_id", tenantID)
}

// seedCatalogs inserts demo products and locations, returning their IDs.
// Re-running against the same tenant is safe: conflicts on code are skipped.
func seedCatalogs(ctx context.Context, pool *postgres.Pool, log *logger.Logger, tenantID id.ID) ([]id.ID, []id.ID, error) {
	warehouseID := id.New()
	now := time.Now()

	products := []struct {
		code string
		name string
		unit string
	}{
		{"SKU-00001", "Copy paper A4", "pack"},
		{"SKU-00002", "Ballpoint pen blue", "pc"},
		{"SKU-00003", "Desktop stapler", "pc"},
		{"SKU-00004", "Paper clips 28mm", "pack"},
		{"SKU-00005", "Lever arch file", "pc"},
		{"SKU-00006", "Whiteboard marker", "pc"},
	}

	productIDs := make([]id.ID, 0, len(products))
	for _, p := range products {
		pid := id.New()
		tag, err := pool.Exec(ctx, `
			INSERT INTO cat_products (id, tenant_id, code, name, unit, deleted, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, false, 1, $6, $6)
			ON CONFLICT (tenant_id, code) WHERE deleted = FALSE DO NOTHING
		`, pid, tenantID, p.code, p.name, p.unit, now)
		if err != nil {
			return nil, nil, fmt.Errorf("insert product %s: %w", p.code, err)
		}
		if tag.RowsAffected() == 0 {
			if err := pool.QueryRow(ctx, `
				SELECT id FROM cat_products WHERE tenant_id = $1 AND code = $2 AND deleted = FALSE
			`, tenantID, p.code).Scan(&pid); err != nil {
				return nil, nil, fmt.Errorf("fetch product %s: %w", p.code, err)
			}
		}
		productIDs = append(productIDs, pid)
	}

	locations := []struct {
		code string
		name string
	}{
		{"LOC-001", "Receiving dock"},
		{"LOC-002", "Main storage"},
		{"LOC-003", "Picking zone"},
	}

	locationIDs := make([]id.ID, 0, len(locations))
	for _, l := range locations {
		lid := id.New()
		tag, err := pool.Exec(ctx, `
			INSERT INTO cat_locations (id, tenant_id, warehouse_id, code, name, deleted, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, false, 1, $6, $6)
			ON CONFLICT (tenant_id, code) WHERE deleted = FALSE DO NOTHING
		`, lid, tenantID, warehouseID, l.code, l.name, now)
		if err != nil {
			return nil, nil, fmt.Errorf("insert location %s: %w", l.code, err)
		}
		if tag.RowsAffected() == 0 {
			if err := pool.QueryRow(ctx, `
				SELECT id FROM cat_locations WHERE tenant_id = $1 AND code = $2 AND deleted = FALSE
			`, tenantID, l.code).Scan(&lid); err != nil {
				return nil, nil, fmt.Errorf("fetch location %s: %w", l.code, err)
			}
		}
		locationIDs = append(locationIDs, lid)
	}

	log.Infow("catalogs seeded", "products", len(productIDs), "locations", len(locationIDs))
	return productIDs, locationIDs, nil
}

// seedMovements bulk-loads a generated movement history via COPY and builds
// the matching projection rows from a local running total, so the seeded
// ledger and projection agree without replaying through the engine.
func seedMovements(
	ctx context.Context,
	pool *postgres.Pool,
	log *logger.Logger,
	tenantID id.ID,
	products, locations []id.ID,
	count int,
) error {
	txManager := postgres.NewTxManager(pool)
	inserter := postgres.NewBatchInserter(txManager)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now().AddDate(0, -3, 0)
	now := time.Now()

	type rowKey struct {
		productID  id.ID
		locationID id.ID
	}
	totals := make(map[rowKey]types.Quantity)

	rows := make(chan []any)
	go func() {
		defer close(rows)
		for i := 0; i < count; i++ {
			productID := products[rng.Intn(len(products))]
			locationID := locations[rng.Intn(len(locations))]
			qty := types.NewQuantityFromInt(int64(1 + rng.Intn(50)))
			date := start.Add(time.Duration(rng.Int63n(int64(now.Sub(start)))))

			key := rowKey{productID, locationID}

			// Keep running totals non-negative: issue only what is on hand.
			mvType := ledger.TypeInbound
			reason := ledger.ReasonPurchase
			var fromLoc, toLoc *id.ID
			if totals[key] >= qty && rng.Intn(2) == 0 {
				mvType = ledger.TypeOutbound
				reason = ledger.ReasonSale
				fromLoc = &locationID
				totals[key] -= qty
			} else {
				toLoc = &locationID
				totals[key] += qty
			}

			rows <- []any{
				id.New(), tenantID, string(mvType), string(reason), string(ledger.StatusCompleted),
				productID, nil, nil,
				fromLoc, toLoc,
				qty.Int64Scaled(), nil, date,
				nil, nil, false,
				false, now, "seed",
			}
		}
	}()

	err := txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		inserted, err := inserter.CopyFromRows(ctx, movementsTable, movementColumns, rows)
		if err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		log.Infow("movements loaded", "count", inserted)

		for key, total := range totals {
			_, err := txManager.GetQuerier(ctx).Exec(ctx, `
				INSERT INTO reg_stock_rows (
					id, tenant_id, product_id, location_id, lot_id,
					quantity, reserved_quantity,
					minimum_level, maximum_level,
					last_movement_date, last_inventory_date,
					version, created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, NULL, $5, 0, NULL, NULL, $6, NULL, 1, $6, $6)
				ON CONFLICT (tenant_id, product_id, location_id) WHERE lot_id IS NULL
				DO UPDATE SET quantity = reg_stock_rows.quantity + EXCLUDED.quantity,
				              version = reg_stock_rows.version + 1,
				              updated_at = EXCLUDED.updated_at
			`, id.New(), tenantID, key.productID, key.locationID, total.Int64Scaled(), now)
			if err != nil {
				return fmt.Errorf("upsert stock row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infow("projection rows written", "rows", len(totals))
	return nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

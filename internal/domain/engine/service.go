// Package engine provides the movement application engine: the only
// legitimate writer of projection quantities during normal operation.
// It validates movements and mutates the stock projection as one unit.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/projection"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/engine")

// ExistenceChecker validates that a referenced catalog entity exists.
// Product and location services satisfy it.
type ExistenceChecker interface {
	Exists(ctx context.Context, sc scope.Scope, entityID id.ID) (bool, error)
}

// Service applies movements to the stock projection under consistency
// constraints. All mutation happens inside a transaction with pessimistic
// row locks, so a batch observes its own in-flight effects.
type Service struct {
	movements ledger.Repository
	rows      projection.Repository
	products  ExistenceChecker
	locations ExistenceChecker
	auditor   audit.Recorder
	txManager tx.Manager
}

// NewService creates a new movement application engine.
func NewService(
	movements ledger.Repository,
	rows projection.Repository,
	products ExistenceChecker,
	locations ExistenceChecker,
	auditor audit.Recorder,
	txManager tx.Manager,
) *Service {
	return &Service{
		movements: movements,
		rows:      rows,
		products:  products,
		locations: locations,
		auditor:   auditor,
		txManager: txManager,
	}
}

// Apply validates a movement and mutates the projection accordingly.
// On any validation failure nothing is mutated.
func (s *Service) Apply(ctx context.Context, sc scope.Scope, m *ledger.Movement) (*ledger.Movement, error) {
	ctx, span := tracer.Start(ctx, "engine.Apply",
		trace.WithAttributes(attribute.String("movement.type", string(m.Type))))
	defer span.End()

	if err := sc.Validate(); err != nil {
		return nil, err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.applyOne(ctx, sc, m)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement applied",
		"movement_id", m.ID,
		"type", m.Type,
		"product_id", m.ProductID,
		"quantity", m.Quantity,
	)
	return m, nil
}

// ApplyBatch applies movements in the caller-supplied order within one
// transaction. Each movement's validation observes the effect of all prior
// movements in the batch. Any failure aborts the whole batch.
func (s *Service) ApplyBatch(ctx context.Context, sc scope.Scope, movements []*ledger.Movement) ([]*ledger.Movement, error) {
	ctx, span := tracer.Start(ctx, "engine.ApplyBatch",
		trace.WithAttributes(attribute.Int("batch.size", len(movements))))
	defer span.End()

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if len(movements) == 0 {
		return nil, apperror.NewValidation("batch is empty")
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for i, m := range movements {
			if err := s.applyOne(ctx, sc, m); err != nil {
				return apperror.NewBatchFailed(i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement batch applied", "count", len(movements))
	return movements, nil
}

// Validate performs a dry-run check without any mutation. Availability is
// read without locks, so a passing check is advisory under concurrency.
func (s *Service) Validate(ctx context.Context, sc scope.Scope, m *ledger.Movement) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if err := s.validateStatic(ctx, sc, m); err != nil {
		return err
	}

	if m.Status == ledger.StatusPlanned {
		return nil
	}

	if sourceLoc := s.sourceLocation(m); sourceLoc != nil {
		key := projection.Key{ProductID: m.ProductID, LocationID: *sourceLoc, LotID: m.LotID}
		row, err := s.rows.GetByKey(ctx, sc, key)
		if err != nil {
			if !apperror.IsNotFound(err) {
				return err
			}
			// Mirror the apply path: adjusting a never-stocked row is not
			// found, an outbound leg reads as plain shortage.
			if m.Type == ledger.TypeAdjustment {
				return apperror.NewNotFound("stock row", key.ProductID.String()).
					WithDetail("location_id", key.LocationID.String())
			}
			row = projection.NewStockRow(sc.TenantID, key.ProductID, key.LocationID, key.LotID)
		}
		if err := s.checkSource(m, row); err != nil {
			return err
		}
	}
	return nil
}

// Reverse builds a compensating movement for an existing ledger entry and
// applies it through the normal validation path. History is never edited.
func (s *Service) Reverse(ctx context.Context, sc scope.Scope, movementID id.ID, reason ledger.MovementReason) (*ledger.Movement, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	original, err := s.movements.GetByID(ctx, sc, movementID)
	if err != nil {
		return nil, err
	}
	if original.Deleted {
		return nil, apperror.NewNotFound("movement", movementID.String())
	}
	if original.Status != ledger.StatusCompleted {
		return nil, apperror.NewBusinessRule(
			"MOVEMENT_NOT_COMPLETED",
			"Only completed movements can be reversed",
		).WithDetail("movement_id", movementID.String())
	}

	rev := original.Reversed(reason, sc.Actor())

	var applied *ledger.Movement
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.applyOne(ctx, sc, rev); err != nil {
			return err
		}
		applied = rev
		return s.auditor.Record(ctx, sc, audit.Entry{
			EntityType: "movement",
			EntityID:   original.ID,
			Action:     audit.ActionReverse,
			NewValue:   map[string]any{"reversal_id": rev.ID.String(), "reason": string(reason)},
			Actor:      sc.Actor(),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement reversed",
		"movement_id", original.ID,
		"reversal_id", rev.ID,
	)
	return applied, nil
}

// --- Convenience wrappers ---

// Command carries the caller-facing fields for a single movement.
type Command struct {
	ProductID      id.ID
	LotID          *id.ID
	SerialID       *id.ID
	FromLocationID *id.ID
	ToLocationID   *id.ID
	Quantity       types.Quantity
	UnitCost       *types.Money
	Date           time.Time
	Reason         ledger.MovementReason
	DocumentID     *id.ID

	// Reconciliation marks the movement as a reconciliation correction,
	// excluding it from replay regardless of the stamped reason.
	Reconciliation bool
}

// ProcessInbound applies an inbound movement.
func (s *Service) ProcessInbound(ctx context.Context, sc scope.Scope, cmd Command) (*ledger.Movement, error) {
	return s.Apply(ctx, sc, s.build(sc, ledger.TypeInbound, cmd))
}

// ProcessOutbound applies an outbound movement.
func (s *Service) ProcessOutbound(ctx context.Context, sc scope.Scope, cmd Command) (*ledger.Movement, error) {
	return s.Apply(ctx, sc, s.build(sc, ledger.TypeOutbound, cmd))
}

// ProcessTransfer applies a transfer movement.
func (s *Service) ProcessTransfer(ctx context.Context, sc scope.Scope, cmd Command) (*ledger.Movement, error) {
	return s.Apply(ctx, sc, s.build(sc, ledger.TypeTransfer, cmd))
}

// ProcessAdjustment applies an adjustment movement.
func (s *Service) ProcessAdjustment(ctx context.Context, sc scope.Scope, cmd Command) (*ledger.Movement, error) {
	return s.Apply(ctx, sc, s.build(sc, ledger.TypeAdjustment, cmd))
}

func (s *Service) build(sc scope.Scope, mvType ledger.MovementType, cmd Command) *ledger.Movement {
	date := cmd.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	m := ledger.NewMovement(sc.TenantID, mvType, cmd.ProductID, cmd.Quantity, date)
	m.LotID = cmd.LotID
	m.SerialID = cmd.SerialID
	m.FromLocationID = cmd.FromLocationID
	m.ToLocationID = cmd.ToLocationID
	m.UnitCost = cmd.UnitCost
	m.DocumentID = cmd.DocumentID
	m.Reconciliation = cmd.Reconciliation
	m.CreatedBy = sc.Actor()
	if cmd.Reason != "" {
		m.Reason = cmd.Reason
	}
	return m
}

// --- Internal application path ---

// applyOne validates and applies a single movement inside the caller's
// transaction. Validation failures leave the projection untouched because
// they are returned before any write for this movement, and the surrounding
// transaction rolls back writes of earlier batch members.
func (s *Service) applyOne(ctx context.Context, sc scope.Scope, m *ledger.Movement) error {
	if err := s.validateStatic(ctx, sc, m); err != nil {
		return err
	}

	// Planned movements are recorded in the ledger but do not touch the
	// projection until completed.
	if m.Status == ledger.StatusCompleted {
		if err := s.mutateProjection(ctx, sc, m); err != nil {
			return err
		}
	}

	if err := s.movements.Create(ctx, sc, m); err != nil {
		return fmt.Errorf("append movement: %w", err)
	}

	return s.auditor.Record(ctx, sc, audit.Entry{
		EntityType: "movement",
		EntityID:   m.ID,
		Action:     audit.ActionApply,
		NewValue: map[string]any{
			"type":     string(m.Type),
			"product":  m.ProductID.String(),
			"quantity": m.Quantity.String(),
			"status":   string(m.Status),
		},
		Actor: sc.Actor(),
	})
}

// validateStatic checks everything that does not depend on projection state.
func (s *Service) validateStatic(ctx context.Context, sc scope.Scope, m *ledger.Movement) error {
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	m.TenantID = sc.TenantID
	if m.Status == "" {
		m.Status = ledger.StatusCompleted
	}
	if m.CreatedBy == "" {
		m.CreatedBy = sc.Actor()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	if err := m.ValidateShape(); err != nil {
		return err
	}
	if _, err := ledger.ParseMovementReason(string(m.Reason)); err != nil {
		return err
	}

	exists, err := s.products.Exists(ctx, sc, m.ProductID)
	if err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return apperror.NewNotFound("product", m.ProductID.String())
	}

	for _, loc := range []*id.ID{m.FromLocationID, m.ToLocationID} {
		if id.PtrIsNil(loc) {
			continue
		}
		exists, err := s.locations.Exists(ctx, sc, *loc)
		if err != nil {
			return fmt.Errorf("check location: %w", err)
		}
		if !exists {
			return apperror.NewNotFound("location", loc.String())
		}
	}

	return nil
}

// sourceLocation returns the location the movement decrements, if any.
func (s *Service) sourceLocation(m *ledger.Movement) *id.ID {
	switch m.Type {
	case ledger.TypeOutbound, ledger.TypeTransfer:
		return m.FromLocationID
	case ledger.TypeAdjustment:
		return m.FromLocationID
	}
	return nil
}

// destinationLocation returns the location the movement increments, if any.
func (s *Service) destinationLocation(m *ledger.Movement) *id.ID {
	switch m.Type {
	case ledger.TypeInbound, ledger.TypeTransfer:
		return m.ToLocationID
	case ledger.TypeAdjustment:
		return m.ToLocationID
	}
	return nil
}

// checkSource enforces the availability rule for the decremented location.
// Outbound legs are limited by available quantity (at rest minus reserved);
// adjustments may consume reserved stock but the at-rest quantity must never
// go negative.
func (s *Service) checkSource(m *ledger.Movement, row *projection.StockRow) error {
	switch m.Type {
	case ledger.TypeOutbound, ledger.TypeTransfer:
		available := row.AvailableQuantity()
		if available < m.Quantity {
			locID := ""
			if m.FromLocationID != nil {
				locID = m.FromLocationID.String()
			}
			return apperror.NewInsufficientStock(
				m.ProductID.String(), locID,
				m.Quantity.String(), available.String(),
			)
		}
	case ledger.TypeAdjustment:
		if row.Quantity < m.Quantity {
			return apperror.NewBusinessRule(
				"NEGATIVE_STOCK",
				"Adjustment would drive stock below zero",
			).WithDetail("at_rest", row.Quantity.String()).
				WithDetail("requested", m.Quantity.String())
		}
	}
	return nil
}

// mutateProjection applies both legs of the movement with row locks held.
// The source leg is processed first so the availability check and decrement
// are atomic.
func (s *Service) mutateProjection(ctx context.Context, sc scope.Scope, m *ledger.Movement) error {
	now := m.MovementDate

	if sourceLoc := s.sourceLocation(m); sourceLoc != nil {
		key := projection.Key{ProductID: m.ProductID, LocationID: *sourceLoc, LotID: m.LotID}
		row, err := s.rows.GetByKeyForUpdate(ctx, sc, key)
		if err != nil {
			if apperror.IsNotFound(err) {
				// Decrementing a row that was never stocked is a data
				// integrity problem for adjustments; for outbound legs it
				// reads as plain shortage.
				if m.Type == ledger.TypeAdjustment {
					return apperror.NewNotFound("stock row", key.ProductID.String()).
						WithDetail("location_id", key.LocationID.String())
				}
				empty := projection.NewStockRow(sc.TenantID, key.ProductID, key.LocationID, key.LotID)
				return s.checkSource(m, empty)
			}
			return fmt.Errorf("lock source row: %w", err)
		}

		if err := s.checkSource(m, row); err != nil {
			return err
		}

		update := projection.QuantityUpdate{
			Quantity:          row.Quantity - m.Quantity,
			ReservedQuantity:  row.ReservedQuantity,
			LastMovementDate:  &now,
			LastInventoryDate: row.LastInventoryDate,
			ExpectedVersion:   row.Version,
		}
		if err := s.rows.UpdateQuantity(ctx, sc, row, update); err != nil {
			return fmt.Errorf("decrement source row: %w", err)
		}
	}

	if destLoc := s.destinationLocation(m); destLoc != nil {
		key := projection.Key{ProductID: m.ProductID, LocationID: *destLoc, LotID: m.LotID}
		row, err := s.rows.GetByKeyForUpdate(ctx, sc, key)
		if err != nil {
			if !apperror.IsNotFound(err) {
				return fmt.Errorf("lock destination row: %w", err)
			}
			// First movement touching the key creates the row.
			row = projection.NewStockRow(sc.TenantID, m.ProductID, *destLoc, m.LotID)
			row.Quantity = m.Quantity
			row.LastMovementDate = &now
			if err := s.rows.Create(ctx, sc, row); err != nil {
				return fmt.Errorf("create destination row: %w", err)
			}
			return nil
		}

		update := projection.QuantityUpdate{
			Quantity:          row.Quantity + m.Quantity,
			ReservedQuantity:  row.ReservedQuantity,
			LastMovementDate:  &now,
			LastInventoryDate: row.LastInventoryDate,
			ExpectedVersion:   row.Version,
		}
		if err := s.rows.UpdateQuantity(ctx, sc, row, update); err != nil {
			return fmt.Errorf("increment destination row: %w", err)
		}
	}

	return nil
}

package location

import (
	"context"
	"fmt"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

// Service provides business operations for the location catalog.
type Service struct {
	repo      Repository
	txManager tx.Manager
}

// NewService creates a new location service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{repo: repo, txManager: txManager}
}

// Create creates a new location.
func (s *Service) Create(ctx context.Context, sc scope.Scope, l *Location) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if err := l.Validate(ctx); err != nil {
		return err
	}
	l.TenantID = sc.TenantID

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sc, l); err != nil {
			return fmt.Errorf("create location: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "location created", "id", l.ID, "code", l.Code)
	return nil
}

// GetByID retrieves a location.
func (s *Service) GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*Location, error) {
	return s.repo.GetByID(ctx, sc, locationID)
}

// Delete soft-deletes a location.
func (s *Service) Delete(ctx context.Context, sc scope.Scope, locationID id.ID) error {
	return s.repo.SetDeleted(ctx, sc, locationID, true)
}

// List retrieves locations with filtering.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter ListFilter) ([]*Location, error) {
	return s.repo.List(ctx, sc, filter)
}

// ListIDsByWarehouse resolves a warehouse to its location IDs.
func (s *Service) ListIDsByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID) ([]id.ID, error) {
	return s.repo.ListIDsByWarehouse(ctx, sc, warehouseID)
}

// Exists checks location existence; used by movement validation.
func (s *Service) Exists(ctx context.Context, sc scope.Scope, locationID id.ID) (bool, error) {
	return s.repo.Exists(ctx, sc, locationID)
}

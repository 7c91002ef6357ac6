package product

import (
	"context"
	"fmt"

	"stockledger/internal/core/id"
	"stockledger/internal/core/scope"
	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

// Service provides business operations for the product catalog.
type Service struct {
	repo      Repository
	txManager tx.Manager
}

// NewService creates a new product service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{repo: repo, txManager: txManager}
}

// Create creates a new product.
func (s *Service) Create(ctx context.Context, sc scope.Scope, p *Product) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if err := p.Validate(ctx); err != nil {
		return err
	}
	p.TenantID = sc.TenantID

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sc, p); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "product created", "id", p.ID, "code", p.Code)
	return nil
}

// GetByID retrieves a product.
func (s *Service) GetByID(ctx context.Context, sc scope.Scope, productID id.ID) (*Product, error) {
	return s.repo.GetByID(ctx, sc, productID)
}

// Delete soft-deletes a product.
func (s *Service) Delete(ctx context.Context, sc scope.Scope, productID id.ID) error {
	return s.repo.SetDeleted(ctx, sc, productID, true)
}

// List retrieves products with filtering.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter ListFilter) ([]*Product, error) {
	return s.repo.List(ctx, sc, filter)
}

// Exists checks product existence; used by movement validation.
func (s *Service) Exists(ctx context.Context, sc scope.Scope, productID id.ID) (bool, error) {
	return s.repo.Exists(ctx, sc, productID)
}

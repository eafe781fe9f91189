// Package supplier manages a tenant's vendors.
package supplier

import (
	"context"
	"errors"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrSupplierNotFound = errors.New("supplier not found")
)

// Patch carries merge-patch updates; nil fields are left unchanged.
type Patch struct {
	Name         *string
	ContactEmail *string
	ContactPhone *string
	Address      *string
	LeadTimeDays *int
	Notes        *string
}

// Repository defines supplier storage operations.
type Repository interface {
	Get(ctx context.Context, tenantID, supplierID string) (*model.Supplier, error)
	Create(ctx context.Context, tenantID string, s *model.Supplier) (*model.Supplier, error)
	Update(ctx context.Context, tenantID, supplierID string, patch Patch) (*model.Supplier, error)
	Delete(ctx context.Context, tenantID, supplierID string) error
	List(ctx context.Context, tenantID string) ([]*model.Supplier, error)
}

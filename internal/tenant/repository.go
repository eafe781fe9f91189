// Package tenant manages tenant provisioning, settings, and the phone
// routing rows that map inbound channel numbers back to a tenant.
package tenant

import (
	"context"
	"errors"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrRouteNotFound  = errors.New("phone route not found")
	ErrPhoneClaimed   = errors.New("phone number already claimed by another tenant")
)

// Patch carries merge-patch updates; nil fields are left unchanged.
type Patch struct {
	BusinessName    *string
	Plan            *string
	Settings        *map[string]any
	SquareConnected *bool
}

// Repository defines tenant storage operations.
type Repository interface {
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
	Create(ctx context.Context, t *model.Tenant) (*model.Tenant, error)
	Update(ctx context.Context, tenantID string, patch Patch) (*model.Tenant, error)

	// PutPhoneRoute claims a normalized phone number for a tenant. The
	// write is rejected when another tenant already owns the number.
	PutPhoneRoute(ctx context.Context, phone, tenantID string) error
	// ResolvePhone maps a raw inbound phone number to its tenant.
	ResolvePhone(ctx context.Context, phone string) (string, error)
}

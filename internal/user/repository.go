// Package user manages team member accounts within a tenant and the role
// rules governing who may manage whom.
package user

import (
	"context"
	"errors"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Repository defines user storage operations.
type Repository interface {
	Get(ctx context.Context, tenantID, userID string) (*model.User, error)
	Create(ctx context.Context, tenantID string, u *model.User) (*model.User, error)
	List(ctx context.Context, tenantID string) ([]*model.User, error)
	SetRole(ctx context.Context, tenantID, userID string, role model.Role) (*model.User, error)
	SetStatus(ctx context.Context, tenantID, userID string, status model.UserStatus) (*model.User, error)
}

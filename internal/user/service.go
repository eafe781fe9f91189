package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/counterbook/backend/internal/model"
)

// Error types for role-gated operations.
var (
	ErrForbidden  = errors.New("actor role does not permit this operation")
	ErrSelfChange = errors.New("users cannot change their own role or status")
)

// Service enforces the role hierarchy over the user repository: an actor
// may only manage users holding a strictly lower role, so owners cannot
// create peer owners and managers cannot touch each other.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Invite creates a new team member on behalf of actor.
func (s *Service) Invite(ctx context.Context, tenantID string, actor *model.User, invitee *model.User) (*model.User, error) {
	if actor.Status != model.UserActive {
		return nil, ErrForbidden
	}
	invitee.ApplyDefaults()
	if !actor.Role.CanManage(invitee.Role) {
		return nil, fmt.Errorf("%w: %s cannot invite %s", ErrForbidden, actor.Role, invitee.Role)
	}
	invitee.InvitedBy = actor.ID

	created, err := s.repo.Create(ctx, tenantID, invitee)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user invited",
		"tenant_id", tenantID,
		"user_id", created.ID,
		"role", created.Role,
		"invited_by", actor.ID,
	)
	return created, nil
}

// List returns the tenant's team members.
func (s *Service) List(ctx context.Context, tenantID string) ([]*model.User, error) {
	return s.repo.List(ctx, tenantID)
}

// ChangeRole moves a user to a new role. The actor must outrank both the
// user's current role and the new one, and may not change their own.
func (s *Service) ChangeRole(ctx context.Context, tenantID string, actor *model.User, userID string, role model.Role) (*model.User, error) {
	if actor.ID == userID {
		return nil, ErrSelfChange
	}
	target, err := s.repo.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanManage(target.Role) || !actor.Role.CanManage(role) {
		return nil, fmt.Errorf("%w: %s cannot move %s to %s", ErrForbidden, actor.Role, target.Role, role)
	}
	return s.repo.SetRole(ctx, tenantID, userID, role)
}

// Deactivate disables a user's account. Accounts are never deleted, so
// their audit trail survives.
func (s *Service) Deactivate(ctx context.Context, tenantID string, actor *model.User, userID string) (*model.User, error) {
	if actor.ID == userID {
		return nil, ErrSelfChange
	}
	target, err := s.repo.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanManage(target.Role) {
		return nil, fmt.Errorf("%w: %s cannot deactivate %s", ErrForbidden, actor.Role, target.Role)
	}
	u, err := s.repo.SetStatus(ctx, tenantID, userID, model.UserInactive)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user deactivated",
		"tenant_id", tenantID,
		"user_id", userID,
		"by", actor.ID,
	)
	return u, nil
}

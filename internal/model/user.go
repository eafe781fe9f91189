package model

import (
	"strings"
	"time"
)

// Role is a team member's privilege level within a tenant.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Level orders roles by privilege; unknown roles rank below staff.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleManager:
		return 2
	case RoleStaff:
		return 1
	}
	return 0
}

// CanManage reports whether r may manage users holding target. Only
// strictly lower roles are manageable, so owners cannot create peers.
func (r Role) CanManage(target Role) bool {
	return r.Level() > target.Level()
}

// UserStatus is active or inactive; users are deactivated, never deleted.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// User is a team member account within a tenant.
type User struct {
	ID          string     `dynamodbav:"id"`
	Email       string     `dynamodbav:"email"`
	TenantID    string     `dynamodbav:"tenant_id"`
	Role        Role       `dynamodbav:"role"`
	DisplayName string     `dynamodbav:"display_name,omitempty"`
	Status      UserStatus `dynamodbav:"status"`
	InvitedBy   string     `dynamodbav:"invited_by,omitempty"`
	CreatedAt   time.Time  `dynamodbav:"created_at"`
	UpdatedAt   time.Time  `dynamodbav:"updated_at"`
}

// ApplyDefaults fills optional fields.
func (u *User) ApplyDefaults() {
	if u.Role == "" {
		u.Role = RoleStaff
	}
	if u.Status == "" {
		u.Status = UserActive
	}
	if u.DisplayName == "" {
		if at := strings.Index(u.Email, "@"); at > 0 {
			u.DisplayName = u.Email[:at]
		}
	}
}

// Validate checks required fields and enumerations.
func (u *User) Validate() error {
	if !validEmail(u.Email) {
		return invalid("email", "must be a valid email address")
	}
	switch u.Role {
	case RoleOwner, RoleManager, RoleStaff:
	default:
		return invalidf("role", "unknown role %q", u.Role)
	}
	switch u.Status {
	case UserActive, UserInactive:
	default:
		return invalidf("status", "unknown status %q", u.Status)
	}
	return nil
}

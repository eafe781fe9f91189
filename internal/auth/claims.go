// Package auth extracts the caller's identity from the API Gateway JWT
// authorizer and enforces role requirements.
package auth

import (
	"errors"

	"github.com/aws/aws-lambda-go/events"

	"github.com/counterbook/backend/internal/model"
)

// Error types for request authorization.
var (
	ErrUnauthenticated = errors.New("missing or invalid tenant claims")
	ErrForbidden       = errors.New("insufficient role")
)

// Cognito custom attribute claim names.
const (
	claimTenantID = "custom:tenant_id"
	claimRole     = "custom:role"
)

// Claims is the verified caller identity. Every operation scopes its table
// access to Claims.TenantID; there is no cross-tenant request path.
type Claims struct {
	Subject  string
	Email    string
	TenantID string
	Role     model.Role
}

// FromRequest reads the JWT claims the gateway authorizer attached to the
// request. The authorizer has already verified the token signature; only
// claim presence is checked here.
func FromRequest(req events.APIGatewayV2HTTPRequest) (Claims, error) {
	if req.RequestContext.Authorizer == nil || req.RequestContext.Authorizer.JWT == nil {
		return Claims{}, ErrUnauthenticated
	}
	raw := req.RequestContext.Authorizer.JWT.Claims

	claims := Claims{
		Subject:  raw["sub"],
		Email:    raw["email"],
		TenantID: raw[claimTenantID],
		Role:     model.Role(raw[claimRole]),
	}
	if claims.TenantID == "" {
		return Claims{}, ErrUnauthenticated
	}
	if claims.Role == "" {
		claims.Role = model.RoleStaff
	}
	return claims, nil
}

// Require checks that the caller holds at least the given role.
func (c Claims) Require(min model.Role) error {
	if c.Role.Level() < min.Level() {
		return ErrForbidden
	}
	return nil
}

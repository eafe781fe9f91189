package auth

import (
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/counterbook/backend/internal/model"
)

func requestWithClaims(claims map[string]string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			Authorizer: &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
				JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
					Claims: claims,
				},
			},
		},
	}
}

func TestFromRequest(t *testing.T) {
	t.Run("extracts the tenant and role", func(t *testing.T) {
		claims, err := FromRequest(requestWithClaims(map[string]string{
			"sub":              "user-1",
			"email":            "owner@example.com",
			"custom:tenant_id": "tenant-1",
			"custom:role":      "owner",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claims.TenantID != "tenant-1" {
			t.Errorf("unexpected tenant %s", claims.TenantID)
		}
		if claims.Role != model.RoleOwner {
			t.Errorf("unexpected role %s", claims.Role)
		}
	})

	t.Run("defaults a missing role to staff", func(t *testing.T) {
		claims, err := FromRequest(requestWithClaims(map[string]string{
			"sub":              "user-1",
			"custom:tenant_id": "tenant-1",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if claims.Role != model.RoleStaff {
			t.Errorf("expected staff, got %s", claims.Role)
		}
	})

	t.Run("rejects a request without a tenant claim", func(t *testing.T) {
		_, err := FromRequest(requestWithClaims(map[string]string{"sub": "user-1"}))
		if !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
	})

	t.Run("rejects a request without an authorizer", func(t *testing.T) {
		_, err := FromRequest(events.APIGatewayV2HTTPRequest{})
		if !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}
	})
}

func TestRequire(t *testing.T) {
	cases := []struct {
		name string
		role model.Role
		min  model.Role
		ok   bool
	}{
		{"owner passes an owner gate", model.RoleOwner, model.RoleOwner, true},
		{"manager passes a staff gate", model.RoleManager, model.RoleStaff, true},
		{"staff fails a manager gate", model.RoleStaff, model.RoleManager, false},
		{"unknown role fails every gate", model.Role("intern"), model.RoleStaff, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Claims{Role: tc.role}.Require(tc.min)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrForbidden) {
				t.Errorf("expected ErrForbidden, got %v", err)
			}
		})
	}
}

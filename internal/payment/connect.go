package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/counterbook/backend/internal/model"
	"github.com/counterbook/backend/internal/tenant"
)

// Connector runs the Square OAuth lifecycle for tenants.
type Connector struct {
	square  SquareAPI
	store   Repository
	tenants tenant.Repository
	logger  *slog.Logger
}

// NewConnector creates a Connector.
func NewConnector(square SquareAPI, store Repository, tenants tenant.Repository, logger *slog.Logger) *Connector {
	return &Connector{square: square, store: store, tenants: tenants, logger: logger}
}

// ConnectionStatus is the tenant-visible view of a Square link.
type ConnectionStatus struct {
	Connected   bool      `json:"connected"`
	MerchantID  string    `json:"merchant_id,omitempty"`
	LocationID  string    `json:"location_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// HandleCallback exchanges the OAuth code, stores the connection, and flips
// the tenant's connected flag. The state parameter carries the tenant id
// through the redirect.
func (c *Connector) HandleCallback(ctx context.Context, code, state string) (*model.SquareConnection, error) {
	if code == "" || state == "" {
		return nil, &model.ValidationError{Field: "code", Reason: "code and state are required"}
	}
	tenantID := state

	token, err := c.square.ObtainToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange oauth code: %w", err)
	}
	locationID, err := c.square.PrimaryLocation(ctx, token.AccessToken)
	if err != nil {
		c.logger.WarnContext(ctx, "primary location lookup failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	now := time.Now().UTC()
	conn := &model.SquareConnection{
		TenantID:     tenantID,
		MerchantID:   token.MerchantID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		LocationID:   locationID,
		ConnectedAt:  now,
		UpdatedAt:    now,
	}
	if err := c.store.PutConnection(ctx, conn); err != nil {
		return nil, err
	}

	connected := true
	if _, err := c.tenants.Update(ctx, tenantID, tenant.Patch{SquareConnected: &connected}); err != nil {
		// The connection row is authoritative; the flag is denormalized
		// convenience, so its failure is not fatal.
		c.logger.WarnContext(ctx, "tenant connected flag not updated",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	c.logger.InfoContext(ctx, "square account connected",
		"tenant_id", tenantID,
		"merchant_id", token.MerchantID,
	)
	return conn, nil
}

// Status reports whether the tenant has a Square account linked.
func (c *Connector) Status(ctx context.Context, tenantID string) (*ConnectionStatus, error) {
	conn, err := c.store.GetConnection(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			return &ConnectionStatus{Connected: false}, nil
		}
		return nil, err
	}
	return &ConnectionStatus{
		Connected:   true,
		MerchantID:  conn.MerchantID,
		LocationID:  conn.LocationID,
		ConnectedAt: conn.ConnectedAt,
	}, nil
}

// Disconnect revokes the token with Square and removes the connection.
// Revocation is best effort; the local unlink always proceeds.
func (c *Connector) Disconnect(ctx context.Context, tenantID string) error {
	conn, err := c.store.GetConnection(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := c.square.RevokeToken(ctx, conn.AccessToken); err != nil {
		c.logger.WarnContext(ctx, "token revocation failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}
	if err := c.store.DeleteConnection(ctx, tenantID); err != nil {
		return err
	}

	connected := false
	if _, err := c.tenants.Update(ctx, tenantID, tenant.Patch{SquareConnected: &connected}); err != nil {
		c.logger.WarnContext(ctx, "tenant connected flag not updated",
			"tenant_id", tenantID,
			"error", err,
		)
	}
	c.logger.InfoContext(ctx, "square account disconnected", "tenant_id", tenantID)
	return nil
}

// Package purchasing manages purchase orders and their lifecycle, including
// the atomic stock intake when an order is received.
package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrOrderNotFound = errors.New("purchase order not found")
)

// ListOptions controls purchase order listing.
type ListOptions struct {
	// Status filters the page to one lifecycle state when set.
	Status    model.POStatus
	Limit     int32
	NextToken string
}

// Page is one page of purchase orders plus the continuation token.
type Page struct {
	Orders    []*model.PurchaseOrder
	NextToken string
}

// Repository defines purchase order storage operations.
type Repository interface {
	Get(ctx context.Context, tenantID, orderID string) (*model.PurchaseOrder, error)
	Create(ctx context.Context, tenantID string, po *model.PurchaseOrder) (*model.PurchaseOrder, error)
	// UpdateDraft replaces the lines and notes of an order still in draft.
	UpdateDraft(ctx context.Context, tenantID, orderID string, items []model.OrderItem, notes string) (*model.PurchaseOrder, error)
	// Transition moves the order from its current status to a new one,
	// enforcing the lifecycle state machine with a conditional write.
	Transition(ctx context.Context, tenantID, orderID string, to model.POStatus) (*model.PurchaseOrder, error)
	List(ctx context.Context, tenantID string, opts ListOptions) (*Page, error)
	// BuildTransitionItem returns the transaction item moving an order
	// between statuses, for composition into a multi-item write. The
	// from-status condition is re-checked at commit time.
	BuildTransitionItem(tenantID, orderID string, from, to model.POStatus, now time.Time) types.TransactWriteItem
}

// Package inventory manages a tenant's products and stock levels.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrProductNotFound = errors.New("product not found")
)

// InsufficientStockError reports a stock decrement that would drive a
// product's quantity negative.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// ProductPatch carries merge-patch updates; nil fields are left unchanged.
// Quantity is deliberately absent: use SetQuantity or AdjustQuantity so
// absolute and relative changes are never ambiguous.
type ProductPatch struct {
	Name             *string
	Category         *string
	UnitCost         *model.Money
	ReorderThreshold *int
	SupplierID       *string
	SKU              *string
	Unit             *string
	Notes            *string
}

// ListOptions controls product listing.
type ListOptions struct {
	// Category filters via the category index instead of scanning.
	Category  string
	Limit     int32
	NextToken string
}

// Page is one page of products plus the continuation token for the next.
type Page struct {
	Products  []*model.Product
	NextToken string
}

// Repository defines product storage operations.
type Repository interface {
	Get(ctx context.Context, tenantID, productID string) (*model.Product, error)
	Create(ctx context.Context, tenantID string, p *model.Product) (*model.Product, error)
	Put(ctx context.Context, tenantID string, p *model.Product) error
	Update(ctx context.Context, tenantID, productID string, patch ProductPatch) (*model.Product, error)
	Delete(ctx context.Context, tenantID, productID string) error
	List(ctx context.Context, tenantID string, opts ListOptions) (*Page, error)
	ListAll(ctx context.Context, tenantID string) ([]*model.Product, error)
	SetQuantity(ctx context.Context, tenantID, productID string, quantity int) (*model.Product, error)
	AdjustQuantity(ctx context.Context, tenantID, productID string, delta int) (*model.Product, error)
	BuildAdjustQuantityItem(tenantID, productID string, delta int, now time.Time) types.TransactWriteItem
}

// Package transaction stores the append-only sales ledger and its
// aggregations.
package transaction

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
)

// ListOptions controls ledger listing. Dates are YYYY-MM-DD and inclusive;
// either bound may be empty.
type ListOptions struct {
	StartDate string
	EndDate   string
	Limit     int32
	NextToken string
}

// Page is one page of transactions plus the continuation token.
type Page struct {
	Transactions []*model.Transaction
	NextToken    string
}

// Patch carries the mutable fields of a ledger record. The lines and total
// are immutable once written.
type Patch struct {
	Status *model.TxnStatus
	Notes  *string
}

// DailySummary aggregates one day of sales.
type DailySummary struct {
	Date             string                              `json:"date"`
	TotalRevenue     model.Money                         `json:"total_revenue"`
	TransactionCount int                                 `json:"transaction_count"`
	ItemsSold        int                                 `json:"items_sold"`
	RevenueByMethod  map[model.PaymentMethod]model.Money `json:"revenue_by_payment_method"`
}

// Repository defines ledger storage operations.
type Repository interface {
	// Get finds a transaction by its bare id, walking the ledger pages.
	Get(ctx context.Context, tenantID, transactionID string) (*model.Transaction, error)
	// FindByIdempotencyKey returns the recent transaction recorded under
	// the given client key, or ErrTransactionNotFound.
	FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.Transaction, error)
	List(ctx context.Context, tenantID string, opts ListOptions) (*Page, error)
	Update(ctx context.Context, tenantID, transactionID string, patch Patch) (*model.Transaction, error)
	Summarize(ctx context.Context, tenantID, date string) (*DailySummary, error)
	// BuildPutItem returns the transaction item writing a new ledger
	// record, for composition into a multi-item write.
	BuildPutItem(tenantID string, t *model.Transaction) (types.TransactWriteItem, error)
}

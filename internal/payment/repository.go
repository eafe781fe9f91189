// Package payment stores processor payments and Square connections, and
// reconciles payment status from processor webhooks.
package payment

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrConnectionNotFound = errors.New("square connection not found")
)

// Located is a payment found through the external-id index, along with the
// tenant that owns it. Webhooks carry no tenant context, so the index
// lookup recovers it.
type Located struct {
	Payment  *model.Payment
	TenantID string
}

// Repository defines payment and connection storage operations.
type Repository interface {
	Get(ctx context.Context, tenantID, paymentID string) (*model.Payment, error)
	// FindBySquarePaymentID resolves a processor payment id to the stored
	// payment and its tenant via the external-id index.
	FindBySquarePaymentID(ctx context.Context, squarePaymentID string) (*Located, error)
	// SetStatus moves a payment to a new settlement status. Applying the
	// status it already holds is a no-op, so webhook redelivery is safe.
	SetStatus(ctx context.Context, tenantID, paymentID string, status model.PaymentStatus) (*model.Payment, error)
	// BuildPutItem returns the transaction item writing a new payment
	// record, for composition into a multi-item write.
	BuildPutItem(tenantID string, p *model.Payment) (types.TransactWriteItem, error)

	GetConnection(ctx context.Context, tenantID string) (*model.SquareConnection, error)
	PutConnection(ctx context.Context, conn *model.SquareConnection) error
	DeleteConnection(ctx context.Context, tenantID string) error
}

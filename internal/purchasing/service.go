package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/dynamo"
	"github.com/counterbook/backend/internal/inventory"
	"github.com/counterbook/backend/internal/model"
)

// StockAdjuster builds the per-product stock mutation items composed into
// the receive transaction.
type StockAdjuster interface {
	BuildAdjustQuantityItem(tenantID, productID string, delta int, now time.Time) types.TransactWriteItem
}

// Service executes the purchase order operations that span entities.
type Service struct {
	orders    Repository
	stock     StockAdjuster
	client    dynamo.Client
	tableName string
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(orders Repository, stock StockAdjuster, client dynamo.Client, tableName string, logger *slog.Logger) *Service {
	return &Service{
		orders:    orders,
		stock:     stock,
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Receive marks a sent order received and increments the stock of every
// ordered product in one transaction. Either the status flips and all
// quantities move, or nothing changes.
func (s *Service) Receive(ctx context.Context, tenantID, orderID string) (*model.PurchaseOrder, error) {
	po, err := s.orders.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(po.Status, model.POStatusReceived) {
		return nil, &model.StateTransitionError{From: po.Status, To: model.POStatusReceived}
	}

	now := time.Now().UTC()
	items := make([]types.TransactWriteItem, 0, len(po.Items)+1)
	items = append(items, s.orders.BuildTransitionItem(tenantID, orderID, po.Status, model.POStatusReceived, now))
	for _, line := range po.Items {
		items = append(items, s.stock.BuildAdjustQuantityItem(tenantID, line.ProductID, line.Quantity, now))
	}

	_, err = dynamo.WithRetry(ctx, func() (*ddb.TransactWriteItemsOutput, error) {
		return s.client.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{
			TransactItems: items,
		})
	})
	if err != nil {
		if dynamo.TransactionConditionFailed(err) {
			// The status moved under us or a product disappeared.
			current, getErr := s.orders.Get(ctx, tenantID, orderID)
			if getErr != nil {
				return nil, getErr
			}
			if current.Status != po.Status {
				return nil, &model.StateTransitionError{From: current.Status, To: model.POStatusReceived}
			}
			return nil, inventory.ErrProductNotFound
		}
		return nil, fmt.Errorf("receive purchase order: %w", err)
	}

	po.Status = model.POStatusReceived
	po.UpdatedAt = now
	s.logger.InfoContext(ctx, "purchase order received",
		"tenant_id", tenantID,
		"order_id", orderID,
		"lines", len(po.Items),
	)
	return po, nil
}

var _ StockAdjuster = (*inventory.DynamoDBRepository)(nil)

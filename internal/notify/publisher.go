// Package notify publishes stock alerts to an async queue for out-of-band
// delivery.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/counterbook/backend/internal/model"
)

// LowStockAlert is the queue message emitted when a product crosses its
// reorder threshold.
type LowStockAlert struct {
	TenantID         string    `json:"tenant_id"`
	ProductID        string    `json:"product_id"`
	ProductName      string    `json:"product_name"`
	Quantity         int       `json:"quantity"`
	ReorderThreshold int       `json:"reorder_threshold"`
	DetectedAt       time.Time `json:"detected_at"`
}

// Publisher publishes stock alerts.
type Publisher interface {
	PublishLowStock(ctx context.Context, tenantID string, product *model.Product) error
}

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes stock alerts to an SQS queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	now      func() time.Time
}

// NewSQSPublisher creates a new SQSPublisher.
func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// PublishLowStock sends a low-stock alert for the product.
func (p *SQSPublisher) PublishLowStock(ctx context.Context, tenantID string, product *model.Product) error {
	body, err := json.Marshal(LowStockAlert{
		TenantID:         tenantID,
		ProductID:        product.ID,
		ProductName:      product.Name,
		Quantity:         product.Quantity,
		ReorderThreshold: product.ReorderThreshold,
		DetectedAt:       p.now().UTC(),
	})
	if err != nil {
		return err
	}

	bodyStr := string(body)
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &bodyStr,
	})
	if err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "low stock alert published",
		"tenant_id", tenantID,
		"product_id", product.ID,
		"quantity", product.Quantity,
	)
	return nil
}

package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/counterbook/backend/internal/model"
)

// ErrBadSignature rejects a webhook whose HMAC does not match.
var ErrBadSignature = errors.New("webhook signature mismatch")

// Webhook event types the processor reconciles.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentUpdated   = "payment.updated"
	EventRefundCreated    = "refund.created"
	EventRefundUpdated    = "refund.updated"
)

// squareStatusMap translates Square settlement states to ours. Approved
// card payments are still pending until capture completes.
var squareStatusMap = map[string]model.PaymentStatus{
	"completed": model.PaymentCompleted,
	"approved":  model.PaymentPending,
	"pending":   model.PaymentPending,
	"canceled":  model.PaymentCancelled,
	"cancelled": model.PaymentCancelled,
	"failed":    model.PaymentFailed,
}

// WebhookEvent is the decoded Square webhook envelope.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			Payment struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
			Refund struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"refund"`
		} `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the Square webhook HMAC: base64(HMAC-SHA256(key,
// notification_url + body)).
func VerifySignature(body []byte, signature, notificationURL, key string) bool {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookProcessor reconciles processor webhook events into stored payment
// records.
type WebhookProcessor struct {
	payments     Repository
	signatureKey string
	webhookURL   string
	logger       *slog.Logger
}

// NewWebhookProcessor creates a WebhookProcessor. An empty signatureKey
// disables verification, for local development only.
func NewWebhookProcessor(payments Repository, signatureKey, webhookURL string, logger *slog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		payments:     payments,
		signatureKey: signatureKey,
		webhookURL:   webhookURL,
		logger:       logger,
	}
}

// Process verifies and applies one webhook delivery. Unknown event types
// and payments we never recorded are acknowledged without effect; Square
// retries anything else.
func (p *WebhookProcessor) Process(ctx context.Context, body []byte, signature string) error {
	if p.signatureKey != "" {
		if !VerifySignature(body, signature, p.webhookURL, p.signatureKey) {
			return ErrBadSignature
		}
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode webhook body: %w", err)
	}

	switch event.Type {
	case EventPaymentCompleted:
		return p.apply(ctx, event.Data.Object.Payment.ID, model.PaymentCompleted)
	case EventPaymentUpdated:
		status, ok := squareStatusMap[strings.ToLower(event.Data.Object.Payment.Status)]
		if !ok {
			p.logger.WarnContext(ctx, "unknown square payment status",
				"status", event.Data.Object.Payment.Status,
			)
			return nil
		}
		return p.apply(ctx, event.Data.Object.Payment.ID, status)
	case EventRefundCreated, EventRefundUpdated:
		return p.apply(ctx, event.Data.Object.Refund.PaymentID, model.PaymentRefunded)
	default:
		p.logger.DebugContext(ctx, "webhook event ignored", "type", event.Type)
		return nil
	}
}

func (p *WebhookProcessor) apply(ctx context.Context, squarePaymentID string, status model.PaymentStatus) error {
	if squarePaymentID == "" {
		return nil
	}
	located, err := p.payments.FindBySquarePaymentID(ctx, squarePaymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			// A payment taken outside this system; nothing to reconcile.
			p.logger.InfoContext(ctx, "webhook for untracked payment",
				"square_payment_id", squarePaymentID,
			)
			return nil
		}
		return err
	}

	if _, err := p.payments.SetStatus(ctx, located.TenantID, located.Payment.ID, status); err != nil {
		return fmt.Errorf("reconcile payment %s: %w", located.Payment.ID, err)
	}
	p.logger.InfoContext(ctx, "payment reconciled",
		"tenant_id", located.TenantID,
		"payment_id", located.Payment.ID,
		"status", status,
	)
	return nil
}

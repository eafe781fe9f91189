// Package sales records sales atomically: the ledger record, the optional
// processor payment, and the stock decrement for every line commit or fail
// together.
package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/counterbook/backend/internal/dynamo"
	"github.com/counterbook/backend/internal/inventory"
	"github.com/counterbook/backend/internal/model"
	"github.com/counterbook/backend/internal/notify"
	"github.com/counterbook/backend/internal/payment"
	"github.com/counterbook/backend/internal/transaction"
)

// ErrSquareNotConnected rejects a card sale for a tenant with no linked
// Square account.
var ErrSquareNotConnected = errors.New("square account not connected")

// Request is one sale to record.
type Request struct {
	Items         []model.SaleItem
	PaymentMethod model.PaymentMethod
	// SourceID is the card nonce for processor-backed methods.
	SourceID       string
	Currency       string
	Notes          string
	IdempotencyKey string
}

// Result is the recorded sale. AlreadyRecorded is set when the idempotency
// key matched an earlier sale and nothing new was written.
type Result struct {
	Transaction     *model.Transaction
	Payment         *model.Payment
	AlreadyRecorded bool
}

// Recorder records sales.
type Recorder struct {
	ledger    transaction.Repository
	stock     *inventory.DynamoDBRepository
	payments  payment.Repository
	square    payment.SquareAPI
	alerts    notify.Publisher
	client    dynamo.Client
	tableName string
	logger    *slog.Logger
}

// WithAlerts enables low-stock alerting after each recorded sale.
func (r *Recorder) WithAlerts(alerts notify.Publisher) *Recorder {
	r.alerts = alerts
	return r
}

// NewRecorder creates a Recorder.
func NewRecorder(
	ledger transaction.Repository,
	stock *inventory.DynamoDBRepository,
	payments payment.Repository,
	square payment.SquareAPI,
	client dynamo.Client,
	tableName string,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		ledger:    ledger,
		stock:     stock,
		payments:  payments,
		square:    square,
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Record writes one sale. Either every effect lands, or none do: the
// ledger record, the payment record for card sales, and each product's
// stock decrement share one transaction whose conditions re-check stock at
// commit time.
func (r *Recorder) Record(ctx context.Context, tenantID string, req Request) (*Result, error) {
	txn := &model.Transaction{
		Items:          req.Items,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
		Status:         model.TxnConfirmed,
		Total:          totalOf(req.Items),
	}
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := r.ledger.FindByIdempotencyKey(ctx, tenantID, req.IdempotencyKey)
		if err == nil {
			return &Result{Transaction: existing, AlreadyRecorded: true}, nil
		}
		if !errors.Is(err, transaction.ErrTransactionNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	txn.ID = uuid.NewString()
	txn.CreatedAt = now

	var pay *model.Payment
	if req.PaymentMethod.ProcessorBacked() {
		var err error
		pay, err = r.charge(ctx, tenantID, txn, req, now)
		if err != nil {
			return nil, err
		}
		txn.SquarePaymentID = pay.SquarePaymentID
	}

	items, err := r.buildItems(tenantID, txn, pay, now)
	if err != nil {
		return nil, err
	}

	_, err = dynamo.WithRetry(ctx, func() (*ddb.TransactWriteItemsOutput, error) {
		return r.client.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{
			TransactItems: items,
		})
	})
	if err != nil {
		if dynamo.TransactionConditionFailed(err) {
			return nil, r.stockFailure(ctx, tenantID, txn, pay != nil, err)
		}
		return nil, fmt.Errorf("record sale: %w", err)
	}

	r.logger.InfoContext(ctx, "sale recorded",
		"tenant_id", tenantID,
		"transaction_id", txn.ID,
		"lines", len(txn.Items),
		"total", txn.Total.String(),
		"payment_method", txn.PaymentMethod,
	)
	r.alertLowStock(ctx, tenantID, txn)
	return &Result{Transaction: txn, Payment: pay}, nil
}

// alertLowStock publishes an alert for each sold product now at or below
// its reorder threshold. Alerting is best effort; the sale already stands.
func (r *Recorder) alertLowStock(ctx context.Context, tenantID string, txn *model.Transaction) {
	if r.alerts == nil {
		return
	}
	for _, line := range txn.Items {
		p, err := r.stock.Get(ctx, tenantID, line.ProductID)
		if err != nil || !p.LowStock() {
			continue
		}
		if err := r.alerts.PublishLowStock(ctx, tenantID, p); err != nil {
			r.logger.WarnContext(ctx, "low stock alert not published",
				"tenant_id", tenantID,
				"product_id", p.ID,
				"error", err,
			)
		}
	}
}

// charge runs the card payment with Square before anything is written
// locally. A declined charge aborts the sale with no stored effects.
func (r *Recorder) charge(ctx context.Context, tenantID string, txn *model.Transaction, req Request, now time.Time) (*model.Payment, error) {
	if req.SourceID == "" {
		return nil, &model.ValidationError{Field: "source_id", Reason: "required for card payments"}
	}
	conn, err := r.payments.GetConnection(ctx, tenantID)
	if err != nil {
		if errors.Is(err, payment.ErrConnectionNotFound) {
			return nil, ErrSquareNotConnected
		}
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	charge, err := r.square.CreatePayment(ctx, payment.ChargeRequest{
		AccessToken:    conn.AccessToken,
		SourceID:       req.SourceID,
		IdempotencyKey: txn.ID,
		AmountCents:    txn.Total.Cents(),
		Currency:       currency,
		LocationID:     conn.LocationID,
		Note:           req.Notes,
	})
	if err != nil {
		return nil, err
	}

	sourceType := "card_present"
	if strings.HasPrefix(req.SourceID, "cnon:") {
		sourceType = "card_online"
	}
	status, ok := map[string]model.PaymentStatus{
		"COMPLETED": model.PaymentCompleted,
		"APPROVED":  model.PaymentPending,
		"PENDING":   model.PaymentPending,
	}[charge.Status]
	if !ok {
		status = model.PaymentCompleted
	}

	return &model.Payment{
		ID:              uuid.NewString(),
		TransactionID:   txn.ID,
		SquarePaymentID: charge.ID,
		Amount:          txn.Total,
		Currency:        currency,
		Status:          status,
		SourceType:      sourceType,
		CardBrand:       charge.CardBrand,
		CardLast4:       charge.CardLast4,
		ReceiptURL:      charge.ReceiptURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// buildItems composes the transaction: ledger put, optional payment put,
// then one conditional decrement per line in line order.
func (r *Recorder) buildItems(tenantID string, txn *model.Transaction, pay *model.Payment, now time.Time) ([]types.TransactWriteItem, error) {
	items := make([]types.TransactWriteItem, 0, len(txn.Items)+2)

	ledgerPut, err := r.ledger.BuildPutItem(tenantID, txn)
	if err != nil {
		return nil, err
	}
	items = append(items, ledgerPut)

	if pay != nil {
		payPut, err := r.payments.BuildPutItem(tenantID, pay)
		if err != nil {
			return nil, err
		}
		items = append(items, payPut)
	}

	for _, line := range txn.Items {
		items = append(items, r.stock.BuildAdjustQuantityItem(tenantID, line.ProductID, -line.Quantity, now))
	}
	return items, nil
}

// stockFailure maps a cancelled transaction back to the offending line
// using the per-item cancellation reasons.
func (r *Recorder) stockFailure(ctx context.Context, tenantID string, txn *model.Transaction, hasPayment bool, cause error) error {
	offset := 1
	if hasPayment {
		offset = 2
	}

	var tce *types.TransactionCanceledException
	if errors.As(cause, &tce) {
		for i, reason := range tce.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
				continue
			}
			line := i - offset
			if line < 0 || line >= len(txn.Items) {
				continue
			}
			productID := txn.Items[line].ProductID
			p, err := r.stock.Get(ctx, tenantID, productID)
			if err != nil {
				return err
			}
			return &inventory.InsufficientStockError{
				ProductID: productID,
				Available: p.Quantity,
				Requested: txn.Items[line].Quantity,
			}
		}
	}
	return fmt.Errorf("record sale: %w", cause)
}

func totalOf(items []model.SaleItem) model.Money {
	var total model.Money
	for _, item := range items {
		total = total.Add(item.UnitPrice.MulInt(item.Quantity))
	}
	return total
}

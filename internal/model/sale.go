package model

import (
	"time"
)

// PaymentMethod identifies how a sale was paid.
type PaymentMethod string

const (
	PayCash       PaymentMethod = "cash"
	PayCard       PaymentMethod = "card"
	PayCardOnline PaymentMethod = "card_online"
	PayOther      PaymentMethod = "other"
)

// ProcessorBacked reports whether the method settles through the payment
// processor and therefore produces a Payment record.
func (m PaymentMethod) ProcessorBacked() bool {
	return m == PayCard || m == PayCardOnline
}

// TxnStatus is the transaction confirmation state.
type TxnStatus string

const (
	TxnPending   TxnStatus = "pending"
	TxnConfirmed TxnStatus = "confirmed"
)

// MaxSaleLineItems bounds the products per sale. A DynamoDB transaction
// carries at most 100 items; one is the transaction record and one may be
// the payment record.
const MaxSaleLineItems = 98

// SaleItem is one line of a recorded sale.
type SaleItem struct {
	ProductID   string `dynamodbav:"product_id"`
	ProductName string `dynamodbav:"product_name"`
	Quantity    int    `dynamodbav:"quantity"`
	UnitPrice   Money  `dynamodbav:"unit_price"`
}

// Transaction is an append-only sales record. Its composite id is
// "<iso_timestamp>#<id>" so the sort key orders newest-first under a
// descending scan.
type Transaction struct {
	ID              string        `dynamodbav:"id"`
	Items           []SaleItem    `dynamodbav:"items"`
	Total           Money         `dynamodbav:"total"`
	PaymentMethod   PaymentMethod `dynamodbav:"payment_method"`
	Status          TxnStatus     `dynamodbav:"status,omitempty"`
	SquarePaymentID string        `dynamodbav:"square_payment_id,omitempty"`
	IdempotencyKey  string        `dynamodbav:"idempotency_key,omitempty"`
	Notes           string        `dynamodbav:"notes,omitempty"`
	CreatedAt       time.Time     `dynamodbav:"created_at"`
}

// Validate checks required fields and constraints.
func (t *Transaction) Validate() error {
	if len(t.Items) == 0 {
		return invalid("items", "must not be empty")
	}
	if len(t.Items) > MaxSaleLineItems {
		return invalidf("items", "at most %d line items per sale; got %d", MaxSaleLineItems, len(t.Items))
	}
	for i, item := range t.Items {
		if item.ProductID == "" {
			return invalidf("items", "line %d product_id is required", i)
		}
		if item.Quantity <= 0 {
			return invalidf("items", "line %d quantity must be positive; got %d", i, item.Quantity)
		}
		if item.UnitPrice.Sign() < 0 {
			return invalidf("items", "line %d unit_price must not be negative", i)
		}
	}
	if t.Total.Sign() < 0 {
		return invalid("total", "must not be negative")
	}
	switch t.PaymentMethod {
	case PayCash, PayCard, PayCardOnline, PayOther:
	default:
		return invalidf("payment_method", "unknown method %q", t.PaymentMethod)
	}
	return nil
}

// PaymentStatus is the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// ValidPaymentStatus reports whether s is a known status.
func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// Payment records a settlement against a transaction. Created once, its
// status then transitions via processor webhooks.
type Payment struct {
	ID              string        `dynamodbav:"id"`
	TransactionID   string        `dynamodbav:"transaction_id"`
	SquarePaymentID string        `dynamodbav:"square_payment_id"`
	Amount          Money         `dynamodbav:"amount"`
	Currency        string        `dynamodbav:"currency"`
	Status          PaymentStatus `dynamodbav:"status"`
	SourceType      string        `dynamodbav:"source_type,omitempty"`
	CardBrand       string        `dynamodbav:"card_brand,omitempty"`
	CardLast4       string        `dynamodbav:"card_last4,omitempty"`
	ReceiptURL      string        `dynamodbav:"receipt_url,omitempty"`
	CreatedAt       time.Time     `dynamodbav:"created_at"`
	UpdatedAt       time.Time     `dynamodbav:"updated_at"`
}

// Validate checks required fields and constraints.
func (p *Payment) Validate() error {
	if p.TransactionID == "" {
		return invalid("transaction_id", "required")
	}
	if p.SquarePaymentID == "" {
		return invalid("square_payment_id", "required")
	}
	if p.Amount.Sign() < 0 {
		return invalid("amount", "must not be negative")
	}
	if p.Currency == "" {
		return invalid("currency", "required")
	}
	if !ValidPaymentStatus(p.Status) {
		return invalidf("status", "unknown status %q", p.Status)
	}
	return nil
}

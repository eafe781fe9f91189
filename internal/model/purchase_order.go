package model

import (
	"time"
)

// POStatus is the purchase order lifecycle state.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusSent      POStatus = "sent"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

// poTransitions defines the allowed state machine: draft→sent→received,
// any non-terminal state→cancelled. Received and cancelled are terminal.
var poTransitions = map[POStatus][]POStatus{
	POStatusDraft:     {POStatusSent, POStatusCancelled},
	POStatusSent:      {POStatusReceived, POStatusCancelled},
	POStatusReceived:  {},
	POStatusCancelled: {},
}

// ValidPOStatus reports whether s is a known status.
func ValidPOStatus(s POStatus) bool {
	_, ok := poTransitions[s]
	return ok
}

// CanTransition reports whether a purchase order may move from one status
// to another.
func CanTransition(from, to POStatus) bool {
	for _, next := range poTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateTransitionError reports a rejected purchase order status change.
type StateTransitionError struct {
	From POStatus
	To   POStatus
}

func (e *StateTransitionError) Error() string {
	return "invalid status transition: " + string(e.From) + " -> " + string(e.To)
}

// OrderItem is one line of a purchase order.
type OrderItem struct {
	ProductID   string `dynamodbav:"product_id"`
	ProductName string `dynamodbav:"product_name,omitempty"`
	Quantity    int    `dynamodbav:"quantity"`
	UnitCost    Money  `dynamodbav:"unit_cost"`
}

// PurchaseOrder is an order of stock from a supplier. Receiving it
// increments the ordered products' quantities atomically with the status
// change.
type PurchaseOrder struct {
	ID         string      `dynamodbav:"id"`
	SupplierID string      `dynamodbav:"supplier_id,omitempty"`
	Items      []OrderItem `dynamodbav:"items"`
	Status     POStatus    `dynamodbav:"status"`
	TotalCost  Money       `dynamodbav:"total_cost"`
	Notes      string      `dynamodbav:"notes,omitempty"`
	CreatedAt  time.Time   `dynamodbav:"created_at"`
	UpdatedAt  time.Time   `dynamodbav:"updated_at"`
}

// ApplyDefaults sets the initial status and derives the total cost from the
// lines when absent.
func (po *PurchaseOrder) ApplyDefaults() {
	if po.Status == "" {
		po.Status = POStatusDraft
	}
	if po.TotalCost.IsZero() {
		var total Money
		for _, item := range po.Items {
			total = total.Add(item.UnitCost.MulInt(item.Quantity))
		}
		po.TotalCost = total
	}
}

// Validate checks required fields and constraints.
func (po *PurchaseOrder) Validate() error {
	if len(po.Items) == 0 {
		return invalid("items", "must not be empty")
	}
	for i, item := range po.Items {
		if item.ProductID == "" {
			return invalidf("items", "line %d product_id is required", i)
		}
		if item.Quantity <= 0 {
			return invalidf("items", "line %d quantity must be positive; got %d", i, item.Quantity)
		}
		if item.UnitCost.Sign() < 0 {
			return invalidf("items", "line %d unit_cost must not be negative", i)
		}
	}
	if !ValidPOStatus(po.Status) {
		return invalidf("status", "unknown status %q", po.Status)
	}
	return nil
}

package model

import (
	"strings"
	"time"
)

// DefaultReorderThreshold is applied when a product does not specify one.
const DefaultReorderThreshold = 10

// Product is a stocked inventory item. Quantity never goes negative; the
// repositories enforce that with conditional writes.
type Product struct {
	ID               string    `dynamodbav:"id"`
	Name             string    `dynamodbav:"name"`
	Category         string    `dynamodbav:"category,omitempty"`
	Quantity         int       `dynamodbav:"quantity"`
	UnitCost         Money     `dynamodbav:"unit_cost,omitempty"`
	ReorderThreshold int       `dynamodbav:"reorder_threshold"`
	SupplierID       string    `dynamodbav:"supplier_id,omitempty"`
	SKU              string    `dynamodbav:"sku,omitempty"`
	Unit             string    `dynamodbav:"unit"`
	Notes            string    `dynamodbav:"notes,omitempty"`
	CreatedAt        time.Time `dynamodbav:"created_at"`
	UpdatedAt        time.Time `dynamodbav:"updated_at"`
}

// ApplyDefaults fills optional fields.
func (p *Product) ApplyDefaults() {
	if p.ReorderThreshold == 0 {
		p.ReorderThreshold = DefaultReorderThreshold
	}
	if p.Unit == "" {
		p.Unit = "each"
	}
}

// Validate checks required fields and constraints.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "required")
	}
	if p.Quantity < 0 {
		return invalidf("quantity", "must not be negative; got %d", p.Quantity)
	}
	if p.ReorderThreshold < 0 {
		return invalid("reorder_threshold", "must not be negative")
	}
	if p.UnitCost.Sign() < 0 {
		return invalid("unit_cost", "must not be negative")
	}
	return nil
}

// LowStock reports whether the product is at or below its reorder threshold.
func (p *Product) LowStock() bool {
	return p.Quantity <= p.ReorderThreshold
}

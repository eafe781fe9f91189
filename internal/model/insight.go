package model

import (
	"strings"
	"time"
)

// Forecast is one product restock prediction within an insight.
type Forecast struct {
	ProductName          string `dynamodbav:"product_name" json:"product_name"`
	ProductID            string `dynamodbav:"product_id,omitempty" json:"product_id,omitempty"`
	EstimatedRestockDate string `dynamodbav:"estimated_restock_date" json:"estimated_restock_date"`
	Reason               string `dynamodbav:"reason" json:"reason"`
}

// ReorderSuggestion is one below-threshold product with a suggested order.
type ReorderSuggestion struct {
	ProductName            string `dynamodbav:"product_name" json:"product_name"`
	ProductID              string `dynamodbav:"product_id,omitempty" json:"product_id,omitempty"`
	CurrentQuantity        int    `dynamodbav:"current_quantity" json:"current_quantity"`
	ReorderThreshold       int    `dynamodbav:"reorder_threshold" json:"reorder_threshold"`
	SuggestedOrderQuantity int    `dynamodbav:"suggested_order_quantity" json:"suggested_order_quantity"`
	Reason                 string `dynamodbav:"reason" json:"reason"`
}

// Insight is the cached AI analysis for one tenant and day. It is logically
// deleted by expiry: readers compare ExpiresAt themselves rather than trust
// the store's best-effort reclamation.
type Insight struct {
	TenantID           string              `dynamodbav:"tenant_id"`
	Date               string              `dynamodbav:"date"`
	Summary            string              `dynamodbav:"summary" json:"summary"`
	Forecasts          []Forecast          `dynamodbav:"forecasts,omitempty" json:"forecasts"`
	ReorderSuggestions []ReorderSuggestion `dynamodbav:"reorder_suggestions,omitempty" json:"reorder_suggestions"`
	SpendingTrends     []string            `dynamodbav:"spending_trends,omitempty" json:"spending_trends"`
	RevenueInsights    []string            `dynamodbav:"revenue_insights,omitempty" json:"revenue_insights"`
	GeneratedAt        time.Time           `dynamodbav:"generated_at"`
	ExpiresAt          int64               `dynamodbav:"expires_at"`
}

// Expired reports whether the insight is past its expiry at the given time.
func (i *Insight) Expired(now time.Time) bool {
	return i.ExpiresAt > 0 && now.Unix() >= i.ExpiresAt
}

// Validate checks the structured response shape coming back from the
// generator before it is cached.
func (i *Insight) Validate() error {
	if i.TenantID == "" {
		return invalid("tenant_id", "required")
	}
	if _, err := time.Parse("2006-01-02", i.Date); err != nil {
		return invalidf("date", "must be YYYY-MM-DD; got %q", i.Date)
	}
	if strings.TrimSpace(i.Summary) == "" {
		return invalid("summary", "required")
	}
	return nil
}

// SquareConnection stores a tenant's Square OAuth link. Its GSI1 projection
// resolves webhook merchant ids back to the tenant.
type SquareConnection struct {
	TenantID     string    `dynamodbav:"tenant_id"`
	MerchantID   string    `dynamodbav:"square_merchant_id"`
	AccessToken  string    `dynamodbav:"square_access_token"`
	RefreshToken string    `dynamodbav:"square_refresh_token,omitempty"`
	LocationID   string    `dynamodbav:"square_location_id,omitempty"`
	ConnectedAt  time.Time `dynamodbav:"connected_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
}

// Validate checks required fields.
func (c *SquareConnection) Validate() error {
	if c.TenantID == "" {
		return invalid("tenant_id", "required")
	}
	if c.MerchantID == "" {
		return invalid("square_merchant_id", "required")
	}
	if c.AccessToken == "" {
		return invalid("square_access_token", "required")
	}
	return nil
}

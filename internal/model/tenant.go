package model

import (
	"strings"
	"time"
)

// BusinessType categorizes a tenant for onboarding seed data.
type BusinessType string

const (
	BusinessRestaurant BusinessType = "restaurant"
	BusinessRetail     BusinessType = "retail"
	BusinessBar        BusinessType = "bar"
	BusinessOther      BusinessType = "other"
)

// Tenant is an isolated customer organization. One row per tenant, created
// at onboarding and never hard-deleted.
type Tenant struct {
	ID              string         `dynamodbav:"id"`
	BusinessName    string         `dynamodbav:"business_name"`
	BusinessType    BusinessType   `dynamodbav:"business_type"`
	OwnerEmail      string         `dynamodbav:"owner_email"`
	Plan            string         `dynamodbav:"plan"`
	Settings        map[string]any `dynamodbav:"settings,omitempty"`
	SquareConnected bool           `dynamodbav:"square_connected"`
	CreatedAt       time.Time      `dynamodbav:"created_at"`
	UpdatedAt       time.Time      `dynamodbav:"updated_at"`
}

// ApplyDefaults fills optional fields.
func (t *Tenant) ApplyDefaults() {
	if t.Plan == "" {
		t.Plan = "free"
	}
	if t.BusinessType == "" {
		t.BusinessType = BusinessOther
	}
}

// Validate checks required fields and constraints.
func (t *Tenant) Validate() error {
	if strings.TrimSpace(t.BusinessName) == "" {
		return invalid("business_name", "required")
	}
	switch t.BusinessType {
	case BusinessRestaurant, BusinessRetail, BusinessBar, BusinessOther:
	default:
		return invalidf("business_type", "must be one of restaurant, retail, bar, other; got %q", t.BusinessType)
	}
	if !validEmail(t.OwnerEmail) {
		return invalid("owner_email", "must be a valid email address")
	}
	return nil
}

// PhoneRoute maps an inbound channel phone number to the owning tenant. It
// is the one row outside the tenant partitioning scheme, used to bootstrap
// tenant resolution for webhooks that carry no tenant context.
type PhoneRoute struct {
	Phone    string `dynamodbav:"phone"`
	TenantID string `dynamodbav:"tenant_id"`
}

// NormalizePhone strips formatting so lookups are canonical.
func NormalizePhone(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "")
	return replacer.Replace(strings.TrimSpace(phone))
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// Package contact manages a tenant's customers and leads.
package contact

import (
	"context"
	"errors"
	"time"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrContactNotFound = errors.New("contact not found")
)

// Patch carries merge-patch updates; nil fields are left unchanged.
type Patch struct {
	Name           *string
	Phone          *string
	Email          *string
	LeadStatus     *model.LeadStatus
	Tier           *model.Tier
	SourceChannel  *string
	Tags           *[]string
	LastActivityAt *time.Time
}

// ListOptions controls contact listing.
type ListOptions struct {
	// LeadStatus filters the page to one funnel stage when set.
	LeadStatus model.LeadStatus
	Limit      int32
	NextToken  string
}

// Page is one page of contacts plus the continuation token for the next.
type Page struct {
	Contacts  []*model.Contact
	NextToken string
}

// Repository defines contact storage operations.
type Repository interface {
	Get(ctx context.Context, tenantID, contactID string) (*model.Contact, error)
	Create(ctx context.Context, tenantID string, c *model.Contact) (*model.Contact, error)
	Update(ctx context.Context, tenantID, contactID string, patch Patch) (*model.Contact, error)
	Delete(ctx context.Context, tenantID, contactID string) error
	List(ctx context.Context, tenantID string, opts ListOptions) (*Page, error)
}

package model

import (
	"strings"
	"time"
)

// LeadStatus tracks where a contact sits in the sales funnel.
type LeadStatus string

const (
	LeadProspect   LeadStatus = "prospect"
	LeadInterested LeadStatus = "interested"
	LeadClosedWon  LeadStatus = "closed_won"
	LeadAbandoned  LeadStatus = "abandoned"
)

// Tier ranks a contact's value.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// Contact is a customer or lead belonging to one tenant.
type Contact struct {
	ID             string     `dynamodbav:"id"`
	Name           string     `dynamodbav:"name"`
	Phone          string     `dynamodbav:"phone,omitempty"`
	Email          string     `dynamodbav:"email,omitempty"`
	LeadStatus     LeadStatus `dynamodbav:"lead_status"`
	Tier           Tier       `dynamodbav:"tier"`
	SourceChannel  string     `dynamodbav:"source_channel,omitempty"`
	Tags           []string   `dynamodbav:"tags,omitempty"`
	LastActivityAt time.Time  `dynamodbav:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `dynamodbav:"created_at"`
}

// ApplyDefaults sets new contacts to the bottom of the funnel.
func (c *Contact) ApplyDefaults() {
	if c.LeadStatus == "" {
		c.LeadStatus = LeadProspect
	}
	if c.Tier == "" {
		c.Tier = TierBronze
	}
}

// Validate checks required fields and enumerations.
func (c *Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", "required")
	}
	switch c.LeadStatus {
	case LeadProspect, LeadInterested, LeadClosedWon, LeadAbandoned:
	default:
		return invalidf("lead_status", "unknown status %q", c.LeadStatus)
	}
	switch c.Tier {
	case TierBronze, TierSilver, TierGold:
	default:
		return invalidf("tier", "unknown tier %q", c.Tier)
	}
	if c.Email != "" && !validEmail(c.Email) {
		return invalid("email", "must be a valid email address")
	}
	return nil
}

// Supplier is a vendor the tenant orders stock from.
type Supplier struct {
	ID           string `dynamodbav:"id"`
	Name         string `dynamodbav:"name"`
	ContactEmail string `dynamodbav:"contact_email,omitempty"`
	ContactPhone string `dynamodbav:"contact_phone,omitempty"`
	Address      string `dynamodbav:"address,omitempty"`
	LeadTimeDays int    `dynamodbav:"lead_time_days,omitempty"`
	Notes        string `dynamodbav:"notes,omitempty"`
}

// Validate checks required fields.
func (s *Supplier) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name", "required")
	}
	if s.ContactEmail != "" && !validEmail(s.ContactEmail) {
		return invalid("contact_email", "must be a valid email address")
	}
	if s.LeadTimeDays < 0 {
		return invalid("lead_time_days", "must not be negative")
	}
	return nil
}

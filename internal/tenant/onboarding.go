package tenant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/counterbook/backend/internal/inventory"
	"github.com/counterbook/backend/internal/model"
	"github.com/counterbook/backend/internal/user"
)

// seedProduct is one starter catalog entry.
type seedProduct struct {
	name     string
	unitCost string
}

// Starter catalogs by business type, written at setup so a fresh workspace
// is not empty.
var seedCatalog = map[model.BusinessType][]seedProduct{
	model.BusinessRestaurant: {
		{"Chicken Breast", "4.50"},
		{"Rice", "1.20"},
		{"Cooking Oil", "3.00"},
		{"Lettuce", "2.00"},
		{"Tomatoes", "1.80"},
	},
	model.BusinessRetail: {
		{"Widget A", "5.99"},
		{"Widget B", "8.50"},
		{"Packaging Supplies", "12.00"},
	},
	model.BusinessBar: {
		{"Vodka", "18.00"},
		{"Rum", "22.00"},
		{"Beer Keg", "85.00"},
		{"Limes", "3.50"},
		{"Ice", "0.10"},
	},
	model.BusinessOther: {
		{"Sample Product A", "10.00"},
		{"Sample Product B", "15.00"},
	},
}

const (
	seedQuantity  = 100
	seedThreshold = 20
)

// Onboarder provisions new tenants: the tenant row, the owner account, and
// the optional phone route, then seeds the starter catalog at setup.
type Onboarder struct {
	tenants  Repository
	products inventory.Repository
	users    user.Repository
	logger   *slog.Logger
}

// NewOnboarder creates an Onboarder.
func NewOnboarder(tenants Repository, products inventory.Repository, users user.Repository, logger *slog.Logger) *Onboarder {
	return &Onboarder{tenants: tenants, products: products, users: users, logger: logger}
}

// OnboardRequest is the input to Onboard.
type OnboardRequest struct {
	BusinessName string
	BusinessType model.BusinessType
	OwnerEmail   string
	Phone        string
}

// Onboard creates the tenant, its owner account, and, when a phone number
// is given, the routing row claiming that number.
func (o *Onboarder) Onboard(ctx context.Context, req OnboardRequest) (*model.Tenant, error) {
	t, err := o.tenants.Create(ctx, &model.Tenant{
		BusinessName: req.BusinessName,
		BusinessType: req.BusinessType,
		OwnerEmail:   req.OwnerEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	if _, err := o.users.Create(ctx, t.ID, &model.User{
		Email: req.OwnerEmail,
		Role:  model.RoleOwner,
	}); err != nil {
		return nil, fmt.Errorf("create owner account: %w", err)
	}

	if req.Phone != "" {
		if err := o.tenants.PutPhoneRoute(ctx, req.Phone, t.ID); err != nil {
			return nil, fmt.Errorf("claim phone route: %w", err)
		}
	}

	o.logger.InfoContext(ctx, "tenant onboarded",
		"tenant_id", t.ID,
		"business_type", t.BusinessType,
	)
	return t, nil
}

// CompleteSetup stores the tenant's initial settings and seeds the starter
// catalog for its business type. Seeding is best effort: a failed seed
// write logs and moves on, setup still completes.
func (o *Onboarder) CompleteSetup(ctx context.Context, tenantID string, settings map[string]any) error {
	t, err := o.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	if len(settings) > 0 {
		if _, err := o.tenants.Update(ctx, tenantID, Patch{Settings: &settings}); err != nil {
			return fmt.Errorf("store settings: %w", err)
		}
	}

	catalog, ok := seedCatalog[t.BusinessType]
	if !ok {
		catalog = seedCatalog[model.BusinessOther]
	}
	for _, seed := range catalog {
		cost, err := model.MoneyFromString(seed.unitCost)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		_, err = o.products.Create(ctx, tenantID, &model.Product{
			Name:             seed.name,
			Quantity:         seedQuantity,
			UnitCost:         cost,
			ReorderThreshold: seedThreshold,
		})
		if err != nil {
			o.logger.WarnContext(ctx, "seed product failed",
				"tenant_id", tenantID,
				"product", seed.name,
				"error", err,
			)
		}
	}
	return nil
}

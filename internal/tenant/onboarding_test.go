package tenant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/inventory"
	"github.com/counterbook/backend/internal/model"
	"github.com/counterbook/backend/internal/user"
)

type mockTenantRepo struct {
	getFunc           func(ctx context.Context, tenantID string) (*model.Tenant, error)
	createFunc        func(ctx context.Context, t *model.Tenant) (*model.Tenant, error)
	updateFunc        func(ctx context.Context, tenantID string, patch Patch) (*model.Tenant, error)
	putPhoneRouteFunc func(ctx context.Context, phone, tenantID string) error
	resolvePhoneFunc  func(ctx context.Context, phone string) (string, error)
}

func (m *mockTenantRepo) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	return m.getFunc(ctx, tenantID)
}

func (m *mockTenantRepo) Create(ctx context.Context, t *model.Tenant) (*model.Tenant, error) {
	return m.createFunc(ctx, t)
}

func (m *mockTenantRepo) Update(ctx context.Context, tenantID string, patch Patch) (*model.Tenant, error) {
	return m.updateFunc(ctx, tenantID, patch)
}

func (m *mockTenantRepo) PutPhoneRoute(ctx context.Context, phone, tenantID string) error {
	return m.putPhoneRouteFunc(ctx, phone, tenantID)
}

func (m *mockTenantRepo) ResolvePhone(ctx context.Context, phone string) (string, error) {
	return m.resolvePhoneFunc(ctx, phone)
}

type mockUserRepo struct {
	createFunc func(ctx context.Context, tenantID string, u *model.User) (*model.User, error)
}

func (m *mockUserRepo) Get(ctx context.Context, tenantID, userID string) (*model.User, error) {
	return nil, user.ErrUserNotFound
}

func (m *mockUserRepo) Create(ctx context.Context, tenantID string, u *model.User) (*model.User, error) {
	return m.createFunc(ctx, tenantID, u)
}

func (m *mockUserRepo) List(ctx context.Context, tenantID string) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) SetRole(ctx context.Context, tenantID, userID string, role model.Role) (*model.User, error) {
	return nil, user.ErrUserNotFound
}

func (m *mockUserRepo) SetStatus(ctx context.Context, tenantID, userID string, status model.UserStatus) (*model.User, error) {
	return nil, user.ErrUserNotFound
}

type mockProductRepo struct {
	createFunc func(ctx context.Context, tenantID string, p *model.Product) (*model.Product, error)
}

func (m *mockProductRepo) Get(ctx context.Context, tenantID, productID string) (*model.Product, error) {
	return nil, inventory.ErrProductNotFound
}

func (m *mockProductRepo) Create(ctx context.Context, tenantID string, p *model.Product) (*model.Product, error) {
	return m.createFunc(ctx, tenantID, p)
}

func (m *mockProductRepo) Put(ctx context.Context, tenantID string, p *model.Product) error {
	return nil
}

func (m *mockProductRepo) Update(ctx context.Context, tenantID, productID string, patch inventory.ProductPatch) (*model.Product, error) {
	return nil, inventory.ErrProductNotFound
}

func (m *mockProductRepo) Delete(ctx context.Context, tenantID, productID string) error {
	return nil
}

func (m *mockProductRepo) List(ctx context.Context, tenantID string, opts inventory.ListOptions) (*inventory.Page, error) {
	return &inventory.Page{}, nil
}

func (m *mockProductRepo) ListAll(ctx context.Context, tenantID string) ([]*model.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) SetQuantity(ctx context.Context, tenantID, productID string, quantity int) (*model.Product, error) {
	return nil, inventory.ErrProductNotFound
}

func (m *mockProductRepo) AdjustQuantity(ctx context.Context, tenantID, productID string, delta int) (*model.Product, error) {
	return nil, inventory.ErrProductNotFound
}

func (m *mockProductRepo) BuildAdjustQuantityItem(tenantID, productID string, delta int, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOnboard(t *testing.T) {
	t.Run("creates the tenant, its owner, and the phone route", func(t *testing.T) {
		var ownerRole model.Role
		var claimedPhone string
		tenants := &mockTenantRepo{
			createFunc: func(ctx context.Context, tn *model.Tenant) (*model.Tenant, error) {
				tn.ID = "tenant-1"
				return tn, nil
			},
			putPhoneRouteFunc: func(ctx context.Context, phone, tenantID string) error {
				claimedPhone = phone
				return nil
			},
		}
		users := &mockUserRepo{
			createFunc: func(ctx context.Context, tenantID string, u *model.User) (*model.User, error) {
				if tenantID != "tenant-1" {
					t.Errorf("owner must live in the new tenant, got %s", tenantID)
				}
				ownerRole = u.Role
				return u, nil
			},
		}
		o := NewOnboarder(tenants, &mockProductRepo{}, users, testLogger())

		created, err := o.Onboard(context.Background(), OnboardRequest{
			BusinessName: "Mama's Kitchen",
			BusinessType: model.BusinessRestaurant,
			OwnerEmail:   "owner@example.com",
			Phone:        "+1 555-123-4567",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created.ID != "tenant-1" {
			t.Errorf("unexpected tenant id %s", created.ID)
		}
		if ownerRole != model.RoleOwner {
			t.Errorf("first account must be the owner, got %s", ownerRole)
		}
		if claimedPhone != "+1 555-123-4567" {
			t.Errorf("phone route not claimed, got %q", claimedPhone)
		}
	})

	t.Run("skips the phone route when no number is given", func(t *testing.T) {
		tenants := &mockTenantRepo{
			createFunc: func(ctx context.Context, tn *model.Tenant) (*model.Tenant, error) {
				tn.ID = "tenant-1"
				return tn, nil
			},
			putPhoneRouteFunc: func(ctx context.Context, phone, tenantID string) error {
				t.Fatal("no phone route expected")
				return nil
			},
		}
		users := &mockUserRepo{
			createFunc: func(ctx context.Context, tenantID string, u *model.User) (*model.User, error) {
				return u, nil
			},
		}
		o := NewOnboarder(tenants, &mockProductRepo{}, users, testLogger())

		_, err := o.Onboard(context.Background(), OnboardRequest{
			BusinessName: "Widget Co",
			BusinessType: model.BusinessRetail,
			OwnerEmail:   "owner@example.com",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestCompleteSetup(t *testing.T) {
	t.Run("seeds the restaurant catalog", func(t *testing.T) {
		var seeded []*model.Product
		tenants := &mockTenantRepo{
			getFunc: func(ctx context.Context, tenantID string) (*model.Tenant, error) {
				return &model.Tenant{ID: tenantID, BusinessType: model.BusinessRestaurant}, nil
			},
			updateFunc: func(ctx context.Context, tenantID string, patch Patch) (*model.Tenant, error) {
				return &model.Tenant{ID: tenantID}, nil
			},
		}
		products := &mockProductRepo{
			createFunc: func(ctx context.Context, tenantID string, p *model.Product) (*model.Product, error) {
				seeded = append(seeded, p)
				return p, nil
			},
		}
		o := NewOnboarder(tenants, products, &mockUserRepo{}, testLogger())

		err := o.CompleteSetup(context.Background(), "tenant-1", map[string]any{"currency": "USD"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seeded) != 5 {
			t.Fatalf("expected 5 starter products, got %d", len(seeded))
		}
		first := seeded[0]
		if first.Name != "Chicken Breast" || first.Quantity != 100 || first.ReorderThreshold != 20 {
			t.Errorf("unexpected first seed %+v", first)
		}
	})

	t.Run("a failed seed write does not fail setup", func(t *testing.T) {
		tenants := &mockTenantRepo{
			getFunc: func(ctx context.Context, tenantID string) (*model.Tenant, error) {
				return &model.Tenant{ID: tenantID, BusinessType: model.BusinessRetail}, nil
			},
		}
		products := &mockProductRepo{
			createFunc: func(ctx context.Context, tenantID string, p *model.Product) (*model.Product, error) {
				return nil, errors.New("throttled")
			},
		}
		o := NewOnboarder(tenants, products, &mockUserRepo{}, testLogger())

		if err := o.CompleteSetup(context.Background(), "tenant-1", nil); err != nil {
			t.Fatalf("seeding is best effort, got %v", err)
		}
	})

	t.Run("unknown business types fall back to the generic catalog", func(t *testing.T) {
		var seeded int
		tenants := &mockTenantRepo{
			getFunc: func(ctx context.Context, tenantID string) (*model.Tenant, error) {
				return &model.Tenant{ID: tenantID, BusinessType: model.BusinessType("foodtruck")}, nil
			},
		}
		products := &mockProductRepo{
			createFunc: func(ctx context.Context, tenantID string, p *model.Product) (*model.Product, error) {
				seeded++
				return p, nil
			},
		}
		o := NewOnboarder(tenants, products, &mockUserRepo{}, testLogger())

		if err := o.CompleteSetup(context.Background(), "tenant-1", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seeded != 2 {
			t.Errorf("expected the 2 generic seeds, got %d", seeded)
		}
	})
}

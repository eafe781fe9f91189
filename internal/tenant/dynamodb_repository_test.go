package tenant

import (
	"context"
	"errors"
	"testing"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/model"
)

type mockClient struct {
	getItemFunc            func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	putItemFunc            func(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	updateItemFunc         func(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	deleteItemFunc         func(ctx context.Context, input *ddb.DeleteItemInput, opts ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
	queryFunc              func(ctx context.Context, input *ddb.QueryInput, opts ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	transactWriteItemsFunc func(ctx context.Context, input *ddb.TransactWriteItemsInput, opts ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error)
}

func (m *mockClient) GetItem(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	return m.getItemFunc(ctx, input, opts...)
}

func (m *mockClient) PutItem(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	return m.putItemFunc(ctx, input, opts...)
}

func (m *mockClient) UpdateItem(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	return m.updateItemFunc(ctx, input, opts...)
}

func (m *mockClient) DeleteItem(ctx context.Context, input *ddb.DeleteItemInput, opts ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	return m.deleteItemFunc(ctx, input, opts...)
}

func (m *mockClient) Query(ctx context.Context, input *ddb.QueryInput, opts ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	return m.queryFunc(ctx, input, opts...)
}

func (m *mockClient) TransactWriteItems(ctx context.Context, input *ddb.TransactWriteItemsInput, opts ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	return m.transactWriteItemsFunc(ctx, input, opts...)
}

func TestCreate(t *testing.T) {
	t.Run("provisions the tenant row under its own partition", func(t *testing.T) {
		var item map[string]types.AttributeValue
		client := &mockClient{
			putItemFunc: func(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
				if *input.ConditionExpression != "attribute_not_exists(pk)" {
					t.Errorf("unexpected condition %s", *input.ConditionExpression)
				}
				item = input.Item
				return &ddb.PutItemOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		created, err := repo.Create(context.Background(), &model.Tenant{
			BusinessName: "Mama's Kitchen",
			BusinessType: model.BusinessRestaurant,
			OwnerEmail:   "owner@example.com",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created.ID == "" {
			t.Error("expected an assigned id")
		}
		if created.Plan != "free" {
			t.Errorf("expected the free plan default, got %s", created.Plan)
		}
		pk := item["pk"].(*types.AttributeValueMemberS).Value
		sk := item["sk"].(*types.AttributeValueMemberS).Value
		if pk != "TENANT#"+created.ID || sk != pk {
			t.Errorf("tenant row must use its id for both keys, got %s / %s", pk, sk)
		}
	})

	t.Run("rejects a missing business name", func(t *testing.T) {
		repo := NewDynamoDBRepository(&mockClient{}, "test-table")
		_, err := repo.Create(context.Background(), &model.Tenant{OwnerEmail: "owner@example.com"})
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestPhoneRoutes(t *testing.T) {
	t.Run("claims a normalized number", func(t *testing.T) {
		client := &mockClient{
			putItemFunc: func(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
				if sk := input.Item["sk"].(*types.AttributeValueMemberS).Value; sk != "15551234567" {
					t.Errorf("expected the normalized number as sort key, got %s", sk)
				}
				if pk := input.Item["pk"].(*types.AttributeValueMemberS).Value; pk != "PHONE" {
					t.Errorf("unexpected partition %s", pk)
				}
				if cond := *input.ConditionExpression; cond != "attribute_not_exists(pk) OR tenant_id = :tid" {
					t.Errorf("unexpected condition %s", cond)
				}
				return &ddb.PutItemOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		if err := repo.PutPhoneRoute(context.Background(), "+1 (555) 123-4567", "tenant-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("another tenant's number cannot be claimed", func(t *testing.T) {
		client := &mockClient{
			putItemFunc: func(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{}
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		err := repo.PutPhoneRoute(context.Background(), "5551234567", "tenant-2")
		if !errors.Is(err, ErrPhoneClaimed) {
			t.Errorf("expected ErrPhoneClaimed, got %v", err)
		}
	})

	t.Run("resolves a raw number to its tenant", func(t *testing.T) {
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				if sk := input.Key["sk"].(*types.AttributeValueMemberS).Value; sk != "15551234567" {
					t.Errorf("lookup must normalize, got %s", sk)
				}
				return &ddb.GetItemOutput{Item: map[string]types.AttributeValue{
					"phone":     &types.AttributeValueMemberS{Value: "15551234567"},
					"tenant_id": &types.AttributeValueMemberS{Value: "tenant-1"},
				}}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		tenantID, err := repo.ResolvePhone(context.Background(), "+1 555-123-4567")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tenantID != "tenant-1" {
			t.Errorf("expected tenant-1, got %s", tenantID)
		}
	})

	t.Run("unknown numbers are not routed", func(t *testing.T) {
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		_, err := repo.ResolvePhone(context.Background(), "5550000000")
		if !errors.Is(err, ErrRouteNotFound) {
			t.Errorf("expected ErrRouteNotFound, got %v", err)
		}
	})
}

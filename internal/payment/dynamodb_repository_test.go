package payment

import (
	"context"
	"errors"
	"testing"
	"time"

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

func paymentItem(id, status string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":                &types.AttributeValueMemberS{Value: "TENANT#tenant-1"},
		"sk":                &types.AttributeValueMemberS{Value: "PAYMENT#" + id},
		"id":                &types.AttributeValueMemberS{Value: id},
		"transaction_id":    &types.AttributeValueMemberS{Value: "txn-1"},
		"square_payment_id": &types.AttributeValueMemberS{Value: "sq-123"},
		"amount":            &types.AttributeValueMemberN{Value: "25.00"},
		"currency":          &types.AttributeValueMemberS{Value: "USD"},
		"status":            &types.AttributeValueMemberS{Value: status},
	}
}

func TestFindBySquarePaymentID(t *testing.T) {
	t.Run("recovers the tenant from the index row", func(t *testing.T) {
		client := &mockClient{
			queryFunc: func(ctx context.Context, input *ddb.QueryInput, opts ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
				pk := input.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
				if pk != "SQUARE_PAYMENT#sq-123" {
					t.Errorf("unexpected index key %s", pk)
				}
				return &ddb.QueryOutput{Items: []map[string]types.AttributeValue{paymentItem("pay-1", "pending")}}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		located, err := repo.FindBySquarePaymentID(context.Background(), "sq-123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if located.TenantID != "tenant-1" {
			t.Errorf("expected tenant-1, got %s", located.TenantID)
		}
		if located.Payment.ID != "pay-1" {
			t.Errorf("expected pay-1, got %s", located.Payment.ID)
		}
	})

	t.Run("not found when nothing is indexed", func(t *testing.T) {
		client := &mockClient{
			queryFunc: func(ctx context.Context, input *ddb.QueryInput, opts ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
				return &ddb.QueryOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		_, err := repo.FindBySquarePaymentID(context.Background(), "sq-missing")
		if !errors.Is(err, ErrPaymentNotFound) {
			t.Errorf("expected ErrPaymentNotFound, got %v", err)
		}
	})
}

func TestSetStatus(t *testing.T) {
	t.Run("updates and returns the new state", func(t *testing.T) {
		client := &mockClient{
			updateItemFunc: func(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
				status := input.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value
				if status != "completed" {
					t.Errorf("expected completed, got %s", status)
				}
				return &ddb.UpdateItemOutput{Attributes: paymentItem("pay-1", "completed")}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		p, err := repo.SetStatus(context.Background(), "tenant-1", "pay-1", model.PaymentCompleted)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Status != model.PaymentCompleted {
			t.Errorf("expected completed, got %s", p.Status)
		}
	})

	t.Run("re-applying the same status is a no-op success", func(t *testing.T) {
		client := &mockClient{
			updateItemFunc: func(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{}
			},
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{Item: paymentItem("pay-1", "completed")}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		p, err := repo.SetStatus(context.Background(), "tenant-1", "pay-1", model.PaymentCompleted)
		if err != nil {
			t.Fatalf("duplicate delivery must succeed, got %v", err)
		}
		if p.Status != model.PaymentCompleted {
			t.Errorf("expected completed, got %s", p.Status)
		}
	})

	t.Run("missing payment is not found", func(t *testing.T) {
		client := &mockClient{
			updateItemFunc: func(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{}
			},
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		_, err := repo.SetStatus(context.Background(), "tenant-1", "pay-missing", model.PaymentCompleted)
		if !errors.Is(err, ErrPaymentNotFound) {
			t.Errorf("expected ErrPaymentNotFound, got %v", err)
		}
	})

	t.Run("rejects unknown statuses", func(t *testing.T) {
		repo := NewDynamoDBRepository(&mockClient{}, "test-table")
		_, err := repo.SetStatus(context.Background(), "tenant-1", "pay-1", model.PaymentStatus("settled"))
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestBuildPutItem(t *testing.T) {
	repo := NewDynamoDBRepository(&mockClient{}, "test-table")
	amount, _ := model.MoneyFromString("25.00")

	item, err := repo.BuildPutItem("tenant-1", &model.Payment{
		ID:              "pay-1",
		TransactionID:   "txn-1",
		SquarePaymentID: "sq-123",
		Amount:          amount,
		Currency:        "USD",
		Status:          model.PaymentCompleted,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gsi1pk := item.Put.Item["gsi1pk"].(*types.AttributeValueMemberS).Value
	if gsi1pk != "SQUARE_PAYMENT#sq-123" {
		t.Errorf("expected external-id index key, got %s", gsi1pk)
	}
	gsi1sk := item.Put.Item["gsi1sk"].(*types.AttributeValueMemberS).Value
	if gsi1sk != "TENANT#tenant-1" {
		t.Errorf("expected tenant pointer, got %s", gsi1sk)
	}
}

func TestPutConnection(t *testing.T) {
	t.Run("projects the merchant index", func(t *testing.T) {
		client := &mockClient{
			putItemFunc: func(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
				gsi1pk := input.Item["gsi1pk"].(*types.AttributeValueMemberS).Value
				if gsi1pk != "SQUARE_MERCHANT#merch-1" {
					t.Errorf("expected merchant index key, got %s", gsi1pk)
				}
				sk := input.Item["sk"].(*types.AttributeValueMemberS).Value
				if sk != "SQUARE#tenant-1" {
					t.Errorf("unexpected sort key %s", sk)
				}
				return &ddb.PutItemOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		err := repo.PutConnection(context.Background(), &model.SquareConnection{
			TenantID:    "tenant-1",
			MerchantID:  "merch-1",
			AccessToken: "token",
			ConnectedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

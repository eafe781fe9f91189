package purchasing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/counterbook/backend/internal/inventory"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orderItem(id string, status model.POStatus) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":     &types.AttributeValueMemberS{Value: "TENANT#tenant-1"},
		"sk":     &types.AttributeValueMemberS{Value: "PO#" + id},
		"id":     &types.AttributeValueMemberS{Value: id},
		"status": &types.AttributeValueMemberS{Value: string(status)},
		"items": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"product_id": &types.AttributeValueMemberS{Value: "prod-1"},
				"quantity":   &types.AttributeValueMemberN{Value: "10"},
				"unit_cost":  &types.AttributeValueMemberN{Value: "4.50"},
			}},
			&types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"product_id": &types.AttributeValueMemberS{Value: "prod-2"},
				"quantity":   &types.AttributeValueMemberN{Value: "5"},
				"unit_cost":  &types.AttributeValueMemberN{Value: "1.20"},
			}},
		}},
		"total_cost": &types.AttributeValueMemberN{Value: "51"},
	}
}

func TestTransition(t *testing.T) {
	t.Run("draft to sent pins the from status", func(t *testing.T) {
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{Item: orderItem("po-1", model.POStatusDraft)}, nil
			},
			updateItemFunc: func(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
				from := input.ExpressionAttributeValues[":from"].(*types.AttributeValueMemberS).Value
				if from != "draft" {
					t.Errorf("expected from draft, got %s", from)
				}
				return &ddb.UpdateItemOutput{Attributes: orderItem("po-1", model.POStatusSent)}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		po, err := repo.Transition(context.Background(), "tenant-1", "po-1", model.POStatusSent)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if po.Status != model.POStatusSent {
			t.Errorf("expected sent, got %s", po.Status)
		}
	})

	t.Run("rejects draft to received", func(t *testing.T) {
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{Item: orderItem("po-1", model.POStatusDraft)}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		_, err := repo.Transition(context.Background(), "tenant-1", "po-1", model.POStatusReceived)
		var terr *model.StateTransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected StateTransitionError, got %v", err)
		}
		if terr.From != model.POStatusDraft || terr.To != model.POStatusReceived {
			t.Errorf("unexpected transition error %+v", terr)
		}
	})

	t.Run("rejects leaving a terminal state", func(t *testing.T) {
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{Item: orderItem("po-1", model.POStatusCancelled)}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		_, err := repo.Transition(context.Background(), "tenant-1", "po-1", model.POStatusSent)
		var terr *model.StateTransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected StateTransitionError, got %v", err)
		}
	})
}

func TestCreate(t *testing.T) {
	t.Run("derives total cost from lines", func(t *testing.T) {
		client := &mockClient{
			putItemFunc: func(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
				total := input.Item["total_cost"].(*types.AttributeValueMemberN).Value
				if total != "51" {
					t.Errorf("expected total 51, got %s", total)
				}
				return &ddb.PutItemOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		cost1, _ := model.MoneyFromString("4.50")
		cost2, _ := model.MoneyFromString("1.20")
		po, err := repo.Create(context.Background(), "tenant-1", &model.PurchaseOrder{
			Items: []model.OrderItem{
				{ProductID: "prod-1", Quantity: 10, UnitCost: cost1},
				{ProductID: "prod-2", Quantity: 5, UnitCost: cost2},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if po.Status != model.POStatusDraft {
			t.Errorf("expected draft, got %s", po.Status)
		}
	})

	t.Run("rejects empty orders", func(t *testing.T) {
		repo := NewDynamoDBRepository(&mockClient{}, "test-table")
		_, err := repo.Create(context.Background(), "tenant-1", &model.PurchaseOrder{})
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestReceive(t *testing.T) {
	newService := func(client *mockClient) *Service {
		orders := NewDynamoDBRepository(client, "test-table")
		stock := inventory.NewDynamoDBRepository(client, "test-table")
		return NewService(orders, stock, client, "test-table", testLogger())
	}

	t.Run("flips status and increments stock in one transaction", func(t *testing.T) {
		var transacted []types.TransactWriteItem
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{Item: orderItem("po-1", model.POStatusSent)}, nil
			},
			transactWriteItemsFunc: func(ctx context.Context, input *ddb.TransactWriteItemsInput, opts ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
				transacted = input.TransactItems
				return &ddb.TransactWriteItemsOutput{}, nil
			},
		}
		svc := newService(client)

		po, err := svc.Receive(context.Background(), "tenant-1", "po-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if po.Status != model.POStatusReceived {
			t.Errorf("expected received, got %s", po.Status)
		}
		if len(transacted) != 3 {
			t.Fatalf("expected 3 transaction items, got %d", len(transacted))
		}
		if !strings.Contains(*transacted[0].Update.ConditionExpression, ":from") {
			t.Error("status change must pin the from status")
		}
		delta := transacted[1].Update.ExpressionAttributeValues[":delta"].(*types.AttributeValueMemberN).Value
		if delta != "10" {
			t.Errorf("expected stock delta 10, got %s", delta)
		}
	})

	t.Run("rejects receiving a draft", func(t *testing.T) {
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				return &ddb.GetItemOutput{Item: orderItem("po-1", model.POStatusDraft)}, nil
			},
			transactWriteItemsFunc: func(ctx context.Context, input *ddb.TransactWriteItemsInput, opts ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
				t.Error("transaction must not run for a draft")
				return nil, nil
			},
		}
		svc := newService(client)

		_, err := svc.Receive(context.Background(), "tenant-1", "po-1")
		var terr *model.StateTransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected StateTransitionError, got %v", err)
		}
	})

	t.Run("reports a lost race as a state error", func(t *testing.T) {
		reads := 0
		client := &mockClient{
			getItemFunc: func(ctx context.Context, input *ddb.GetItemInput, opts ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
				reads++
				if reads == 1 {
					return &ddb.GetItemOutput{Item: orderItem("po-1", model.POStatusSent)}, nil
				}
				return &ddb.GetItemOutput{Item: orderItem("po-1", model.POStatusCancelled)}, nil
			},
			transactWriteItemsFunc: func(ctx context.Context, input *ddb.TransactWriteItemsInput, opts ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
				return nil, &types.TransactionCanceledException{
					CancellationReasons: []types.CancellationReason{
						{Code: strPtr("ConditionalCheckFailed")},
						{Code: strPtr("None")},
						{Code: strPtr("None")},
					},
				}
			},
		}
		svc := newService(client)

		_, err := svc.Receive(context.Background(), "tenant-1", "po-1")
		var terr *model.StateTransitionError
		if !errors.As(err, &terr) {
			t.Fatalf("expected StateTransitionError, got %v", err)
		}
		if terr.From != model.POStatusCancelled {
			t.Errorf("expected cancelled as blocking status, got %s", terr.From)
		}
	})
}

func strPtr(s string) *string { return &s }

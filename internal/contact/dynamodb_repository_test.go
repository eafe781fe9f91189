package contact

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

func contactItem(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":          &types.AttributeValueMemberS{Value: "TENANT#tenant-1"},
		"sk":          &types.AttributeValueMemberS{Value: "CONTACT#" + id},
		"id":          &types.AttributeValueMemberS{Value: id},
		"name":        &types.AttributeValueMemberS{Value: "Ada Okafor"},
		"phone":       &types.AttributeValueMemberS{Value: "15550100"},
		"lead_status": &types.AttributeValueMemberS{Value: "prospect"},
		"tier":        &types.AttributeValueMemberS{Value: "bronze"},
	}
}

func TestCreate(t *testing.T) {
	t.Run("applies funnel defaults", func(t *testing.T) {
		var written map[string]types.AttributeValue
		client := &mockClient{
			putItemFunc: func(ctx context.Context, input *ddb.PutItemInput, opts ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
				written = input.Item
				return &ddb.PutItemOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		c, err := repo.Create(context.Background(), "tenant-1", &model.Contact{Name: "Ada Okafor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.LeadStatus != model.LeadProspect || c.Tier != model.TierBronze {
			t.Errorf("expected prospect/bronze defaults, got %s/%s", c.LeadStatus, c.Tier)
		}
		sk := written["sk"].(*types.AttributeValueMemberS).Value
		if sk != "CONTACT#"+c.ID {
			t.Errorf("unexpected sort key %s", sk)
		}
	})

	t.Run("rejects nameless contacts", func(t *testing.T) {
		repo := NewDynamoDBRepository(&mockClient{}, "test-table")
		_, err := repo.Create(context.Background(), "tenant-1", &model.Contact{})
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestUpdate(t *testing.T) {
	t.Run("rejects unknown lead status before writing", func(t *testing.T) {
		bad := model.LeadStatus("on_fire")
		repo := NewDynamoDBRepository(&mockClient{}, "test-table")
		_, err := repo.Update(context.Background(), "tenant-1", "contact-1", Patch{LeadStatus: &bad})
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("maps conditional failure to not found", func(t *testing.T) {
		status := model.LeadInterested
		client := &mockClient{
			updateItemFunc: func(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{}
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		_, err := repo.Update(context.Background(), "tenant-1", "contact-1", Patch{LeadStatus: &status})
		if !errors.Is(err, ErrContactNotFound) {
			t.Errorf("expected ErrContactNotFound, got %v", err)
		}
	})

	t.Run("moves a contact through the funnel", func(t *testing.T) {
		status := model.LeadClosedWon
		client := &mockClient{
			updateItemFunc: func(ctx context.Context, input *ddb.UpdateItemInput, opts ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
				var statusSet bool
				for ref, attr := range input.ExpressionAttributeNames {
					if attr == "lead_status" {
						value := input.ExpressionAttributeValues[":v"+ref[2:]].(*types.AttributeValueMemberS).Value
						if value != "closed_won" {
							t.Errorf("expected closed_won, got %s", value)
						}
						statusSet = true
					}
				}
				if !statusSet {
					t.Error("lead_status not in update expression")
				}
				item := contactItem("contact-1")
				item["lead_status"] = &types.AttributeValueMemberS{Value: "closed_won"}
				return &ddb.UpdateItemOutput{Attributes: item}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		c, err := repo.Update(context.Background(), "tenant-1", "contact-1", Patch{LeadStatus: &status})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.LeadStatus != model.LeadClosedWon {
			t.Errorf("expected closed_won, got %s", c.LeadStatus)
		}
	})
}

func TestList(t *testing.T) {
	t.Run("filters by lead status", func(t *testing.T) {
		client := &mockClient{
			queryFunc: func(ctx context.Context, input *ddb.QueryInput, opts ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
				if input.FilterExpression == nil {
					t.Fatal("expected a filter expression")
				}
				status := input.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value
				if status != "interested" {
					t.Errorf("expected interested, got %s", status)
				}
				return &ddb.QueryOutput{Items: []map[string]types.AttributeValue{contactItem("contact-1")}}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		page, err := repo.List(context.Background(), "tenant-1", ListOptions{LeadStatus: model.LeadInterested})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Contacts) != 1 {
			t.Fatalf("expected 1 contact, got %d", len(page.Contacts))
		}
	})

	t.Run("scopes the query to the contact prefix", func(t *testing.T) {
		client := &mockClient{
			queryFunc: func(ctx context.Context, input *ddb.QueryInput, opts ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
				prefix := input.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS).Value
				if prefix != "CONTACT#" {
					t.Errorf("expected CONTACT# prefix, got %s", prefix)
				}
				return &ddb.QueryOutput{}, nil
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		if _, err := repo.List(context.Background(), "tenant-1", ListOptions{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("maps conditional failure to not found", func(t *testing.T) {
		client := &mockClient{
			deleteItemFunc: func(ctx context.Context, input *ddb.DeleteItemInput, opts ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
				return nil, &types.ConditionalCheckFailedException{}
			},
		}
		repo := NewDynamoDBRepository(client, "test-table")

		err := repo.Delete(context.Background(), "tenant-1", "contact-1")
		if !errors.Is(err, ErrContactNotFound) {
			t.Errorf("expected ErrContactNotFound, got %v", err)
		}
	})
}

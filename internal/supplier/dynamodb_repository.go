package supplier

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/counterbook/backend/internal/dynamo"
	"github.com/counterbook/backend/internal/model"
)

// DynamoDBRepository implements Repository against the shared table.
type DynamoDBRepository struct {
	client    dynamo.Client
	tableName string
}

// NewDynamoDBRepository creates a new DynamoDBRepository.
func NewDynamoDBRepository(client dynamo.Client, tableName string) *DynamoDBRepository {
	return &DynamoDBRepository{client: client, tableName: tableName}
}

// Get retrieves a single supplier.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, supplierID string) (*model.Supplier, error) {
	key, err := dynamo.Encode(dynamo.EntitySupplier, tenantID, supplierID)
	if err != nil {
		return nil, err
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.GetItemOutput, error) {
		return r.client.GetItem(ctx, &ddb.GetItemInput{
			TableName: aws.String(r.tableName),
			Key:       key.Attrs(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get supplier: %w", err)
	}
	if output.Item == nil {
		return nil, ErrSupplierNotFound
	}
	return unmarshalSupplier(output.Item)
}

// Create validates, assigns an id, and writes a new supplier.
func (r *DynamoDBRepository) Create(ctx context.Context, tenantID string, s *model.Supplier) (*model.Supplier, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.ID = uuid.NewString()

	key, err := dynamo.Encode(dynamo.EntitySupplier, tenantID, s.ID)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return nil, fmt.Errorf("marshal supplier: %w", err)
	}
	item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[dynamo.AttrSK] = &types.AttributeValueMemberS{Value: key.SK}

	_, err = dynamo.WithRetry(ctx, func() (*ddb.PutItemOutput, error) {
		return r.client.PutItem(ctx, &ddb.PutItemInput{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("put supplier: %w", err)
	}
	return s, nil
}

// Update applies a merge patch: only the provided fields change.
func (r *DynamoDBRepository) Update(ctx context.Context, tenantID, supplierID string, patch Patch) (*model.Supplier, error) {
	key, err := dynamo.Encode(dynamo.EntitySupplier, tenantID, supplierID)
	if err != nil {
		return nil, err
	}
	if patch.LeadTimeDays != nil && *patch.LeadTimeDays < 0 {
		return nil, &model.ValidationError{Field: "lead_time_days", Reason: "must not be negative"}
	}

	expr := dynamo.NewUpdateExpr()
	expr.SetString("name", patch.Name)
	expr.SetString("contact_email", patch.ContactEmail)
	expr.SetString("contact_phone", patch.ContactPhone)
	expr.SetString("address", patch.Address)
	expr.SetString("notes", patch.Notes)
	if patch.LeadTimeDays != nil {
		expr.Set("lead_time_days", &types.AttributeValueMemberN{Value: strconv.Itoa(*patch.LeadTimeDays)})
	}
	if expr.Empty() {
		return nil, &model.ValidationError{Field: "patch", Reason: "nothing to update"}
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.UpdateItemOutput, error) {
		return r.client.UpdateItem(ctx, &ddb.UpdateItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       key.Attrs(),
			UpdateExpression:          aws.String(expr.Expression()),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ConditionExpression:       aws.String("attribute_exists(pk)"),
			ReturnValues:              types.ReturnValueAllNew,
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, ErrSupplierNotFound
		}
		return nil, fmt.Errorf("update supplier: %w", err)
	}
	return unmarshalSupplier(output.Attributes)
}

// Delete removes a supplier.
func (r *DynamoDBRepository) Delete(ctx context.Context, tenantID, supplierID string) error {
	key, err := dynamo.Encode(dynamo.EntitySupplier, tenantID, supplierID)
	if err != nil {
		return err
	}
	_, err = dynamo.WithRetry(ctx, func() (*ddb.DeleteItemOutput, error) {
		return r.client.DeleteItem(ctx, &ddb.DeleteItemInput{
			TableName:           aws.String(r.tableName),
			Key:                 key.Attrs(),
			ConditionExpression: aws.String("attribute_exists(pk)"),
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return ErrSupplierNotFound
		}
		return fmt.Errorf("delete supplier: %w", err)
	}
	return nil
}

// List enumerates every supplier for a tenant. Supplier counts stay small
// enough that pagination is followed internally rather than surfaced.
func (r *DynamoDBRepository) List(ctx context.Context, tenantID string) ([]*model.Supplier, error) {
	var all []*model.Supplier
	var startKey map[string]types.AttributeValue
	for {
		input := &ddb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
				":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixSupplier},
			},
		}
		if startKey != nil {
			input.ExclusiveStartKey = startKey
		}

		output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
			return r.client.Query(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("list suppliers: %w", err)
		}
		for _, item := range output.Items {
			s, err := unmarshalSupplier(item)
			if err != nil {
				return nil, err
			}
			all = append(all, s)
		}
		if output.LastEvaluatedKey == nil {
			return all, nil
		}
		startKey = output.LastEvaluatedKey
	}
}

func unmarshalSupplier(item map[string]types.AttributeValue) (*model.Supplier, error) {
	var s model.Supplier
	if err := attributevalue.UnmarshalMap(item, &s); err != nil {
		return nil, fmt.Errorf("unmarshal supplier: %w", err)
	}
	return &s, nil
}

package tenant

import (
	"context"
	"fmt"
	"time"

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

// tenantKey addresses the tenant's own row, which reuses the tenant id as
// its sort-key suffix.
func tenantKey(tenantID string) (dynamo.Key, error) {
	return dynamo.Encode(dynamo.EntityTenant, tenantID, tenantID)
}

// Get retrieves a tenant.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	key, err := tenantKey(tenantID)
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
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if output.Item == nil {
		return nil, ErrTenantNotFound
	}
	return unmarshalTenant(output.Item)
}

// Create provisions a new tenant row.
func (r *DynamoDBRepository) Create(ctx context.Context, t *model.Tenant) (*model.Tenant, error) {
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	key, err := tenantKey(t.ID)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return nil, fmt.Errorf("marshal tenant: %w", err)
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
		return nil, fmt.Errorf("put tenant: %w", err)
	}
	return t, nil
}

// Update applies a merge patch: only the provided fields change.
func (r *DynamoDBRepository) Update(ctx context.Context, tenantID string, patch Patch) (*model.Tenant, error) {
	key, err := tenantKey(tenantID)
	if err != nil {
		return nil, err
	}

	expr := dynamo.NewUpdateExpr()
	expr.SetString("business_name", patch.BusinessName)
	expr.SetString("plan", patch.Plan)
	if patch.Settings != nil {
		settings, err := attributevalue.Marshal(*patch.Settings)
		if err != nil {
			return nil, fmt.Errorf("marshal settings: %w", err)
		}
		expr.Set("settings", settings)
	}
	if patch.SquareConnected != nil {
		expr.Set("square_connected", &types.AttributeValueMemberBOOL{Value: *patch.SquareConnected})
	}
	if expr.Empty() {
		return nil, &model.ValidationError{Field: "patch", Reason: "nothing to update"}
	}
	expr.Set("updated_at", &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)})

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
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return unmarshalTenant(output.Attributes)
}

// PutPhoneRoute claims a normalized phone number for a tenant. Re-claiming
// a number by its current owner is a no-op; claiming another tenant's
// number fails with ErrPhoneClaimed.
func (r *DynamoDBRepository) PutPhoneRoute(ctx context.Context, phone, tenantID string) error {
	normalized := model.NormalizePhone(phone)
	if normalized == "" {
		return &model.ValidationError{Field: "phone", Reason: "required"}
	}
	key := dynamo.PhoneRouteKey(normalized)

	_, err := dynamo.WithRetry(ctx, func() (*ddb.PutItemOutput, error) {
		return r.client.PutItem(ctx, &ddb.PutItemInput{
			TableName: aws.String(r.tableName),
			Item: map[string]types.AttributeValue{
				dynamo.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
				dynamo.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
				"phone":       &types.AttributeValueMemberS{Value: normalized},
				"tenant_id":   &types.AttributeValueMemberS{Value: tenantID},
			},
			ConditionExpression: aws.String("attribute_not_exists(pk) OR tenant_id = :tid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":tid": &types.AttributeValueMemberS{Value: tenantID},
			},
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return ErrPhoneClaimed
		}
		return fmt.Errorf("put phone route: %w", err)
	}
	return nil
}

// ResolvePhone maps a raw inbound phone number to its owning tenant.
func (r *DynamoDBRepository) ResolvePhone(ctx context.Context, phone string) (string, error) {
	normalized := model.NormalizePhone(phone)
	if normalized == "" {
		return "", &model.ValidationError{Field: "phone", Reason: "required"}
	}
	key := dynamo.PhoneRouteKey(normalized)

	output, err := dynamo.WithRetry(ctx, func() (*ddb.GetItemOutput, error) {
		return r.client.GetItem(ctx, &ddb.GetItemInput{
			TableName: aws.String(r.tableName),
			Key:       key.Attrs(),
		})
	})
	if err != nil {
		return "", fmt.Errorf("resolve phone: %w", err)
	}
	if output.Item == nil {
		return "", ErrRouteNotFound
	}
	var route model.PhoneRoute
	if err := attributevalue.UnmarshalMap(output.Item, &route); err != nil {
		return "", fmt.Errorf("unmarshal phone route: %w", err)
	}
	return route.TenantID, nil
}

func unmarshalTenant(item map[string]types.AttributeValue) (*model.Tenant, error) {
	var t model.Tenant
	if err := attributevalue.UnmarshalMap(item, &t); err != nil {
		return nil, fmt.Errorf("unmarshal tenant: %w", err)
	}
	return &t, nil
}

package user

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

// Get retrieves a single user.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, userID string) (*model.User, error) {
	key, err := dynamo.Encode(dynamo.EntityUser, tenantID, userID)
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
		return nil, fmt.Errorf("get user: %w", err)
	}
	if output.Item == nil {
		return nil, ErrUserNotFound
	}
	return unmarshalUser(output.Item)
}

// Create validates, assigns an id and timestamps, and writes a new user.
func (r *DynamoDBRepository) Create(ctx context.Context, tenantID string, u *model.User) (*model.User, error) {
	u.ApplyDefaults()
	if err := u.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.TenantID = tenantID
	u.CreatedAt = now
	u.UpdatedAt = now

	key, err := dynamo.Encode(dynamo.EntityUser, tenantID, u.ID)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
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
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("put user: %w", err)
	}
	return u, nil
}

// List enumerates every user in a tenant.
func (r *DynamoDBRepository) List(ctx context.Context, tenantID string) ([]*model.User, error) {
	var all []*model.User
	var startKey map[string]types.AttributeValue
	for {
		input := &ddb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
				":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixUser},
			},
		}
		if startKey != nil {
			input.ExclusiveStartKey = startKey
		}

		output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
			return r.client.Query(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, item := range output.Items {
			u, err := unmarshalUser(item)
			if err != nil {
				return nil, err
			}
			all = append(all, u)
		}
		if output.LastEvaluatedKey == nil {
			return all, nil
		}
		startKey = output.LastEvaluatedKey
	}
}

// SetRole changes a user's role.
func (r *DynamoDBRepository) SetRole(ctx context.Context, tenantID, userID string, role model.Role) (*model.User, error) {
	return r.setAttr(ctx, tenantID, userID, "role", string(role))
}

// SetStatus activates or deactivates a user.
func (r *DynamoDBRepository) SetStatus(ctx context.Context, tenantID, userID string, status model.UserStatus) (*model.User, error) {
	return r.setAttr(ctx, tenantID, userID, "status", string(status))
}

func (r *DynamoDBRepository) setAttr(ctx context.Context, tenantID, userID, attr, value string) (*model.User, error) {
	key, err := dynamo.Encode(dynamo.EntityUser, tenantID, userID)
	if err != nil {
		return nil, err
	}

	expr := dynamo.NewUpdateExpr()
	expr.Set(attr, &types.AttributeValueMemberS{Value: value})
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
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return unmarshalUser(output.Attributes)
}

func unmarshalUser(item map[string]types.AttributeValue) (*model.User, error) {
	var u model.User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

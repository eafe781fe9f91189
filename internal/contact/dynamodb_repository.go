package contact

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

const listLimitDefault = 50

// DynamoDBRepository implements Repository against the shared table.
type DynamoDBRepository struct {
	client    dynamo.Client
	tableName string
}

// NewDynamoDBRepository creates a new DynamoDBRepository.
func NewDynamoDBRepository(client dynamo.Client, tableName string) *DynamoDBRepository {
	return &DynamoDBRepository{client: client, tableName: tableName}
}

// Get retrieves a single contact.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, contactID string) (*model.Contact, error) {
	key, err := dynamo.Encode(dynamo.EntityContact, tenantID, contactID)
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
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if output.Item == nil {
		return nil, ErrContactNotFound
	}
	return unmarshalContact(output.Item)
}

// Create validates, assigns an id, and writes a new contact.
func (r *DynamoDBRepository) Create(ctx context.Context, tenantID string, c *model.Contact) (*model.Contact, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()

	key, err := dynamo.Encode(dynamo.EntityContact, tenantID, c.ID)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal contact: %w", err)
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
		return nil, fmt.Errorf("put contact: %w", err)
	}
	return c, nil
}

// Update applies a merge patch: only the provided fields change.
func (r *DynamoDBRepository) Update(ctx context.Context, tenantID, contactID string, patch Patch) (*model.Contact, error) {
	key, err := dynamo.Encode(dynamo.EntityContact, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	if patch.LeadStatus != nil {
		switch *patch.LeadStatus {
		case model.LeadProspect, model.LeadInterested, model.LeadClosedWon, model.LeadAbandoned:
		default:
			return nil, &model.ValidationError{Field: "lead_status", Reason: "unknown status"}
		}
	}
	if patch.Tier != nil {
		switch *patch.Tier {
		case model.TierBronze, model.TierSilver, model.TierGold:
		default:
			return nil, &model.ValidationError{Field: "tier", Reason: "unknown tier"}
		}
	}

	expr := dynamo.NewUpdateExpr()
	expr.SetString("name", patch.Name)
	expr.SetString("phone", patch.Phone)
	expr.SetString("email", patch.Email)
	expr.SetString("source_channel", patch.SourceChannel)
	if patch.LeadStatus != nil {
		expr.Set("lead_status", &types.AttributeValueMemberS{Value: string(*patch.LeadStatus)})
	}
	if patch.Tier != nil {
		expr.Set("tier", &types.AttributeValueMemberS{Value: string(*patch.Tier)})
	}
	if patch.Tags != nil {
		tags, err := attributevalue.Marshal(*patch.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		expr.Set("tags", tags)
	}
	if patch.LastActivityAt != nil {
		expr.Set("last_activity_at", &types.AttributeValueMemberS{Value: patch.LastActivityAt.UTC().Format(time.RFC3339)})
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
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return unmarshalContact(output.Attributes)
}

// Delete removes a contact.
func (r *DynamoDBRepository) Delete(ctx context.Context, tenantID, contactID string) error {
	key, err := dynamo.Encode(dynamo.EntityContact, tenantID, contactID)
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
			return ErrContactNotFound
		}
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

// List returns one page of the tenant's contacts, optionally narrowed to a
// funnel stage. The stage filter runs server side but after key paging, so a
// filtered page may come back short without being the last.
func (r *DynamoDBRepository) List(ctx context.Context, tenantID string, opts ListOptions) (*Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = listLimitDefault
	}
	startKey, err := dynamo.DecodeStartKey(opts.NextToken)
	if err != nil {
		return nil, err
	}

	input := &ddb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
			":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixContact},
		},
		Limit: aws.Int32(limit),
	}
	if opts.LeadStatus != "" {
		input.FilterExpression = aws.String("lead_status = :status")
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: string(opts.LeadStatus)}
	}
	if startKey != nil {
		input.ExclusiveStartKey = startKey
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
		return r.client.Query(ctx, input)
	})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	page := &Page{
		Contacts:  make([]*model.Contact, 0, len(output.Items)),
		NextToken: dynamo.EncodeStartKey(output.LastEvaluatedKey),
	}
	for _, item := range output.Items {
		c, err := unmarshalContact(item)
		if err != nil {
			return nil, err
		}
		page.Contacts = append(page.Contacts, c)
	}
	return page, nil
}

func unmarshalContact(item map[string]types.AttributeValue) (*model.Contact, error) {
	var c model.Contact
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal contact: %w", err)
	}
	return &c, nil
}

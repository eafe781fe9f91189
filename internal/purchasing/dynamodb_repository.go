package purchasing

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

// Get retrieves a single purchase order.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, orderID string) (*model.PurchaseOrder, error) {
	key, err := dynamo.Encode(dynamo.EntityPurchaseOrder, tenantID, orderID)
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
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if output.Item == nil {
		return nil, ErrOrderNotFound
	}
	return unmarshalOrder(output.Item)
}

// Create validates, assigns an id, and writes a new draft order.
func (r *DynamoDBRepository) Create(ctx context.Context, tenantID string, po *model.PurchaseOrder) (*model.PurchaseOrder, error) {
	po.ApplyDefaults()
	if err := po.Validate(); err != nil {
		return nil, err
	}
	if po.Status != model.POStatusDraft {
		return nil, &model.ValidationError{Field: "status", Reason: "new orders start in draft"}
	}
	now := time.Now().UTC()
	po.ID = uuid.NewString()
	po.CreatedAt = now
	po.UpdatedAt = now

	key, err := dynamo.Encode(dynamo.EntityPurchaseOrder, tenantID, po.ID)
	if err != nil {
		return nil, err
	}
	item, err := attributevalue.MarshalMap(po)
	if err != nil {
		return nil, fmt.Errorf("marshal purchase order: %w", err)
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
		return nil, fmt.Errorf("put purchase order: %w", err)
	}
	return po, nil
}

// UpdateDraft replaces the lines and notes of an order still in draft. The
// draft condition runs server side, so an order sent in between fails
// cleanly instead of silently mutating.
func (r *DynamoDBRepository) UpdateDraft(ctx context.Context, tenantID, orderID string, items []model.OrderItem, notes string) (*model.PurchaseOrder, error) {
	key, err := dynamo.Encode(dynamo.EntityPurchaseOrder, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	draft := model.PurchaseOrder{Items: items, Status: model.POStatusDraft}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	var total model.Money
	for _, item := range items {
		total = total.Add(item.UnitCost.MulInt(item.Quantity))
	}
	lines, err := attributevalue.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal order items: %w", err)
	}

	expr := dynamo.NewUpdateExpr()
	expr.Set("items", lines)
	expr.Set("total_cost", &types.AttributeValueMemberN{Value: total.String()})
	expr.Set("notes", &types.AttributeValueMemberS{Value: notes})
	expr.Set("updated_at", &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)})

	names := expr.Names()
	names["#st"] = "status"
	values := expr.Values()
	values[":draft"] = &types.AttributeValueMemberS{Value: string(model.POStatusDraft)}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.UpdateItemOutput, error) {
		return r.client.UpdateItem(ctx, &ddb.UpdateItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       key.Attrs(),
			UpdateExpression:          aws.String(expr.Expression()),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ConditionExpression:       aws.String("attribute_exists(pk) AND #st = :draft"),
			ReturnValues:              types.ReturnValueAllNew,
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, r.transitionFailure(ctx, tenantID, orderID, model.POStatusDraft)
		}
		return nil, fmt.Errorf("update purchase order: %w", err)
	}
	return unmarshalOrder(output.Attributes)
}

// Transition moves the order to a new status when the state machine allows
// it. The from-status is pinned in the condition, so two concurrent
// transitions cannot both win.
func (r *DynamoDBRepository) Transition(ctx context.Context, tenantID, orderID string, to model.POStatus) (*model.PurchaseOrder, error) {
	if !model.ValidPOStatus(to) {
		return nil, &model.ValidationError{Field: "status", Reason: "unknown status"}
	}
	po, err := r.Get(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(po.Status, to) {
		return nil, &model.StateTransitionError{From: po.Status, To: to}
	}
	key, err := dynamo.Encode(dynamo.EntityPurchaseOrder, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.UpdateItemOutput, error) {
		return r.client.UpdateItem(ctx, &ddb.UpdateItemInput{
			TableName:                 aws.String(r.tableName),
			Key:                       key.Attrs(),
			UpdateExpression:          aws.String("SET #st = :to, updated_at = :now"),
			ExpressionAttributeNames:  map[string]string{"#st": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":to":   &types.AttributeValueMemberS{Value: string(to)},
				":from": &types.AttributeValueMemberS{Value: string(po.Status)},
				":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
			ConditionExpression: aws.String("attribute_exists(pk) AND #st = :from"),
			ReturnValues:        types.ReturnValueAllNew,
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, r.transitionFailure(ctx, tenantID, orderID, po.Status)
		}
		return nil, fmt.Errorf("transition purchase order: %w", err)
	}
	return unmarshalOrder(output.Attributes)
}

// transitionFailure re-reads after a conditional failure to report either
// not-found or the status that actually blocked the change.
func (r *DynamoDBRepository) transitionFailure(ctx context.Context, tenantID, orderID string, wanted model.POStatus) error {
	po, err := r.Get(ctx, tenantID, orderID)
	if err != nil {
		return err
	}
	return &model.StateTransitionError{From: po.Status, To: wanted}
}

// List returns one page of the tenant's purchase orders, optionally
// narrowed to one lifecycle state.
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
			":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixPurchaseOrder},
		},
		Limit: aws.Int32(limit),
	}
	if opts.Status != "" {
		input.FilterExpression = aws.String("#st = :status")
		input.ExpressionAttributeNames = map[string]string{"#st": "status"}
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: string(opts.Status)}
	}
	if startKey != nil {
		input.ExclusiveStartKey = startKey
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
		return r.client.Query(ctx, input)
	})
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}

	page := &Page{
		Orders:    make([]*model.PurchaseOrder, 0, len(output.Items)),
		NextToken: dynamo.EncodeStartKey(output.LastEvaluatedKey),
	}
	for _, item := range output.Items {
		po, err := unmarshalOrder(item)
		if err != nil {
			return nil, err
		}
		page.Orders = append(page.Orders, po)
	}
	return page, nil
}

// BuildTransitionItem returns the transaction item moving an order between
// statuses for inclusion in a multi-item write.
func (r *DynamoDBRepository) BuildTransitionItem(tenantID, orderID string, from, to model.POStatus, now time.Time) types.TransactWriteItem {
	key, _ := dynamo.Encode(dynamo.EntityPurchaseOrder, tenantID, orderID)

	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                aws.String(r.tableName),
			Key:                      key.Attrs(),
			UpdateExpression:         aws.String("SET #st = :to, updated_at = :now"),
			ExpressionAttributeNames: map[string]string{"#st": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":to":   &types.AttributeValueMemberS{Value: string(to)},
				":from": &types.AttributeValueMemberS{Value: string(from)},
				":now":  &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
			},
			ConditionExpression: aws.String("attribute_exists(pk) AND #st = :from"),
		},
	}
}

func unmarshalOrder(item map[string]types.AttributeValue) (*model.PurchaseOrder, error) {
	var po model.PurchaseOrder
	if err := attributevalue.UnmarshalMap(item, &po); err != nil {
		return nil, fmt.Errorf("unmarshal purchase order: %w", err)
	}
	return &po, nil
}

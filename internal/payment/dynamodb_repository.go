package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

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

// Get retrieves a single payment.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	key, err := dynamo.Encode(dynamo.EntityPayment, tenantID, paymentID)
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
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if output.Item == nil {
		return nil, ErrPaymentNotFound
	}
	return unmarshalPayment(output.Item)
}

// FindBySquarePaymentID resolves a processor payment id to the stored
// payment and its owning tenant.
func (r *DynamoDBRepository) FindBySquarePaymentID(ctx context.Context, squarePaymentID string) (*Located, error) {
	output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
		return r.client.Query(ctx, &ddb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(dynamo.IndexGSI1),
			KeyConditionExpression: aws.String("gsi1pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: dynamo.PrefixSquarePayment + squarePaymentID},
			},
			Limit: aws.Int32(1),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("find payment by square id: %w", err)
	}
	if len(output.Items) == 0 {
		return nil, ErrPaymentNotFound
	}

	item := output.Items[0]
	p, err := unmarshalPayment(item)
	if err != nil {
		return nil, err
	}
	pkAttr, ok := item[dynamo.AttrPK].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("%w: payment row missing partition key", dynamo.ErrMalformedKey)
	}
	skAttr, _ := item[dynamo.AttrSK].(*types.AttributeValueMemberS)
	decoded, err := dynamo.Decode(dynamo.Key{PK: pkAttr.Value, SK: skAttr.Value})
	if err != nil {
		return nil, err
	}
	return &Located{Payment: p, TenantID: decoded.TenantID}, nil
}

// SetStatus moves a payment to a new settlement status. Re-applying the
// current status succeeds without a write, so webhook redelivery and
// out-of-order duplicates stay harmless.
func (r *DynamoDBRepository) SetStatus(ctx context.Context, tenantID, paymentID string, status model.PaymentStatus) (*model.Payment, error) {
	if !model.ValidPaymentStatus(status) {
		return nil, &model.ValidationError{Field: "status", Reason: "unknown status"}
	}
	key, err := dynamo.Encode(dynamo.EntityPayment, tenantID, paymentID)
	if err != nil {
		return nil, err
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.UpdateItemOutput, error) {
		return r.client.UpdateItem(ctx, &ddb.UpdateItemInput{
			TableName:                aws.String(r.tableName),
			Key:                      key.Attrs(),
			UpdateExpression:         aws.String("SET #st = :status, updated_at = :now"),
			ExpressionAttributeNames: map[string]string{"#st": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(status)},
				":now":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
			ConditionExpression: aws.String("attribute_exists(pk) AND #st <> :status"),
			ReturnValues:        types.ReturnValueAllNew,
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			// Either the payment is gone or it already holds the status.
			p, getErr := r.Get(ctx, tenantID, paymentID)
			if getErr != nil {
				return nil, getErr
			}
			if p.Status == status {
				return p, nil
			}
			return nil, fmt.Errorf("set payment status: %w", err)
		}
		return nil, fmt.Errorf("set payment status: %w", err)
	}
	return unmarshalPayment(output.Attributes)
}

// BuildPutItem returns the transaction item writing a new payment record,
// projected into the external-id index for webhook resolution.
func (r *DynamoDBRepository) BuildPutItem(tenantID string, p *model.Payment) (types.TransactWriteItem, error) {
	if err := p.Validate(); err != nil {
		return types.TransactWriteItem{}, err
	}
	if p.ID == "" {
		return types.TransactWriteItem{}, &model.ValidationError{Field: "id", Reason: "must be assigned"}
	}
	key, err := dynamo.Encode(dynamo.EntityPayment, tenantID, p.ID)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal payment: %w", err)
	}
	idx := dynamo.SquarePaymentIndexKey(p.SquarePaymentID, tenantID)
	item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[dynamo.AttrSK] = &types.AttributeValueMemberS{Value: key.SK}
	item[dynamo.AttrGSI1PK] = &types.AttributeValueMemberS{Value: idx.PK}
	item[dynamo.AttrGSI1SK] = &types.AttributeValueMemberS{Value: idx.SK}

	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}, nil
}

// connectionKey addresses a tenant's Square connection row.
func connectionKey(tenantID string) (dynamo.Key, error) {
	return dynamo.Encode(dynamo.EntitySquareConn, tenantID, tenantID)
}

// GetConnection retrieves a tenant's Square connection.
func (r *DynamoDBRepository) GetConnection(ctx context.Context, tenantID string) (*model.SquareConnection, error) {
	key, err := connectionKey(tenantID)
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
		return nil, fmt.Errorf("get square connection: %w", err)
	}
	if output.Item == nil {
		return nil, ErrConnectionNotFound
	}
	var conn model.SquareConnection
	if err := attributevalue.UnmarshalMap(output.Item, &conn); err != nil {
		return nil, fmt.Errorf("unmarshal square connection: %w", err)
	}
	return &conn, nil
}

// PutConnection stores a tenant's Square connection, projected into the
// merchant-id index so webhooks can recover the tenant.
func (r *DynamoDBRepository) PutConnection(ctx context.Context, conn *model.SquareConnection) error {
	if err := conn.Validate(); err != nil {
		return err
	}
	key, err := connectionKey(conn.TenantID)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(conn)
	if err != nil {
		return fmt.Errorf("marshal square connection: %w", err)
	}
	idx := dynamo.SquareMerchantIndexKey(conn.MerchantID, conn.TenantID)
	item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[dynamo.AttrSK] = &types.AttributeValueMemberS{Value: key.SK}
	item[dynamo.AttrGSI1PK] = &types.AttributeValueMemberS{Value: idx.PK}
	item[dynamo.AttrGSI1SK] = &types.AttributeValueMemberS{Value: idx.SK}

	_, err = dynamo.WithRetry(ctx, func() (*ddb.PutItemOutput, error) {
		return r.client.PutItem(ctx, &ddb.PutItemInput{
			TableName: aws.String(r.tableName),
			Item:      item,
		})
	})
	if err != nil {
		return fmt.Errorf("put square connection: %w", err)
	}
	return nil
}

// DeleteConnection removes a tenant's Square connection.
func (r *DynamoDBRepository) DeleteConnection(ctx context.Context, tenantID string) error {
	key, err := connectionKey(tenantID)
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
			return ErrConnectionNotFound
		}
		return fmt.Errorf("delete square connection: %w", err)
	}
	return nil
}

func unmarshalPayment(item map[string]types.AttributeValue) (*model.Payment, error) {
	var p model.Payment
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}
	return &p, nil
}

package transaction

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

const (
	listLimitDefault = 50
	listLimitMax     = 100

	// idempotencyScanLimit bounds how far back the duplicate check looks.
	// Client retries land within moments of the original, so the newest
	// records are enough.
	idempotencyScanLimit = 200

	summaryScanLimit = 500
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

// Get finds a transaction by its bare id. The sort key embeds the creation
// timestamp, so a point read is impossible; the ledger is walked newest
// first instead.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, transactionID string) (*model.Transaction, error) {
	t, _, err := r.find(ctx, tenantID, func(t *model.Transaction) bool {
		return t.ID == transactionID
	}, 0)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindByIdempotencyKey returns the recent transaction recorded under the
// given client key.
func (r *DynamoDBRepository) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*model.Transaction, error) {
	t, _, err := r.find(ctx, tenantID, func(t *model.Transaction) bool {
		return t.IdempotencyKey == key
	}, idempotencyScanLimit)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// find walks the ledger newest first until match returns true. A non-zero
// maxScan caps how many records are examined.
func (r *DynamoDBRepository) find(ctx context.Context, tenantID string, match func(*model.Transaction) bool, maxScan int) (*model.Transaction, string, error) {
	scanned := 0
	var startKey map[string]types.AttributeValue
	for {
		input := &ddb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
				":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction},
			},
			Limit:            aws.Int32(listLimitMax),
			ScanIndexForward: aws.Bool(false),
		}
		if startKey != nil {
			input.ExclusiveStartKey = startKey
		}

		output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
			return r.client.Query(ctx, input)
		})
		if err != nil {
			return nil, "", fmt.Errorf("scan ledger: %w", err)
		}
		for _, item := range output.Items {
			t, err := unmarshalTransaction(item)
			if err != nil {
				return nil, "", err
			}
			if match(t) {
				sk := item[dynamo.AttrSK].(*types.AttributeValueMemberS).Value
				return t, sk, nil
			}
			scanned++
			if maxScan > 0 && scanned >= maxScan {
				return nil, "", ErrTransactionNotFound
			}
		}
		if output.LastEvaluatedKey == nil {
			return nil, "", ErrTransactionNotFound
		}
		startKey = output.LastEvaluatedKey
	}
}

// List returns one ledger page, newest first, optionally bounded by an
// inclusive date range.
func (r *DynamoDBRepository) List(ctx context.Context, tenantID string, opts ListOptions) (*Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = listLimitDefault
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}
	startKey, err := dynamo.DecodeStartKey(opts.NextToken)
	if err != nil {
		return nil, err
	}

	input := &ddb.QueryInput{
		TableName:        aws.String(r.tableName),
		Limit:            aws.Int32(limit),
		ScanIndexForward: aws.Bool(false),
	}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
	}
	switch {
	case opts.StartDate != "" && opts.EndDate != "":
		input.KeyConditionExpression = aws.String("pk = :pk AND sk BETWEEN :lo AND :hi")
		values[":lo"] = &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction + opts.StartDate}
		values[":hi"] = &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction + opts.EndDate + dynamo.HighSentinel}
	case opts.StartDate != "":
		input.KeyConditionExpression = aws.String("pk = :pk AND begins_with(sk, :prefix)")
		values[":prefix"] = &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction + opts.StartDate}
	case opts.EndDate != "":
		input.KeyConditionExpression = aws.String("pk = :pk AND sk BETWEEN :lo AND :hi")
		values[":lo"] = &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction + "1970-01-01"}
		values[":hi"] = &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction + opts.EndDate + dynamo.HighSentinel}
	default:
		input.KeyConditionExpression = aws.String("pk = :pk AND begins_with(sk, :prefix)")
		values[":prefix"] = &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction}
	}
	input.ExpressionAttributeValues = values
	if startKey != nil {
		input.ExclusiveStartKey = startKey
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
		return r.client.Query(ctx, input)
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	page := &Page{
		Transactions: make([]*model.Transaction, 0, len(output.Items)),
		NextToken:    dynamo.EncodeStartKey(output.LastEvaluatedKey),
	}
	for _, item := range output.Items {
		t, err := unmarshalTransaction(item)
		if err != nil {
			return nil, err
		}
		page.Transactions = append(page.Transactions, t)
	}
	return page, nil
}

// Update patches the mutable fields of a ledger record.
func (r *DynamoDBRepository) Update(ctx context.Context, tenantID, transactionID string, patch Patch) (*model.Transaction, error) {
	if patch.Status != nil {
		switch *patch.Status {
		case model.TxnPending, model.TxnConfirmed:
		default:
			return nil, &model.ValidationError{Field: "status", Reason: "must be pending or confirmed"}
		}
	}

	expr := dynamo.NewUpdateExpr()
	if patch.Status != nil {
		expr.Set("status", &types.AttributeValueMemberS{Value: string(*patch.Status)})
	}
	expr.SetString("notes", patch.Notes)
	if expr.Empty() {
		return nil, &model.ValidationError{Field: "patch", Reason: "nothing to update"}
	}

	_, sk, err := r.find(ctx, tenantID, func(t *model.Transaction) bool {
		return t.ID == transactionID
	}, 0)
	if err != nil {
		return nil, err
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.UpdateItemOutput, error) {
		return r.client.UpdateItem(ctx, &ddb.UpdateItemInput{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				dynamo.AttrPK: &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
				dynamo.AttrSK: &types.AttributeValueMemberS{Value: sk},
			},
			UpdateExpression:          aws.String(expr.Expression()),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ConditionExpression:       aws.String("attribute_exists(pk)"),
			ReturnValues:              types.ReturnValueAllNew,
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	return unmarshalTransaction(output.Attributes)
}

// Summarize aggregates one day of sales: revenue, counts, and the revenue
// split by payment method.
func (r *DynamoDBRepository) Summarize(ctx context.Context, tenantID, date string) (*DailySummary, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, &model.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	summary := &DailySummary{
		Date:            date,
		RevenueByMethod: make(map[model.PaymentMethod]model.Money),
	}
	scanned := 0
	var startKey map[string]types.AttributeValue
	for {
		input := &ddb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
				":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixTransaction + date},
			},
		}
		if startKey != nil {
			input.ExclusiveStartKey = startKey
		}

		output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
			return r.client.Query(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("summarize transactions: %w", err)
		}
		for _, item := range output.Items {
			t, err := unmarshalTransaction(item)
			if err != nil {
				return nil, err
			}
			summary.TransactionCount++
			summary.TotalRevenue = summary.TotalRevenue.Add(t.Total)
			summary.RevenueByMethod[t.PaymentMethod] = summary.RevenueByMethod[t.PaymentMethod].Add(t.Total)
			for _, line := range t.Items {
				summary.ItemsSold += line.Quantity
			}
		}
		scanned += len(output.Items)
		if output.LastEvaluatedKey == nil || scanned >= summaryScanLimit {
			return summary, nil
		}
		startKey = output.LastEvaluatedKey
	}
}

// BuildPutItem returns the transaction item writing a new ledger record.
// The caller owns id and timestamp assignment so the same record can be
// composed with its side effects.
func (r *DynamoDBRepository) BuildPutItem(tenantID string, t *model.Transaction) (types.TransactWriteItem, error) {
	if err := t.Validate(); err != nil {
		return types.TransactWriteItem{}, err
	}
	if t.ID == "" || t.CreatedAt.IsZero() {
		return types.TransactWriteItem{}, &model.ValidationError{Field: "id", Reason: "id and created_at must be assigned"}
	}
	key, err := dynamo.Encode(dynamo.EntityTransaction, tenantID, dynamo.TransactionID(t.CreatedAt, t.ID))
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal transaction: %w", err)
	}
	item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[dynamo.AttrSK] = &types.AttributeValueMemberS{Value: key.SK}

	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		},
	}, nil
}

func unmarshalTransaction(item map[string]types.AttributeValue) (*model.Transaction, error) {
	var t model.Transaction
	if err := attributevalue.UnmarshalMap(item, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &t, nil
}

package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/counterbook/backend/internal/dynamo"
	"github.com/counterbook/backend/internal/model"
)

const (
	listLimitDefault = 50
	listLimitMax     = 100
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

// Get retrieves a single product.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, productID string) (*model.Product, error) {
	key, err := dynamo.Encode(dynamo.EntityProduct, tenantID, productID)
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
		return nil, fmt.Errorf("get product: %w", err)
	}
	if output.Item == nil {
		return nil, ErrProductNotFound
	}
	return unmarshalProduct(output.Item)
}

// Create validates, assigns an id and timestamps, and writes a new product.
func (r *DynamoDBRepository) Create(ctx context.Context, tenantID string, p *model.Product) (*model.Product, error) {
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := r.putProduct(ctx, tenantID, p, aws.String("attribute_not_exists(pk)")); err != nil {
		return nil, err
	}
	return p, nil
}

// Put overwrites an existing product in full.
func (r *DynamoDBRepository) Put(ctx context.Context, tenantID string, p *model.Product) error {
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		return &model.ValidationError{Field: "id", Reason: "required"}
	}
	p.UpdatedAt = time.Now().UTC()
	return r.putProduct(ctx, tenantID, p, nil)
}

func (r *DynamoDBRepository) putProduct(ctx context.Context, tenantID string, p *model.Product, condition *string) error {
	key, err := dynamo.Encode(dynamo.EntityProduct, tenantID, p.ID)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[dynamo.AttrSK] = &types.AttributeValueMemberS{Value: key.SK}
	if p.Category != "" {
		idx := dynamo.CategoryIndexKey(tenantID, p.Category)
		item[dynamo.AttrGSI1PK] = &types.AttributeValueMemberS{Value: idx.PK}
		item[dynamo.AttrGSI1SK] = &types.AttributeValueMemberS{Value: idx.SK}
	}

	_, err = dynamo.WithRetry(ctx, func() (*ddb.PutItemOutput, error) {
		return r.client.PutItem(ctx, &ddb.PutItemInput{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: condition,
		})
	})
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// Update applies a merge patch: only the provided fields change.
func (r *DynamoDBRepository) Update(ctx context.Context, tenantID, productID string, patch ProductPatch) (*model.Product, error) {
	key, err := dynamo.Encode(dynamo.EntityProduct, tenantID, productID)
	if err != nil {
		return nil, err
	}
	if patch.ReorderThreshold != nil && *patch.ReorderThreshold < 0 {
		return nil, &model.ValidationError{Field: "reorder_threshold", Reason: "must not be negative"}
	}
	if patch.UnitCost != nil && patch.UnitCost.Sign() < 0 {
		return nil, &model.ValidationError{Field: "unit_cost", Reason: "must not be negative"}
	}

	expr := dynamo.NewUpdateExpr()
	expr.SetString("name", patch.Name)
	expr.SetString("supplier_id", patch.SupplierID)
	expr.SetString("sku", patch.SKU)
	expr.SetString("unit", patch.Unit)
	expr.SetString("notes", patch.Notes)
	if patch.UnitCost != nil {
		expr.Set("unit_cost", &types.AttributeValueMemberN{Value: patch.UnitCost.String()})
	}
	if patch.ReorderThreshold != nil {
		expr.Set("reorder_threshold", &types.AttributeValueMemberN{Value: strconv.Itoa(*patch.ReorderThreshold)})
	}
	if patch.Category != nil {
		expr.Set("category", &types.AttributeValueMemberS{Value: *patch.Category})
		idx := dynamo.CategoryIndexKey(tenantID, *patch.Category)
		expr.Set(dynamo.AttrGSI1PK, &types.AttributeValueMemberS{Value: idx.PK})
		expr.Set(dynamo.AttrGSI1SK, &types.AttributeValueMemberS{Value: idx.SK})
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
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return unmarshalProduct(output.Attributes)
}

// Delete removes a product.
func (r *DynamoDBRepository) Delete(ctx context.Context, tenantID, productID string) error {
	key, err := dynamo.Encode(dynamo.EntityProduct, tenantID, productID)
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
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// List returns one page of the tenant's products, optionally filtered by
// category via the category index.
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
		TableName: aws.String(r.tableName),
		Limit:     aws.Int32(limit),
	}
	if opts.Category != "" {
		idx := dynamo.CategoryIndexKey(tenantID, opts.Category)
		input.IndexName = aws.String(dynamo.IndexGSI1)
		input.KeyConditionExpression = aws.String("gsi1pk = :pk AND gsi1sk = :sk")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: idx.PK},
			":sk": &types.AttributeValueMemberS{Value: idx.SK},
		}
	} else {
		input.KeyConditionExpression = aws.String("pk = :pk AND begins_with(sk, :prefix)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: dynamo.TenantPK(tenantID)},
			":prefix": &types.AttributeValueMemberS{Value: dynamo.PrefixProduct},
		}
	}
	if startKey != nil {
		input.ExclusiveStartKey = startKey
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.QueryOutput, error) {
		return r.client.Query(ctx, input)
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	page := &Page{
		Products:  make([]*model.Product, 0, len(output.Items)),
		NextToken: dynamo.EncodeStartKey(output.LastEvaluatedKey),
	}
	for _, item := range output.Items {
		p, err := unmarshalProduct(item)
		if err != nil {
			return nil, err
		}
		page.Products = append(page.Products, p)
	}
	return page, nil
}

// ListAll enumerates every product for a tenant, following pagination.
func (r *DynamoDBRepository) ListAll(ctx context.Context, tenantID string) ([]*model.Product, error) {
	var all []*model.Product
	token := ""
	for {
		page, err := r.List(ctx, tenantID, ListOptions{Limit: listLimitMax, NextToken: token})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Products...)
		if page.NextToken == "" {
			return all, nil
		}
		token = page.NextToken
	}
}

// SetQuantity sets an absolute stock level.
func (r *DynamoDBRepository) SetQuantity(ctx context.Context, tenantID, productID string, quantity int) (*model.Product, error) {
	if quantity < 0 {
		return nil, &model.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	key, err := dynamo.Encode(dynamo.EntityProduct, tenantID, productID)
	if err != nil {
		return nil, err
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.UpdateItemOutput, error) {
		return r.client.UpdateItem(ctx, &ddb.UpdateItemInput{
			TableName:        aws.String(r.tableName),
			Key:              key.Attrs(),
			UpdateExpression: aws.String("SET quantity = :qty, updated_at = :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":qty": &types.AttributeValueMemberN{Value: strconv.Itoa(quantity)},
				":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			},
			ConditionExpression: aws.String("attribute_exists(pk)"),
			ReturnValues:        types.ReturnValueAllNew,
		})
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("set quantity: %w", err)
	}
	return unmarshalProduct(output.Attributes)
}

// AdjustQuantity applies a relative stock delta. A negative delta is
// rejected with InsufficientStockError when it would drive the quantity
// below zero; the check and the write are one conditional update, so
// concurrent adjustments cannot oversell.
func (r *DynamoDBRepository) AdjustQuantity(ctx context.Context, tenantID, productID string, delta int) (*model.Product, error) {
	key, err := dynamo.Encode(dynamo.EntityProduct, tenantID, productID)
	if err != nil {
		return nil, err
	}

	input := &ddb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              key.Attrs(),
		UpdateExpression: aws.String("SET quantity = quantity + :delta, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
			":now":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
		ReturnValues:        types.ReturnValueAllNew,
	}
	if delta < 0 {
		input.ConditionExpression = aws.String("attribute_exists(pk) AND quantity >= :need")
		input.ExpressionAttributeValues[":need"] = &types.AttributeValueMemberN{Value: strconv.Itoa(-delta)}
	}

	output, err := dynamo.WithRetry(ctx, func() (*ddb.UpdateItemOutput, error) {
		return r.client.UpdateItem(ctx, input)
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, r.stockFailure(ctx, tenantID, productID, -delta)
		}
		return nil, fmt.Errorf("adjust quantity: %w", err)
	}
	return unmarshalProduct(output.Attributes)
}

// stockFailure turns a conditional failure on a decrement into either
// not-found or the stock triple, re-reading the current quantity.
func (r *DynamoDBRepository) stockFailure(ctx context.Context, tenantID, productID string, requested int) error {
	p, err := r.Get(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	return &InsufficientStockError{ProductID: productID, Available: p.Quantity, Requested: requested}
}

// BuildAdjustQuantityItem returns the transaction item decrementing or
// incrementing a product's stock for inclusion in a multi-item write. The
// quantity condition is re-checked at commit time, which closes the race
// between a preflight read and the commit.
func (r *DynamoDBRepository) BuildAdjustQuantityItem(tenantID, productID string, delta int, now time.Time) types.TransactWriteItem {
	key, _ := dynamo.Encode(dynamo.EntityProduct, tenantID, productID)

	update := &types.Update{
		TableName:        aws.String(r.tableName),
		Key:              key.Attrs(),
		UpdateExpression: aws.String("SET quantity = quantity + :delta, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
			":now":   &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	}
	if delta < 0 {
		update.ConditionExpression = aws.String("attribute_exists(pk) AND quantity >= :need")
		update.ExpressionAttributeValues[":need"] = &types.AttributeValueMemberN{Value: strconv.Itoa(-delta)}
	}
	return types.TransactWriteItem{Update: update}
}

func unmarshalProduct(item map[string]types.AttributeValue) (*model.Product, error) {
	var p model.Product
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

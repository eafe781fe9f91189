package insight

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
	now       func() time.Time
}

// NewDynamoDBRepository creates a DynamoDBRepository.
func NewDynamoDBRepository(client dynamo.Client, tableName string) *DynamoDBRepository {
	return &DynamoDBRepository{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// Get returns the cached insight for the date. The table's TTL reclamation
// is best effort, so an item past its expiry is treated as absent here.
func (r *DynamoDBRepository) Get(ctx context.Context, tenantID, date string) (*model.Insight, error) {
	key, err := dynamo.Encode(dynamo.EntityInsight, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInsightNotFound, err)
	}

	result, err := dynamo.WithRetry(ctx, func() (*ddb.GetItemOutput, error) {
		return r.client.GetItem(ctx, &ddb.GetItemInput{
			TableName: aws.String(r.tableName),
			Key:       key.Attrs(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get insight: %w", err)
	}
	if result.Item == nil {
		return nil, ErrInsightNotFound
	}

	var insight model.Insight
	if err := attributevalue.UnmarshalMap(result.Item, &insight); err != nil {
		return nil, fmt.Errorf("unmarshal insight: %w", err)
	}
	if insight.Expired(r.now()) {
		return nil, ErrInsightNotFound
	}
	return &insight, nil
}

// Put caches an insight under its tenant and date. Regeneration for the
// same date overwrites; last write wins.
func (r *DynamoDBRepository) Put(ctx context.Context, insight *model.Insight) error {
	if err := insight.Validate(); err != nil {
		return err
	}
	key, err := dynamo.Encode(dynamo.EntityInsight, insight.TenantID, insight.Date)
	if err != nil {
		return err
	}
	if insight.ExpiresAt == 0 {
		insight.ExpiresAt = r.now().Add(CacheTTLDays * 24 * time.Hour).Unix()
	}

	item, err := attributevalue.MarshalMap(insight)
	if err != nil {
		return fmt.Errorf("marshal insight: %w", err)
	}
	item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: key.PK}
	item[dynamo.AttrSK] = &types.AttributeValueMemberS{Value: key.SK}

	_, err = dynamo.WithRetry(ctx, func() (*ddb.PutItemOutput, error) {
		return r.client.PutItem(ctx, &ddb.PutItemInput{
			TableName: aws.String(r.tableName),
			Item:      item,
		})
	})
	if err != nil {
		return fmt.Errorf("put insight: %w", err)
	}
	return nil
}

// Package insight caches per-tenant AI business analyses keyed by date and
// regenerates them from live data via Amazon Bedrock.
package insight

import (
	"context"
	"errors"

	"github.com/counterbook/backend/internal/model"
)

// Error types for repository operations.
var (
	ErrInsightNotFound = errors.New("insight not found")
)

// CacheTTLDays is how long a generated insight stays servable.
const CacheTTLDays = 7

// Repository defines insight cache storage operations.
type Repository interface {
	// Get returns the cached insight for the tenant and date, or
	// ErrInsightNotFound if none exists or the cached one has expired.
	Get(ctx context.Context, tenantID, date string) (*model.Insight, error)
	// Put caches an insight, replacing any earlier one for the same date.
	Put(ctx context.Context, insight *model.Insight) error
}

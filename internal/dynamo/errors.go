package dynamo

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrStoreUnavailable wraps transient backend failures that survived the
// retry budget. Callers may retry the whole operation with backoff;
// conditional failures never map to it.
var ErrStoreUnavailable = errors.New("store unavailable")

// IsConditionalCheckFailed reports whether err is a single-item conditional
// write rejection.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// TransactionConditionFailed reports whether err is a cancelled transaction
// in which at least one item's condition check failed, as opposed to a
// conflict or transient cancellation.
func TransactionConditionFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// IsTransactionConflict reports whether err is a cancelled or conflicting
// transaction without a failed condition check, i.e. a concurrency signal
// the caller should re-fetch and retry at the operation level.
func IsTransactionConflict(err error) bool {
	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return !TransactionConditionFailed(err)
	}
	return false
}

// isPermanent reports whether err must not be retried at the store level.
// Conditional and transactional rejections are correctness signals.
func isPermanent(err error) bool {
	if IsConditionalCheckFailed(err) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return true
	}
	var conflict *types.TransactionConflictException
	return errors.As(err, &conflict)
}

package dynamo

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrBadToken is returned when a continuation token cannot be decoded.
var ErrBadToken = fmt.Errorf("invalid continuation token")

// EncodeStartKey converts a LastEvaluatedKey into an opaque continuation
// token. All key attributes in this table are strings, so only S members
// are carried. Returns "" when key is empty (no more pages).
func EncodeStartKey(key map[string]types.AttributeValue) string {
	if len(key) == 0 {
		return ""
	}
	flat := make(map[string]string, len(key))
	for name, av := range key {
		if s, ok := av.(*types.AttributeValueMemberS); ok {
			flat[name] = s.Value
		}
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeStartKey converts a continuation token back into an
// ExclusiveStartKey. An empty token yields nil (start from the beginning).
func DecodeStartKey(token string) (map[string]types.AttributeValue, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if len(flat) == 0 {
		return nil, ErrBadToken
	}
	key := make(map[string]types.AttributeValue, len(flat))
	for name, value := range flat {
		key[name] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}

package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attrs returns the key as item attributes for Get/Update/Delete inputs.
func (k Key) Attrs() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: k.PK},
		AttrSK: &types.AttributeValueMemberS{Value: k.SK},
	}
}

// UpdateExpr accumulates SET clauses for a dynamic update expression.
// Attribute names are always aliased through placeholders, so reserved
// words like "name" and "status" are safe to set.
type UpdateExpr struct {
	clauses []string
	names   map[string]string
	values  map[string]types.AttributeValue
}

// NewUpdateExpr creates an empty update expression builder.
func NewUpdateExpr() *UpdateExpr {
	return &UpdateExpr{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// Set adds a SET clause assigning attr to value.
func (e *UpdateExpr) Set(attr string, value types.AttributeValue) {
	n := len(e.clauses)
	nameRef := fmt.Sprintf("#n%d", n)
	valueRef := fmt.Sprintf(":v%d", n)
	e.clauses = append(e.clauses, nameRef+" = "+valueRef)
	e.names[nameRef] = attr
	e.values[valueRef] = value
}

// SetString adds a SET clause for an optional string; nil is skipped.
func (e *UpdateExpr) SetString(attr string, value *string) {
	if value == nil {
		return
	}
	e.Set(attr, &types.AttributeValueMemberS{Value: *value})
}

// Empty reports whether no clauses have been added.
func (e *UpdateExpr) Empty() bool {
	return len(e.clauses) == 0
}

// Expression renders the full update expression.
func (e *UpdateExpr) Expression() string {
	return "SET " + strings.Join(e.clauses, ", ")
}

// Names returns the attribute name aliases.
func (e *UpdateExpr) Names() map[string]string {
	return e.names
}

// Values returns the bound expression values.
func (e *UpdateExpr) Values() map[string]types.AttributeValue {
	return e.values
}

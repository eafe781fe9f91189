// Package model defines the validated entity shapes stored in the table.
package model

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount. It marshals to a DynamoDB number so
// stored totals never pick up float rounding.
type Money struct {
	decimal.Decimal
}

// NewMoney builds a Money from units and an exponent, e.g. NewMoney(450, -2)
// is 4.50.
func NewMoney(value int64, exp int32) Money {
	return Money{decimal.New(value, exp)}
}

// MoneyFromString parses a decimal string amount.
func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{d}, nil
}

// MarshalDynamoDBAttributeValue stores the amount as a number attribute.
func (m Money) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: m.String()}, nil
}

// UnmarshalDynamoDBAttributeValue accepts number or string attributes.
func (m *Money) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		m.Decimal = decimal.Zero
		return nil
	default:
		return fmt.Errorf("cannot unmarshal %T into Money", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid stored amount %q: %w", raw, err)
	}
	m.Decimal = d
	return nil
}

// Mul returns m multiplied by an integer quantity.
func (m Money) MulInt(n int) Money {
	return Money{m.Decimal.Mul(decimal.NewFromInt(int64(n)))}
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{m.Decimal.Add(other.Decimal)}
}

// Cents returns the amount in minor units, as payment processors expect.
func (m Money) Cents() int64 {
	return m.Decimal.Shift(2).IntPart()
}

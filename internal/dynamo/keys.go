// Package dynamo provides the single-table key scheme, shared DynamoDB
// constants, and store utilities used by every repository.
package dynamo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Primary key and index attribute names.
const (
	AttrPK = "pk"
	AttrSK = "sk"

	// GSI1 carries the alternate lookup patterns: category filtering for
	// products and external-id resolution for payments and connections.
	AttrGSI1PK = "gsi1pk"
	AttrGSI1SK = "gsi1sk"

	// Expiry attribute. Also registered as the table's native TTL attribute,
	// but readers compare it themselves since reclamation is best-effort.
	AttrExpiresAt = "expires_at"

	// Index names.
	IndexGSI1 = "GSI1"
)

// Key prefixes. The sort-key prefix is the entity type discriminant and must
// never be ambiguous across entities.
const (
	PrefixTenant        = "TENANT#"
	PrefixContact       = "CONTACT#"
	PrefixProduct       = "PRODUCT#"
	PrefixSupplier      = "SUPPLIER#"
	PrefixPurchaseOrder = "PO#"
	PrefixTransaction   = "TXN#"
	PrefixPayment       = "PAYMENT#"
	PrefixInsight       = "INSIGHT#"
	PrefixUser          = "USER#"
	PrefixSquare        = "SQUARE#"

	PrefixCategory       = "CATEGORY#"
	PrefixSquarePayment  = "SQUARE_PAYMENT#"
	PrefixSquareMerchant = "SQUARE_MERCHANT#"

	// PhonePK is the partition of the phone-number-to-tenant routing rows,
	// the one cross-tenant bootstrap lookup.
	PhonePK = "PHONE"
)

// HighSentinel sorts after every printable sort-key suffix; used to close
// BETWEEN ranges on date prefixes.
const HighSentinel = "￿"

// EntityType identifies the concrete shape stored behind a sort-key prefix.
type EntityType string

const (
	EntityTenant        EntityType = "TENANT"
	EntityContact       EntityType = "CONTACT"
	EntityProduct       EntityType = "PRODUCT"
	EntitySupplier      EntityType = "SUPPLIER"
	EntityPurchaseOrder EntityType = "PURCHASE_ORDER"
	EntityTransaction   EntityType = "TRANSACTION"
	EntityPayment       EntityType = "PAYMENT"
	EntityInsight       EntityType = "INSIGHT"
	EntityUser          EntityType = "USER"
	EntitySquareConn    EntityType = "SQUARE_CONNECTION"
)

// ErrMalformedKey is returned when a key cannot be encoded or decoded.
var ErrMalformedKey = errors.New("malformed key")

// Key is a composite (partition key, sort key) address in the table.
type Key struct {
	PK string
	SK string
}

// Decoded is the result of decoding a Key back to its components. For
// transactions EntityID is the "<iso_timestamp>#<id>" composite.
type Decoded struct {
	Type     EntityType
	TenantID string
	EntityID string
}

var skPrefixByType = map[EntityType]string{
	EntityTenant:        PrefixTenant,
	EntityContact:       PrefixContact,
	EntityProduct:       PrefixProduct,
	EntitySupplier:      PrefixSupplier,
	EntityPurchaseOrder: PrefixPurchaseOrder,
	EntityTransaction:   PrefixTransaction,
	EntityPayment:       PrefixPayment,
	EntityInsight:       PrefixInsight,
	EntityUser:          PrefixUser,
	EntitySquareConn:    PrefixSquare,
}

var typeBySKPrefix = func() map[string]EntityType {
	m := make(map[string]EntityType, len(skPrefixByType))
	for t, p := range skPrefixByType {
		m[p] = t
	}
	return m
}()

// TenantPK returns the partition key owning every item of a tenant.
func TenantPK(tenantID string) string {
	return PrefixTenant + tenantID
}

// Encode builds the primary key for an entity. The entity id must not be
// empty and must not contain the key separator, except for transactions
// whose id is the "<iso_timestamp>#<id>" composite.
func Encode(t EntityType, tenantID, entityID string) (Key, error) {
	prefix, ok := skPrefixByType[t]
	if !ok {
		return Key{}, fmt.Errorf("%w: unknown entity type %q", ErrMalformedKey, t)
	}
	if tenantID == "" || strings.Contains(tenantID, "#") {
		return Key{}, fmt.Errorf("%w: invalid tenant id %q", ErrMalformedKey, tenantID)
	}
	if entityID == "" {
		return Key{}, fmt.Errorf("%w: empty entity id", ErrMalformedKey)
	}
	if t != EntityTransaction && strings.Contains(entityID, "#") {
		return Key{}, fmt.Errorf("%w: entity id %q contains separator", ErrMalformedKey, entityID)
	}
	return Key{PK: TenantPK(tenantID), SK: prefix + entityID}, nil
}

// Decode recovers the entity type, tenant id, and entity id from a key.
// It is the inverse of Encode for all valid inputs.
func Decode(key Key) (Decoded, error) {
	if !strings.HasPrefix(key.PK, PrefixTenant) {
		return Decoded{}, fmt.Errorf("%w: partition key %q lacks tenant prefix", ErrMalformedKey, key.PK)
	}
	tenantID := strings.TrimPrefix(key.PK, PrefixTenant)
	if tenantID == "" {
		return Decoded{}, fmt.Errorf("%w: empty tenant id in %q", ErrMalformedKey, key.PK)
	}

	sep := strings.Index(key.SK, "#")
	if sep < 0 || sep == len(key.SK)-1 {
		return Decoded{}, fmt.Errorf("%w: sort key %q lacks id", ErrMalformedKey, key.SK)
	}
	prefix := key.SK[:sep+1]
	t, ok := typeBySKPrefix[prefix]
	if !ok {
		return Decoded{}, fmt.Errorf("%w: unknown sort key prefix %q", ErrMalformedKey, prefix)
	}
	return Decoded{Type: t, TenantID: tenantID, EntityID: key.SK[sep+1:]}, nil
}

// TransactionID joins a creation timestamp and a unique id into the
// timestamp-first composite that gives transactions their natural
// newest-first ordering.
func TransactionID(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "#" + id
}

// SplitTransactionID splits a transaction composite id back into its
// creation timestamp and unique id.
func SplitTransactionID(composite string) (time.Time, string, error) {
	sep := strings.Index(composite, "#")
	if sep < 0 {
		return time.Time{}, "", fmt.Errorf("%w: transaction id %q lacks timestamp", ErrMalformedKey, composite)
	}
	ts, err := time.Parse(time.RFC3339Nano, composite[:sep])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad transaction timestamp: %v", ErrMalformedKey, err)
	}
	return ts, composite[sep+1:], nil
}

// CategoryIndexKey returns the GSI1 key pair that lists a tenant's products
// within one category.
func CategoryIndexKey(tenantID, category string) Key {
	return Key{PK: TenantPK(tenantID), SK: PrefixCategory + category}
}

// SquarePaymentIndexKey returns the GSI1 key pair resolving an external
// Square payment id back to the owning tenant.
func SquarePaymentIndexKey(squarePaymentID, tenantID string) Key {
	return Key{PK: PrefixSquarePayment + squarePaymentID, SK: TenantPK(tenantID)}
}

// SquareMerchantIndexKey returns the GSI1 key pair resolving a Square
// merchant id back to the owning tenant.
func SquareMerchantIndexKey(merchantID, tenantID string) Key {
	return Key{PK: PrefixSquareMerchant + merchantID, SK: TenantPK(tenantID)}
}

// PhoneRouteKey addresses the routing row mapping a normalized phone number
// to a tenant.
func PhoneRouteKey(normalizedPhone string) Key {
	return Key{PK: PhonePK, SK: normalizedPhone}
}

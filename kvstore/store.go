package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Get when no item exists at the key
	ErrNotFound = errors.New("kvstore: item not found")

	// ErrConditionFailed is returned by Put when an IfExists/IfNotExists
	// condition does not hold
	ErrConditionFailed = errors.New("kvstore: condition failed")

	// ErrInvalidQuery is returned for queries the adapter cannot express
	ErrInvalidQuery = errors.New("kvstore: invalid query")
)

// DefaultQueryLimit is used when Query.Limit is zero
const DefaultQueryLimit = 100

// Item is a single record addressed by partition key and sort key.
// Data holds the JSON encoded record.
type Item struct {
	PK        string
	SK        string
	Data      []byte
	UpdatedAt time.Time
}

// NewItem encodes v as JSON into an Item at (pk, sk)
func NewItem(pk, sk string, v interface{}) (Item, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Item{}, fmt.Errorf("kvstore: encode %s/%s: %w", pk, sk, err)
	}
	return Item{PK: pk, SK: sk, Data: data}, nil
}

// Decode unmarshals the item's JSON payload into v
func (i *Item) Decode(v interface{}) error {
	if err := json.Unmarshal(i.Data, v); err != nil {
		return fmt.Errorf("kvstore: decode %s/%s: %w", i.PK, i.SK, err)
	}
	return nil
}

// Query selects items from one partition in sort key order.
//
// Prefix restricts results to sort keys starting with it. From is an
// inclusive bound and After an exclusive one, both applied in the scan
// direction (lower bounds when ascending, upper bounds when descending).
// Prefix and From cannot be combined.
type Query struct {
	PK         string
	Prefix     string
	From       string
	After      string
	Descending bool
	Limit      int
}

// Validate checks that the query can be run by every backend
func (q Query) Validate() error {
	if q.PK == "" {
		return fmt.Errorf("%w: partition key is required", ErrInvalidQuery)
	}
	if q.Prefix != "" && q.From != "" {
		return fmt.Errorf("%w: prefix and from are mutually exclusive", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

func (q Query) limit() int {
	if q.Limit == 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Page is one batch of query results. LastKey is set when more items may
// follow; pass it back as Query.After to continue.
type Page struct {
	Items   []Item
	LastKey string
}

// PutOption adds a condition to a Put
type PutOption func(*putOptions)

type condition int

const (
	conditionNone condition = iota
	conditionExists
	conditionNotExists
)

type putOptions struct {
	condition condition
}

// IfNotExists makes the Put fail with ErrConditionFailed when an item is
// already stored at the key
func IfNotExists() PutOption {
	return func(o *putOptions) { o.condition = conditionNotExists }
}

// IfExists makes the Put fail with ErrConditionFailed unless an item is
// already stored at the key
func IfExists() PutOption {
	return func(o *putOptions) { o.condition = conditionExists }
}

func applyPutOptions(opts []PutOption) putOptions {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store is a sorted-key store with per-item atomic writes and no
// multi-item transactions. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the item at (pk, sk) or ErrNotFound
	Get(ctx context.Context, pk, sk string) (*Item, error)

	// Put writes the item, overwriting any existing one unless a condition is given
	Put(ctx context.Context, item Item, opts ...PutOption) error

	// Delete removes the item at (pk, sk). Deleting a missing item is not an error.
	Delete(ctx context.Context, pk, sk string) error

	// Query scans one partition
	Query(ctx context.Context, q Query) (*Page, error)

	// Migrate creates the backing table(s) if they are missing
	Migrate(ctx context.Context) error

	// Ping verifies connectivity with the backend
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// prefixUpperBound returns the smallest string greater than every string
// starting with prefix, or "" when no such bound exists.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Each item value lives under its own
// string key and each partition keeps its sort keys in a sorted set with
// score 0 so ZRANGE BYLEX walks them in byte order.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL parses url (redis://...) and verifies the connection
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisStore(c), nil
}

func redisValueKey(pk, sk string) string {
	return "kv:{" + pk + "}:" + sk
}

func redisIndexKey(pk string) string {
	return "kvidx:{" + pk + "}"
}

// Migrate is a no-op; Redis keys need no schema
func (s *RedisStore) Migrate(ctx context.Context) error {
	return nil
}

// Get loads one item
func (s *RedisStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	res, err := s.client.Get(ctx, redisValueKey(pk, sk)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", pk, sk, err)
	}
	return &Item{PK: pk, SK: sk, Data: []byte(res)}, nil
}

// Put stores the value with SET (NX / XX for conditions) and then indexes
// the sort key. A crash between the two leaves an unindexed value, which a
// retried Put repairs.
func (s *RedisStore) Put(ctx context.Context, item Item, opts ...PutOption) error {
	o := applyPutOptions(opts)
	key := redisValueKey(item.PK, item.SK)

	switch o.condition {
	case conditionNotExists:
		ok, err := s.client.SetNX(ctx, key, item.Data, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to put %s/%s: %w", item.PK, item.SK, err)
		}
		if !ok {
			return ErrConditionFailed
		}
	case conditionExists:
		ok, err := s.client.SetXX(ctx, key, item.Data, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to put %s/%s: %w", item.PK, item.SK, err)
		}
		if !ok {
			return ErrConditionFailed
		}
	default:
		if err := s.client.Set(ctx, key, item.Data, 0).Err(); err != nil {
			return fmt.Errorf("failed to put %s/%s: %w", item.PK, item.SK, err)
		}
	}

	if err := s.client.ZAdd(ctx, redisIndexKey(item.PK), redis.Z{Score: 0, Member: item.SK}).Err(); err != nil {
		return fmt.Errorf("failed to index %s/%s: %w", item.PK, item.SK, err)
	}
	return nil
}

// Delete drops the value and its index entry in one MULTI/EXEC
func (s *RedisStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisValueKey(pk, sk))
		pipe.ZRem(ctx, redisIndexKey(pk), sk)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", pk, sk, err)
	}
	return nil
}

// Query walks the partition's sorted set by lex range and fetches values
// with MGET
func (s *RedisStore) Query(ctx context.Context, q Query) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.limit()
	min, max := redisLexRange(q)

	members, err := s.client.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:   redisIndexKey(q.PK),
		Start: min,
		Stop:  max,
		ByLex: true,
		Rev:   q.Descending,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", q.PK, err)
	}

	page := &Page{Items: make([]Item, 0, len(members))}
	if len(members) == 0 {
		return page, nil
	}

	keys := make([]string, len(members))
	for i, sk := range members {
		keys[i] = redisValueKey(q.PK, sk)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load partition %s: %w", q.PK, err)
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// indexed but value missing; skip
			continue
		}
		page.Items = append(page.Items, Item{PK: q.PK, SK: members[i], Data: []byte(str)})
	}
	if len(members) == limit {
		page.LastKey = members[len(members)-1]
	}
	return page, nil
}

// lexBound is one end of a ZRANGE BYLEX interval
type lexBound struct {
	value     string
	exclusive bool
}

func (b *lexBound) String() string {
	if b.exclusive {
		return "(" + b.value
	}
	return "[" + b.value
}

// tighter picks the bound closer to the middle of the range. lower selects
// whether larger values are tighter. On equal values the exclusive bound wins.
func tighter(a, b *lexBound, lower bool) *lexBound {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.value == b.value {
		if b.exclusive {
			return b
		}
		return a
	}
	if (a.value > b.value) == lower {
		return a
	}
	return b
}

// redisLexRange converts a Query into ZRANGE BYLEX min/max arguments
func redisLexRange(q Query) (min, max string) {
	var lo, hi *lexBound
	if q.Prefix != "" {
		lo = &lexBound{value: q.Prefix}
		if upper := prefixUpperBound(q.Prefix); upper != "" {
			hi = &lexBound{value: upper, exclusive: true}
		}
	}

	if q.Descending {
		if q.From != "" {
			hi = tighter(hi, &lexBound{value: q.From}, false)
		}
		if q.After != "" {
			hi = tighter(hi, &lexBound{value: q.After, exclusive: true}, false)
		}
	} else {
		if q.From != "" {
			lo = tighter(lo, &lexBound{value: q.From}, true)
		}
		if q.After != "" {
			lo = tighter(lo, &lexBound{value: q.After, exclusive: true}, true)
		}
	}

	min, max = "-", "+"
	if lo != nil {
		min = lo.String()
	}
	if hi != nil {
		max = hi.String()
	}
	return min, max
}

// Ping verifies the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type RedisCache struct{ rdb *redis.Client }

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *RedisCache) Close() error { return r.rdb.Close() }

type entry[T any] struct {
	Found  bool `json:"found"`
	Record T    `json:"record,omitempty"`
}

// cached consults the cache before fetch and stores hits and misses. Failed
// lookups are never cached; cache errors fall through to fetch.
func cached[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	var zero T
	if raw, err := c.Get(ctx, key); err == nil {
		var e entry[T]
		if json.Unmarshal([]byte(raw), &e) == nil {
			if !e.Found {
				return zero, ErrNotFound
			}
			return e.Record, nil
		}
	}
	rec, err := fetch()
	switch StatusOf(err) {
	case Found:
		if b, mErr := json.Marshal(entry[T]{Found: true, Record: rec}); mErr == nil {
			_ = c.Set(ctx, key, string(b), ttl)
		}
	case NotFound:
		if b, mErr := json.Marshal(entry[T]{}); mErr == nil {
			_ = c.Set(ctx, key, string(b), ttl)
		}
	}
	return rec, err
}

type CachedBookings struct {
	next  Bookings
	cache Cache
	ttl   time.Duration
}

func NewCachedBookings(next Bookings, c Cache, ttl time.Duration) *CachedBookings {
	return &CachedBookings{next: next, cache: c, ttl: ttl}
}

func (b *CachedBookings) Booking(ctx context.Context, customerID string) (models.BookingRecord, error) {
	return cached(ctx, b.cache, "leadfunnel:booking:"+customerID, b.ttl, func() (models.BookingRecord, error) {
		return b.next.Booking(ctx, customerID)
	})
}

type CachedTransactions struct {
	next  Transactions
	cache Cache
	ttl   time.Duration
}

func NewCachedTransactions(next Transactions, c Cache, ttl time.Duration) *CachedTransactions {
	return &CachedTransactions{next: next, cache: c, ttl: ttl}
}

func (t *CachedTransactions) Transaction(ctx context.Context, customerID string) (models.TransactionRecord, error) {
	return cached(ctx, t.cache, "leadfunnel:transaction:"+customerID, t.ttl, func() (models.TransactionRecord, error) {
		return t.next.Transaction(ctx, customerID)
	})
}

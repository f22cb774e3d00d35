package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix = "torob:price:"
	redisExpiryIndex = "torob:price:expiry"
)

// RedisCacheStore implements CacheStore on Redis. Each product's entry lives
// in a JSON value; a sorted set scored by expiry timestamp drives sweeps and
// stats, since Redis TTLs alone cannot distinguish expired from valid rows.
type RedisCacheStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCacheStore creates a cache store on the given Redis address
func NewRedisCacheStore(addr string, db int) *RedisCacheStore {
	return &RedisCacheStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		now: time.Now,
	}
}

// NewRedisCacheStoreFromClient wraps an existing client, for tests
func NewRedisCacheStoreFromClient(client *redis.Client) *RedisCacheStore {
	return &RedisCacheStore{client: client, now: time.Now}
}

// WithClock overrides the store's clock, for tests
func (s *RedisCacheStore) WithClock(now func() time.Time) *RedisCacheStore {
	s.now = now
	return s
}

// Close releases the underlying client
func (s *RedisCacheStore) Close() error {
	return s.client.Close()
}

func entryKey(productID int64) string {
	return redisEntryPrefix + strconv.FormatInt(productID, 10)
}

func (s *RedisCacheStore) Get(ctx context.Context, productID int64) (*CacheEntry, error) {
	data, err := s.client.Get(ctx, entryKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	if !entry.ExpiresAt.After(s.now()) {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, entry CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := entryKey(entry.ProductID)
	pipe := s.client.TxPipeline()
	// Redis TTL is only a backstop; logical expiry lives in the entry so
	// stats can still count expired rows before the sweep runs
	backstop := time.Until(entry.ExpiresAt) + 24*time.Hour
	pipe.Set(ctx, key, data, backstop)
	pipe.ZAdd(ctx, redisExpiryIndex, redis.Z{
		Score:  float64(entry.ExpiresAt.Unix()),
		Member: key,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisCacheStore) Delete(ctx context.Context, productID int64) error {
	key := entryKey(productID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, redisExpiryIndex, key)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCacheStore) Clear(ctx context.Context) error {
	keys, err := s.client.ZRange(ctx, redisExpiryIndex, 0, -1).Result()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, redisExpiryIndex)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisCacheStore) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := strconv.FormatInt(s.now().Unix(), 10)
	keys, err := s.client.ZRangeByScore(ctx, redisExpiryIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByScore(ctx, redisExpiryIndex, "-inf", cutoff)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (s *RedisCacheStore) Stats(ctx context.Context) (CacheStats, error) {
	now := strconv.FormatInt(s.now().Unix(), 10)

	expired, err := s.client.ZCount(ctx, redisExpiryIndex, "-inf", now).Result()
	if err != nil {
		return CacheStats{}, err
	}
	valid, err := s.client.ZCount(ctx, redisExpiryIndex, "("+now, "+inf").Result()
	if err != nil {
		return CacheStats{}, err
	}

	return CacheStats{
		Total:   int(expired + valid),
		Expired: int(expired),
		Valid:   int(valid),
	}, nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTier stores entries as JSON under "<prefix>:<namespace>:<key>" and
// lets Redis expire them with the entry TTL.
type RedisTier struct {
	rdb    *redis.Client
	prefix string
}

var _ Tier = (*RedisTier)(nil)

// NewRedisTier creates a Redis-backed tier. If prefix is empty, it uses "cache".
func NewRedisTier(rdb *redis.Client, prefix string) *RedisTier {
	if prefix == "" {
		prefix = "cache"
	}
	return &RedisTier{rdb: rdb, prefix: prefix}
}

func (r *RedisTier) Name() string { return "redis" }

// Get returns the entry stored under (ns, key).
func (r *RedisTier) Get(ctx context.Context, ns, key string) (Entry, bool, error) {
	k := r.cacheKey(ns, key)
	b, err := r.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		// Delete corrupted cache entry
		_ = r.rdb.Del(ctx, k).Err()
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set stores e with its TTL. Entries without a positive TTL are not stored.
func (r *RedisTier) Set(ctx context.Context, e Entry) error {
	if e.TTL <= 0 {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return r.rdb.Set(ctx, r.cacheKey(e.Namespace, e.Key), b, e.TTL).Err()
}

func (r *RedisTier) Delete(ctx context.Context, ns, key string) error {
	return r.rdb.Del(ctx, r.cacheKey(ns, key)).Err()
}

// DeleteNamespace removes every key of ns using SCAN.
func (r *RedisTier) DeleteNamespace(ctx context.Context, ns string) error {
	return r.deleteByPattern(ctx, fmt.Sprintf("%s:%s:*", r.prefix, safe(ns)))
}

// cacheKey generates the Redis key for (ns, key).
func (r *RedisTier) cacheKey(ns, key string) string {
	return r.prefix + ":" + compositeKey(ns, key)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (r *RedisTier) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := r.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

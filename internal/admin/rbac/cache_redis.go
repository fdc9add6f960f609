// Copyright (c) 2026 Castellan Authors. All rights reserved.

package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castellan-io/castellan/internal/platform/constants"
)

// scanBatchSize bounds each SCAN iteration during bulk invalidation.
const scanBatchSize = 100

// RedisCache is the Redis-backed implementation of [Cache]. Permission sets
// are stored as JSON arrays under one key per user.
type RedisCache struct {
	client *redis.Client
}

// Compile-time interface check.
var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed permission cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func permissionsKey(userID int64) string {
	return fmt.Sprintf("%s:%d", constants.RedisPrefixPermissions, userID)
}

// Get returns the cached permission set, reporting found=false on a miss.
func (c *RedisCache) Get(ctx context.Context, userID int64) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, permissionsKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rbac_cache_get_failed: %w", err)
	}

	var perms []string
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil, false, fmt.Errorf("rbac_cache_decode_failed: %w", err)
	}
	return perms, true, nil
}

// Set stores the permission set. An empty set is stored as an empty JSON
// array so negative results are cached too.
func (c *RedisCache) Set(ctx context.Context, userID int64, perms []string, ttl time.Duration) error {
	if perms == nil {
		perms = []string{}
	}

	raw, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("rbac_cache_encode_failed: %w", err)
	}

	if err := c.client.Set(ctx, permissionsKey(userID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("rbac_cache_set_failed: %w", err)
	}
	return nil
}

// Invalidate deletes one user's cached permission set. Deleting an absent
// key is not an error.
func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, permissionsKey(userID)).Err(); err != nil {
		return fmt.Errorf("rbac_cache_invalidate_failed: %w", err)
	}
	return nil
}

// InvalidateAll deletes every cached permission set using incremental SCAN
// so the operation never blocks Redis the way KEYS would.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	pattern := constants.RedisPrefixPermissions + ":*"

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("rbac_cache_scan_failed: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("rbac_cache_invalidate_all_failed: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

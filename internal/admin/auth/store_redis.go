// Copyright (c) 2026 Castellan Authors. All rights reserved.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/platform/constants"
)

// sweepBatchSize bounds each SCAN iteration during session sweeps.
const sweepBatchSize = 100

// # Key Construction

func accessKey(userID int64, sessionUUID string) string {
	return fmt.Sprintf("%s:%d:%s", constants.RedisPrefixAccessToken, userID, sessionUUID)
}

func refreshKey(userID int64, sessionUUID string) string {
	return fmt.Sprintf("%s:%d:%s", constants.RedisPrefixRefreshToken, userID, sessionUUID)
}

func metaKey(userID int64, sessionUUID string) string {
	return fmt.Sprintf("%s:%d:%s", constants.RedisPrefixSessionMeta, userID, sessionUUID)
}

func identityKey(userID int64) string {
	return fmt.Sprintf("%s:%d", constants.RedisPrefixIdentity, userID)
}

// # Redis Session Store

// RedisSessionStore is the Redis-backed implementation of [SessionStore].
type RedisSessionStore struct {
	client *redis.Client
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("session_store_put_failed: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session_store_get_failed: %w", err)
	}
	return value, true, nil
}

func (s *RedisSessionStore) delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("session_store_delete_failed: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) PutAccess(ctx context.Context, userID int64, sessionUUID, token string, ttl time.Duration) error {
	return s.put(ctx, accessKey(userID, sessionUUID), token, ttl)
}

func (s *RedisSessionStore) GetAccess(ctx context.Context, userID int64, sessionUUID string) (string, bool, error) {
	return s.get(ctx, accessKey(userID, sessionUUID))
}

func (s *RedisSessionStore) DeleteAccess(ctx context.Context, userID int64, sessionUUID string) error {
	return s.delete(ctx, accessKey(userID, sessionUUID))
}

func (s *RedisSessionStore) PutRefresh(ctx context.Context, userID int64, sessionUUID, token string, ttl time.Duration) error {
	return s.put(ctx, refreshKey(userID, sessionUUID), token, ttl)
}

func (s *RedisSessionStore) GetRefresh(ctx context.Context, userID int64, sessionUUID string) (string, bool, error) {
	return s.get(ctx, refreshKey(userID, sessionUUID))
}

func (s *RedisSessionStore) DeleteRefresh(ctx context.Context, userID int64, sessionUUID string) error {
	return s.delete(ctx, refreshKey(userID, sessionUUID))
}

func (s *RedisSessionStore) PutMeta(ctx context.Context, userID int64, sessionUUID string, meta SessionMeta, ttl time.Duration) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("session_store_meta_encode_failed: %w", err)
	}
	return s.put(ctx, metaKey(userID, sessionUUID), string(raw), ttl)
}

func (s *RedisSessionStore) DeleteMeta(ctx context.Context, userID int64, sessionUUID string) error {
	return s.delete(ctx, metaKey(userID, sessionUUID))
}

// DeleteAllForUser scans and deletes every session key of the user across
// the access, refresh, and metadata key families.
func (s *RedisSessionStore) DeleteAllForUser(ctx context.Context, userID int64) error {
	patterns := []string{
		fmt.Sprintf("%s:%d:*", constants.RedisPrefixAccessToken, userID),
		fmt.Sprintf("%s:%d:*", constants.RedisPrefixRefreshToken, userID),
		fmt.Sprintf("%s:%d:*", constants.RedisPrefixSessionMeta, userID),
	}

	for _, pattern := range patterns {
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, pattern, sweepBatchSize).Result()
			if err != nil {
				return fmt.Errorf("session_store_sweep_scan_failed: %w", err)
			}

			if len(keys) > 0 {
				if err := s.client.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("session_store_sweep_delete_failed: %w", err)
				}
			}

			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return nil
}

// # Redis Identity Cache

// RedisIdentityCache is the Redis-backed implementation of [IdentityCache].
// Identities are stored as JSON; the password hash is excluded by the
// identity type's JSON tags and never reaches Redis.
type RedisIdentityCache struct {
	client *redis.Client
}

var _ IdentityCache = (*RedisIdentityCache)(nil)

// NewRedisIdentityCache creates a Redis-backed identity cache.
func NewRedisIdentityCache(client *redis.Client) *RedisIdentityCache {
	return &RedisIdentityCache{client: client}
}

func (c *RedisIdentityCache) Get(ctx context.Context, userID int64) (*identity.Identity, bool, error) {
	raw, err := c.client.Get(ctx, identityKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("identity_cache_get_failed: %w", err)
	}

	var ident identity.Identity
	if err := json.Unmarshal([]byte(raw), &ident); err != nil {
		return nil, false, fmt.Errorf("identity_cache_decode_failed: %w", err)
	}
	return &ident, true, nil
}

func (c *RedisIdentityCache) Set(ctx context.Context, ident *identity.Identity, ttl time.Duration) error {
	raw, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("identity_cache_encode_failed: %w", err)
	}

	if err := c.client.Set(ctx, identityKey(ident.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("identity_cache_set_failed: %w", err)
	}
	return nil
}

func (c *RedisIdentityCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, identityKey(userID)).Err(); err != nil {
		return fmt.Errorf("identity_cache_invalidate_failed: %w", err)
	}
	return nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-pinmap/models"
)

const (
	cacheKeyLastPosition = "lastPosition"
	cacheKeyPendingName  = "pendingUserName"
	cacheKeyPermission   = "locationPermission"

	clientCacheTTL   = 30 * 24 * time.Hour
	positionFreshFor = 5 * time.Minute
)

// KVStore is the string key-value store behind LocalCache. ok is false when
// the key does not exist.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// PermissionFlag remembers the last answer to the location prompt so the
// client is not asked again. It is independent of the OS permission.
type PermissionFlag int

const (
	PermissionUnknown PermissionFlag = iota
	PermissionGranted
	PermissionDenied
)

func (p PermissionFlag) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

func (p PermissionFlag) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PermissionFlag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = parsePermission(s)
	return nil
}

func parsePermission(s string) PermissionFlag {
	switch s {
	case "granted":
		return PermissionGranted
	case "denied":
		return PermissionDenied
	default:
		return PermissionUnknown
	}
}

type cachedPosition struct {
	Position  models.LatLng `json:"position"`
	Timestamp int64         `json:"timestamp"`
}

// LocalCache holds per-client session hints: the last device position, the
// display name awaiting email confirmation and the permission flag.
type LocalCache struct {
	kv        KVStore
	namespace string
	now       func() time.Time
}

func NewLocalCache(kv KVStore, clientID string) *LocalCache {
	return &LocalCache{kv: kv, namespace: "client:" + clientID + ":", now: time.Now}
}

// Get decodes the JSON value under key into dest.
func (c *LocalCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := c.kv.Get(ctx, c.namespace+key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode cache key %s: %w", key, err)
	}
	return true, nil
}

func (c *LocalCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache key %s: %w", key, err)
	}
	return c.kv.Set(ctx, c.namespace+key, string(raw), clientCacheTTL)
}

func (c *LocalCache) Remove(ctx context.Context, key string) error {
	return c.kv.Del(ctx, c.namespace+key)
}

// LastPosition returns the cached device position if it is recent enough.
func (c *LocalCache) LastPosition(ctx context.Context) (models.LatLng, bool) {
	var cp cachedPosition
	ok, err := c.Get(ctx, cacheKeyLastPosition, &cp)
	if err != nil || !ok {
		return models.LatLng{}, false
	}
	if c.now().Sub(time.UnixMilli(cp.Timestamp)) >= positionFreshFor {
		return models.LatLng{}, false
	}
	return cp.Position, true
}

func (c *LocalCache) SetLastPosition(ctx context.Context, p models.LatLng) error {
	return c.Set(ctx, cacheKeyLastPosition, cachedPosition{Position: p, Timestamp: c.now().UnixMilli()})
}

func (c *LocalCache) PendingName(ctx context.Context) string {
	var name string
	if ok, err := c.Get(ctx, cacheKeyPendingName, &name); err != nil || !ok {
		return ""
	}
	return name
}

func (c *LocalCache) SetPendingName(ctx context.Context, name string) error {
	return c.Set(ctx, cacheKeyPendingName, name)
}

func (c *LocalCache) ClearPendingName(ctx context.Context) error {
	return c.Remove(ctx, cacheKeyPendingName)
}

func (c *LocalCache) Permission(ctx context.Context) PermissionFlag {
	var s string
	if ok, err := c.Get(ctx, cacheKeyPermission, &s); err != nil || !ok {
		return PermissionUnknown
	}
	return parsePermission(s)
}

func (c *LocalCache) SetPermission(ctx context.Context, p PermissionFlag) error {
	if p == PermissionUnknown {
		return c.Remove(ctx, cacheKeyPermission)
	}
	return c.Set(ctx, cacheKeyPermission, p.String())
}

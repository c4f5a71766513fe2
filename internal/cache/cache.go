// Package cache stores JSON payloads in Redis with a fixed TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis helpers for JSON payloads. A nil client turns every call
// into a miss so callers need no special casing when Redis is not configured.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New constructs a cache helper whose keys share prefix.
func New(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Key namespaces name under the cache prefix.
func (c *Cache) Key(name string) string {
	if c == nil || c.prefix == "" {
		return name
	}
	return c.prefix + ":" + name
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, name string, dst any) (bool, error) {
	if c == nil || c.client == nil || name == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.Key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", name, err)
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, name string, v any) error {
	if c == nil || c.client == nil || name == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", name, err)
	}
	return c.client.Set(ctx, c.Key(name), data, c.ttl).Err()
}

// Delete drops a cached entry.
func (c *Cache) Delete(ctx context.Context, name string) error {
	if c == nil || c.client == nil || name == "" {
		return nil
	}
	return c.client.Del(ctx, c.Key(name)).Err()
}

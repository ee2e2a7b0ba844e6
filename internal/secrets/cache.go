package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/redis/go-redis/v9"
)

// SecretCache is a read-through cache in front of a SecretStore. Its
// TTL doubles as the rotation grace window: a rotated secret's prior
// value may keep being served to in-flight readers until the cached
// entry expires. That race is accepted and documented, not a crash
// condition.
type SecretCache interface {
	Get(ctx context.Context, path string) (domain.Secret, bool, error)
	Set(ctx context.Context, path string, secret domain.Secret, ttl time.Duration) error
	Delete(ctx context.Context, path string) error
}

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	secret    domain.Secret
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
	}
}

func (c *MemoryCache) Get(ctx context.Context, path string) (domain.Secret, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[path]
	if !ok || time.Now().After(entry.expiresAt) {
		return domain.Secret{}, false, nil
	}

	return entry.secret, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, path string, secret domain.Secret, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = memoryCacheEntry{
		secret:    secret,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)

	return nil
}

// RedisCache shares the grace-window cache across worker processes.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: "syncline:secret:",
	}
}

func (c *RedisCache) Get(ctx context.Context, path string) (domain.Secret, bool, error) {
	payload, err := c.client.Get(ctx, c.keyPrefix+path).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Secret{}, false, nil
	}
	if err != nil {
		return domain.Secret{}, false, fmt.Errorf("failed to read secret cache: %w", err)
	}

	var secret domain.Secret
	if err := json.Unmarshal(payload, &secret); err != nil {
		return domain.Secret{}, false, fmt.Errorf("failed to unmarshal cached secret: %w", err)
	}

	return secret, true, nil
}

func (c *RedisCache) Set(ctx context.Context, path string, secret domain.Secret, ttl time.Duration) error {
	payload, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("failed to marshal secret for cache: %w", err)
	}

	if err := c.client.Set(ctx, c.keyPrefix+path, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write secret cache: %w", err)
	}

	return nil
}

func (c *RedisCache) Delete(ctx context.Context, path string) error {
	if err := c.client.Del(ctx, c.keyPrefix+path).Err(); err != nil {
		return fmt.Errorf("failed to invalidate secret cache: %w", err)
	}

	return nil
}

// Package cache wraps Redis for JSON documents shared across requests: persisted
// carts and the catalog category listing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "sf"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store reads and writes JSON values under a key prefix.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New dials lazily; the first command opens the connection.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(opts.Addr),
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewWithClient(client, opts.Prefix)
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// GetJSON decodes the value at key into dest. It reports false on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value at key. A zero ttl keeps the key forever.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.key(key)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return s.prefix + ":" + strings.TrimSpace(key)
}

package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store holds the single cached token slot. Implementations replace the slot
// whole so readers see either the previous token or the new one.
type Store interface {
	// Load returns the stored token, or nil with a nil error when empty.
	Load(ctx context.Context) (*Token, error)

	// Save replaces the stored token. ttl is the token's remaining lifetime.
	Save(ctx context.Context, tok *Token, ttl time.Duration) error

	// Clear empties the slot.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store. The zero value is ready to use.
type MemoryStore struct {
	slot atomic.Pointer[Token]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (*Token, error) {
	return s.slot.Load(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, tok *Token, _ time.Duration) error {
	stored := *tok
	s.slot.Store(&stored)
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(context.Context) error {
	s.slot.Store(nil)
	return nil
}

// RedisStore shares one token among processes through a Redis key. The key
// expires together with the token.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a store that keeps the token under key.
func NewRedisStore(client redis.Cmdable, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if key == "" {
		return nil, errors.New("redis key cannot be empty")
	}
	return &RedisStore{client: client, key: key}, nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*Token, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read token from redis: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("could not decode token from redis: %w", err)
	}
	return &tok, nil
}

// Save implements Store. A token with no remaining lifetime clears the key.
func (s *RedisStore) Save(ctx context.Context, tok *Token, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Clear(ctx)
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("could not encode token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("could not write token to redis: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("could not delete token from redis: %w", err)
	}
	return nil
}

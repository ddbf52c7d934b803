package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore caches the final PaymentResult under the request's
// idempotency key. While the record is unexpired every replay of the same key
// returns the cached result verbatim and never reaches a provider.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (PaymentResult, bool, error)
	Put(ctx context.Context, key string, result PaymentResult, ttl time.Duration) error
}

const idempotencyKeyPrefix = "payments:idempotency"

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (PaymentResult, bool, error) {
	data, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PaymentResult{}, false, nil
	}
	if err != nil {
		return PaymentResult{}, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	var result PaymentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return PaymentResult{}, false, fmt.Errorf("idempotency decode: %w", err)
	}
	return result, true, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, result PaymentResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("idempotency encode: %w", err)
	}
	if err := s.client.Set(ctx, s.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) fullKey(key string) string {
	return idempotencyKeyPrefix + ":" + key
}

// MemoryIdempotencyStore is the in-process fallback used when no Redis is
// configured (single-node deployments) and in tests.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memoryIdempotencyRecord
}

type memoryIdempotencyRecord struct {
	result    PaymentResult
	expiresAt time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{records: make(map[string]memoryIdempotencyRecord)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (PaymentResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return PaymentResult{}, false, nil
	}
	if time.Now().After(rec.expiresAt) {
		delete(s.records, key)
		return PaymentResult{}, false, nil
	}
	return rec.result, true, nil
}

func (s *MemoryIdempotencyStore) Put(_ context.Context, key string, result PaymentResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = memoryIdempotencyRecord{result: result, expiresAt: time.Now().Add(ttl)}
	return nil
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the breaker rejects an operation.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RedisStore wraps a Redis client with the op budget and circuit breaker.
// Every call returns within the budget regardless of Redis health.
type RedisStore struct {
	client   *redis.Client
	breaker  *CircuitBreaker
	opBudget time.Duration
}

// NewRedisStore creates a breaker-guarded Redis store.
func NewRedisStore(client *redis.Client, breaker *CircuitBreaker, opBudget time.Duration) *RedisStore {
	if opBudget <= 0 {
		opBudget = 50 * time.Millisecond
	}
	return &RedisStore{
		client:   client,
		breaker:  breaker,
		opBudget: opBudget,
	}
}

// Get reads a key. Returns ErrRedisUnavailable while the circuit is open.
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if !r.breaker.Allow() {
		return "", false, ErrRedisUnavailable
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opBudget)
	defer cancel()

	val, err := r.client.Get(opCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		r.breaker.RecordSuccess()
		return "", false, nil
	}
	if err != nil {
		r.breaker.RecordFailure()
		return "", false, err
	}

	r.breaker.RecordSuccess()
	return val, true, nil
}

// Set writes a key with TTL. Returns ErrRedisUnavailable while open.
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !r.breaker.Allow() {
		return ErrRedisUnavailable
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opBudget)
	defer cancel()

	if err := r.client.Set(opCtx, key, value, ttl).Err(); err != nil {
		r.breaker.RecordFailure()
		return err
	}

	r.breaker.RecordSuccess()
	return nil
}

// BreakerState exposes the breaker state for explainability and metrics.
func (r *RedisStore) BreakerState() BreakerState {
	return r.breaker.State()
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skylane/booking/config"
	"github.com/skylane/booking/internal/domain"
)

// IdempotencyStore caches payment confirmation results by the caller's
// idempotency key, so a retried confirmation returns the original result
// instead of re-running the transition.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(cfg config.RedisConfig, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		ttl:    ttl,
	}
}

// GetResult returns the cached result for key, or (nil, nil) on a miss.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (*domain.PaymentResult, error) {
	data, err := s.client.Get(ctx, paymentKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var result domain.PaymentResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *IdempotencyStore) PutResult(ctx context.Context, key string, result *domain.PaymentResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, paymentKey(key), payload, s.ttl).Err()
}

func (s *IdempotencyStore) Close() error {
	return s.client.Close()
}

func paymentKey(key string) string {
	return fmt.Sprintf("idem:payment:%s", key)
}

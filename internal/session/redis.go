package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopfront/checkout/internal/domain"
)

func NewRedisBridge(client *redis.Client) *RedisBridge {
	return &RedisBridge{
		client:  client,
		baseTTL: 30 * time.Minute,
	}
}

type RedisBridge struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (b RedisBridge) Put(ctx context.Context, key string, order *domain.PendingOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal pending order failed: %w", err)
	}

	// jitter spreads expiry for abandoned checkouts; a fresh Put refreshes
	// the TTL so an active summary screen never expires under the customer
	jitter := time.Duration(rand.IntN(5)) * time.Minute
	ttl := b.baseTTL + jitter
	if err := b.client.Set(ctx, bridgeKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (b RedisBridge) Get(ctx context.Context, key string) (*domain.PendingOrder, error) {
	data, err := b.client.Get(ctx, bridgeKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var order domain.PendingOrder
	if err2 := json.Unmarshal(data, &order); err2 != nil {
		return nil, fmt.Errorf("unmarshal pending order failed: %w", err2)
	}
	return &order, nil
}

func (b RedisBridge) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, bridgeKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func bridgeKey(key string) string {
	return fmt.Sprintf("pending:%s", key)
}

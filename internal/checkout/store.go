package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

const (
	orderSeqKey    = "orders:seq"
	orderRecentKey = "orders:recent"
)

func orderKey(id string) string {
	return fmt.Sprintf("order:%s", id)
}

// OrderStore keeps orders in Redis for a limited time. It stands in for a
// real order database: completed orders only need to outlive the thank-you
// page and the admin order list.
type OrderStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewOrderStore(redisClient *redis.Client, ttl time.Duration) *OrderStore {
	return &OrderStore{redisClient: redisClient, ttl: ttl}
}

// NextID returns a fresh order id of the form ORD-<n>.
func (s *OrderStore) NextID(ctx context.Context) (string, error) {
	n, err := s.redisClient.Incr(ctx, orderSeqKey).Result()
	if err != nil {
		return "", fmt.Errorf("allocating order id: %w", err)
	}
	return fmt.Sprintf("ORD-%d", n), nil
}

// Save stores the order with the configured expiry.
func (s *OrderStore) Save(ctx context.Context, order *Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encoding order: %w", err)
	}

	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, orderKey(order.ID), data, s.ttl)
		pipe.ZAdd(ctx, orderRecentKey, redis.Z{
			Score:  float64(order.CreatedAt.UnixMilli()),
			Member: order.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving order: %w", err)
	}
	return nil
}

// Get returns the order or a NotFoundError once it has expired.
func (s *OrderStore) Get(ctx context.Context, id string) (*Order, error) {
	data, err := s.redisClient.Get(ctx, orderKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.NotFoundError{Resource: "order", ID: id}
		}
		return nil, fmt.Errorf("loading order: %w", err)
	}

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decoding order: %w", err)
	}
	return &order, nil
}

// Recent returns up to limit unexpired orders, newest first. Expired ids
// are pruned from the index as they are found.
func (s *OrderStore) Recent(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.redisClient.ZRevRange(ctx, orderRecentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders := []Order{}
	if len(ids) == 0 {
		return orders, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = orderKey(id)
	}
	values, err := s.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading orders: %w", err)
	}

	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var order Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, fmt.Errorf("decoding order %s: %w", ids[i], err)
		}
		orders = append(orders, order)
	}

	if len(expired) > 0 {
		s.redisClient.ZRem(ctx, orderRecentKey, expired...)
	}
	return orders, nil
}

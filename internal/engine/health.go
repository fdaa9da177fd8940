package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

// Endpoint health states
const (
	HealthUnknown  = "unknown"
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthFailing  = "failing"
)

// HealthTracker keeps per-subscription delivery counters in Redis so the
// admin screen can show which endpoints are struggling.
//
// It is purely observational: unlike a circuit breaker it never skips or
// delays a delivery.
type HealthTracker struct {
	redisClient      *redis.Client
	lookup           SubscriptionLookup
	logger           *slog.Logger
	failingThreshold int
	timeout          time.Duration
	ttl              time.Duration
}

// SubscriptionLookup tells the tracker whether a subscription still exists.
type SubscriptionLookup interface {
	Get(id string) (domain.Subscription, error)
}

type HealthOption func(*HealthTracker)

// WithLookup makes the tracker ignore attempts that finish after their
// subscription was removed, so Forget is not undone.
func WithLookup(l SubscriptionLookup) HealthOption {
	return func(h *HealthTracker) { h.lookup = l }
}

// EndpointHealth is the health summary for one subscription.
type EndpointHealth struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	TotalSuccess        int    `json:"total_success"`
	TotalFailed         int    `json:"total_failed"`
	LastOutcome         string `json:"last_outcome,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	LastAttemptAt       string `json:"last_attempt_at,omitempty"`
}

// healthTTL expires counters nobody has written to for a week, covering
// a removal that races an attempt between lookup and write.
const healthTTL = 7 * 24 * time.Hour

func NewHealthTracker(redisClient *redis.Client, logger *slog.Logger, opts ...HealthOption) *HealthTracker {
	h := &HealthTracker{
		redisClient:      redisClient,
		logger:           logger,
		failingThreshold: 5,
		timeout:          2 * time.Second,
		ttl:              healthTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func healthKey(subscriptionID string) string {
	return fmt.Sprintf("health:%s", subscriptionID)
}

// OnAttempt folds one attempt into the subscription's counters.
func (h *HealthTracker) OnAttempt(ctx context.Context, a domain.DeliveryAttempt) {
	if h.lookup != nil {
		if _, err := h.lookup.Get(a.SubscriptionID); err != nil {
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	key := healthKey(a.SubscriptionID)
	_, err := h.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if a.Outcome == domain.OutcomeSuccess {
			pipe.HSet(ctx, key, "consecutive_failures", 0, "last_error", "")
			pipe.HIncrBy(ctx, key, "total_success", 1)
		} else {
			pipe.HIncrBy(ctx, key, "consecutive_failures", 1)
			pipe.HIncrBy(ctx, key, "total_failed", 1)
			pipe.HSet(ctx, key, "last_error", a.ErrorDetail)
		}
		pipe.HSet(ctx, key,
			"last_outcome", string(a.Outcome),
			"last_attempt_at", a.StartedAt.Unix(),
		)
		pipe.Expire(ctx, key, h.ttl)
		return nil
	})
	if err != nil {
		h.logger.Error("failed to record endpoint health", "error", err, "subscription_id", a.SubscriptionID)
		return
	}

	if a.Outcome != domain.OutcomeSuccess {
		failures, err := h.redisClient.HGet(ctx, key, "consecutive_failures").Int()
		if err == nil && failures == h.failingThreshold {
			h.logger.Warn("endpoint failing",
				"subscription_id", a.SubscriptionID,
				"endpoint_url", a.EndpointURL,
				"consecutive_failures", failures,
			)
		}
	}
}

// GetState returns the health summary for a subscription.
func (h *HealthTracker) GetState(ctx context.Context, subscriptionID string) EndpointHealth {
	data, err := h.redisClient.HGetAll(ctx, healthKey(subscriptionID)).Result()
	if err != nil || len(data) == 0 {
		return EndpointHealth{State: HealthUnknown}
	}

	result := EndpointHealth{
		LastOutcome: data["last_outcome"],
		LastError:   data["last_error"],
	}
	result.ConsecutiveFailures, _ = strconv.Atoi(data["consecutive_failures"])
	result.TotalSuccess, _ = strconv.Atoi(data["total_success"])
	result.TotalFailed, _ = strconv.Atoi(data["total_failed"])

	switch {
	case result.ConsecutiveFailures >= h.failingThreshold:
		result.State = HealthFailing
	case result.ConsecutiveFailures > 0:
		result.State = HealthDegraded
	default:
		result.State = HealthHealthy
	}

	if ts, ok := data["last_attempt_at"]; ok && ts != "" {
		if unix, _ := strconv.ParseInt(ts, 10, 64); unix > 0 {
			result.LastAttemptAt = time.Unix(unix, 0).UTC().Format(time.RFC3339)
		}
	}

	return result
}

// Forget drops the counters of a removed subscription.
func (h *HealthTracker) Forget(ctx context.Context, subscriptionID string) {
	if err := h.redisClient.Del(ctx, healthKey(subscriptionID)).Err(); err != nil {
		h.logger.Error("failed to clear endpoint health", "error", err, "subscription_id", subscriptionID)
	}
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/logging"
	"github.com/Priya8975/checkout-webhooks/internal/registry"
)

func setupTestHealth(t *testing.T) (*HealthTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewHealthTracker(client, logging.Discard()), mr
}

func attemptFor(subID string, outcome domain.Outcome, detail string) domain.DeliveryAttempt {
	now := time.Now()
	return domain.DeliveryAttempt{
		SubscriptionID: subID,
		StartedAt:      now,
		FinishedAt:     now,
		Outcome:        outcome,
		ErrorDetail:    detail,
	}
}

func TestHealth_UnknownByDefault(t *testing.T) {
	h, _ := setupTestHealth(t)

	state := h.GetState(context.Background(), "wh-1")

	assert.Equal(t, HealthUnknown, state.State)
	assert.Zero(t, state.ConsecutiveFailures)
}

func TestHealth_SuccessIsHealthy(t *testing.T) {
	h, _ := setupTestHealth(t)
	ctx := context.Background()

	h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeSuccess, ""))

	state := h.GetState(ctx, "wh-1")
	assert.Equal(t, HealthHealthy, state.State)
	assert.Equal(t, 1, state.TotalSuccess)
	assert.Equal(t, "success", state.LastOutcome)
	assert.NotEmpty(t, state.LastAttemptAt)
}

func TestHealth_DegradedThenFailing(t *testing.T) {
	h, _ := setupTestHealth(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeFailed, "timeout"))
	}
	state := h.GetState(ctx, "wh-1")
	assert.Equal(t, HealthDegraded, state.State)
	assert.Equal(t, 4, state.ConsecutiveFailures)
	assert.Equal(t, "timeout", state.LastError)

	h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeFailed, "non-2xx response: 500"))
	state = h.GetState(ctx, "wh-1")
	assert.Equal(t, HealthFailing, state.State)
	assert.Equal(t, 5, state.TotalFailed)
	assert.Equal(t, "non-2xx response: 500", state.LastError)
}

func TestHealth_SuccessResetsConsecutiveFailures(t *testing.T) {
	h, _ := setupTestHealth(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeFailed, "timeout"))
	}
	h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeSuccess, ""))

	state := h.GetState(ctx, "wh-1")
	assert.Equal(t, HealthHealthy, state.State)
	assert.Zero(t, state.ConsecutiveFailures)
	assert.Equal(t, 6, state.TotalFailed)
	assert.Empty(t, state.LastError)
}

func TestHealth_IsolationBetweenSubscriptions(t *testing.T) {
	h, _ := setupTestHealth(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeFailed, "timeout"))
	}
	h.OnAttempt(ctx, attemptFor("wh-2", domain.OutcomeSuccess, ""))

	assert.Equal(t, HealthFailing, h.GetState(ctx, "wh-1").State)
	assert.Equal(t, HealthHealthy, h.GetState(ctx, "wh-2").State)
}

func TestHealth_Forget(t *testing.T) {
	h, mr := setupTestHealth(t)
	ctx := context.Background()

	h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeSuccess, ""))
	require.True(t, mr.Exists(healthKey("wh-1")))

	h.Forget(ctx, "wh-1")

	assert.False(t, mr.Exists(healthKey("wh-1")))
	assert.Equal(t, HealthUnknown, h.GetState(ctx, "wh-1").State)
}

func TestHealth_RedisDownDoesNotPanic(t *testing.T) {
	h, mr := setupTestHealth(t)
	mr.Close()

	h.OnAttempt(context.Background(), attemptFor("wh-1", domain.OutcomeFailed, "timeout"))

	assert.Equal(t, HealthUnknown, h.GetState(context.Background(), "wh-1").State)
}

func TestHealth_AttemptAfterRemovalDoesNotRecreateKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	reg := registry.New(logging.Discard())
	h := NewHealthTracker(client, logging.Discard(), WithLookup(reg))
	ctx := context.Background()

	sub := subscribe(t, reg, "https://a.example.com", "checkout.completed")
	h.OnAttempt(ctx, attemptFor(sub.ID, domain.OutcomeSuccess, ""))
	require.True(t, mr.Exists(healthKey(sub.ID)))

	// Removal races an in-flight attempt that finishes afterwards.
	require.True(t, reg.Remove(ctx, sub.ID))
	h.Forget(ctx, sub.ID)
	h.OnAttempt(ctx, attemptFor(sub.ID, domain.OutcomeFailed, "timeout"))

	assert.False(t, mr.Exists(healthKey(sub.ID)))
	assert.Equal(t, HealthUnknown, h.GetState(ctx, sub.ID).State)
}

func TestHealth_KeysExpire(t *testing.T) {
	h, mr := setupTestHealth(t)
	ctx := context.Background()

	h.OnAttempt(ctx, attemptFor("wh-1", domain.OutcomeFailed, "timeout"))
	assert.Equal(t, healthTTL, mr.TTL(healthKey("wh-1")))

	mr.FastForward(healthTTL + time.Second)
	assert.False(t, mr.Exists(healthKey("wh-1")))
}

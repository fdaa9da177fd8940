package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/logging"
	"github.com/Priya8975/checkout-webhooks/internal/registry"
)

// fakeExecutor answers per endpoint URL. Unknown URLs succeed with 200.
type fakeExecutor struct {
	mu        sync.Mutex
	calls     []string
	behaviors map[string]func(ctx context.Context) (int, string)
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{behaviors: map[string]func(ctx context.Context) (int, string){}}
}

func (f *fakeExecutor) on(url string, fn func(ctx context.Context) (int, string)) {
	f.behaviors[url] = fn
}

func (f *fakeExecutor) Deliver(ctx context.Context, sub domain.Subscription, event domain.Event) domain.DeliveryAttempt {
	f.mu.Lock()
	f.calls = append(f.calls, sub.EndpointURL)
	fn := f.behaviors[sub.EndpointURL]
	f.mu.Unlock()

	a := domain.DeliveryAttempt{
		ID:             "att-" + sub.ID,
		SubscriptionID: sub.ID,
		EndpointURL:    sub.EndpointURL,
		Event:          event,
		StartedAt:      time.Now().UTC(),
	}

	status, detail := 200, ""
	if fn != nil {
		status, detail = fn(ctx)
	}
	a.FinishedAt = time.Now().UTC()
	if status > 0 {
		a.HTTPStatusCode = &status
	}
	if detail == "" && status >= 200 && status < 300 {
		a.Outcome = domain.OutcomeSuccess
	} else {
		a.Outcome = domain.OutcomeFailed
		a.ErrorDetail = detail
	}
	return a
}

func (f *fakeExecutor) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// hang blocks until ctx ends, then reports the attempt as timed out.
func hang(ctx context.Context) (int, string) {
	<-ctx.Done()
	return 0, domain.ErrorDetailTimeout
}

type attemptRecorder struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
	reports  []*domain.DispatchReport
}

func (r *attemptRecorder) OnAttempt(_ context.Context, a domain.DeliveryAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *attemptRecorder) OnReport(_ context.Context, report *domain.DispatchReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func setupDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *registry.Registry, *fakeExecutor) {
	t.Helper()
	reg := registry.New(logging.Discard())
	exec := newFakeExecutor()
	return NewDispatcher(reg, exec, logging.Discard(), opts...), reg, exec
}

func subscribe(t *testing.T, reg *registry.Registry, url string, events ...string) domain.Subscription {
	t.Helper()
	sub, err := reg.Add(context.Background(), domain.CreateSubscriptionRequest{
		Name:             url,
		EndpointURL:      url,
		SubscribedEvents: events,
	})
	require.NoError(t, err)
	return sub
}

func TestDispatch_OnlyMatchingSubscriptions(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	subscribe(t, reg, "https://a.example.com", "checkout.completed")
	subscribe(t, reg, "https://b.example.com", "payment.success")

	report, err := d.Dispatch(context.Background(), "checkout.completed", json.RawMessage(`{"order_id":"o1"}`))

	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{"https://a.example.com"}, exec.called())
	assert.Equal(t, "checkout.completed", report.EventType)
	assert.NotEmpty(t, report.EventID)
}

func TestDispatch_InactiveSubscriptionIsSkipped(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	sub := subscribe(t, reg, "https://a.example.com", "checkout.completed")
	_, err := reg.SetActive(context.Background(), sub.ID, false)
	require.NoError(t, err)

	report, err := d.Dispatch(context.Background(), "checkout.completed", nil)

	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, report.PerSubscriptionOutcomes)
	assert.Empty(t, exec.called())
}

func TestDispatch_NoSubscriptions(t *testing.T) {
	d, _, _ := setupDispatcher(t)

	report, err := d.Dispatch(context.Background(), "checkout.abandoned", json.RawMessage(`{}`))

	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Zero(t, report.Succeeded)
	assert.Zero(t, report.Failed)
}

func TestDispatch_FailureIsIsolated(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	ok := subscribe(t, reg, "https://ok.example.com", "payment.failed")
	bad := subscribe(t, reg, "https://bad.example.com", "payment.failed")
	exec.on(bad.EndpointURL, func(context.Context) (int, string) { return 500, "non-2xx response: 500" })

	report, err := d.Dispatch(context.Background(), "payment.failed", json.RawMessage(`{}`))

	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	okSub, _ := reg.Get(ok.ID)
	badSub, _ := reg.Get(bad.ID)
	assert.Equal(t, domain.OutcomeSuccess, okSub.LastOutcome)
	assert.Equal(t, domain.OutcomeFailed, badSub.LastOutcome)
	assert.NotNil(t, okSub.LastAttemptAt)
}

func TestDispatch_OutcomesFollowSnapshotOrder(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	slow := subscribe(t, reg, "https://slow.example.com", "x")
	fast := subscribe(t, reg, "https://fast.example.com", "x")
	exec.on(slow.EndpointURL, func(context.Context) (int, string) {
		time.Sleep(50 * time.Millisecond)
		return 200, ""
	})

	report, err := d.Dispatch(context.Background(), "x", nil)

	require.NoError(t, err)
	require.Len(t, report.PerSubscriptionOutcomes, 2)
	assert.Equal(t, slow.ID, report.PerSubscriptionOutcomes[0].SubscriptionID)
	assert.Equal(t, fast.ID, report.PerSubscriptionOutcomes[1].SubscriptionID)
}

func TestDispatch_HangingEndpointDoesNotDelayOthers(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	fast := subscribe(t, reg, "https://fast.example.com", "checkout.completed")
	stuck := subscribe(t, reg, "https://stuck.example.com", "checkout.completed")
	exec.on(stuck.EndpointURL, hang)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := d.Dispatch(ctx, "checkout.completed", json.RawMessage(`{}`))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	fastSub, _ := reg.Get(fast.ID)
	assert.Equal(t, domain.OutcomeSuccess, fastSub.LastOutcome)
}

func TestDispatch_ContextDeadlineReportsCancelled(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	sub := subscribe(t, reg, "https://never.example.com", "x")
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	exec.on(sub.EndpointURL, func(context.Context) (int, string) {
		<-block
		return 200, ""
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := d.Dispatch(ctx, "x", nil)

	require.NoError(t, err)
	require.Len(t, report.PerSubscriptionOutcomes, 1)
	a := report.PerSubscriptionOutcomes[0]
	assert.Equal(t, domain.OutcomeFailed, a.Outcome)
	assert.Equal(t, domain.ErrorDetailCancelled, a.ErrorDetail)
	assert.Nil(t, a.HTTPStatusCode)

	got, _ := reg.Get(sub.ID)
	assert.Equal(t, domain.OutcomeFailed, got.LastOutcome)
}

func TestDispatch_RemovedDuringDeliveryIsNotResurrected(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	sub := subscribe(t, reg, "https://example.com", "x")
	exec.on(sub.EndpointURL, func(context.Context) (int, string) {
		reg.Remove(context.Background(), sub.ID)
		return 200, ""
	})

	report, err := d.Dispatch(context.Background(), "x", nil)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	_, err = reg.Get(sub.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDispatch_NotifiesListeners(t *testing.T) {
	rec := &attemptRecorder{}
	d, reg, _ := setupDispatcher(t, WithAttemptListeners(rec), WithReportListeners(rec))
	subscribe(t, reg, "https://a.example.com", "x")
	subscribe(t, reg, "https://b.example.com", "x")

	report, err := d.Dispatch(context.Background(), "x", nil)

	require.NoError(t, err)
	assert.Len(t, rec.attempts, 2)
	require.Len(t, rec.reports, 1)
	assert.Same(t, report, rec.reports[0])
}

func TestDispatch_ValidatesInput(t *testing.T) {
	d, _, _ := setupDispatcher(t)

	_, err := d.Dispatch(context.Background(), "", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = d.Dispatch(context.Background(), "x", json.RawMessage(`{not json`))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestDispatch_UsesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d, reg, _ := setupDispatcher(t, WithClock(func() time.Time { return fixed }))
	subscribe(t, reg, "https://a.example.com", "x")

	report, err := d.Dispatch(context.Background(), "x", nil)

	require.NoError(t, err)
	assert.True(t, report.OccurredAt.Equal(fixed))
	assert.Equal(t, "2026-03-01T12:00:00.000Z", report.PerSubscriptionOutcomes[0].Event.Wire().Timestamp)
}

func TestTest_SendsToSingleSubscription(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	target := subscribe(t, reg, "https://target.example.com", "checkout.completed")
	subscribe(t, reg, "https://other.example.com", "checkout.completed")

	attempt, err := d.Test(context.Background(), target.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, domain.EventWebhookTest, attempt.Event.Type)
	assert.Equal(t, []string{"https://target.example.com"}, exec.called())
}

func TestTest_Errors(t *testing.T) {
	d, reg, exec := setupDispatcher(t)
	sub := subscribe(t, reg, "https://example.com", "x")
	_, err := reg.SetActive(context.Background(), sub.ID, false)
	require.NoError(t, err)

	_, err = d.Test(context.Background(), sub.ID)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = d.Test(context.Background(), "wh-404")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.Empty(t, exec.called())
}

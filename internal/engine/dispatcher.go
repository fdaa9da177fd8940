package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/metrics"
)

const tracerName = "github.com/Priya8975/checkout-webhooks/engine"

// Registry is the subset of the subscription registry the dispatcher needs.
type Registry interface {
	ListMatching(eventType string) []domain.Subscription
	Get(id string) (domain.Subscription, error)
	Record(ctx context.Context, id string, outcome domain.Outcome, at time.Time) bool
}

// Executor performs a single delivery attempt. Implementations must never
// panic or block past ctx; every failure is reported in the returned attempt.
type Executor interface {
	Deliver(ctx context.Context, sub domain.Subscription, event domain.Event) domain.DeliveryAttempt
}

// AttemptListener observes each attempt after its outcome has been recorded.
type AttemptListener interface {
	OnAttempt(ctx context.Context, attempt domain.DeliveryAttempt)
}

// ReportListener observes each finished dispatch.
type ReportListener interface {
	OnReport(ctx context.Context, report *domain.DispatchReport)
}

// Dispatcher fans one event out to every matching active subscription.
type Dispatcher struct {
	registry         Registry
	executor         Executor
	attemptListeners []AttemptListener
	reportListeners  []ReportListener
	logger           *slog.Logger
	tracer           trace.Tracer
	now              func() time.Time
}

type Option func(*Dispatcher)

func WithAttemptListeners(l ...AttemptListener) Option {
	return func(d *Dispatcher) { d.attemptListeners = append(d.attemptListeners, l...) }
}

func WithReportListeners(l ...ReportListener) Option {
	return func(d *Dispatcher) { d.reportListeners = append(d.reportListeners, l...) }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(registry Registry, executor Executor, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		executor: executor,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers payload to every active subscription listening for
// eventType and returns once each attempt has finished or ctx is done.
// Attempts still in flight when ctx ends are reported as cancelled.
// Only malformed input produces an error; delivery failures are data.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload json.RawMessage) (*domain.DispatchReport, error) {
	if eventType == "" {
		return nil, &domain.ValidationError{Field: "event_type", Reason: "is required"}
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, &domain.ValidationError{Field: "payload", Reason: "must be valid JSON"}
	}

	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Payload:    payload,
		OccurredAt: d.now(),
	}

	ctx, span := d.tracer.Start(ctx, "webhooks.Dispatch", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	subs := d.registry.ListMatching(eventType)
	report := d.fanOut(ctx, event, subs)

	span.SetAttributes(
		attribute.Int("dispatch.attempted", report.Attempted),
		attribute.Int("dispatch.failed", report.Failed),
	)
	metrics.DispatchesTotal.WithLabelValues(eventType).Inc()

	if report.Attempted == 0 {
		d.logger.Info("no matching subscriptions", "event_id", event.ID, "event_type", eventType)
	} else {
		d.logger.Info("dispatch complete",
			"event_id", event.ID,
			"event_type", eventType,
			"attempted", report.Attempted,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
		)
	}

	return report, nil
}

// Test sends a webhook.test event to a single active subscription,
// regardless of the event types it listens for.
func (d *Dispatcher) Test(ctx context.Context, id string) (domain.DeliveryAttempt, error) {
	sub, err := d.registry.Get(id)
	if err != nil {
		return domain.DeliveryAttempt{}, err
	}
	if !sub.Active {
		return domain.DeliveryAttempt{}, &domain.ValidationError{Field: "active", Reason: "subscription is inactive"}
	}

	payload, err := json.Marshal(map[string]string{
		"subscription_id": sub.ID,
		"message":         "test delivery",
	})
	if err != nil {
		return domain.DeliveryAttempt{}, fmt.Errorf("encoding test payload: %w", err)
	}

	event := domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.EventWebhookTest,
		Payload:    payload,
		OccurredAt: d.now(),
	}

	ctx, span := d.tracer.Start(ctx, "webhooks.Test", trace.WithAttributes(
		attribute.String("subscription.id", sub.ID),
	))
	defer span.End()

	report := d.fanOut(ctx, event, []domain.Subscription{sub})
	return report.PerSubscriptionOutcomes[0], nil
}

type result struct {
	idx     int
	attempt domain.DeliveryAttempt
}

// fanOut launches one goroutine per subscription. Nothing here is shared
// between deliveries, so a slow endpoint only ever delays its own slot.
func (d *Dispatcher) fanOut(ctx context.Context, event domain.Event, subs []domain.Subscription) *domain.DispatchReport {
	start := d.now()
	report := &domain.DispatchReport{
		EventID:                 event.ID,
		EventType:               event.Type,
		OccurredAt:              event.OccurredAt,
		Payload:                 event.Payload,
		PerSubscriptionOutcomes: make([]domain.DeliveryAttempt, 0, len(subs)),
	}

	if len(subs) > 0 {
		// Buffered so abandoned goroutines can always finish.
		results := make(chan result, len(subs))
		for i, sub := range subs {
			go func() {
				results <- result{idx: i, attempt: d.executor.Deliver(ctx, sub, event)}
			}()
		}

		attempts := d.collect(ctx, results, len(subs))

		for i, sub := range subs {
			a, ok := attempts[i]
			if !ok {
				a = domain.DeliveryAttempt{
					ID:             uuid.NewString(),
					SubscriptionID: sub.ID,
					EndpointURL:    sub.EndpointURL,
					Event:          event,
					StartedAt:      start,
					FinishedAt:     d.now(),
					Outcome:        domain.OutcomeFailed,
					ErrorDetail:    domain.ErrorDetailCancelled,
				}
			}
			d.track(ctx, a)
			report.Add(a)
		}
	}

	metrics.DispatchDuration.Observe(d.now().Sub(start).Seconds())

	for _, l := range d.reportListeners {
		l.OnReport(context.WithoutCancel(ctx), report)
	}
	return report
}

// collect waits for n results or for ctx to end, whichever comes first.
func (d *Dispatcher) collect(ctx context.Context, results <-chan result, n int) map[int]domain.DeliveryAttempt {
	attempts := make(map[int]domain.DeliveryAttempt, n)
	for len(attempts) < n {
		select {
		case r := <-results:
			attempts[r.idx] = r.attempt
		case <-ctx.Done():
			// Keep whatever already finished.
			for {
				select {
				case r := <-results:
					attempts[r.idx] = r.attempt
				default:
					return attempts
				}
			}
		}
	}
	return attempts
}

// track records the outcome on the subscription and notifies listeners.
func (d *Dispatcher) track(ctx context.Context, a domain.DeliveryAttempt) {
	d.registry.Record(ctx, a.SubscriptionID, a.Outcome, a.StartedAt)

	metrics.DeliveriesTotal.WithLabelValues(string(a.Outcome)).Inc()
	metrics.DeliveryDuration.Observe(a.Duration().Seconds())

	if a.Outcome == domain.OutcomeSuccess {
		d.logger.Info("delivery successful",
			"event_id", a.Event.ID,
			"subscription_id", a.SubscriptionID,
			"status_code", a.HTTPStatusCode,
			"response_time_ms", a.Duration().Milliseconds(),
		)
	} else {
		d.logger.Warn("delivery failed",
			"event_id", a.Event.ID,
			"subscription_id", a.SubscriptionID,
			"error", a.ErrorDetail,
			"status_code", a.HTTPStatusCode,
			"response_time_ms", a.Duration().Milliseconds(),
		)
	}

	for _, l := range d.attemptListeners {
		l.OnAttempt(context.WithoutCancel(ctx), a)
	}
}

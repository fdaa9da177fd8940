package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

const userAgent = "checkout-webhooks/1.0"

// Deliverer performs the HTTP POST of one event to one subscriber endpoint.
type Deliverer struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewDeliverer creates a deliverer whose attempts are bounded by timeout.
// The bound is applied per request through the context, so the client
// itself carries no timeout.
func NewDeliverer(timeout time.Duration, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// A redirect is the endpoint's answer, not a delivery.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
		logger:  logger,
		tracer:  otel.Tracer("github.com/Priya8975/checkout-webhooks/worker"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Deliver sends the event to sub and reports what happened. It never
// returns an error: transport failures, timeouts and non-2xx statuses are
// all folded into a failed attempt.
func (d *Deliverer) Deliver(ctx context.Context, sub domain.Subscription, event domain.Event) domain.DeliveryAttempt {
	attempt := domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		EndpointURL:    sub.EndpointURL,
		Event:          event,
		StartedAt:      d.now(),
	}

	ctx, span := d.tracer.Start(ctx, "webhooks.Deliver", trace.WithAttributes(
		attribute.String("subscription.id", sub.ID),
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	d.logger.Debug("delivering webhook",
		"event_id", event.ID,
		"subscription_id", sub.ID,
		"endpoint_url", sub.EndpointURL,
	)
	statusCode, detail := d.post(ctx, sub, event, attempt.ID)

	attempt.FinishedAt = d.now()
	if statusCode > 0 {
		attempt.HTTPStatusCode = &statusCode
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
	if detail == "" {
		attempt.Outcome = domain.OutcomeSuccess
	} else {
		attempt.Outcome = domain.OutcomeFailed
		attempt.ErrorDetail = detail
		span.SetStatus(codes.Error, detail)
	}
	return attempt
}

// post returns the response status (0 when none arrived) and an error
// detail, empty on success.
func (d *Deliverer) post(parent context.Context, sub domain.Subscription, event domain.Event, deliveryID string) (int, string) {
	body, err := json.Marshal(event.Wire())
	if err != nil {
		return 0, fmt.Sprintf("encoding payload: %v", err)
	}

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Sprintf("connection error: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", event.Type)
	req.Header.Set("X-Webhook-ID", event.ID)
	req.Header.Set("X-Webhook-Delivery", deliveryID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, classify(parent, ctx, err)
	}
	defer resp.Body.Close()

	// Drain a little of the body so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return resp.StatusCode, ""
}

// classify maps a transport error to an error detail. A cancelled
// dispatch wins over the per-attempt deadline.
func classify(parent, attemptCtx context.Context, err error) string {
	if parent.Err() != nil {
		return domain.ErrorDetailCancelled
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return domain.ErrorDetailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorDetailTimeout
	}
	return fmt.Sprintf("connection error: %v", err)
}

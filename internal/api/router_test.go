package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/checkout-webhooks/internal/checkout"
	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/engine"
	"github.com/Priya8975/checkout-webhooks/internal/logging"
	"github.com/Priya8975/checkout-webhooks/internal/registry"
	"github.com/Priya8975/checkout-webhooks/internal/store"
	ws "github.com/Priya8975/checkout-webhooks/internal/websocket"
	"github.com/Priya8975/checkout-webhooks/internal/worker"
)

type fakeQueue struct {
	mu   sync.Mutex
	reqs []worker.DispatchRequest
	full bool
}

func (q *fakeQueue) TrySubmit(req worker.DispatchRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.reqs = append(q.reqs, req)
	return true
}

func (q *fakeQueue) types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.reqs))
	for i, r := range q.reqs {
		out[i] = r.EventType
	}
	return out
}

type testServer struct {
	handler  http.Handler
	registry *registry.Registry
	queue    *fakeQueue
	redis    *miniredis.Miniredis
}

// newTestServer wires the router around real components. Checkout and
// endpoint health run against miniredis; the event log is left out.
func newTestServer(t *testing.T, withRedis bool) *testServer {
	t.Helper()
	logger := logging.Discard()

	reg := registry.New(logger)
	deps := Deps{
		Registry:        reg,
		Queue:           &fakeQueue{},
		Hub:             ws.NewHub(logger),
		DispatchTimeout: 5 * time.Second,
		Logger:          logger,
	}
	ts := &testServer{registry: reg, queue: deps.Queue.(*fakeQueue)}

	var listeners []engine.AttemptListener
	if withRedis {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })

		tracker := engine.NewHealthTracker(client, logger, engine.WithLookup(reg))
		listeners = append(listeners, tracker)
		deps.Health = tracker
		deps.Checkout = checkout.NewService(checkout.NewOrderStore(client, time.Hour), deps.Queue, logger)
		deps.Components = map[string]Pinger{"redis": store.NewRedisFromClient(client)}
		ts.redis = mr
	}

	deps.Dispatcher = engine.NewDispatcher(reg, worker.NewDeliverer(2*time.Second, logger), logger,
		engine.WithAttemptListeners(listeners...))
	ts.handler = NewRouter(deps)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSub(t *testing.T, ts *testServer, name, url string, events ...string) domain.Subscription {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]any{
		"name": name, "endpoint_url": url, "events": events,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Subscription](t, rec)
}

func TestSubscriptions_CRUD(t *testing.T) {
	ts := newTestServer(t, false)

	sub := createSub(t, ts, "crm", "https://crm.example.com/hook", "checkout.completed")
	assert.Equal(t, "wh-1", sub.ID)
	assert.True(t, sub.Active)
	assert.Equal(t, domain.OutcomePending, sub.LastOutcome)

	rec := ts.do(t, http.MethodGet, "/api/v1/subscriptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Subscription](t, rec), 1)

	rec = ts.do(t, http.MethodPatch, "/api/v1/subscriptions/wh-1", `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.Subscription](t, rec).Active)

	rec = ts.do(t, http.MethodGet, "/api/v1/subscriptions/wh-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.Subscription](t, rec).Active)

	rec = ts.do(t, http.MethodDelete, "/api/v1/subscriptions/wh-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/subscriptions/wh-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "delete is idempotent")

	rec = ts.do(t, http.MethodGet, "/api/v1/subscriptions/wh-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptions_CreateValidation(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing name", map[string]any{"endpoint_url": "https://a.example.com", "events": []string{"x"}}, "name"},
		{"relative url", map[string]any{"name": "a", "endpoint_url": "/hook", "events": []string{"x"}}, "endpoint_url"},
		{"no events", map[string]any{"name": "a", "endpoint_url": "https://a.example.com", "events": []string{}}, "events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/subscriptions", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decode[errorResponse](t, rec).Field)
		})
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/subscriptions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.registry.List())
}

func TestSubscriptions_UpdateRequiresActive(t *testing.T) {
	ts := newTestServer(t, false)
	createSub(t, ts, "a", "https://a.example.com", "x")

	rec := ts.do(t, http.MethodPatch, "/api/v1/subscriptions/wh-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/v1/subscriptions/wh-9", `{"active":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_SyncDispatchReport(t *testing.T) {
	var hits atomic.Int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	ts := newTestServer(t, false)
	createSub(t, ts, "ok", ok.URL, "payment.success")
	createSub(t, ts, "failing", failing.URL, "payment.success")
	createSub(t, ts, "other", ok.URL, "checkout.started")

	rec := ts.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"event_type": "payment.success",
		"payload":    map[string]any{"order_id": "ORD-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[domain.DispatchReport](t, rec)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int32(1), hits.Load())

	failed, err := ts.registry.Get("wh-2")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, failed.LastOutcome)
}

func TestEvents_Validation(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/events", `{"payload":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "event_type", decode[errorResponse](t, rec).Field)

	rec = ts.do(t, http.MethodPost, "/api/v1/events", `{"payload":{},"async":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvents_NoSubscribersIsNotAnError(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/events", `{"event_type":"checkout.abandoned"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[domain.DispatchReport](t, rec).Attempted)
}

func TestEvents_Async(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/events", `{"event_type":"checkout.started","async":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", decode[queuedResponse](t, rec).Status)
	assert.Equal(t, []string{"checkout.started"}, ts.queue.types())

	ts.queue.full = true
	rec = ts.do(t, http.MethodPost, "/api/v1/events", `{"event_type":"checkout.started","async":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventLogRoutes_WithoutStore(t *testing.T) {
	ts := newTestServer(t, false)

	for _, path := range []string{"/api/v1/events", "/api/v1/events/abc", "/api/v1/deliveries"} {
		rec := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestSubscriptionTest_Endpoint(t *testing.T) {
	var gotType string
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer endpoint.Close()

	ts := newTestServer(t, true)
	createSub(t, ts, "a", endpoint.URL, "checkout.completed")

	rec := ts.do(t, http.MethodPost, "/api/v1/subscriptions/wh-1/test", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	attempt := decode[domain.DeliveryAttempt](t, rec)
	assert.Equal(t, domain.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, domain.EventWebhookTest, gotType)

	rec = ts.do(t, http.MethodGet, "/api/v1/subscriptions/wh-1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.HealthHealthy, decode[engine.EndpointHealth](t, rec).State)

	rec = ts.do(t, http.MethodPost, "/api/v1/subscriptions/wh-7/test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.do(t, http.MethodPatch, "/api/v1/subscriptions/wh-1", `{"active":false}`)
	rec = ts.do(t, http.MethodPost, "/api/v1/subscriptions/wh-1/test", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "inactive subscriptions cannot be tested")
}

func TestSubscriptionHealth_WithoutRedis(t *testing.T) {
	ts := newTestServer(t, false)
	createSub(t, ts, "a", "https://a.example.com", "x")

	rec := ts.do(t, http.MethodGet, "/api/v1/subscriptions/wh-1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.HealthUnknown, decode[engine.EndpointHealth](t, rec).State)

	rec = ts.do(t, http.MethodGet, "/api/v1/subscriptions/wh-2/health", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/subscriptions-health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]subscriptionHealth](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, engine.HealthUnknown, rows[0].Health.State)
}

func TestDashboardMetrics(t *testing.T) {
	ts := newTestServer(t, false)
	createSub(t, ts, "a", "https://a.example.com", "x")
	createSub(t, ts, "b", "https://b.example.com", "x")
	ts.do(t, http.MethodPatch, "/api/v1/subscriptions/wh-2", `{"active":false}`)

	rec := ts.do(t, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[metricsResponse](t, rec)
	assert.Equal(t, 1, m.ActiveSubscriptions)
	assert.Equal(t, 1, m.InactiveSubscriptions)
	assert.Nil(t, m.Deliveries)
}

func TestEventTypesAndProducts(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/api/v1/event-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.EventType](t, rec), len(domain.EventCatalog))

	rec = ts.do(t, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[productsResponse](t, rec)
	assert.Len(t, products.Products, 3)
	assert.Equal(t, "bump-1", products.OrderBump.ID)
}

func TestCheckoutFlow(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/checkout/start", `{"product_id":"prod-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"product_id": "prod-1",
		"customer": map[string]any{
			"name": "Ana Souza", "email": "ana@example.com", "document": "12345678900",
		},
		"order_bump":     true,
		"payment_method": "pix",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[checkout.Order](t, rec)
	assert.Equal(t, "ORD-1", order.ID)
	assert.InDelta(t, 344.0, order.Total, 0.001)

	assert.Equal(t, []string{
		domain.EventCheckoutStarted,
		domain.EventCheckoutCompleted,
		domain.EventPaymentSuccess,
	}, ts.queue.types())

	rec = ts.do(t, http.MethodGet, "/api/v1/orders/ORD-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pix", decode[checkout.Order](t, rec).PaymentMethod)

	rec = ts.do(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]checkout.Order](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/v1/orders/ORD-99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_Errors(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/checkout/start", `{"product_id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"product_id": "prod-1",
		"customer":   map[string]any{"name": "Ana", "email": "not-an-email", "document": "1"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "customer.email", decode[errorResponse](t, rec).Field)
	assert.Empty(t, ts.queue.types())
}

func TestCheckout_DisabledWithoutRedis(t *testing.T) {
	ts := newTestServer(t, false)

	for _, path := range []string{"/api/v1/checkout", "/api/v1/checkout/start", "/api/v1/orders", "/api/v1/orders/ORD-1"} {
		rec := ts.do(t, http.MethodPost, path, `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "up", resp.Components["redis"])

	ts.redis.Close()
	rec = ts.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Components["redis"])
}

func TestMetricsEndpointAndCORS(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodOptions, "/api/v1/subscriptions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

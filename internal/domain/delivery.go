package domain

import (
	"encoding/json"
	"time"
)

// Error details produced by the executor and dispatcher.
const (
	ErrorDetailTimeout   = "timeout"
	ErrorDetailCancelled = "dispatch cancelled"
)

// DeliveryAttempt is the outcome of one network call to one subscription.
type DeliveryAttempt struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	EndpointURL    string    `json:"endpoint_url"`
	Event          Event     `json:"event"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Outcome        Outcome   `json:"outcome"`
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
}

// Duration returns how long the attempt took.
func (a DeliveryAttempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// DispatchReport summarises a single fan-out.
type DispatchReport struct {
	EventID                 string            `json:"event_id"`
	EventType               string            `json:"event_type"`
	OccurredAt              time.Time         `json:"occurred_at"`
	Payload                 json.RawMessage   `json:"payload,omitempty"`
	Attempted               int               `json:"attempted"`
	Succeeded               int               `json:"succeeded"`
	Failed                  int               `json:"failed"`
	PerSubscriptionOutcomes []DeliveryAttempt `json:"per_subscription_outcomes"`
}

// Add folds one attempt into the report counters.
func (r *DispatchReport) Add(a DeliveryAttempt) {
	r.Attempted++
	if a.Outcome == OutcomeSuccess {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.PerSubscriptionOutcomes = append(r.PerSubscriptionOutcomes, a)
}

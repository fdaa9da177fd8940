package domain

import (
	"slices"
	"time"
)

// Outcome is the terminal state of the most recent delivery attempt.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Subscription is a registered endpoint plus the event types it listens for.
type Subscription struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	EndpointURL      string     `json:"endpoint_url"`
	SubscribedEvents []string   `json:"subscribed_events"`
	Active           bool       `json:"active"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	LastOutcome      Outcome    `json:"last_outcome"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Matches reports whether the subscription should receive eventType.
func (s Subscription) Matches(eventType string) bool {
	return s.Active && slices.Contains(s.SubscribedEvents, eventType)
}

// Clone returns a deep copy so callers can't mutate registry state.
func (s Subscription) Clone() Subscription {
	c := s
	c.SubscribedEvents = slices.Clone(s.SubscribedEvents)
	if s.LastAttemptAt != nil {
		t := *s.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return c
}

// CreateSubscriptionRequest is the input accepted by the registry.
type CreateSubscriptionRequest struct {
	Name             string   `json:"name" yaml:"name" validate:"required"`
	EndpointURL      string   `json:"endpoint_url" yaml:"url" validate:"required,http_url"`
	SubscribedEvents []string `json:"events" yaml:"events" validate:"min=1,dive,required"`
	Active           *bool    `json:"active,omitempty" yaml:"active,omitempty"`
}

type UpdateSubscriptionRequest struct {
	Active *bool `json:"active,omitempty"`
}

// Package registry holds webhook subscriptions in process memory.
//
// The registry is the single source of truth shared by the admin API and the
// dispatcher. Reads return copies, so a dispatch works on a snapshot taken at
// call time and is unaffected by later SetActive or Remove calls.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
	"github.com/Priya8975/checkout-webhooks/internal/metrics"
)

// Mirror receives every registry mutation after it has been applied in
// memory. Errors are logged; the in-memory registry stays authoritative.
type Mirror interface {
	SaveSubscription(ctx context.Context, seq uint64, sub domain.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	SetSubscriptionActive(ctx context.Context, id string, active bool) error
	RecordSubscriptionOutcome(ctx context.Context, id string, outcome domain.Outcome, at time.Time) error
}

type Registry struct {
	// mirrorMu is held across a mutation and its mirror write so the
	// mirror sees mutations in the order they were applied in memory.
	mirrorMu sync.Mutex

	mu    sync.RWMutex
	order []string
	subs  map[string]*domain.Subscription
	seq   uint64

	mirror Mirror
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Registry)

func WithMirror(m Mirror) Option {
	return func(r *Registry) { r.mirror = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		subs:   make(map[string]*domain.Subscription),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add validates req and registers a new subscription, returning its id.
// Ids are never reused, even after removal.
func (r *Registry) Add(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.Subscription, error) {
	if err := validateCreate(req); err != nil {
		return domain.Subscription{}, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	unlock := r.lockMirror()
	defer unlock()

	r.mu.Lock()
	r.seq++
	seq := r.seq
	sub := &domain.Subscription{
		ID:               formatID(seq),
		Name:             req.Name,
		EndpointURL:      req.EndpointURL,
		SubscribedEvents: dedupe(req.SubscribedEvents),
		Active:           active,
		LastOutcome:      domain.OutcomePending,
		CreatedAt:        r.now(),
	}
	r.subs[sub.ID] = sub
	r.order = append(r.order, sub.ID)
	snapshot := sub.Clone()
	r.observeLocked()
	r.mu.Unlock()

	r.logger.Info("subscription added",
		"subscription_id", snapshot.ID,
		"endpoint_url", snapshot.EndpointURL,
		"events", snapshot.SubscribedEvents,
	)

	if r.mirror != nil {
		if err := r.mirror.SaveSubscription(context.WithoutCancel(ctx), seq, snapshot); err != nil {
			r.logger.Error("failed to mirror subscription", "error", err, "subscription_id", snapshot.ID)
		}
	}

	return snapshot, nil
}

// Remove deletes a subscription. Unknown ids are ignored.
// Returns whether anything was removed.
func (r *Registry) Remove(ctx context.Context, id string) bool {
	unlock := r.lockMirror()
	defer unlock()

	r.mu.Lock()
	_, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		r.observeLocked()
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.logger.Info("subscription removed", "subscription_id", id)

	if r.mirror != nil {
		if err := r.mirror.DeleteSubscription(context.WithoutCancel(ctx), id); err != nil {
			r.logger.Error("failed to mirror subscription removal", "error", err, "subscription_id", id)
		}
	}
	return true
}

// SetActive toggles whether a subscription receives deliveries.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) (domain.Subscription, error) {
	unlock := r.lockMirror()
	defer unlock()

	r.mu.Lock()
	sub, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		return domain.Subscription{}, &domain.NotFoundError{Resource: "subscription", ID: id}
	}
	sub.Active = active
	snapshot := sub.Clone()
	r.observeLocked()
	r.mu.Unlock()

	r.logger.Info("subscription toggled", "subscription_id", id, "active", active)

	if r.mirror != nil {
		if err := r.mirror.SetSubscriptionActive(context.WithoutCancel(ctx), id, active); err != nil {
			r.logger.Error("failed to mirror subscription toggle", "error", err, "subscription_id", id)
		}
	}
	return snapshot, nil
}

func (r *Registry) Get(id string) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return domain.Subscription{}, &domain.NotFoundError{Resource: "subscription", ID: id}
	}
	return sub.Clone(), nil
}

// List returns every subscription in insertion order.
func (r *Registry) List() []domain.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Subscription, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.subs[id].Clone())
	}
	return out
}

// ListMatching snapshots the active subscriptions listening for eventType,
// in insertion order.
func (r *Registry) ListMatching(eventType string) []domain.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Subscription
	for _, id := range r.order {
		sub := r.subs[id]
		if sub.Matches(eventType) {
			out = append(out, sub.Clone())
		}
	}
	return out
}

// Record stores the outcome of the latest attempt for a subscription.
// It is a no-op when the subscription has been removed in the meantime, and
// an older attempt never overwrites a newer one.
func (r *Registry) Record(ctx context.Context, id string, outcome domain.Outcome, at time.Time) bool {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok && (sub.LastAttemptAt == nil || !at.Before(*sub.LastAttemptAt)) {
		t := at
		sub.LastAttemptAt = &t
		sub.LastOutcome = outcome
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if r.mirror != nil {
		if err := r.mirror.RecordSubscriptionOutcome(context.WithoutCancel(ctx), id, outcome, at); err != nil {
			r.logger.Error("failed to mirror delivery outcome", "error", err, "subscription_id", id)
		}
	}
	return true
}

// Restore replaces the registry contents with previously persisted
// subscriptions. seq is the highest id sequence ever issued, including
// removed subscriptions.
func (r *Registry) Restore(subs []domain.Subscription, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[string]*domain.Subscription, len(subs))
	r.order = r.order[:0]
	for _, s := range subs {
		c := s.Clone()
		if c.LastOutcome == "" {
			c.LastOutcome = domain.OutcomePending
		}
		r.subs[c.ID] = &c
		r.order = append(r.order, c.ID)
	}
	if seq > r.seq {
		r.seq = seq
	}
	r.observeLocked()
}

// Counts returns the number of active and inactive subscriptions.
func (r *Registry) Counts() (active, inactive int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countsLocked()
}

func (r *Registry) countsLocked() (active, inactive int) {
	for _, sub := range r.subs {
		if sub.Active {
			active++
		} else {
			inactive++
		}
	}
	return active, inactive
}

func (r *Registry) observeLocked() {
	active, inactive := r.countsLocked()
	metrics.Subscriptions.WithLabelValues("active").Set(float64(active))
	metrics.Subscriptions.WithLabelValues("inactive").Set(float64(inactive))
}

// lockMirror serializes mutations when a mirror is configured. Record is
// left out: its mirror write is guarded by last_attempt_at instead.
func (r *Registry) lockMirror() func() {
	if r.mirror == nil {
		return func() {}
	}
	r.mirrorMu.Lock()
	return r.mirrorMu.Unlock
}

func formatID(seq uint64) string {
	return fmt.Sprintf("wh-%d", seq)
}

func dedupe(events []string) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

// SaveSubscription upserts a subscription together with the sequence
// number its id was derived from.
func (s *PostgresStore) SaveSubscription(ctx context.Context, seq uint64, sub domain.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (seq, id, name, endpoint_url, events, active, last_outcome, last_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			endpoint_url = EXCLUDED.endpoint_url,
			events = EXCLUDED.events,
			active = EXCLUDED.active,
			deleted_at = NULL
	`, int64(seq), sub.ID, sub.Name, sub.EndpointURL, sub.SubscribedEvents,
		sub.Active, string(sub.LastOutcome), sub.LastAttemptAt, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}
	return nil
}

// DeleteSubscription soft-deletes so the sequence is never reissued.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetSubscriptionActive(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET active = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, active)
	if err != nil {
		return fmt.Errorf("updating subscription active flag: %w", err)
	}
	return nil
}

// RecordSubscriptionOutcome stores the latest attempt result, ignoring
// attempts older than the one already stored.
func (s *PostgresStore) RecordSubscriptionOutcome(ctx context.Context, id string, outcome domain.Outcome, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET last_outcome = $2, last_attempt_at = $3
		WHERE id = $1 AND deleted_at IS NULL
		  AND (last_attempt_at IS NULL OR last_attempt_at <= $3)
	`, id, string(outcome), at)
	if err != nil {
		return fmt.Errorf("recording subscription outcome: %w", err)
	}
	return nil
}

// LoadSubscriptions returns live subscriptions in creation order and the
// highest sequence ever issued, removed subscriptions included.
func (s *PostgresStore) LoadSubscriptions(ctx context.Context) ([]domain.Subscription, uint64, error) {
	var maxSeq int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM subscriptions`).Scan(&maxSeq)
	if err != nil {
		return nil, 0, fmt.Errorf("querying subscription sequence: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, endpoint_url, events, active, last_outcome, last_attempt_at, created_at
		FROM subscriptions
		WHERE deleted_at IS NULL
		ORDER BY seq
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var (
			sub     domain.Subscription
			outcome string
		)
		err := rows.Scan(
			&sub.ID, &sub.Name, &sub.EndpointURL, &sub.SubscribedEvents,
			&sub.Active, &outcome, &sub.LastAttemptAt, &sub.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning subscription: %w", err)
		}
		sub.LastOutcome = domain.Outcome(outcome)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating subscriptions: %w", err)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, uint64(maxSeq), nil
}

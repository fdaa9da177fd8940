package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

// DeliveryFilter narrows ListDeliveries. Empty fields match everything.
type DeliveryFilter struct {
	SubscriptionID string
	EventID        string
	Outcome        string
	Limit          int
}

const deliveryColumns = `a.id::text, a.subscription_id, a.endpoint_url, a.outcome, a.http_status_code,
	COALESCE(a.error_detail, ''), a.started_at, a.finished_at, e.id::text, e.event_type, e.occurred_at`

// ListDeliveries returns logged attempts, newest first. Each attempt carries
// the id and type of its event but not the payload.
func (s *PostgresStore) ListDeliveries(ctx context.Context, f DeliveryFilter) ([]domain.DeliveryAttempt, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_attempts a JOIN events e ON e.id = a.event_id`
	args := []any{}
	conditions := []string{}

	if f.SubscriptionID != "" {
		args = append(args, f.SubscriptionID)
		conditions = append(conditions, fmt.Sprintf("a.subscription_id = $%d", len(args)))
	}
	if f.EventID != "" {
		args = append(args, f.EventID)
		conditions = append(conditions, fmt.Sprintf("e.id::text = $%d", len(args)))
	}
	if f.Outcome != "" {
		args = append(args, f.Outcome)
		conditions = append(conditions, fmt.Sprintf("a.outcome = $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY a.started_at DESC"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.DeliveryAttempt{}
	for rows.Next() {
		var (
			a       domain.DeliveryAttempt
			outcome string
		)
		err := rows.Scan(
			&a.ID, &a.SubscriptionID, &a.EndpointURL, &outcome, &a.HTTPStatusCode,
			&a.ErrorDetail, &a.StartedAt, &a.FinishedAt,
			&a.Event.ID, &a.Event.Type, &a.Event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		a.Outcome = domain.Outcome(outcome)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery attempts: %w", err)
	}

	return attempts, nil
}

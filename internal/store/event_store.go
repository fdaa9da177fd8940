package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Priya8975/checkout-webhooks/internal/domain"
)

// EventRecord is a dispatched event with its fan-out counters.
type EventRecord struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	Attempted  int             `json:"attempted"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
}

// SaveReport writes the event and every attempt of a dispatch in one
// transaction.
func (s *PostgresStore) SaveReport(ctx context.Context, report *domain.DispatchReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO events (id, event_type, payload, occurred_at, attempted, succeeded, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, report.EventID, report.EventType, nullableJSON(report.Payload), report.OccurredAt,
		report.Attempted, report.Succeeded, report.Failed)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	for _, a := range report.PerSubscriptionOutcomes {
		var errDetail *string
		if a.ErrorDetail != "" {
			errDetail = &a.ErrorDetail
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO delivery_attempts (id, event_id, subscription_id, endpoint_url, outcome,
				http_status_code, error_detail, started_at, finished_at, response_time_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, a.ID, report.EventID, a.SubscriptionID, a.EndpointURL, string(a.Outcome),
			a.HTTPStatusCode, errDetail, a.StartedAt, a.FinishedAt, a.Duration().Milliseconds())
		if err != nil {
			return fmt.Errorf("inserting delivery attempt for %s: %w", a.SubscriptionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*EventRecord, error) {
	var e EventRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, event_type, payload, occurred_at, attempted, succeeded, failed
		FROM events WHERE id::text = $1
	`, id).Scan(&e.ID, &e.EventType, &e.Payload, &e.OccurredAt, &e.Attempted, &e.Succeeded, &e.Failed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	query := `SELECT id::text, event_type, payload, occurred_at, attempted, succeeded, failed FROM events`
	args := []any{}
	argIdx := 1

	if eventType != "" {
		query += fmt.Sprintf(" WHERE event_type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}

	query += " ORDER BY occurred_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.OccurredAt, &e.Attempted, &e.Succeeded, &e.Failed); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// ReportLog persists every dispatch report. It is registered as a
// dispatcher report listener.
type ReportLog struct {
	store  *PostgresStore
	logger *slog.Logger
}

func NewReportLog(store *PostgresStore, logger *slog.Logger) *ReportLog {
	return &ReportLog{store: store, logger: logger}
}

func (l *ReportLog) OnReport(ctx context.Context, report *domain.DispatchReport) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := l.store.SaveReport(ctx, report); err != nil {
		l.logger.Error("failed to persist dispatch report",
			"error", err,
			"event_id", report.EventID,
			"event_type", report.EventType,
		)
	}
}

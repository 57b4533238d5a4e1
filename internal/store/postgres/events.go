package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
)

type eventRepo struct {
	q dbtx
}

func (r *eventRepo) Enqueue(ctx context.Context, e *contracts.OutboxEvent) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO forecast_events (forecast_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		e.ForecastID, string(e.Type), string(e.Payload), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

func (r *eventRepo) ListPending(ctx context.Context, limit int) ([]contracts.OutboxEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, forecast_id, event_type, payload::text, created_at, published_at
		FROM forecast_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.OutboxEvent
	for rows.Next() {
		var (
			e         contracts.OutboxEvent
			eventType string
			payload   string
		)
		if err := rows.Scan(&e.ID, &e.ForecastID, &eventType, &payload, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, err
		}
		e.Type = contracts.OutboxEventType(eventType)
		e.Payload = []byte(payload)
		e.CreatedAt = utc(e.CreatedAt)
		e.PublishedAt = utcPtr(e.PublishedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx,
		`UPDATE forecast_events SET published_at = $1 WHERE published_at IS NULL AND id = ANY($2)`,
		at, ids,
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

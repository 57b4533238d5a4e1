package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
)

type eventRepo struct {
	q querier
}

func (r *eventRepo) Enqueue(ctx context.Context, e *contracts.OutboxEvent) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO forecast_events (forecast_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		e.ForecastID, string(e.Type), string(e.Payload), toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (r *eventRepo) ListPending(ctx context.Context, limit int) ([]contracts.OutboxEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, forecast_id, event_type, payload, created_at, published_at
		FROM forecast_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.OutboxEvent
	for rows.Next() {
		var (
			e           contracts.OutboxEvent
			eventType   string
			payload     string
			createdAt   int64
			publishedAt sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.ForecastID, &eventType, &payload, &createdAt, &publishedAt); err != nil {
			return nil, err
		}
		e.Type = contracts.OutboxEventType(eventType)
		e.Payload = []byte(payload)
		e.CreatedAt = fromMillis(createdAt)
		e.PublishedAt = timePtr(publishedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, toMillis(at))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := r.q.ExecContext(ctx,
		`UPDATE forecast_events SET published_at = ? WHERE published_at IS NULL AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

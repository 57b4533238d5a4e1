package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
)

type livenessRepo struct {
	q querier
}

// Heartbeat touches only the heartbeat column so cycle timing is never clobbered
func (r *livenessRepo) Heartbeat(ctx context.Context, at time.Time, pid int) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO worker_liveness (id, last_heartbeat_at, pid, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_heartbeat_at = excluded.last_heartbeat_at,
			pid = excluded.pid,
			updated_at = excluded.updated_at`,
		toMillis(at), pid, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

func (r *livenessRepo) RecordCycle(ctx context.Context, report contracts.CycleReport) error {
	at := toMillis(report.FinishedAt)
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO worker_liveness
			(id, last_heartbeat_at, last_cycle_seconds, last_successful_cycle_at, last_cycle_id, pid, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_heartbeat_at = excluded.last_heartbeat_at,
			last_cycle_seconds = excluded.last_cycle_seconds,
			last_successful_cycle_at = excluded.last_successful_cycle_at,
			last_cycle_id = excluded.last_cycle_id,
			pid = excluded.pid,
			updated_at = excluded.updated_at`,
		at, report.Duration.Seconds(), at, report.CycleID, report.PID, at,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

func (r *livenessRepo) RecordError(ctx context.Context, msg string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO worker_liveness (id, last_error, last_error_at, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_error = excluded.last_error,
			last_error_at = excluded.last_error_at,
			updated_at = excluded.updated_at`,
		msg, toMillis(at), toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

// Get returns an empty record when the worker never wrote one
func (r *livenessRepo) Get(ctx context.Context) (*contracts.Liveness, error) {
	var (
		l            contracts.Liveness
		heartbeat    sql.NullInt64
		cycleSeconds sql.NullFloat64
		success      sql.NullInt64
		cycleID      sql.NullString
		lastError    sql.NullString
		errorAt      sql.NullInt64
		pid          sql.NullInt64
		updatedAt    sql.NullInt64
	)

	err := r.q.QueryRowContext(ctx, `
		SELECT last_heartbeat_at, last_cycle_seconds, last_successful_cycle_at, last_cycle_id,
		       last_error, last_error_at, pid, updated_at
		FROM worker_liveness WHERE id = 1`,
	).Scan(&heartbeat, &cycleSeconds, &success, &cycleID, &lastError, &errorAt, &pid, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &l, nil
	}
	if err != nil {
		return nil, err
	}

	l.LastHeartbeatAt = timePtr(heartbeat)
	if cycleSeconds.Valid {
		s := cycleSeconds.Float64
		l.LastCycleSeconds = &s
	}
	l.LastSuccessfulCycleAt = timePtr(success)
	l.LastCycleID = cycleID.String
	l.LastError = lastError.String
	l.LastErrorAt = timePtr(errorAt)
	l.PID = int(pid.Int64)
	l.UpdatedAt = timePtr(updatedAt)

	return &l, nil
}

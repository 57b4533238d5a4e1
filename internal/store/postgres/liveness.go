package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/signalcast/internal/contracts"
)

type livenessRepo struct {
	q dbtx
}

func (r *livenessRepo) Heartbeat(ctx context.Context, at time.Time, pid int) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO worker_liveness (id, last_heartbeat_at, pid, updated_at)
		VALUES (1, $1, $2, $1)
		ON CONFLICT (id) DO UPDATE SET
			last_heartbeat_at = EXCLUDED.last_heartbeat_at,
			pid = EXCLUDED.pid,
			updated_at = EXCLUDED.updated_at`,
		at, pid,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

func (r *livenessRepo) RecordCycle(ctx context.Context, report contracts.CycleReport) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO worker_liveness
			(id, last_heartbeat_at, last_cycle_seconds, last_successful_cycle_at, last_cycle_id, pid, updated_at)
		VALUES (1, $1, $2, $1, $3, $4, $1)
		ON CONFLICT (id) DO UPDATE SET
			last_heartbeat_at = EXCLUDED.last_heartbeat_at,
			last_cycle_seconds = EXCLUDED.last_cycle_seconds,
			last_successful_cycle_at = EXCLUDED.last_successful_cycle_at,
			last_cycle_id = EXCLUDED.last_cycle_id,
			pid = EXCLUDED.pid,
			updated_at = EXCLUDED.updated_at`,
		report.FinishedAt, report.Duration.Seconds(), report.CycleID, report.PID,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

func (r *livenessRepo) RecordError(ctx context.Context, msg string, at time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO worker_liveness (id, last_error, last_error_at, updated_at)
		VALUES (1, $1, $2, $2)
		ON CONFLICT (id) DO UPDATE SET
			last_error = EXCLUDED.last_error,
			last_error_at = EXCLUDED.last_error_at,
			updated_at = EXCLUDED.updated_at`,
		msg, at,
	)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

func (r *livenessRepo) Get(ctx context.Context) (*contracts.Liveness, error) {
	var (
		l         contracts.Liveness
		cycleID   *string
		lastError *string
		pid       *int32
	)

	err := r.q.QueryRow(ctx, `
		SELECT last_heartbeat_at, last_cycle_seconds, last_successful_cycle_at, last_cycle_id,
		       last_error, last_error_at, pid, updated_at
		FROM worker_liveness WHERE id = 1`,
	).Scan(&l.LastHeartbeatAt, &l.LastCycleSeconds, &l.LastSuccessfulCycleAt, &cycleID,
		&lastError, &l.LastErrorAt, &pid, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &contracts.Liveness{}, nil
	}
	if err != nil {
		return nil, err
	}

	l.LastHeartbeatAt = utcPtr(l.LastHeartbeatAt)
	l.LastSuccessfulCycleAt = utcPtr(l.LastSuccessfulCycleAt)
	l.LastErrorAt = utcPtr(l.LastErrorAt)
	l.UpdatedAt = utcPtr(l.UpdatedAt)
	if cycleID != nil {
		l.LastCycleID = *cycleID
	}
	if lastError != nil {
		l.LastError = *lastError
	}
	if pid != nil {
		l.PID = int(*pid)
	}

	return &l, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/store"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store PostgreSQL 기반 저장소
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ contracts.Store = (*Store)(nil)

// New wraps a connection pool
func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{
		pool: pool,
		log:  log.With().Str("component", "store.postgres").Logger(),
	}
}

func (s *Store) Signals() contracts.SignalRepository           { return &signalRepo{q: s.pool} }
func (s *Store) Forecasts() contracts.ForecastRepository       { return &forecastRepo{q: s.pool} }
func (s *Store) Prices() contracts.PriceRepository             { return &priceRepo{q: s.pool} }
func (s *Store) Calibration() contracts.CalibrationRepository  { return &calibrationRepo{q: s.pool} }
func (s *Store) Summaries() contracts.SummaryRepository        { return &summaryRepo{pool: s.pool} }
func (s *Store) Liveness() contracts.LivenessRepository        { return &livenessRepo{q: s.pool} }
func (s *Store) Events() contracts.EventRepository             { return &eventRepo{q: s.pool} }

// InTx runs fn inside one transaction
func (s *Store) InTx(ctx context.Context, fn func(tx contracts.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txStore{q: tx})
	})
}

// Migrate applies pending schema migrations
func (s *Store) Migrate(ctx context.Context) ([]contracts.AppliedMigration, error) {
	return store.Run(ctx, &ledger{pool: s.pool}, Migrations(), s.log)
}

// AppliedMigrations lists the ledger rows
func (s *Store) AppliedMigrations(ctx context.Context) ([]contracts.AppliedMigration, error) {
	l := &ledger{pool: s.pool}
	if err := l.EnsureLedger(ctx); err != nil {
		return nil, err
	}
	return l.Applied(ctx)
}

// Ping checks the pool
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type txStore struct {
	q dbtx
}

func (t *txStore) Forecasts() contracts.ForecastRepository       { return &forecastRepo{q: t.q} }
func (t *txStore) Calibration() contracts.CalibrationRepository  { return &calibrationRepo{q: t.q} }
func (t *txStore) Events() contracts.EventRepository             { return &eventRepo{q: t.q} }

// utc normalises timestamps read from TIMESTAMPTZ columns
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// migrationLockKey pg_advisory_xact_lock 키 (동시 기동 시 마이그레이션 직렬화)
const migrationLockKey = 7_301_020_011

type ledger struct {
	pool *pgxpool.Pool
}

func (l *ledger) EnsureLedger(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT        NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (l *ledger) Applied(ctx context.Context) ([]contracts.AppliedMigration, error) {
	rows, err := l.pool.Query(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.AppliedMigration
	for rows.Next() {
		var m contracts.AppliedMigration
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt); err != nil {
			return nil, err
		}
		m.AppliedAt = utc(m.AppliedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *ledger) Apply(ctx context.Context, m store.Migration, at time.Time) error {
	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}

		for i, stmt := range m.Statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
			m.Version, m.Name, at,
		)
		return err
	})
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store SQLite 기반 저장소
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ contracts.Store = (*Store)(nil)

// New wraps an open database handle
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "store.sqlite").Logger(),
	}
}

func (s *Store) Signals() contracts.SignalRepository          { return &signalRepo{q: s.db} }
func (s *Store) Forecasts() contracts.ForecastRepository      { return &forecastRepo{q: s.db} }
func (s *Store) Prices() contracts.PriceRepository            { return &priceRepo{q: s.db} }
func (s *Store) Calibration() contracts.CalibrationRepository { return &calibrationRepo{q: s.db} }
func (s *Store) Summaries() contracts.SummaryRepository       { return &summaryRepo{db: s.db} }
func (s *Store) Liveness() contracts.LivenessRepository       { return &livenessRepo{q: s.db} }
func (s *Store) Events() contracts.EventRepository            { return &eventRepo{q: s.db} }

// InTx runs fn inside one transaction (BEGIN IMMEDIATE via _txlock)
func (s *Store) InTx(ctx context.Context, fn func(tx contracts.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&txStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Migrate applies pending schema migrations
func (s *Store) Migrate(ctx context.Context) ([]contracts.AppliedMigration, error) {
	return store.Run(ctx, &ledger{db: s.db}, Migrations(), s.log)
}

// AppliedMigrations lists the ledger rows
func (s *Store) AppliedMigrations(ctx context.Context) ([]contracts.AppliedMigration, error) {
	l := &ledger{db: s.db}
	if err := l.EnsureLedger(ctx); err != nil {
		return nil, err
	}
	return l.Applied(ctx)
}

// Ping checks the database handle
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

type txStore struct {
	q querier
}

func (t *txStore) Forecasts() contracts.ForecastRepository      { return &forecastRepo{q: t.q} }
func (t *txStore) Calibration() contracts.CalibrationRepository { return &calibrationRepo{q: t.q} }
func (t *txStore) Events() contracts.EventRepository            { return &eventRepo{q: t.q} }

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/store"
)

// Migrations SQLite 스키마 (추가만 허용, 순서 고정)
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version: 1,
			Name:    "create_core_tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS signals (
					id              INTEGER PRIMARY KEY AUTOINCREMENT,
					source          TEXT    NOT NULL,
					external_id     TEXT    NOT NULL,
					title           TEXT    NOT NULL DEFAULT '',
					summary         TEXT    NOT NULL DEFAULT '',
					url             TEXT    NOT NULL DEFAULT '',
					published_at    INTEGER,
					fetched_at      INTEGER NOT NULL,
					category        TEXT    NOT NULL,
					sentiment       TEXT    NOT NULL,
					impact_level    TEXT    NOT NULL,
					confidence      REAL    NOT NULL,
					affected_assets TEXT    NOT NULL DEFAULT '[]',
					consumed_at     INTEGER,
					UNIQUE (source, external_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_signals_unconsumed ON signals (consumed_at, fetched_at)`,
				`CREATE TABLE IF NOT EXISTS price_snapshots (
					id          INTEGER PRIMARY KEY AUTOINCREMENT,
					asset       TEXT    NOT NULL,
					price       REAL    NOT NULL,
					source      TEXT    NOT NULL DEFAULT '',
					captured_at INTEGER NOT NULL,
					UNIQUE (asset, captured_at)
				)`,
				`CREATE TABLE IF NOT EXISTS forecasts (
					id                INTEGER PRIMARY KEY AUTOINCREMENT,
					signal_id         INTEGER REFERENCES signals (id),
					asset             TEXT    NOT NULL,
					direction         TEXT    NOT NULL CHECK (direction IN ('UP', 'DOWN', 'NEUTRAL')),
					confidence        REAL    NOT NULL CHECK (confidence >= 0 AND confidence <= 100),
					horizon_minutes   INTEGER NOT NULL,
					horizon_key       TEXT    NOT NULL,
					category          TEXT    NOT NULL DEFAULT '',
					sentiment         TEXT    NOT NULL DEFAULT 'neutral',
					created_at        INTEGER NOT NULL,
					due_at            INTEGER NOT NULL,
					price_at_creation REAL    NOT NULL,
					predicted_price   REAL,
					status            TEXT    NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'evaluated', 'expired')),
					actual_price      REAL,
					actual_time       INTEGER,
					direction_correct INTEGER,
					pct_move          REAL,
					abs_error         REAL,
					pct_error         REAL,
					quality           TEXT,
					evaluated_at      INTEGER,
					expired_at        INTEGER,
					expiry_reason     TEXT
				)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS ux_forecasts_signal_asset_horizon ON forecasts (signal_id, asset, horizon_key)`,
				`CREATE INDEX IF NOT EXISTS idx_forecasts_status_due ON forecasts (status, due_at)`,
				`CREATE TABLE IF NOT EXISTS calibration_buckets (
					asset             TEXT    NOT NULL,
					horizon_minutes   INTEGER NOT NULL,
					category          TEXT    NOT NULL,
					sentiment         TEXT    NOT NULL,
					n_total           INTEGER NOT NULL DEFAULT 0,
					n_hit             INTEGER NOT NULL DEFAULT 0,
					rolling_accuracy  REAL    NOT NULL DEFAULT 50,
					weight_multiplier REAL    NOT NULL DEFAULT 1,
					updated_at        INTEGER NOT NULL,
					PRIMARY KEY (asset, horizon_minutes, category, sentiment)
				)`,
				`CREATE TABLE IF NOT EXISTS worker_liveness (
					id                       INTEGER PRIMARY KEY CHECK (id = 1),
					last_heartbeat_at        INTEGER,
					last_cycle_seconds       REAL,
					last_successful_cycle_at INTEGER,
					last_error               TEXT,
					updated_at               INTEGER
				)`,
			},
		},
		{
			Version: 2,
			Name:    "create_evaluation_summary_snapshots",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS evaluation_summary_snapshots (
					id                   INTEGER PRIMARY KEY AUTOINCREMENT,
					snapshot_id          TEXT    NOT NULL,
					computed_at          INTEGER NOT NULL,
					window_days          INTEGER NOT NULL,
					asset                TEXT    NOT NULL,
					horizon_key          TEXT    NOT NULL,
					horizon_minutes      INTEGER NOT NULL,
					n_total              INTEGER NOT NULL,
					n_hit                INTEGER NOT NULL,
					directional_accuracy REAL    NOT NULL,
					mae                  REAL    NOT NULL,
					mape                 REAL    NOT NULL,
					avg_confidence       REAL    NOT NULL,
					calibration_score    REAL    NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_summary_computed ON evaluation_summary_snapshots (computed_at)`,
			},
		},
		{
			Version: 3,
			Name:    "add_liveness_cycle_metadata",
			Statements: []string{
				`ALTER TABLE worker_liveness ADD COLUMN last_cycle_id TEXT`,
				`ALTER TABLE worker_liveness ADD COLUMN last_error_at INTEGER`,
				`ALTER TABLE worker_liveness ADD COLUMN pid INTEGER`,
			},
		},
		{
			Version: 4,
			Name:    "create_forecast_events_outbox",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS forecast_events (
					id           INTEGER PRIMARY KEY AUTOINCREMENT,
					forecast_id  INTEGER NOT NULL REFERENCES forecasts (id),
					event_type   TEXT    NOT NULL,
					payload      TEXT    NOT NULL,
					created_at   INTEGER NOT NULL,
					published_at INTEGER
				)`,
				`CREATE INDEX IF NOT EXISTS idx_forecast_events_pending ON forecast_events (published_at, id)`,
			},
		},
	}
}

// ledger schema_migrations 원장
type ledger struct {
	db *sql.DB
}

func (l *ledger) EnsureLedger(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT    NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	return err
}

func (l *ledger) Applied(ctx context.Context) ([]contracts.AppliedMigration, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.AppliedMigration
	for rows.Next() {
		var (
			m  contracts.AppliedMigration
			at int64
		)
		if err := rows.Scan(&m.Version, &m.Name, &at); err != nil {
			return nil, err
		}
		m.AppliedAt = fromMillis(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *ledger) Apply(ctx context.Context, m store.Migration, at time.Time) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 동시 기동한 다른 프로세스가 먼저 적용했으면 건너뜀
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}

	for i, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, toMillis(at),
	); err != nil {
		return err
	}

	return tx.Commit()
}

package postgres

import "github.com/wonny/signalcast/internal/store"

// Migrations PostgreSQL 스키마 (추가만 허용, 순서 고정)
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version: 1,
			Name:    "create_core_tables",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS signals (
					id              BIGSERIAL PRIMARY KEY,
					source          TEXT        NOT NULL,
					external_id     TEXT        NOT NULL,
					title           TEXT        NOT NULL DEFAULT '',
					summary         TEXT        NOT NULL DEFAULT '',
					url             TEXT        NOT NULL DEFAULT '',
					published_at    TIMESTAMPTZ,
					fetched_at      TIMESTAMPTZ NOT NULL,
					category        TEXT        NOT NULL,
					sentiment       TEXT        NOT NULL,
					impact_level    TEXT        NOT NULL,
					confidence      DOUBLE PRECISION NOT NULL,
					affected_assets TEXT[]      NOT NULL DEFAULT '{}',
					consumed_at     TIMESTAMPTZ,
					UNIQUE (source, external_id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_signals_unconsumed ON signals (fetched_at) WHERE consumed_at IS NULL`,
				`CREATE TABLE IF NOT EXISTS price_snapshots (
					id          BIGSERIAL PRIMARY KEY,
					asset       TEXT             NOT NULL,
					price       DOUBLE PRECISION NOT NULL,
					source      TEXT             NOT NULL DEFAULT '',
					captured_at TIMESTAMPTZ      NOT NULL,
					UNIQUE (asset, captured_at)
				)`,
				`CREATE TABLE IF NOT EXISTS forecasts (
					id                BIGSERIAL PRIMARY KEY,
					signal_id         BIGINT REFERENCES signals (id),
					asset             TEXT             NOT NULL,
					direction         TEXT             NOT NULL CHECK (direction IN ('UP', 'DOWN', 'NEUTRAL')),
					confidence        DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 100),
					horizon_minutes   INTEGER          NOT NULL,
					horizon_key       TEXT             NOT NULL,
					category          TEXT             NOT NULL DEFAULT '',
					sentiment         TEXT             NOT NULL DEFAULT 'neutral',
					created_at        TIMESTAMPTZ      NOT NULL,
					due_at            TIMESTAMPTZ      NOT NULL,
					price_at_creation DOUBLE PRECISION NOT NULL,
					predicted_price   DOUBLE PRECISION,
					status            TEXT             NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'evaluated', 'expired')),
					actual_price      DOUBLE PRECISION,
					actual_time       TIMESTAMPTZ,
					direction_correct BOOLEAN,
					pct_move          DOUBLE PRECISION,
					abs_error         DOUBLE PRECISION,
					pct_error         DOUBLE PRECISION,
					quality           TEXT,
					evaluated_at      TIMESTAMPTZ,
					expired_at        TIMESTAMPTZ,
					expiry_reason     TEXT
				)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS ux_forecasts_signal_asset_horizon ON forecasts (signal_id, asset, horizon_key)`,
				`CREATE INDEX IF NOT EXISTS idx_forecasts_active_due ON forecasts (due_at) WHERE status = 'active'`,
				`CREATE TABLE IF NOT EXISTS calibration_buckets (
					asset             TEXT             NOT NULL,
					horizon_minutes   INTEGER          NOT NULL,
					category          TEXT             NOT NULL,
					sentiment         TEXT             NOT NULL,
					n_total           INTEGER          NOT NULL DEFAULT 0,
					n_hit             INTEGER          NOT NULL DEFAULT 0,
					rolling_accuracy  DOUBLE PRECISION NOT NULL DEFAULT 50,
					weight_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1,
					updated_at        TIMESTAMPTZ      NOT NULL,
					PRIMARY KEY (asset, horizon_minutes, category, sentiment)
				)`,
				`CREATE TABLE IF NOT EXISTS worker_liveness (
					id                       INTEGER PRIMARY KEY CHECK (id = 1),
					last_heartbeat_at        TIMESTAMPTZ,
					last_cycle_seconds       DOUBLE PRECISION,
					last_successful_cycle_at TIMESTAMPTZ,
					last_error               TEXT,
					updated_at               TIMESTAMPTZ
				)`,
			},
		},
		{
			Version: 2,
			Name:    "create_evaluation_summary_snapshots",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS evaluation_summary_snapshots (
					id                   BIGSERIAL PRIMARY KEY,
					snapshot_id          TEXT             NOT NULL,
					computed_at          TIMESTAMPTZ      NOT NULL,
					window_days          INTEGER          NOT NULL,
					asset                TEXT             NOT NULL,
					horizon_key          TEXT             NOT NULL,
					horizon_minutes      INTEGER          NOT NULL,
					n_total              INTEGER          NOT NULL,
					n_hit                INTEGER          NOT NULL,
					directional_accuracy DOUBLE PRECISION NOT NULL,
					mae                  DOUBLE PRECISION NOT NULL,
					mape                 DOUBLE PRECISION NOT NULL,
					avg_confidence       DOUBLE PRECISION NOT NULL,
					calibration_score    DOUBLE PRECISION NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_summary_computed ON evaluation_summary_snapshots (computed_at)`,
			},
		},
		{
			Version: 3,
			Name:    "add_liveness_cycle_metadata",
			Statements: []string{
				`ALTER TABLE worker_liveness ADD COLUMN IF NOT EXISTS last_cycle_id TEXT`,
				`ALTER TABLE worker_liveness ADD COLUMN IF NOT EXISTS last_error_at TIMESTAMPTZ`,
				`ALTER TABLE worker_liveness ADD COLUMN IF NOT EXISTS pid INTEGER`,
			},
		},
		{
			Version: 4,
			Name:    "create_forecast_events_outbox",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS forecast_events (
					id           BIGSERIAL PRIMARY KEY,
					forecast_id  BIGINT      NOT NULL REFERENCES forecasts (id),
					event_type   TEXT        NOT NULL,
					payload      JSONB       NOT NULL,
					created_at   TIMESTAMPTZ NOT NULL,
					published_at TIMESTAMPTZ
				)`,
				`CREATE INDEX IF NOT EXISTS idx_forecast_events_pending ON forecast_events (id) WHERE published_at IS NULL`,
			},
		},
	}
}

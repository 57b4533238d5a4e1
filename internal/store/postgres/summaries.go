package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/signalcast/internal/contracts"
)

type summaryRepo struct {
	pool *pgxpool.Pool
}

// Append inserts all rows of one snapshot in a single batch transaction
func (r *summaryRepo) Append(ctx context.Context, rows []contracts.SummarySnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range rows {
			batch.Queue(`
				INSERT INTO evaluation_summary_snapshots
					(snapshot_id, computed_at, window_days, asset, horizon_key, horizon_minutes,
					 n_total, n_hit, directional_accuracy, mae, mape, avg_confidence, calibration_score)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				s.SnapshotID, s.ComputedAt, s.WindowDays, s.Asset, s.HorizonKey, s.HorizonMinutes,
				s.NTotal, s.NHit, s.DirectionalAccuracy, s.MAE, s.MAPE, s.AvgConfidence, s.CalibrationScore,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range rows {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("insert summary row: %w", err)
			}
		}
		return results.Close()
	})
}

// Latest returns every row of the most recent snapshot
func (r *summaryRepo) Latest(ctx context.Context) ([]contracts.SummarySnapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, snapshot_id, computed_at, window_days, asset, horizon_key, horizon_minutes,
		       n_total, n_hit, directional_accuracy, mae, mape, avg_confidence, calibration_score
		FROM evaluation_summary_snapshots
		WHERE snapshot_id = (
			SELECT snapshot_id FROM evaluation_summary_snapshots ORDER BY computed_at DESC, id DESC LIMIT 1
		)
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.SummarySnapshot
	for rows.Next() {
		var s contracts.SummarySnapshot
		if err := rows.Scan(
			&s.ID, &s.SnapshotID, &s.ComputedAt, &s.WindowDays, &s.Asset, &s.HorizonKey, &s.HorizonMinutes,
			&s.NTotal, &s.NHit, &s.DirectionalAccuracy, &s.MAE, &s.MAPE, &s.AvgConfidence, &s.CalibrationScore,
		); err != nil {
			return nil, err
		}
		s.ComputedAt = utc(s.ComputedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

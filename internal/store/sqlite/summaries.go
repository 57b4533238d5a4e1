package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wonny/signalcast/internal/contracts"
)

type summaryRepo struct {
	db *sql.DB
}

// Append inserts all rows of one snapshot atomically
func (r *summaryRepo) Append(ctx context.Context, rows []contracts.SummarySnapshot) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO evaluation_summary_snapshots
			(snapshot_id, computed_at, window_days, asset, horizon_key, horizon_minutes,
			 n_total, n_hit, directional_accuracy, mae, mape, avg_confidence, calibration_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range rows {
		if _, err := stmt.ExecContext(ctx,
			s.SnapshotID, toMillis(s.ComputedAt), s.WindowDays, s.Asset, s.HorizonKey, s.HorizonMinutes,
			s.NTotal, s.NHit, s.DirectionalAccuracy, s.MAE, s.MAPE, s.AvgConfidence, s.CalibrationScore,
		); err != nil {
			return fmt.Errorf("insert summary row: %w", err)
		}
	}

	return tx.Commit()
}

// Latest returns every row of the most recent snapshot
func (r *summaryRepo) Latest(ctx context.Context) ([]contracts.SummarySnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
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
		var (
			s  contracts.SummarySnapshot
			at int64
		)
		if err := rows.Scan(
			&s.ID, &s.SnapshotID, &at, &s.WindowDays, &s.Asset, &s.HorizonKey, &s.HorizonMinutes,
			&s.NTotal, &s.NHit, &s.DirectionalAccuracy, &s.MAE, &s.MAPE, &s.AvgConfidence, &s.CalibrationScore,
		); err != nil {
			return nil, err
		}
		s.ComputedAt = fromMillis(at)
		out = append(out, s)
	}
	return out, rows.Err()
}

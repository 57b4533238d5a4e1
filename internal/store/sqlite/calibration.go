package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
)

type calibrationRepo struct {
	q querier
}

const bucketColumns = `asset, horizon_minutes, category, sentiment, n_total, n_hit,
	rolling_accuracy, weight_multiplier, updated_at`

func (r *calibrationRepo) Get(ctx context.Context, key contracts.BucketKey) (*contracts.CalibrationBucket, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+bucketColumns+`
		FROM calibration_buckets
		WHERE asset = ? AND horizon_minutes = ? AND category = ? AND sentiment = ?`,
		key.Asset, key.HorizonMinutes, key.Category, string(key.Sentiment),
	)
	b, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return b, err
}

// Acquire inserts a neutral bucket if missing; the surrounding
// BEGIN IMMEDIATE transaction already holds the write lock
func (r *calibrationRepo) Acquire(ctx context.Context, key contracts.BucketKey) (*contracts.CalibrationBucket, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO calibration_buckets
			(asset, horizon_minutes, category, sentiment, n_total, n_hit, rolling_accuracy, weight_multiplier, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?)
		ON CONFLICT (asset, horizon_minutes, category, sentiment) DO NOTHING`,
		key.Asset, key.HorizonMinutes, key.Category, string(key.Sentiment),
		contracts.InitialRollingAccuracy, contracts.NeutralWeight, toMillis(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("acquire bucket: %w", err)
	}
	return r.Get(ctx, key)
}

func (r *calibrationRepo) Save(ctx context.Context, b contracts.CalibrationBucket) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO calibration_buckets
			(asset, horizon_minutes, category, sentiment, n_total, n_hit, rolling_accuracy, weight_multiplier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asset, horizon_minutes, category, sentiment) DO UPDATE SET
			n_total = excluded.n_total,
			n_hit = excluded.n_hit,
			rolling_accuracy = excluded.rolling_accuracy,
			weight_multiplier = excluded.weight_multiplier,
			updated_at = excluded.updated_at`,
		b.Asset, b.HorizonMinutes, b.Category, string(b.Sentiment),
		b.NTotal, b.NHit, b.RollingAccuracy, b.WeightMultiplier, toMillis(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save bucket: %w", err)
	}
	return nil
}

func (r *calibrationRepo) List(ctx context.Context) ([]contracts.CalibrationBucket, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+bucketColumns+`
		FROM calibration_buckets
		ORDER BY asset, horizon_minutes, category, sentiment`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.CalibrationBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBucket(row rowScanner) (*contracts.CalibrationBucket, error) {
	var (
		b         contracts.CalibrationBucket
		sentiment string
		updatedAt int64
	)
	err := row.Scan(
		&b.Asset, &b.HorizonMinutes, &b.Category, &sentiment, &b.NTotal, &b.NHit,
		&b.RollingAccuracy, &b.WeightMultiplier, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Sentiment = contracts.Sentiment(sentiment)
	b.UpdatedAt = fromMillis(updatedAt)
	return &b, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/signalcast/internal/contracts"
)

type calibrationRepo struct {
	q dbtx
}

const bucketColumns = `asset, horizon_minutes, category, sentiment, n_total, n_hit,
	rolling_accuracy, weight_multiplier, updated_at`

const bucketWhere = `asset = $1 AND horizon_minutes = $2 AND category = $3 AND sentiment = $4`

func (r *calibrationRepo) Get(ctx context.Context, key contracts.BucketKey) (*contracts.CalibrationBucket, error) {
	return r.get(ctx, `SELECT `+bucketColumns+` FROM calibration_buckets WHERE `+bucketWhere, key)
}

// Acquire inserts a neutral bucket if missing and locks the row until commit
func (r *calibrationRepo) Acquire(ctx context.Context, key contracts.BucketKey) (*contracts.CalibrationBucket, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO calibration_buckets
			(asset, horizon_minutes, category, sentiment, n_total, n_hit, rolling_accuracy, weight_multiplier, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7)
		ON CONFLICT (asset, horizon_minutes, category, sentiment) DO NOTHING`,
		key.Asset, key.HorizonMinutes, key.Category, string(key.Sentiment),
		contracts.InitialRollingAccuracy, contracts.NeutralWeight, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("acquire bucket: %w", err)
	}
	return r.get(ctx, `SELECT `+bucketColumns+` FROM calibration_buckets WHERE `+bucketWhere+` FOR UPDATE`, key)
}

func (r *calibrationRepo) Save(ctx context.Context, b contracts.CalibrationBucket) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO calibration_buckets
			(asset, horizon_minutes, category, sentiment, n_total, n_hit, rolling_accuracy, weight_multiplier, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (asset, horizon_minutes, category, sentiment) DO UPDATE SET
			n_total = EXCLUDED.n_total,
			n_hit = EXCLUDED.n_hit,
			rolling_accuracy = EXCLUDED.rolling_accuracy,
			weight_multiplier = EXCLUDED.weight_multiplier,
			updated_at = EXCLUDED.updated_at`,
		b.Asset, b.HorizonMinutes, b.Category, string(b.Sentiment),
		b.NTotal, b.NHit, b.RollingAccuracy, b.WeightMultiplier, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save bucket: %w", err)
	}
	return nil
}

func (r *calibrationRepo) List(ctx context.Context) ([]contracts.CalibrationBucket, error) {
	rows, err := r.q.Query(ctx, `
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

func (r *calibrationRepo) get(ctx context.Context, query string, key contracts.BucketKey) (*contracts.CalibrationBucket, error) {
	row := r.q.QueryRow(ctx, query, key.Asset, key.HorizonMinutes, key.Category, string(key.Sentiment))
	b, err := scanBucket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return b, err
}

func scanBucket(row pgx.Row) (*contracts.CalibrationBucket, error) {
	var (
		b         contracts.CalibrationBucket
		sentiment string
	)
	err := row.Scan(
		&b.Asset, &b.HorizonMinutes, &b.Category, &sentiment, &b.NTotal, &b.NHit,
		&b.RollingAccuracy, &b.WeightMultiplier, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Sentiment = contracts.Sentiment(sentiment)
	b.UpdatedAt = utc(b.UpdatedAt)
	return &b, nil
}

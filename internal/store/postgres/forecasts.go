package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/signalcast/internal/contracts"
)

type forecastRepo struct {
	q dbtx
}

const forecastColumns = `id, signal_id, asset, direction, confidence, horizon_minutes, horizon_key,
	category, sentiment, created_at, due_at, price_at_creation, predicted_price, status,
	actual_price, actual_time, direction_correct, pct_move, abs_error, pct_error, quality, evaluated_at,
	expired_at, expiry_reason`

func (r *forecastRepo) Insert(ctx context.Context, f *contracts.Forecast) (bool, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO forecasts
			(signal_id, asset, direction, confidence, horizon_minutes, horizon_key, category, sentiment,
			 created_at, due_at, price_at_creation, predicted_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'active')
		ON CONFLICT (signal_id, asset, horizon_key) DO NOTHING
		RETURNING id`,
		f.SignalID, f.Asset, string(f.Direction), f.Confidence, f.HorizonMinutes, f.HorizonKey,
		f.Category, string(f.Sentiment), f.CreatedAt, f.DueAt, f.PriceAtCreation, f.PredictedPrice,
	).Scan(&f.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		// 같은 (signal_id, asset, horizon_key) 예측이 이미 존재
		row := r.q.QueryRow(ctx,
			`SELECT `+forecastColumns+` FROM forecasts WHERE signal_id = $1 AND asset = $2 AND horizon_key = $3`,
			f.SignalID, f.Asset, f.HorizonKey,
		)
		existing, err := scanForecast(row)
		if err != nil {
			return false, fmt.Errorf("load existing forecast: %w", err)
		}
		*f = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert forecast: %w", err)
	}

	f.Status = contracts.StatusActive
	return true, nil
}

func (r *forecastRepo) Get(ctx context.Context, id int64) (*contracts.Forecast, error) {
	row := r.q.QueryRow(ctx, `SELECT `+forecastColumns+` FROM forecasts WHERE id = $1`, id)
	f, err := scanForecast(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return f, err
}

func (r *forecastRepo) List(ctx context.Context, filter contracts.ForecastFilter) ([]contracts.Forecast, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Asset != "" {
		args = append(args, filter.Asset)
		where = append(where, fmt.Sprintf("asset = $%d", len(args)))
	}

	query := `SELECT ` + forecastColumns + ` FROM forecasts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	return r.query(ctx, query, args...)
}

func (r *forecastRepo) ListDue(ctx context.Context, now time.Time, after *contracts.DueCursor, limit int) ([]contracts.Forecast, error) {
	if after == nil {
		return r.query(ctx, `
			SELECT `+forecastColumns+`
			FROM forecasts
			WHERE status = 'active' AND due_at <= $1
			ORDER BY due_at, id
			LIMIT $2`, now, limit)
	}
	return r.query(ctx, `
		SELECT `+forecastColumns+`
		FROM forecasts
		WHERE status = 'active' AND due_at <= $1
		  AND (due_at, id) > ($2, $3)
		ORDER BY due_at, id
		LIMIT $4`, now, after.DueAt, after.ID, limit)
}

func (r *forecastRepo) ListEvaluatedSince(ctx context.Context, since time.Time) ([]contracts.Forecast, error) {
	return r.query(ctx, `
		SELECT `+forecastColumns+`
		FROM forecasts
		WHERE status = 'evaluated' AND evaluated_at >= $1
		ORDER BY evaluated_at, id`, since)
}

func (r *forecastRepo) CountByStatus(ctx context.Context) (map[contracts.ForecastStatus]int, error) {
	rows, err := r.q.Query(ctx, `SELECT status, COUNT(*) FROM forecasts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[contracts.ForecastStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[contracts.ForecastStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *forecastRepo) CountForSignal(ctx context.Context, signalID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM forecasts WHERE signal_id = $1`, signalID).Scan(&n)
	return n, err
}

func (r *forecastRepo) MarkEvaluated(ctx context.Context, id int64, o contracts.Outcome) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE forecasts SET
			status = 'evaluated',
			actual_price = $1,
			actual_time = $2,
			direction_correct = $3,
			pct_move = $4,
			abs_error = $5,
			pct_error = $6,
			quality = $7,
			evaluated_at = $8
		WHERE id = $9 AND status = 'active'`,
		o.ActualPrice, o.ActualTime, o.DirectionCorrect, o.PctMove,
		o.AbsError, o.PctError, string(o.Quality), o.EvaluatedAt, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark forecast %d evaluated: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *forecastRepo) MarkExpired(ctx context.Context, id int64, at time.Time, reason string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE forecasts SET status = 'expired', expired_at = $1, expiry_reason = $2
		WHERE id = $3 AND status = 'active'`,
		at, reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark forecast %d expired: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *forecastRepo) query(ctx context.Context, query string, args ...any) ([]contracts.Forecast, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	defer rows.Close()

	var out []contracts.Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanForecast(row pgx.Row) (*contracts.Forecast, error) {
	var (
		f                contracts.Forecast
		direction        string
		sentiment        string
		status           string
		actualPrice      *float64
		actualTime       *time.Time
		directionCorrect *bool
		pctMove          *float64
		absError         *float64
		pctError         *float64
		quality          *string
		evaluatedAt      *time.Time
		expiryReason     *string
	)

	err := row.Scan(
		&f.ID, &f.SignalID, &f.Asset, &direction, &f.Confidence, &f.HorizonMinutes, &f.HorizonKey,
		&f.Category, &sentiment, &f.CreatedAt, &f.DueAt, &f.PriceAtCreation, &f.PredictedPrice, &status,
		&actualPrice, &actualTime, &directionCorrect, &pctMove, &absError, &pctError, &quality, &evaluatedAt,
		&f.ExpiredAt, &expiryReason,
	)
	if err != nil {
		return nil, err
	}

	f.Direction = contracts.Direction(direction)
	f.Sentiment = contracts.Sentiment(sentiment)
	f.Status = contracts.ForecastStatus(status)
	f.CreatedAt = utc(f.CreatedAt)
	f.DueAt = utc(f.DueAt)
	f.ExpiredAt = utcPtr(f.ExpiredAt)
	if expiryReason != nil {
		f.ExpiryReason = *expiryReason
	}

	if f.Status == contracts.StatusEvaluated && actualPrice != nil {
		o := &contracts.Outcome{
			ActualPrice: *actualPrice,
			PctMove:     deref(pctMove),
			AbsError:    deref(absError),
			PctError:    deref(pctError),
		}
		if actualTime != nil {
			o.ActualTime = utc(*actualTime)
		}
		if directionCorrect != nil {
			o.DirectionCorrect = *directionCorrect
		}
		if quality != nil {
			o.Quality = contracts.EvaluationQuality(*quality)
		}
		if evaluatedAt != nil {
			o.EvaluatedAt = utc(*evaluatedAt)
		}
		f.Outcome = o
	}

	return &f, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
)

type forecastRepo struct {
	q querier
}

const forecastColumns = `id, signal_id, asset, direction, confidence, horizon_minutes, horizon_key,
	category, sentiment, created_at, due_at, price_at_creation, predicted_price, status,
	actual_price, actual_time, direction_correct, pct_move, abs_error, pct_error, quality, evaluated_at,
	expired_at, expiry_reason`

func (r *forecastRepo) Insert(ctx context.Context, f *contracts.Forecast) (bool, error) {
	var signalID sql.NullInt64
	if f.SignalID != nil {
		signalID = sql.NullInt64{Int64: *f.SignalID, Valid: true}
	}
	var predicted sql.NullFloat64
	if f.PredictedPrice != nil {
		predicted = sql.NullFloat64{Float64: *f.PredictedPrice, Valid: true}
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO forecasts
			(signal_id, asset, direction, confidence, horizon_minutes, horizon_key, category, sentiment,
			 created_at, due_at, price_at_creation, predicted_price, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active')
		ON CONFLICT (signal_id, asset, horizon_key) DO NOTHING`,
		signalID, f.Asset, string(f.Direction), f.Confidence, f.HorizonMinutes, f.HorizonKey,
		f.Category, string(f.Sentiment), toMillis(f.CreatedAt), toMillis(f.DueAt),
		f.PriceAtCreation, predicted,
	)
	if err != nil {
		return false, fmt.Errorf("insert forecast: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if n == 0 {
		// 같은 (signal_id, asset, horizon_key) 예측이 이미 존재
		existing, err := r.getByKey(ctx, signalID.Int64, f.Asset, f.HorizonKey)
		if err != nil {
			return false, fmt.Errorf("load existing forecast: %w", err)
		}
		*f = *existing
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	f.ID = id
	f.Status = contracts.StatusActive
	return true, nil
}

func (r *forecastRepo) getByKey(ctx context.Context, signalID int64, asset, horizonKey string) (*contracts.Forecast, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+forecastColumns+` FROM forecasts WHERE signal_id = ? AND asset = ? AND horizon_key = ?`,
		signalID, asset, horizonKey,
	)
	return scanForecast(row)
}

func (r *forecastRepo) Get(ctx context.Context, id int64) (*contracts.Forecast, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+forecastColumns+` FROM forecasts WHERE id = ?`, id)
	f, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
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
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Asset != "" {
		where = append(where, "asset = ?")
		args = append(args, filter.Asset)
	}

	query := `SELECT ` + forecastColumns + ` FROM forecasts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	return r.query(ctx, query, args...)
}

func (r *forecastRepo) ListDue(ctx context.Context, now time.Time, after *contracts.DueCursor, limit int) ([]contracts.Forecast, error) {
	if after == nil {
		return r.query(ctx, `
			SELECT `+forecastColumns+`
			FROM forecasts
			WHERE status = 'active' AND due_at <= ?
			ORDER BY due_at, id
			LIMIT ?`, toMillis(now), limit)
	}
	at := toMillis(after.DueAt)
	return r.query(ctx, `
		SELECT `+forecastColumns+`
		FROM forecasts
		WHERE status = 'active' AND due_at <= ?
		  AND (due_at > ? OR (due_at = ? AND id > ?))
		ORDER BY due_at, id
		LIMIT ?`, toMillis(now), at, at, after.ID, limit)
}

func (r *forecastRepo) ListEvaluatedSince(ctx context.Context, since time.Time) ([]contracts.Forecast, error) {
	return r.query(ctx, `
		SELECT `+forecastColumns+`
		FROM forecasts
		WHERE status = 'evaluated' AND evaluated_at >= ?
		ORDER BY evaluated_at, id`, toMillis(since))
}

func (r *forecastRepo) CountByStatus(ctx context.Context) (map[contracts.ForecastStatus]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM forecasts GROUP BY status`)
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
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM forecasts WHERE signal_id = ?`, signalID).Scan(&n)
	return n, err
}

func (r *forecastRepo) MarkEvaluated(ctx context.Context, id int64, o contracts.Outcome) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE forecasts SET
			status = 'evaluated',
			actual_price = ?,
			actual_time = ?,
			direction_correct = ?,
			pct_move = ?,
			abs_error = ?,
			pct_error = ?,
			quality = ?,
			evaluated_at = ?
		WHERE id = ? AND status = 'active'`,
		o.ActualPrice, toMillis(o.ActualTime), boolToInt(o.DirectionCorrect), o.PctMove,
		o.AbsError, o.PctError, string(o.Quality), toMillis(o.EvaluatedAt), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark forecast %d evaluated: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *forecastRepo) MarkExpired(ctx context.Context, id int64, at time.Time, reason string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE forecasts SET status = 'expired', expired_at = ?, expiry_reason = ?
		WHERE id = ? AND status = 'active'`,
		toMillis(at), reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark forecast %d expired: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *forecastRepo) query(ctx context.Context, query string, args ...any) ([]contracts.Forecast, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
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

func scanForecast(row rowScanner) (*contracts.Forecast, error) {
	var (
		f                contracts.Forecast
		signalID         sql.NullInt64
		direction        string
		sentiment        string
		createdAt, dueAt int64
		predicted        sql.NullFloat64
		status           string
		actualPrice      sql.NullFloat64
		actualTime       sql.NullInt64
		directionCorrect sql.NullInt64
		pctMove          sql.NullFloat64
		absError         sql.NullFloat64
		pctError         sql.NullFloat64
		quality          sql.NullString
		evaluatedAt      sql.NullInt64
		expiredAt        sql.NullInt64
		expiryReason     sql.NullString
	)

	err := row.Scan(
		&f.ID, &signalID, &f.Asset, &direction, &f.Confidence, &f.HorizonMinutes, &f.HorizonKey,
		&f.Category, &sentiment, &createdAt, &dueAt, &f.PriceAtCreation, &predicted, &status,
		&actualPrice, &actualTime, &directionCorrect, &pctMove, &absError, &pctError, &quality, &evaluatedAt,
		&expiredAt, &expiryReason,
	)
	if err != nil {
		return nil, err
	}

	if signalID.Valid {
		id := signalID.Int64
		f.SignalID = &id
	}
	if predicted.Valid {
		p := predicted.Float64
		f.PredictedPrice = &p
	}

	f.Direction = contracts.Direction(direction)
	f.Sentiment = contracts.Sentiment(sentiment)
	f.Status = contracts.ForecastStatus(status)
	f.CreatedAt = fromMillis(createdAt)
	f.DueAt = fromMillis(dueAt)

	if f.Status == contracts.StatusEvaluated && actualPrice.Valid {
		f.Outcome = &contracts.Outcome{
			ActualPrice:      actualPrice.Float64,
			ActualTime:       fromMillis(actualTime.Int64),
			DirectionCorrect: directionCorrect.Int64 == 1,
			PctMove:          pctMove.Float64,
			AbsError:         absError.Float64,
			PctError:         pctError.Float64,
			Quality:          contracts.EvaluationQuality(quality.String),
			EvaluatedAt:      fromMillis(evaluatedAt.Int64),
		}
	}

	f.ExpiredAt = timePtr(expiredAt)
	f.ExpiryReason = expiryReason.String

	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
)

type signalRepo struct {
	q querier
}

const signalColumns = `id, source, external_id, title, summary, url, published_at, fetched_at,
	category, sentiment, impact_level, confidence, affected_assets, consumed_at`

func (r *signalRepo) Insert(ctx context.Context, s *contracts.Signal) (bool, error) {
	assets, err := json.Marshal(s.AffectedAssets)
	if err != nil {
		return false, fmt.Errorf("marshal affected assets: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO signals
			(source, external_id, title, summary, url, published_at, fetched_at,
			 category, sentiment, impact_level, confidence, affected_assets)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, external_id) DO NOTHING`,
		s.Source, s.ExternalID, s.Title, s.Summary, s.URL, nullMillis(s.PublishedAt), toMillis(s.FetchedAt),
		s.Category, string(s.Sentiment), string(s.ImpactLevel), s.Confidence, string(assets),
	)
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}
	s.ID = id
	return true, nil
}

func (r *signalRepo) Get(ctx context.Context, id int64) (*contracts.Signal, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	s, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return s, err
}

func (r *signalRepo) ListUnconsumed(ctx context.Context, limit int) ([]contracts.Signal, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE consumed_at IS NULL
		ORDER BY fetched_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unconsumed signals: %w", err)
	}
	defer rows.Close()

	var out []contracts.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *signalRepo) MarkConsumed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE signals SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		toMillis(at), id,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*contracts.Signal, error) {
	var (
		s           contracts.Signal
		sentiment   string
		impact      string
		assets      string
		publishedAt sql.NullInt64
		fetchedAt   int64
		consumedAt  sql.NullInt64
	)

	err := row.Scan(
		&s.ID, &s.Source, &s.ExternalID, &s.Title, &s.Summary, &s.URL, &publishedAt, &fetchedAt,
		&s.Category, &sentiment, &impact, &s.Confidence, &assets, &consumedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(assets), &s.AffectedAssets); err != nil {
		return nil, fmt.Errorf("signal %d: decode affected assets: %w", s.ID, err)
	}

	s.Sentiment = contracts.Sentiment(sentiment)
	s.ImpactLevel = contracts.ImpactLevel(impact)
	s.PublishedAt = timePtr(publishedAt)
	s.FetchedAt = fromMillis(fetchedAt)
	s.ConsumedAt = timePtr(consumedAt)

	return &s, nil
}

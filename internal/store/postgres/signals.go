package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/signalcast/internal/contracts"
)

type signalRepo struct {
	q dbtx
}

const signalColumns = `id, source, external_id, title, summary, url, published_at, fetched_at,
	category, sentiment, impact_level, confidence, affected_assets, consumed_at`

func (r *signalRepo) Insert(ctx context.Context, s *contracts.Signal) (bool, error) {
	assets := s.AffectedAssets
	if assets == nil {
		assets = []string{}
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO signals
			(source, external_id, title, summary, url, published_at, fetched_at,
			 category, sentiment, impact_level, confidence, affected_assets)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source, external_id) DO NOTHING
		RETURNING id`,
		s.Source, s.ExternalID, s.Title, s.Summary, s.URL, s.PublishedAt, s.FetchedAt,
		s.Category, string(s.Sentiment), string(s.ImpactLevel), s.Confidence, assets,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert signal: %w", err)
	}
	return true, nil
}

func (r *signalRepo) Get(ctx context.Context, id int64) (*contracts.Signal, error) {
	row := r.q.QueryRow(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	s, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return s, err
}

func (r *signalRepo) ListUnconsumed(ctx context.Context, limit int) ([]contracts.Signal, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+signalColumns+`
		FROM signals
		WHERE consumed_at IS NULL
		ORDER BY fetched_at, id
		LIMIT $1`, limit)
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
	_, err := r.q.Exec(ctx,
		`UPDATE signals SET consumed_at = $1 WHERE id = $2 AND consumed_at IS NULL`,
		at, id,
	)
	return err
}

func scanSignal(row pgx.Row) (*contracts.Signal, error) {
	var (
		s         contracts.Signal
		sentiment string
		impact    string
	)

	err := row.Scan(
		&s.ID, &s.Source, &s.ExternalID, &s.Title, &s.Summary, &s.URL, &s.PublishedAt, &s.FetchedAt,
		&s.Category, &sentiment, &impact, &s.Confidence, &s.AffectedAssets, &s.ConsumedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Sentiment = contracts.Sentiment(sentiment)
	s.ImpactLevel = contracts.ImpactLevel(impact)
	s.PublishedAt = utcPtr(s.PublishedAt)
	s.FetchedAt = utc(s.FetchedAt)
	s.ConsumedAt = utcPtr(s.ConsumedAt)

	return &s, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/signalcast/internal/contracts"
)

type priceRepo struct {
	q dbtx
}

func (r *priceRepo) Insert(ctx context.Context, p contracts.PriceSnapshot) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO price_snapshots (asset, price, source, captured_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset, captured_at) DO NOTHING`,
		p.Asset, p.Price, p.Source, p.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert price %s: %w", p.Asset, err)
	}
	return nil
}

func (r *priceRepo) Latest(ctx context.Context, asset string) (*contracts.PriceSnapshot, error) {
	return r.one(ctx, `
		SELECT id, asset, price, source, captured_at
		FROM price_snapshots
		WHERE asset = $1
		ORDER BY captured_at DESC
		LIMIT 1`, asset)
}

func (r *priceRepo) FirstAtOrAfter(ctx context.Context, asset string, at time.Time) (*contracts.PriceSnapshot, error) {
	return r.one(ctx, `
		SELECT id, asset, price, source, captured_at
		FROM price_snapshots
		WHERE asset = $1 AND captured_at >= $2
		ORDER BY captured_at
		LIMIT 1`, asset, at)
}

func (r *priceRepo) one(ctx context.Context, query string, args ...any) (*contracts.PriceSnapshot, error) {
	var p contracts.PriceSnapshot
	err := r.q.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Asset, &p.Price, &p.Source, &p.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CapturedAt = utc(p.CapturedAt)
	return &p, nil
}

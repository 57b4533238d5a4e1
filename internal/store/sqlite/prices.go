package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
)

type priceRepo struct {
	q querier
}

func (r *priceRepo) Insert(ctx context.Context, p contracts.PriceSnapshot) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO price_snapshots (asset, price, source, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (asset, captured_at) DO NOTHING`,
		p.Asset, p.Price, p.Source, toMillis(p.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("insert price snapshot: %w", err)
	}
	return nil
}

func (r *priceRepo) Latest(ctx context.Context, asset string) (*contracts.PriceSnapshot, error) {
	return r.one(ctx, `
		SELECT id, asset, price, source, captured_at
		FROM price_snapshots
		WHERE asset = ?
		ORDER BY captured_at DESC
		LIMIT 1`, asset)
}

func (r *priceRepo) FirstAtOrAfter(ctx context.Context, asset string, at time.Time) (*contracts.PriceSnapshot, error) {
	return r.one(ctx, `
		SELECT id, asset, price, source, captured_at
		FROM price_snapshots
		WHERE asset = ? AND captured_at >= ?
		ORDER BY captured_at ASC
		LIMIT 1`, asset, toMillis(at))
}

func (r *priceRepo) one(ctx context.Context, query string, args ...any) (*contracts.PriceSnapshot, error) {
	var (
		p  contracts.PriceSnapshot
		at int64
	)
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.Asset, &p.Price, &p.Source, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CapturedAt = fromMillis(at)
	return &p, nil
}

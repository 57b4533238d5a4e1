package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/external/prices"
	"github.com/wonny/signalcast/internal/forecastconfig"
	"github.com/wonny/signalcast/pkg/logger"
)

// Quoter 시세 조회 어댑터
type Quoter interface {
	Quote(ctx context.Context, symbol string) (float64, time.Time, error)
}

// PriceStage captures one snapshot per configured asset
type PriceStage struct {
	prices contracts.PriceRepository
	quoter Quoter
	assets []forecastconfig.Asset
	logger *logger.Logger
	now    func() time.Time
}

// NewPriceStage creates the price capture stage
func NewPriceStage(repo contracts.PriceRepository, quoter Quoter, assets []forecastconfig.Asset, log *logger.Logger) *PriceStage {
	return &PriceStage{
		prices: repo,
		quoter: quoter,
		assets: assets,
		logger: log.WithModule("jobs.prices"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the stage name
func (s *PriceStage) Name() string {
	return "prices"
}

// Run quotes every asset; a failed quote skips that asset for this cycle.
// captured_at is the capture time, not the exchange quote time.
func (s *PriceStage) Run(ctx context.Context) error {
	captured, skipped := 0, 0

	for _, a := range s.assets {
		if err := ctx.Err(); err != nil {
			return err
		}

		price, quotedAt, err := s.quoter.Quote(ctx, a.Symbol)
		if err != nil {
			skipped++
			s.logger.WithFields(map[string]interface{}{
				"asset":  a.Name,
				"symbol": a.Symbol,
				"error":  err.Error(),
			}).Warn("Quote failed, asset skipped this cycle")
			continue
		}

		snap := contracts.PriceSnapshot{
			Asset:      a.Name,
			Price:      price,
			Source:     prices.Source,
			CapturedAt: s.now(),
		}
		if err := s.prices.Insert(ctx, snap); err != nil {
			return fmt.Errorf("insert %s snapshot: %w", a.Name, err)
		}
		captured++

		s.logger.WithFields(map[string]interface{}{
			"asset":     a.Name,
			"price":     price,
			"quoted_at": quotedAt,
		}).Debug("Price captured")
	}

	if len(s.assets) > 0 && captured == 0 {
		return fmt.Errorf("no prices captured for %d assets", len(s.assets))
	}

	s.logger.WithFields(map[string]interface{}{
		"captured": captured,
		"skipped":  skipped,
	}).Info("Price capture finished")
	return nil
}

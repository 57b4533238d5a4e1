package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/forecastconfig"
)

// GenerateResult 생성 패스 결과
type GenerateResult struct {
	Signals  int `json:"signals"`
	Created  int `json:"created"`
	Existing int `json:"existing"`
	NoPrice  int `json:"no_price"`
	Consumed int `json:"consumed"`
	Failed   int `json:"failed"`
}

// Generator 미소비 신호 → 예측 생성
type Generator struct {
	store     contracts.Store
	manager   *Manager
	predictor *Predictor
	model     *forecastconfig.Model
	batch     int
	log       zerolog.Logger
	now       func() time.Time
}

// NewGenerator 새 생성기 생성
func NewGenerator(store contracts.Store, manager *Manager, predictor *Predictor, model *forecastconfig.Model, log zerolog.Logger) *Generator {
	return &Generator{
		store:     store,
		manager:   manager,
		predictor: predictor,
		model:     model,
		batch:     200,
		log:       log.With().Str("component", "forecast.generator").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate creates forecasts for every unconsumed signal × affected asset × horizon
func (g *Generator) Generate(ctx context.Context) (GenerateResult, error) {
	var res GenerateResult

	signals, err := g.store.Signals().ListUnconsumed(ctx, g.batch)
	if err != nil {
		return res, fmt.Errorf("list unconsumed signals: %w", err)
	}

	for i := range signals {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sig := &signals[i]
		res.Signals++

		priceable := g.priceableAssets(sig)
		for _, asset := range priceable {
			if err := g.forAsset(ctx, sig, asset, &res); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Failed++
				g.log.Error().Err(err).Int64("signal_id", sig.ID).Str("asset", asset).Msg("create forecast failed")
			}
		}

		consumed, err := g.consumeIfDone(ctx, sig, len(priceable) == 0)
		if err != nil {
			res.Failed++
			g.log.Error().Err(err).Int64("signal_id", sig.ID).Msg("mark signal consumed failed")
			continue
		}
		if consumed {
			res.Consumed++
		}
	}

	if res.Signals > 0 {
		g.log.Info().
			Int("signals", res.Signals).
			Int("created", res.Created).
			Int("existing", res.Existing).
			Int("no_price", res.NoPrice).
			Int("consumed", res.Consumed).
			Msg("generation pass finished")
	}
	return res, nil
}

func (g *Generator) forAsset(ctx context.Context, sig *contracts.Signal, asset string, res *GenerateResult) error {
	for _, h := range g.model.HorizonsFor(sig.Category) {
		pred := g.predictor.Predict(ctx, sig, asset, h)

		_, created, err := g.manager.Create(ctx, sig, asset, h, pred)
		if errors.Is(err, ErrNoPrice) {
			// 가격이 들어오면 다음 사이클에서 재시도
			res.NoPrice++
			return nil
		}
		if err != nil {
			return err
		}
		if created {
			res.Created++
		} else {
			res.Existing++
		}
	}
	return nil
}

// consumeIfDone marks the signal consumed once at least one forecast exists, or when nothing is priceable
func (g *Generator) consumeIfDone(ctx context.Context, sig *contracts.Signal, nothingPriceable bool) (bool, error) {
	if !nothingPriceable {
		n, err := g.store.Forecasts().CountForSignal(ctx, sig.ID)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
	}
	if err := g.store.Signals().MarkConsumed(ctx, sig.ID, g.now()); err != nil {
		return false, err
	}
	return true, nil
}

// priceableAssets keeps the signal's assets that the model can price
func (g *Generator) priceableAssets(sig *contracts.Signal) []string {
	var out []string
	for _, a := range sig.AffectedAssets {
		if _, ok := g.model.Asset(a); ok {
			out = append(out, a)
		}
	}
	return out
}

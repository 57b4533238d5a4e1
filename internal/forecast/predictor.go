package forecast

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/forecastconfig"
)

// WeightProvider 캘리브레이션 가중치 제공 인터페이스
type WeightProvider interface {
	GetWeight(ctx context.Context, key contracts.BucketKey) float64
}

// Prediction 신호 × 자산 × 기간 예측값
type Prediction struct {
	Direction       contracts.Direction
	Confidence      float64 // clamp(base·multiplier·weight)
	Multiplier      float64 // 상관관계 기반 배수
	Weight          float64 // 캘리브레이션 가중치
	ExpectedMovePct float64 // 예상 변동률 (%)
}

// Predictor 예측 생성기
type Predictor struct {
	model   *forecastconfig.Model
	weights WeightProvider
	log     zerolog.Logger
}

// NewPredictor 새 예측기 생성 (weights 가 nil 이면 가중치 1.0)
func NewPredictor(model *forecastconfig.Model, weights WeightProvider, log zerolog.Logger) *Predictor {
	return &Predictor{
		model:   model,
		weights: weights,
		log:     log.With().Str("component", "forecast.predictor").Logger(),
	}
}

// Predict derives direction, confidence and expected move for one asset/horizon
func (p *Predictor) Predict(ctx context.Context, sig *contracts.Signal, asset string, h contracts.Horizon) Prediction {
	dir, mult := p.direction(sig.Category, sig.Sentiment, asset)

	weight := contracts.NeutralWeight
	if p.weights != nil {
		weight = p.weights.GetWeight(ctx, contracts.BucketKey{
			Asset:          asset,
			HorizonMinutes: h.Minutes,
			Category:       sig.Category,
			Sentiment:      sig.Sentiment,
		})
	}

	rules := p.model.Confidence
	conf := round1(clamp(sig.Confidence*mult*weight, rules.Min, rules.Max))

	return Prediction{
		Direction:       dir,
		Confidence:      conf,
		Multiplier:      mult,
		Weight:          weight,
		ExpectedMovePct: p.expectedMove(asset, h, dir, conf),
	}
}

// direction maps (category, sentiment, asset) through the correlation table
func (p *Predictor) direction(category string, sentiment contracts.Sentiment, asset string) (contracts.Direction, float64) {
	corr, ok := p.model.Correlation(category, asset)
	if !ok {
		return contracts.DirectionNeutral, 0.7
	}

	mult := 0.5 + 0.5*corr.Strength

	switch corr.Type {
	case forecastconfig.CorrelationPositive, forecastconfig.CorrelationDirect:
		switch sentiment {
		case contracts.SentimentPositive:
			return contracts.DirectionUp, mult
		case contracts.SentimentNegative:
			return contracts.DirectionDown, mult
		}
		return contracts.DirectionNeutral, mult * 0.8

	case forecastconfig.CorrelationNegative:
		switch sentiment {
		case contracts.SentimentPositive:
			return contracts.DirectionDown, mult
		case contracts.SentimentNegative:
			return contracts.DirectionUp, mult
		}
		return contracts.DirectionNeutral, mult * 0.8
	}

	// variable: 방향 판단 보류
	return contracts.DirectionNeutral, 0.7
}

// expectedMove scales the asset's typical daily move by sqrt(time) and confidence
func (p *Predictor) expectedMove(asset string, h contracts.Horizon, dir contracts.Direction, conf float64) float64 {
	var sign float64
	switch dir {
	case contracts.DirectionUp:
		sign = 1
	case contracts.DirectionDown:
		sign = -1
	default:
		return 0
	}

	daily := 1.0
	if a, ok := p.model.Asset(asset); ok {
		daily = a.DailyMovePct
	}

	days := math.Max(float64(h.Minutes)/1440.0, 1.0/1440.0)
	scaled := daily * math.Sqrt(days)
	return sign * scaled * (0.35 + 0.65*clamp(conf/100, 0, 1))
}

// ProjectPrice applies an expected move to the creation price
func ProjectPrice(p0, expectedMovePct float64) float64 {
	if p0 <= 0 {
		return p0
	}
	return math.Round(p0*(1+expectedMovePct/100)*1e4) / 1e4
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

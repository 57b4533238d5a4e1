package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/redis"
)

// Metrics 한 그룹의 평가 지표
type Metrics struct {
	NTotal              int
	NHit                int
	DirectionalAccuracy float64
	MAE                 float64
	MAPE                float64
	AvgConfidence       float64
	CalibrationScore    float64
}

// Summarize computes directional accuracy, error and calibration metrics over evaluated forecasts.
// Rows without an outcome are ignored.
func Summarize(rows []contracts.Forecast) Metrics {
	var (
		m       Metrics
		absSum  float64
		pctSum  float64
		confSum float64
		gapSum  float64
	)

	for _, f := range rows {
		if f.Outcome == nil {
			continue
		}
		hit := 0.0
		if f.Outcome.DirectionCorrect {
			hit = 1.0
			m.NHit++
		}
		m.NTotal++

		absSum += f.Outcome.AbsError
		pctSum += f.Outcome.PctError
		confSum += f.Confidence

		p := math.Max(0, math.Min(f.Confidence/100.0, 1))
		gapSum += math.Abs(p - hit)
	}

	if m.NTotal == 0 {
		return m
	}

	n := float64(m.NTotal)
	m.DirectionalAccuracy = round(float64(m.NHit)/n*100, 3)
	m.MAE = round(absSum/n, 6)
	m.MAPE = round(pctSum/n, 6)
	m.AvgConfidence = round(confSum/n, 3)
	m.CalibrationScore = round(100*(1-gapSum/n), 3)
	return m
}

// ComputeSummary aggregates the trailing window per (asset, horizon) plus an overall row
// and appends the rows as one snapshot. Empty groups produce no row.
func (e *Engine) ComputeSummary(ctx context.Context, windowDays int, assets []string, horizons []contracts.Horizon) ([]contracts.SummarySnapshot, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window days must be positive, got %d", windowDays)
	}
	if len(assets) == 0 {
		assets = contracts.DefaultAssets()
	}
	if len(horizons) == 0 {
		horizons = contracts.DefaultHorizons()
	}

	now := e.now()
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	evaluated, err := e.store.Forecasts().ListEvaluatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list evaluated forecasts: %w", err)
	}

	type groupKey struct {
		asset   string
		minutes int
	}
	groups := make(map[groupKey][]contracts.Forecast)
	for _, f := range evaluated {
		k := groupKey{f.Asset, f.HorizonMinutes}
		groups[k] = append(groups[k], f)
	}

	snapshotID := uuid.NewString()
	var (
		out     []contracts.SummarySnapshot
		overall []contracts.Forecast
	)

	for _, asset := range assets {
		for _, h := range horizons {
			rows := groups[groupKey{asset, h.Minutes}]
			if len(rows) == 0 {
				continue
			}
			overall = append(overall, rows...)
			out = append(out, snapshotRow(snapshotID, now, windowDays, asset, h.Key, h.Minutes, Summarize(rows)))
		}
	}

	if len(out) == 0 {
		e.log.Info().Int("window_days", windowDays).Msg("no evaluated forecasts in window, summary skipped")
		return nil, nil
	}
	out = append(out, snapshotRow(snapshotID, now, windowDays, contracts.SummaryAll, contracts.SummaryAll, 0, Summarize(overall)))

	if err := e.store.Summaries().Append(ctx, out); err != nil {
		return nil, fmt.Errorf("append summary snapshot: %w", err)
	}
	e.cacheSummary(ctx, out)

	e.log.Info().
		Str("snapshot_id", snapshotID).
		Int("rows", len(out)).
		Int("window_days", windowDays).
		Int("n_total", len(overall)).
		Msg("evaluation summary stored")

	return out, nil
}

func snapshotRow(id string, at time.Time, windowDays int, asset, horizonKey string, minutes int, m Metrics) contracts.SummarySnapshot {
	return contracts.SummarySnapshot{
		SnapshotID:          id,
		ComputedAt:          at,
		WindowDays:          windowDays,
		Asset:               asset,
		HorizonKey:          horizonKey,
		HorizonMinutes:      minutes,
		NTotal:              m.NTotal,
		NHit:                m.NHit,
		DirectionalAccuracy: m.DirectionalAccuracy,
		MAE:                 m.MAE,
		MAPE:                m.MAPE,
		AvgConfidence:       m.AvgConfidence,
		CalibrationScore:    m.CalibrationScore,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// LatestSummary returns the most recent snapshot rows, served from cache when present
func (e *Engine) LatestSummary(ctx context.Context) ([]contracts.SummarySnapshot, error) {
	if e.cache != nil {
		var cached []contracts.SummarySnapshot
		if found, err := e.cache.Get(ctx, redis.SummaryKey(), &cached); err == nil && found && len(cached) > 0 {
			return cached, nil
		}
	}

	rows, err := e.store.Summaries().Latest(ctx)
	if err != nil {
		return nil, err
	}
	// 빈 결과는 캐시하지 않음
	if len(rows) > 0 {
		e.cacheSummary(ctx, rows)
	}
	return rows, nil
}

func (e *Engine) cacheSummary(ctx context.Context, rows []contracts.SummarySnapshot) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, redis.SummaryKey(), rows, redis.TTLMedium); err != nil {
		e.log.Debug().Err(err).Msg("summary cache set failed")
	}
}

package forecast

import (
	"math"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/config"
)

// EvaluationConfig 평가 임계값
// ⭐ SSOT: 모든 평가 경로가 이 설정 하나만 읽음
type EvaluationConfig struct {
	DeadZonePct         float64       // UP/DOWN 적중 최소 변동 (%)
	NeutralThresholdPct float64       // NEUTRAL 적중 최대 변동 (%)
	GraceWindow         time.Duration // due_at + grace 이내 스냅샷 → exact
	ExpiryGrace         time.Duration // due_at + expiry 까지 스냅샷 없음 → expired
	BatchSize           int
}

// DefaultEvaluationConfig 기본 평가 설정
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		DeadZonePct:         0.1,
		NeutralThresholdPct: 0.5,
		GraceWindow:         6 * time.Hour,
		ExpiryGrace:         24 * time.Hour,
		BatchSize:           500,
	}
}

// EvaluationConfigFrom maps environment config, keeping defaults for unset values
func EvaluationConfigFrom(cfg config.EvaluationConfig) EvaluationConfig {
	c := DefaultEvaluationConfig()
	if cfg.DeadZonePct > 0 {
		c.DeadZonePct = cfg.DeadZonePct
	}
	if cfg.NeutralThresholdPct > 0 {
		c.NeutralThresholdPct = cfg.NeutralThresholdPct
	}
	if cfg.GraceWindow > 0 {
		c.GraceWindow = cfg.GraceWindow
	}
	if cfg.ExpiryGrace > 0 {
		c.ExpiryGrace = cfg.ExpiryGrace
	}
	if cfg.BatchSize > 0 {
		c.BatchSize = cfg.BatchSize
	}
	return c
}

// PctMove returns the percentage change from p0 to actual
func PctMove(p0, actual float64) float64 {
	return (actual - p0) / p0 * 100
}

// IsCorrect applies the direction rule to a realised move
func (c EvaluationConfig) IsCorrect(dir contracts.Direction, pctMove float64) bool {
	switch dir {
	case contracts.DirectionUp:
		return pctMove > c.DeadZonePct
	case contracts.DirectionDown:
		return pctMove < -c.DeadZonePct
	case contracts.DirectionNeutral:
		return math.Abs(pctMove) < c.NeutralThresholdPct
	}
	return false
}

// Quality classifies the snapshot used for evaluation
func (c EvaluationConfig) Quality(dueAt, capturedAt time.Time) contracts.EvaluationQuality {
	if !capturedAt.After(dueAt.Add(c.GraceWindow)) {
		return contracts.QualityExact
	}
	return contracts.QualityApprox
}

// Expired reports whether a forecast without a price has waited past the expiry grace
func (c EvaluationConfig) Expired(dueAt, now time.Time) bool {
	return !now.Before(dueAt.Add(c.ExpiryGrace))
}

// Outcome builds the evaluation outcome for a forecast and its resolving snapshot
func (c EvaluationConfig) Outcome(f *contracts.Forecast, snap *contracts.PriceSnapshot, evaluatedAt time.Time) contracts.Outcome {
	p0 := f.PriceAtCreation
	move := PctMove(p0, snap.Price)
	absErr := math.Abs(snap.Price - p0)

	return contracts.Outcome{
		ActualPrice:      snap.Price,
		ActualTime:       snap.CapturedAt,
		DirectionCorrect: c.IsCorrect(f.Direction, move),
		PctMove:          move,
		AbsError:         absErr,
		PctError:         absErr / p0 * 100,
		Quality:          c.Quality(f.DueAt, snap.CapturedAt),
		EvaluatedAt:      evaluatedAt,
	}
}

package contracts

import "time"

// Calibration defaults
const (
	InitialRollingAccuracy = 50.0
	MinWeightMultiplier    = 0.6
	MaxWeightMultiplier    = 1.4
	NeutralWeight          = 1.0
)

// BucketKey 캘리브레이션 세그먼트 키
type BucketKey struct {
	Asset          string    `json:"asset"`
	HorizonMinutes int       `json:"horizon_minutes"`
	Category       string    `json:"category"`
	Sentiment      Sentiment `json:"sentiment"`
}

// CalibrationBucket 세그먼트별 누적 적중 통계
type CalibrationBucket struct {
	BucketKey
	NTotal           int       `json:"n_total"`
	NHit             int       `json:"n_hit"`
	RollingAccuracy  float64   `json:"rolling_accuracy"`  // EWMA, 0~100
	WeightMultiplier float64   `json:"weight_multiplier"` // 0.6~1.4
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewCalibrationBucket returns an empty bucket with neutral statistics
func NewCalibrationBucket(key BucketKey) CalibrationBucket {
	return CalibrationBucket{
		BucketKey:        key,
		RollingAccuracy:  InitialRollingAccuracy,
		WeightMultiplier: NeutralWeight,
	}
}

// SummarySnapshot 기간별 정확도/오차 요약 (append-only)
type SummarySnapshot struct {
	ID                  int64     `json:"id"`
	SnapshotID          string    `json:"snapshot_id"` // 같은 계산에서 나온 행 묶음
	ComputedAt          time.Time `json:"computed_at"`
	WindowDays          int       `json:"window_days"`
	Asset               string    `json:"asset"`       // "*" = 전체
	HorizonKey          string    `json:"horizon_key"` // "*" = 전체
	HorizonMinutes      int       `json:"horizon_minutes"`
	NTotal              int       `json:"n_total"`
	NHit                int       `json:"n_hit"`
	DirectionalAccuracy float64   `json:"directional_accuracy"` // %
	MAE                 float64   `json:"mae"`
	MAPE                float64   `json:"mape"`
	AvgConfidence       float64   `json:"avg_confidence"`
	CalibrationScore    float64   `json:"calibration_score"` // 0 = worst, 100 = perfect
}

// SummaryAll marks an aggregate row across assets or horizons
const SummaryAll = "*"

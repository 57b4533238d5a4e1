package contracts

import (
	"fmt"
	"time"
)

// Direction 예측 방향
type Direction string

const (
	DirectionUp      Direction = "UP"
	DirectionDown    Direction = "DOWN"
	DirectionNeutral Direction = "NEUTRAL"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	switch d {
	case DirectionUp, DirectionDown, DirectionNeutral:
		return true
	}
	return false
}

// ForecastStatus 예측 상태
// active → evaluated, active → expired 전이만 허용
type ForecastStatus string

const (
	StatusActive    ForecastStatus = "active"
	StatusEvaluated ForecastStatus = "evaluated"
	StatusExpired   ForecastStatus = "expired"
)

// Valid reports whether s is a known status
func (s ForecastStatus) Valid() bool {
	switch s {
	case StatusActive, StatusEvaluated, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed
func (s ForecastStatus) Terminal() bool {
	return s == StatusEvaluated || s == StatusExpired
}

// CanTransition reports whether from → to is a legal forward transition
func CanTransition(from, to ForecastStatus) bool {
	return from == StatusActive && to.Terminal()
}

// EvaluationQuality 평가 가격 품질
type EvaluationQuality string

const (
	QualityExact  EvaluationQuality = "exact"  // due_at 이후 grace window 안의 스냅샷
	QualityApprox EvaluationQuality = "approx" // grace window 밖의 첫 스냅샷
)

// ExpiryReasonNoPrice due 이후 가격 스냅샷이 끝내 없음
const ExpiryReasonNoPrice = "no_price_after_due"

// Platform-wide confidence bounds
const (
	DefaultMinConfidence = 25.0
	DefaultMaxConfidence = 85.0
)

// Horizon 예측 기간
type Horizon struct {
	Key     string `json:"key" yaml:"key" validate:"required"`        // "60m", "6h", ...
	Minutes int    `json:"minutes" yaml:"minutes" validate:"min=1"` // 분 단위
}

// Duration returns the horizon as a time.Duration
func (h Horizon) Duration() time.Duration {
	return time.Duration(h.Minutes) * time.Minute
}

// DefaultHorizons 요약 통계 기본 기간
func DefaultHorizons() []Horizon {
	return []Horizon{
		{Key: "15m", Minutes: 15},
		{Key: "60m", Minutes: 60},
		{Key: "6h", Minutes: 360},
		{Key: "12h", Minutes: 720},
		{Key: "48h", Minutes: 2880},
		{Key: "72h", Minutes: 4320},
	}
}

// DefaultAssets 기본 대상 자산
func DefaultAssets() []string {
	return []string{"Gold", "Silver", "Oil", "Bitcoin", "USD Index"}
}

// Forecast 방향성 예측
type Forecast struct {
	ID              int64          `json:"id"`
	SignalID        *int64         `json:"signal_id,omitempty"`
	Asset           string         `json:"asset"`
	Direction       Direction      `json:"direction"`
	Confidence      float64        `json:"confidence"` // 25~85
	HorizonMinutes  int            `json:"horizon_minutes"`
	HorizonKey      string         `json:"horizon_key"`
	Category        string         `json:"category"`  // 캘리브레이션 버킷 키
	Sentiment       Sentiment      `json:"sentiment"` // 캘리브레이션 버킷 키
	CreatedAt       time.Time      `json:"created_at"`
	DueAt           time.Time      `json:"due_at"`
	PriceAtCreation float64        `json:"price_at_creation"`
	PredictedPrice  *float64       `json:"predicted_price,omitempty"`
	Status          ForecastStatus `json:"status"`
	Outcome         *Outcome       `json:"outcome,omitempty"`
	ExpiredAt       *time.Time     `json:"expired_at,omitempty"`
	ExpiryReason    string         `json:"expiry_reason,omitempty"`
}

// Outcome 평가 결과 (evaluated 상태에만 존재)
type Outcome struct {
	ActualPrice      float64           `json:"actual_price"`
	ActualTime       time.Time         `json:"actual_time"`
	DirectionCorrect bool              `json:"direction_correct"`
	PctMove          float64           `json:"pct_move"`
	AbsError         float64           `json:"abs_error"`
	PctError         float64           `json:"pct_error"`
	Quality          EvaluationQuality `json:"quality"`
	EvaluatedAt      time.Time         `json:"evaluated_at"`
}

// BucketKey returns the calibration segment this forecast belongs to
func (f *Forecast) BucketKey() BucketKey {
	return BucketKey{
		Asset:          f.Asset,
		HorizonMinutes: f.HorizonMinutes,
		Category:       f.Category,
		Sentiment:      f.Sentiment,
	}
}

// Horizon returns the forecast horizon
func (f *Forecast) Horizon() Horizon {
	return Horizon{Key: f.HorizonKey, Minutes: f.HorizonMinutes}
}

// CheckTimes verifies horizon and due_at are usable for evaluation
func (f *Forecast) CheckTimes() error {
	if f.HorizonMinutes <= 0 {
		return fmt.Errorf("forecast %d: invalid horizon %d", f.ID, f.HorizonMinutes)
	}
	if f.CreatedAt.IsZero() || f.DueAt.IsZero() {
		return fmt.Errorf("forecast %d: missing created_at or due_at", f.ID)
	}
	if !f.DueAt.Equal(f.CreatedAt.Add(f.Horizon().Duration())) {
		return fmt.Errorf("forecast %d: due_at %s != created_at + %dm",
			f.ID, f.DueAt.Format(time.RFC3339), f.HorizonMinutes)
	}
	return nil
}

// CheckLifecycle verifies status and outcome are consistent
func (f *Forecast) CheckLifecycle() error {
	switch f.Status {
	case StatusActive:
		if f.Outcome != nil || f.ExpiredAt != nil {
			return fmt.Errorf("forecast %d: active with terminal data", f.ID)
		}
	case StatusEvaluated:
		if f.Outcome == nil {
			return fmt.Errorf("forecast %d: evaluated without outcome", f.ID)
		}
	case StatusExpired:
		if f.Outcome != nil {
			return fmt.Errorf("forecast %d: expired with outcome", f.ID)
		}
		if f.ExpiryReason == "" {
			return fmt.Errorf("forecast %d: expired without reason", f.ID)
		}
	default:
		return fmt.Errorf("forecast %d: unknown status %q", f.ID, f.Status)
	}
	return nil
}

// DueCursor keyset 페이지 위치 (due_at, id)
type DueCursor struct {
	DueAt time.Time
	ID    int64
}

// CursorOf returns the cursor positioned at f
func CursorOf(f Forecast) *DueCursor {
	return &DueCursor{DueAt: f.DueAt, ID: f.ID}
}

// ForecastFilter 목록 조회 조건
type ForecastFilter struct {
	Status ForecastStatus
	Asset  string
	Limit  int
}

package contracts

import "time"

// OutboxEventType 다운스트림 이벤트 종류
type OutboxEventType string

const (
	EventForecastEvaluated OutboxEventType = "forecast.evaluated"
	EventForecastExpired   OutboxEventType = "forecast.expired"
)

// OutboxEvent 상태 전이와 같은 트랜잭션에서 기록되는 이벤트
type OutboxEvent struct {
	ID          int64           `json:"id"`
	ForecastID  int64           `json:"forecast_id"`
	Type        OutboxEventType `json:"type"`
	Payload     []byte          `json:"payload"` // JSON encoded Forecast
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

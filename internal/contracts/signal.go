package contracts

import "time"

// Sentiment 신호 감성
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid reports whether s is a known sentiment
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// ImpactLevel 신호 영향도
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "HIGH"
	ImpactMedium ImpactLevel = "MEDIUM"
	ImpactLow    ImpactLevel = "LOW"
)

// Signal 수집된 뉴스/가격 신호
// ingest 단계에서 한 번 생성되며 이후에는 consumed 표시만 변경된다
type Signal struct {
	ID             int64       `json:"id"`
	Source         string      `json:"source"`      // 피드 이름
	ExternalID     string      `json:"external_id"` // 피드 내 고유 키 (guid/link)
	Title          string      `json:"title"`
	Summary        string      `json:"summary"`
	URL            string      `json:"url"`
	PublishedAt    *time.Time  `json:"published_at,omitempty"`
	FetchedAt      time.Time   `json:"fetched_at"`
	Category       string      `json:"category"`
	Sentiment      Sentiment   `json:"sentiment"`
	ImpactLevel    ImpactLevel `json:"impact_level"`
	Confidence     float64     `json:"confidence"` // 분류기 기본 신뢰도 (0~100)
	AffectedAssets []string    `json:"affected_assets"`
	ConsumedAt     *time.Time  `json:"consumed_at,omitempty"`
}

// Consumed reports whether forecast generation already handled the signal
func (s *Signal) Consumed() bool {
	return s.ConsumedAt != nil
}

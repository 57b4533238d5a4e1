package forecastconfig

import (
	"fmt"
	"sort"

	"github.com/wonny/signalcast/internal/contracts"
)

// Model 예측 모델 전체 설정 (자산, 기간, 키워드, 상관관계, 신뢰도 규칙)
type Model struct {
	Assets                []Asset                           `yaml:"assets" json:"assets" validate:"required,min=1,dive"`
	Horizons              []contracts.Horizon               `yaml:"horizons" json:"horizons" validate:"dive"`
	CategoryHorizons      map[string]int                    `yaml:"category_horizons" json:"category_horizons"`
	DefaultHorizonMinutes int                               `yaml:"default_horizon_minutes" json:"default_horizon_minutes" default:"240" validate:"min=1"`
	Categories            []Category                        `yaml:"categories" json:"categories" validate:"required,min=1,dive"`
	Sentiment             SentimentRules                    `yaml:"sentiment" json:"sentiment"`
	Impact                ImpactRules                       `yaml:"impact" json:"impact"`
	Correlations          map[string]map[string]Correlation `yaml:"correlations" json:"correlations"`
	Confidence            ConfidenceRules                   `yaml:"confidence" json:"confidence"`
}

// Asset 가격 추적 대상
type Asset struct {
	Name         string   `yaml:"name" json:"name" validate:"required"`
	Symbol       string   `yaml:"symbol" json:"symbol" validate:"required"`
	DailyMovePct float64  `yaml:"daily_move_pct" json:"daily_move_pct" default:"1.0" validate:"gt=0"`
	Mentions     []string `yaml:"mentions" json:"mentions"` // 본문 직접 언급 키워드
}

// Category 뉴스 분류
type Category struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Keywords []string `yaml:"keywords" json:"keywords" validate:"required,min=1"`
	Macro    bool     `yaml:"macro" json:"macro"` // 거시 지표 (MEDIUM 완화 규칙 적용)
}

// SentimentRules 감성 단어 목록
type SentimentRules struct {
	Positive []string `yaml:"positive" json:"positive" validate:"required,min=1"`
	Negative []string `yaml:"negative" json:"negative" validate:"required,min=1"`
	Margin   int      `yaml:"margin" json:"margin" default:"1" validate:"min=0"` // pos > neg+margin → positive
}

// ImpactRules 영향도 판정 규칙
type ImpactRules struct {
	HighWords      []string   `yaml:"high_words" json:"high_words" validate:"required,min=1"`
	Escalators     []string   `yaml:"escalators" json:"escalators"` // 단독으로 HIGH
	ActionableCues []string   `yaml:"actionable_cues" json:"actionable_cues"`
	Caps           ImpactCaps `yaml:"caps" json:"caps"`
}

// ImpactCaps 영향도별 신뢰도 상한
type ImpactCaps struct {
	Low    float64 `yaml:"low" json:"low" default:"55" validate:"gt=0,lte=100"`
	Medium float64 `yaml:"medium" json:"medium" default:"75" validate:"gt=0,lte=100"`
	High   float64 `yaml:"high" json:"high" default:"85" validate:"gt=0,lte=100"`
}

// Cap returns the confidence ceiling for an impact level
func (c ImpactCaps) Cap(level contracts.ImpactLevel) float64 {
	switch level {
	case contracts.ImpactLow:
		return c.Low
	case contracts.ImpactMedium:
		return c.Medium
	default:
		return c.High
	}
}

// CorrelationType 카테고리-자산 관계
type CorrelationType string

const (
	CorrelationPositive CorrelationType = "positive"
	CorrelationNegative CorrelationType = "negative"
	CorrelationDirect   CorrelationType = "direct"
	CorrelationVariable CorrelationType = "variable"
)

// Correlation 상관관계 항목
type Correlation struct {
	Type     CorrelationType `yaml:"type" json:"type" validate:"oneof=positive negative direct variable"`
	Strength float64         `yaml:"strength" json:"strength" validate:"gte=0,lte=1"`
}

// ConfidenceRules 기본 신뢰도 산정 규칙
type ConfidenceRules struct {
	Min               float64  `yaml:"min" json:"min" default:"25" validate:"gte=0"`
	Max               float64  `yaml:"max" json:"max" default:"85" validate:"lte=100"`
	Base              float64  `yaml:"base" json:"base" default:"50"`
	SourceReliability float64  `yaml:"source_reliability" json:"source_reliability" default:"0.8" validate:"gte=0,lte=1"`
	MinContentLength  int      `yaml:"min_content_length" json:"min_content_length" default:"50"`
	WeakSourcePenalty float64  `yaml:"weak_source_penalty" json:"weak_source_penalty" default:"15"`
	HighImpactBoost   float64  `yaml:"high_impact_boost" json:"high_impact_boost" default:"10"`
	LowImpactPenalty  float64  `yaml:"low_impact_penalty" json:"low_impact_penalty" default:"10"`
	AmbiguousPenalty  float64  `yaml:"ambiguous_penalty" json:"ambiguous_penalty" default:"10"`
	AmbiguousWords    []string `yaml:"ambiguous_words" json:"ambiguous_words"`
	FallbackAsset     string   `yaml:"fallback_asset" json:"fallback_asset" default:"USD Index"`
	FallbackCap       float64  `yaml:"fallback_cap" json:"fallback_cap" default:"35"`
}

// Asset returns the asset definition by name
func (m *Model) Asset(name string) (Asset, bool) {
	for _, a := range m.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// AssetNames returns configured asset names in file order
func (m *Model) AssetNames() []string {
	names := make([]string, 0, len(m.Assets))
	for _, a := range m.Assets {
		names = append(names, a.Name)
	}
	return names
}

// Correlation looks up the (category, asset) relation
func (m *Model) Correlation(category, asset string) (Correlation, bool) {
	row, ok := m.Correlations[category]
	if !ok {
		return Correlation{}, false
	}
	c, ok := row[asset]
	return c, ok
}

// CategoryHorizon returns the default horizon for a category
func (m *Model) CategoryHorizon(category string) contracts.Horizon {
	minutes, ok := m.CategoryHorizons[category]
	if !ok || minutes <= 0 {
		minutes = m.DefaultHorizonMinutes
	}
	// 같은 길이의 명시적 키가 있으면 재사용 (예: 1440 → "24h")
	for _, h := range m.Horizons {
		if h.Minutes == minutes {
			return h
		}
	}
	return contracts.Horizon{Key: HorizonKey(minutes), Minutes: minutes}
}

// HorizonsFor returns the category default horizon followed by the multi-horizon set, deduplicated by key
func (m *Model) HorizonsFor(category string) []contracts.Horizon {
	seen := map[string]bool{}
	var out []contracts.Horizon
	for _, h := range append([]contracts.Horizon{m.CategoryHorizon(category)}, m.Horizons...) {
		if seen[h.Key] {
			continue
		}
		seen[h.Key] = true
		out = append(out, h)
	}
	return out
}

// SummaryHorizons returns every horizon a forecast can carry, sorted by length
func (m *Model) SummaryHorizons() []contracts.Horizon {
	byMinutes := map[int]contracts.Horizon{}
	for _, h := range m.Horizons {
		byMinutes[h.Minutes] = h
	}
	for category := range m.CategoryHorizons {
		h := m.CategoryHorizon(category)
		if _, ok := byMinutes[h.Minutes]; !ok {
			byMinutes[h.Minutes] = h
		}
	}
	if _, ok := byMinutes[m.DefaultHorizonMinutes]; !ok {
		byMinutes[m.DefaultHorizonMinutes] = contracts.Horizon{Key: HorizonKey(m.DefaultHorizonMinutes), Minutes: m.DefaultHorizonMinutes}
	}

	out := make([]contracts.Horizon, 0, len(byMinutes))
	for _, h := range byMinutes {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes < out[j].Minutes })
	return out
}

// HorizonKey renders minutes as the canonical key ("15m", "4h", "3d")
func HorizonKey(minutes int) string {
	switch {
	case minutes%1440 == 0:
		return fmt.Sprintf("%dd", minutes/1440)
	case minutes%60 == 0:
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

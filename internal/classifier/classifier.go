package classifier

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/forecastconfig"
)

// GeneralCategory 어떤 키워드에도 걸리지 않은 항목
const GeneralCategory = "general"

var numberPattern = regexp.MustCompile(`\d+\.?\d*%|\$\d+`)

// Item 분류 대상 원문
type Item struct {
	Source  string
	Title   string
	Summary string
}

// Result 분류 결과
type Result struct {
	Category       string
	Sentiment      contracts.Sentiment
	ImpactLevel    contracts.ImpactLevel
	Confidence     float64
	AffectedAssets []string
	Fallback       bool // 관련 자산이 없어 기본 자산으로 대체됨
}

// Classifier 키워드 기반 신호 분류기
// 결정적: 같은 입력 → 같은 결과
type Classifier struct {
	model *forecastconfig.Model
	log   zerolog.Logger
}

// New creates a classifier bound to a forecast model
func New(model *forecastconfig.Model, log zerolog.Logger) *Classifier {
	return &Classifier{
		model: model,
		log:   log.With().Str("component", "classifier").Logger(),
	}
}

// Classify tags an item with category, sentiment, impact, base confidence and affected assets
func (c *Classifier) Classify(item Item) Result {
	text := normalize(item.Title + " " + item.Summary)

	category := c.category(text)
	sentiment := c.sentiment(text)
	hasNumbers := numberPattern.MatchString(text)
	impact := c.impact(text, category, sentiment, hasNumbers)

	conf := c.confidence(text, item.Summary, category, impact, hasNumbers)
	conf = math.Min(conf, c.model.Impact.Caps.Cap(impact))

	assets := c.affectedAssets(text, category)
	fallback := false
	if len(assets) == 0 {
		assets = []string{c.model.Confidence.FallbackAsset}
		conf = math.Min(conf, c.model.Confidence.FallbackCap)
		fallback = true
	}

	return Result{
		Category:       category,
		Sentiment:      sentiment,
		ImpactLevel:    impact,
		Confidence:     round1(conf),
		AffectedAssets: assets,
		Fallback:       fallback,
	}
}

// category picks the category with the most keyword hits (file order breaks ties)
func (c *Classifier) category(text string) string {
	best, bestHits := GeneralCategory, 0
	for _, cat := range c.model.Categories {
		hits := countMatches(text, cat.Keywords)
		if hits > bestHits {
			best, bestHits = cat.Name, hits
		}
	}
	return best
}

func (c *Classifier) sentiment(text string) contracts.Sentiment {
	rules := c.model.Sentiment
	pos := countMatches(text, rules.Positive)
	neg := countMatches(text, rules.Negative)

	switch {
	case pos > neg+rules.Margin:
		return contracts.SentimentPositive
	case neg > pos+rules.Margin:
		return contracts.SentimentNegative
	default:
		return contracts.SentimentNeutral
	}
}

func (c *Classifier) impact(text, category string, sentiment contracts.Sentiment, hasNumbers bool) contracts.ImpactLevel {
	rules := c.model.Impact
	strong := countMatches(text, rules.HighWords)

	if strong >= 2 || countMatches(text, rules.Escalators) > 0 {
		return contracts.ImpactHigh
	}

	directional := sentiment != contracts.SentimentNeutral
	if c.isMacro(category) {
		actionable := countMatches(text, rules.ActionableCues) > 0 && directional
		if strong >= 1 || hasNumbers || actionable {
			return contracts.ImpactMedium
		}
		return contracts.ImpactLow
	}

	if strong >= 1 || (hasNumbers && directional) {
		return contracts.ImpactMedium
	}
	return contracts.ImpactLow
}

func (c *Classifier) confidence(text, body, category string, impact contracts.ImpactLevel, hasNumbers bool) float64 {
	rules := c.model.Confidence
	conf := rules.Base + (rules.SourceReliability-0.5)*20

	switch n := utf8.RuneCountInString(strings.TrimSpace(body)); {
	case n < rules.MinContentLength:
		conf -= rules.WeakSourcePenalty
	case n > 200:
		conf += 10
	}

	if category != GeneralCategory {
		conf += 10
	}
	if hasNumbers {
		conf += 10
	}

	switch impact {
	case contracts.ImpactHigh:
		conf += rules.HighImpactBoost
	case contracts.ImpactLow:
		conf -= rules.LowImpactPenalty
	}

	if containsPhrase(text, "surprise") || containsPhrase(text, "unexpected") {
		conf += 5
	}
	if countMatches(text, rules.AmbiguousWords) >= 2 {
		conf -= rules.AmbiguousPenalty
	}

	return clamp(conf, rules.Min, rules.Max)
}

// affectedAssets returns direct mentions plus the category's correlation row, in model asset order
func (c *Classifier) affectedAssets(text, category string) []string {
	var out []string
	for _, a := range c.model.Assets {
		if countMatches(text, a.Mentions) > 0 {
			out = append(out, a.Name)
			continue
		}
		if _, ok := c.model.Correlation(category, a.Name); ok {
			out = append(out, a.Name)
		}
	}
	return out
}

func (c *Classifier) isMacro(category string) bool {
	for _, cat := range c.model.Categories {
		if cat.Name == category {
			return cat.Macro
		}
	}
	return false
}

// normalize lowercases and collapses whitespace
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func countMatches(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if containsPhrase(text, p) {
			n++
		}
	}
	return n
}

// containsPhrase reports whether phrase occurs in text on word boundaries ("up" ≠ "update")
func containsPhrase(text, phrase string) bool {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

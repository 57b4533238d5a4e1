package classifier

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/forecastconfig"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	model, err := forecastconfig.Default()
	require.NoError(t, err)
	return New(model, zerolog.Nop())
}

func TestClassify(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		name       string
		item       Item
		category   string
		sentiment  contracts.Sentiment
		impact     contracts.ImpactLevel
		confidence float64
		assets     []string
		fallback   bool
	}{
		{
			name:       "direct mention, general category",
			item:       Item{Title: "Gold prices surge to record high"},
			category:   GeneralCategory,
			sentiment:  contracts.SentimentNeutral,
			impact:     contracts.ImpactMedium,
			confidence: 41,
			assets:     []string{"Gold"},
		},
		{
			name: "emergency hike",
			item: Item{
				Title:   "Emergency Fed rate hike shocks markets",
				Summary: "The Federal Reserve delivered an emergency 0.75% rate hike, sending gold down sharply.",
			},
			category:   "interest_rates",
			sentiment:  contracts.SentimentNegative,
			impact:     contracts.ImpactHigh,
			confidence: 85,
			assets:     []string{"USD Index", "Gold", "Silver", "Bitcoin"},
		},
		{
			name:       "macro numbers",
			item:       Item{Title: "CPI rose 3.2% in March"},
			category:   "inflation",
			sentiment:  contracts.SentimentNeutral,
			impact:     contracts.ImpactMedium,
			confidence: 61,
			assets:     []string{"USD Index", "Gold", "Silver", "Oil"},
		},
		{
			name:       "ambiguous low impact",
			item:       Item{Title: "Oil may fall, analysts say prices could drop"},
			category:   "energy",
			sentiment:  contracts.SentimentNegative,
			impact:     contracts.ImpactLow,
			confidence: 31,
			assets:     []string{"USD Index", "Gold", "Oil"},
		},
		{
			name: "no priceable asset falls back",
			item: Item{
				Title:   "Company announces new product",
				Summary: strings.Repeat("The firm shared details with partners. ", 6),
			},
			category:   GeneralCategory,
			sentiment:  contracts.SentimentNeutral,
			impact:     contracts.ImpactLow,
			confidence: 35,
			assets:     []string{"USD Index"},
			fallback:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.item)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.sentiment, got.Sentiment)
			assert.Equal(t, tt.impact, got.ImpactLevel)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.assets, got.AffectedAssets)
			assert.Equal(t, tt.fallback, got.Fallback)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := newClassifier(t)
	item := Item{Title: "Bitcoin rally extends as crypto ETF inflows jump 12%"}
	assert.Equal(t, c.Classify(item), c.Classify(item))
}

func TestClassify_ConfidenceBounds(t *testing.T) {
	c := newClassifier(t)
	headlines := []string{
		"",
		"Markets",
		"Emergency crisis shock: gold soars, oil crashes, dollar plunges 5%",
		"Fed may possibly cut rates, unclear and uncertain outlook could weigh",
		"Jobs report beats estimates as payroll growth surprises at 300k",
		"OPEC cuts output, crude jumps $5 in sharp unexpected move",
		strings.Repeat("inflation cpi pce surge plunge ", 40),
	}
	for _, h := range headlines {
		got := c.Classify(Item{Title: h, Summary: h})
		assert.GreaterOrEqual(t, got.Confidence, contracts.DefaultMinConfidence, h)
		assert.LessOrEqual(t, got.Confidence, contracts.DefaultMaxConfidence, h)
		assert.NotEmpty(t, got.AffectedAssets, h)
	}
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"prices up sharply", "up", true},
		{"update on supply", "up", false},
		{"the fed said", "fed", true},
		{"federal reserve", "fed", false},
		{"federal reserve", "federal reserve", true},
		{"rate hike, again", "rate hike", true},
		{"cpi 3.2%", "cpi", true},
		{"anything", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, containsPhrase(tt.text, tt.phrase), "%q in %q", tt.phrase, tt.text)
	}
}

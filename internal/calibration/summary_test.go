package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/store/storetest"
	"github.com/wonny/signalcast/pkg/redis"
)

func evaluatedForecast(asset string, minutes int, confidence float64, hit bool, absErr float64) contracts.Forecast {
	return contracts.Forecast{
		Asset:           asset,
		HorizonMinutes:  minutes,
		Confidence:      confidence,
		PriceAtCreation: 100,
		Status:          contracts.StatusEvaluated,
		Outcome: &contracts.Outcome{
			DirectionCorrect: hit,
			AbsError:         absErr,
			PctError:         absErr,
		},
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		rows []contracts.Forecast
		want Metrics
	}{
		{
			name: "empty",
			rows: nil,
			want: Metrics{},
		},
		{
			name: "one hit one miss",
			rows: []contracts.Forecast{
				evaluatedForecast("Gold", 60, 60, true, 10),
				evaluatedForecast("Gold", 60, 80, false, 20),
			},
			want: Metrics{
				NTotal: 2, NHit: 1,
				DirectionalAccuracy: 50,
				MAE:                 15,
				MAPE:                15,
				AvgConfidence:       70,
				CalibrationScore:    40, // gaps 0.4, 0.8
			},
		},
		{
			name: "rows without outcome are ignored",
			rows: []contracts.Forecast{
				evaluatedForecast("Gold", 60, 50, true, 1),
				{Asset: "Gold", HorizonMinutes: 60, Confidence: 85, Status: contracts.StatusExpired},
			},
			want: Metrics{NTotal: 1, NHit: 1, DirectionalAccuracy: 100, MAE: 1, MAPE: 1, AvgConfidence: 50, CalibrationScore: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.rows))
		})
	}
}

func TestComputeSummary_AppendsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewSQLite(t)
	e := NewEngine(s, nil, DefaultConfig(), zerolog.Nop())
	now := t0.Add(48 * time.Hour)
	e.now = func() time.Time { return now }

	seed := []struct {
		asset      string
		minutes    int
		key        string
		confidence float64
		hit        bool
		evaluated  time.Time
	}{
		{"Gold", 60, "60m", 60, true, now.Add(-time.Hour)},
		{"Gold", 60, "60m", 80, false, now.Add(-2 * time.Hour)},
		{"Oil", 360, "6h", 70, true, now.Add(-3 * time.Hour)},
		{"Oil", 360, "6h", 70, true, now.Add(-30 * 24 * time.Hour)}, // 윈도우 밖
	}
	for i, sd := range seed {
		created := t0.Add(time.Duration(i) * time.Minute)
		f := &contracts.Forecast{
			Asset: sd.asset, Direction: contracts.DirectionUp, Confidence: sd.confidence,
			HorizonMinutes: sd.minutes, HorizonKey: sd.key, Category: "inflation",
			Sentiment: contracts.SentimentPositive, CreatedAt: created,
			DueAt: created.Add(time.Duration(sd.minutes) * time.Minute), PriceAtCreation: 100,
		}
		_, err := s.Forecasts().Insert(ctx, f)
		require.NoError(t, err)
		ok, err := s.Forecasts().MarkEvaluated(ctx, f.ID, contracts.Outcome{
			ActualPrice: 101, ActualTime: f.DueAt, DirectionCorrect: sd.hit,
			PctMove: 1, AbsError: 1, PctError: 1, Quality: contracts.QualityExact, EvaluatedAt: sd.evaluated,
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	rows, err := e.ComputeSummary(ctx, 7, []string{"Gold", "Oil"}, contracts.DefaultHorizons())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byAsset := map[string]contracts.SummarySnapshot{}
	for _, r := range rows {
		assert.Equal(t, rows[0].SnapshotID, r.SnapshotID)
		byAsset[r.Asset] = r
	}
	assert.Equal(t, 2, byAsset["Gold"].NTotal)
	assert.Equal(t, 50.0, byAsset["Gold"].DirectionalAccuracy)
	assert.Equal(t, 1, byAsset["Oil"].NTotal)
	assert.Equal(t, 3, byAsset[contracts.SummaryAll].NTotal)
	assert.Equal(t, contracts.SummaryAll, byAsset[contracts.SummaryAll].HorizonKey)

	stored, err := s.Summaries().Latest(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// 두 번째 계산은 새 스냅샷으로 추가
	again, err := e.ComputeSummary(ctx, 7, []string{"Gold", "Oil"}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, rows[0].SnapshotID, again[0].SnapshotID)
}

func TestComputeSummary_EmptyWindow(t *testing.T) {
	s := storetest.NewSQLite(t)
	e := NewEngine(s, nil, DefaultConfig(), zerolog.Nop())

	rows, err := e.ComputeSummary(context.Background(), 7, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = e.ComputeSummary(context.Background(), 0, nil, nil)
	assert.Error(t, err)
}

func TestLatestSummary_ServedFromCache(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewSQLite(t)
	e := NewEngine(s, nil, DefaultConfig(), zerolog.Nop())
	mc := newMemCache()
	e.cache = mc

	rows, err := e.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, mc.sets, "empty result is not cached")

	snap := func(id string) []contracts.SummarySnapshot {
		return []contracts.SummarySnapshot{{
			SnapshotID: id, ComputedAt: t0, WindowDays: 7,
			Asset: contracts.SummaryAll, HorizonKey: contracts.SummaryAll, NTotal: 2, NHit: 1, DirectionalAccuracy: 50,
		}}
	}
	require.NoError(t, s.Summaries().Append(ctx, snap("snap-1")))

	rows, err = e.LatestSummary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "snap-1", rows[0].SnapshotID)
	assert.Contains(t, mc.data, redis.SummaryKey())

	// 저장소 직접 추가는 캐시 TTL 동안 보이지 않음
	require.NoError(t, s.Summaries().Append(ctx, snap("snap-2")))
	rows, err = e.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-1", rows[0].SnapshotID)
}

func TestComputeSummary_RefreshesCachedSummary(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewSQLite(t)
	e := NewEngine(s, nil, DefaultConfig(), zerolog.Nop())
	now := t0.Add(48 * time.Hour)
	e.now = func() time.Time { return now }
	mc := newMemCache()
	e.cache = mc

	require.NoError(t, s.Summaries().Append(ctx, []contracts.SummarySnapshot{{
		SnapshotID: "old", ComputedAt: t0, WindowDays: 7, Asset: contracts.SummaryAll, HorizonKey: contracts.SummaryAll,
	}}))
	rows, err := e.LatestSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, "old", rows[0].SnapshotID)

	f := &contracts.Forecast{
		Asset: "Gold", Direction: contracts.DirectionUp, Confidence: 60,
		HorizonMinutes: 60, HorizonKey: "60m", Category: "inflation",
		Sentiment: contracts.SentimentPositive, CreatedAt: t0, DueAt: t0.Add(time.Hour), PriceAtCreation: 100,
	}
	_, err = s.Forecasts().Insert(ctx, f)
	require.NoError(t, err)
	ok, err := s.Forecasts().MarkEvaluated(ctx, f.ID, contracts.Outcome{
		ActualPrice: 101, ActualTime: f.DueAt, DirectionCorrect: true,
		PctMove: 1, AbsError: 1, PctError: 1, Quality: contracts.QualityExact, EvaluatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.True(t, ok)

	computed, err := e.ComputeSummary(ctx, 7, []string{"Gold"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, computed)

	rows, err = e.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, computed[0].SnapshotID, rows[0].SnapshotID)
	assert.Len(t, rows, len(computed))
}

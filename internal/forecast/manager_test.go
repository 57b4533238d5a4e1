package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalcast/internal/calibration"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/store/sqlite"
	"github.com/wonny/signalcast/internal/store/storetest"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var hour = contracts.Horizon{Key: "60m", Minutes: 60}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Set(at time.Time)        { c.now = at }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store   *sqlite.Store
	engine  *calibration.Engine
	manager *Manager
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storetest.NewSQLite(t)
	engine := calibration.NewEngine(s, nil, calibration.DefaultConfig(), zerolog.Nop())
	c := &clock{now: t0}
	m := NewManager(s, engine, DefaultEvaluationConfig(), nil, zerolog.Nop())
	m.now = c.Now
	return &fixture{store: s, engine: engine, manager: m, clock: c}
}

func (fx *fixture) signal(t *testing.T, externalID, category string, sentiment contracts.Sentiment, assets ...string) *contracts.Signal {
	t.Helper()
	sig := &contracts.Signal{
		Source:         "test-feed",
		ExternalID:     externalID,
		Title:          "headline " + externalID,
		FetchedAt:      fx.clock.now,
		Category:       category,
		Sentiment:      sentiment,
		ImpactLevel:    contracts.ImpactMedium,
		Confidence:     60,
		AffectedAssets: assets,
	}
	created, err := fx.store.Signals().Insert(context.Background(), sig)
	require.NoError(t, err)
	require.True(t, created)
	return sig
}

func (fx *fixture) price(t *testing.T, asset string, price float64, at time.Time) {
	t.Helper()
	require.NoError(t, fx.store.Prices().Insert(context.Background(), contracts.PriceSnapshot{
		Asset: asset, Price: price, Source: "test", CapturedAt: at,
	}))
}

func (fx *fixture) create(t *testing.T, sig *contracts.Signal, asset string, dir contracts.Direction) *contracts.Forecast {
	t.Helper()
	f, created, err := fx.manager.Create(context.Background(), sig, asset, hour, Prediction{Direction: dir, Confidence: 60})
	require.NoError(t, err)
	require.True(t, created)
	return f
}

func (fx *fixture) pendingEvents(t *testing.T) []contracts.OutboxEvent {
	t.Helper()
	events, err := fx.store.Events().ListPending(context.Background(), 100)
	require.NoError(t, err)
	return events
}

func TestCreate_SetsDueAndPrice(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0.Add(-time.Minute))
	fx.clock.Set(t0.Add(123456789 * time.Nanosecond))

	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")
	f, created, err := fx.manager.Create(ctx, sig, "Gold", hour, Prediction{Direction: contracts.DirectionUp, Confidence: 60, ExpectedMovePct: 1})
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, t0.Add(123*time.Millisecond), f.CreatedAt)
	assert.Equal(t, f.CreatedAt.Add(time.Hour), f.DueAt)
	assert.Equal(t, 2000.0, f.PriceAtCreation)
	require.NotNil(t, f.PredictedPrice)
	assert.InDelta(t, 2020.0, *f.PredictedPrice, 1e-9)
	assert.Equal(t, contracts.StatusActive, f.Status)

	stored, err := fx.store.Forecasts().Get(ctx, f.ID)
	require.NoError(t, err)
	assert.NoError(t, stored.CheckTimes())
	assert.Equal(t, f.DueAt, stored.DueAt)
}

func TestCreate_Idempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0)
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")

	first := fx.create(t, sig, "Gold", contracts.DirectionUp)

	fx.clock.Advance(10 * time.Minute)
	fx.price(t, "Gold", 2100, fx.clock.now)

	again, created, err := fx.manager.Create(ctx, sig, "Gold", hour, Prediction{Direction: contracts.DirectionDown, Confidence: 80})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.CreatedAt, again.CreatedAt)
	assert.Equal(t, contracts.DirectionUp, again.Direction)
	assert.Equal(t, 2000.0, again.PriceAtCreation)

	n, err := fx.store.Forecasts().CountForSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreate_Errors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")

	_, _, err := fx.manager.Create(ctx, sig, "Gold", hour, Prediction{Direction: contracts.DirectionUp, Confidence: 60})
	assert.ErrorIs(t, err, ErrNoPrice)

	fx.price(t, "Gold", 2000, t0)
	_, _, err = fx.manager.Create(ctx, sig, "Gold", contracts.Horizon{Key: "0m", Minutes: 0}, Prediction{})
	assert.Error(t, err)
}

func TestCreate_ClampsConfidence(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0)
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")

	tests := []struct {
		horizon contracts.Horizon
		conf    float64
		want    float64
	}{
		{contracts.Horizon{Key: "1h", Minutes: 60}, 99, contracts.DefaultMaxConfidence},
		{contracts.Horizon{Key: "2h", Minutes: 120}, 3, contracts.DefaultMinConfidence},
		{contracts.Horizon{Key: "3h", Minutes: 180}, 50, 50},
	}
	for _, tt := range tests {
		f, _, err := fx.manager.Create(ctx, sig, "Gold", tt.horizon, Prediction{Direction: contracts.DirectionUp, Confidence: tt.conf})
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Confidence)
	}
}

// due_at = T+60m, snapshot at T+61m, evaluated at T+65m
func TestEvaluateDue_ExactHit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0)
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")
	f := fx.create(t, sig, "Gold", contracts.DirectionUp)

	fx.price(t, "Gold", 2010, t0.Add(61*time.Minute))
	fx.clock.Set(t0.Add(65 * time.Minute))

	res, err := fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{Scanned: 1, Evaluated: 1, Hits: 1}, res)

	got, err := fx.store.Forecasts().Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusEvaluated, got.Status)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, contracts.QualityExact, got.Outcome.Quality)
	assert.InDelta(t, 0.5, got.Outcome.PctMove, 1e-9)
	assert.True(t, got.Outcome.DirectionCorrect)
	assert.NoError(t, got.CheckLifecycle())

	bucket, err := fx.store.Calibration().Get(ctx, f.BucketKey())
	require.NoError(t, err)
	assert.Equal(t, 1, bucket.NTotal)
	assert.Equal(t, 1, bucket.NHit)
	assert.InDelta(t, 52.5, bucket.RollingAccuracy, 1e-9)

	events := fx.pendingEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, contracts.EventForecastEvaluated, events[0].Type)
	assert.Equal(t, f.ID, events[0].ForecastID)

	var payload contracts.Forecast
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, contracts.StatusEvaluated, payload.Status)
	require.NotNil(t, payload.Outcome)
}

// no snapshot until T+500m, evaluated at T+600m as approx
func TestEvaluateDue_ApproxAfterGrace(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0)
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")
	f := fx.create(t, sig, "Gold", contracts.DirectionDown)

	fx.clock.Set(t0.Add(400 * time.Minute))
	res, err := fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)

	fx.price(t, "Gold", 1990, t0.Add(500*time.Minute))
	fx.clock.Set(t0.Add(600 * time.Minute))

	res, err = fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Zero(t, res.Expired)

	got, err := fx.store.Forecasts().Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusEvaluated, got.Status)
	assert.Equal(t, contracts.QualityApprox, got.Outcome.Quality)
	assert.True(t, got.Outcome.DirectionCorrect)
}

func TestEvaluateDue_ExpiresWithoutPrice(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0)
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")
	f := fx.create(t, sig, "Gold", contracts.DirectionUp)

	fx.clock.Set(f.DueAt.Add(23 * time.Hour))
	res, err := fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)

	fx.clock.Set(f.DueAt.Add(24 * time.Hour))
	res, err = fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	got, err := fx.store.Forecasts().Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExpired, got.Status)
	assert.Nil(t, got.Outcome)
	assert.Equal(t, contracts.ExpiryReasonNoPrice, got.ExpiryReason)
	assert.NoError(t, got.CheckLifecycle())

	_, err = fx.store.Calibration().Get(ctx, f.BucketKey())
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	events := fx.pendingEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, contracts.EventForecastExpired, events[0].Type)

	// 늦게 도착한 가격은 종료된 예측을 되살리지 않음
	fx.price(t, "Gold", 2050, fx.clock.now.Add(time.Minute))
	fx.clock.Advance(time.Hour)
	res, err = fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestEvaluateDue_Idempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0)
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")
	f := fx.create(t, sig, "Gold", contracts.DirectionUp)

	fx.price(t, "Gold", 2010, t0.Add(61*time.Minute))
	fx.clock.Set(t0.Add(2 * time.Hour))

	_, err := fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	res, err := fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)

	// 같은 예측을 직접 다시 평가해도 버킷은 한 번만 갱신
	stale := *f
	status, _, err := fx.manager.evaluateOne(ctx, &stale, fx.clock.now)
	require.NoError(t, err)
	assert.Equal(t, evalConflict, status)

	bucket, err := fx.store.Calibration().Get(ctx, f.BucketKey())
	require.NoError(t, err)
	assert.Equal(t, 1, bucket.NTotal)
	assert.Len(t, fx.pendingEvents(t), 1)
}

func TestEvaluateDue_SkipsMalformed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0.Add(2*time.Hour))

	bad := []contracts.Forecast{
		{Asset: "Gold", Direction: contracts.DirectionUp, Confidence: 50, HorizonMinutes: 60, HorizonKey: "a",
			CreatedAt: t0, DueAt: t0.Add(2 * time.Hour), PriceAtCreation: 2000},
		{Asset: "Gold", Direction: contracts.DirectionUp, Confidence: 50, HorizonMinutes: 60, HorizonKey: "b",
			CreatedAt: t0, DueAt: t0.Add(time.Hour), PriceAtCreation: 0},
	}
	for i := range bad {
		_, err := fx.store.Forecasts().Insert(ctx, &bad[i])
		require.NoError(t, err)
	}

	fx.clock.Set(t0.Add(3 * time.Hour))
	res, err := fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Evaluated)

	for _, f := range bad {
		got, err := fx.store.Forecasts().Get(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, contracts.StatusActive, got.Status)
	}
}

type failingCalibrator struct{ invalidated int }

func (c *failingCalibrator) RecordOutcome(context.Context, contracts.Tx, *contracts.Forecast, bool) (*contracts.CalibrationBucket, error) {
	return nil, errors.New("bucket locked")
}

func (c *failingCalibrator) Invalidate(context.Context, contracts.BucketKey) { c.invalidated++ }

func TestEvaluateDue_RollsBackOnCalibrationFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	cal := &failingCalibrator{}
	fx.manager.calibrator = cal

	fx.price(t, "Gold", 2000, t0)
	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold")
	f := fx.create(t, sig, "Gold", contracts.DirectionUp)
	fx.price(t, "Gold", 2010, t0.Add(61*time.Minute))
	fx.clock.Set(t0.Add(2 * time.Hour))

	res, err := fx.manager.EvaluateDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	got, err := fx.store.Forecasts().Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusActive, got.Status)
	assert.Nil(t, got.Outcome)
	assert.Empty(t, fx.pendingEvents(t))
	assert.Zero(t, cal.invalidated)
}

func TestLifecycle_Totality(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.price(t, "Gold", 2000, t0)
	fx.price(t, "Oil", 80, t0)

	sig := fx.signal(t, "a", "inflation", contracts.SentimentPositive, "Gold", "Oil")
	var ids []int64
	for i, minutes := range []int{15, 60, 240, 1440} {
		h := contracts.Horizon{Key: fmt.Sprintf("h%d", i), Minutes: minutes}
		for _, asset := range []string{"Gold", "Oil"} {
			f, _, err := fx.manager.Create(ctx, sig, asset, h, Prediction{Direction: contracts.DirectionUp, Confidence: 60})
			require.NoError(t, err)
			ids = append(ids, f.ID)
		}
	}

	// Gold 만 가격이 계속 들어옴
	for m := 1; m <= 48; m++ {
		fx.price(t, "Gold", 2000+float64(m), t0.Add(time.Duration(m)*30*time.Minute))
	}

	for _, step := range []time.Duration{time.Hour, 6 * time.Hour, 26 * time.Hour, 60 * time.Hour} {
		fx.clock.Set(t0.Add(step))
		_, err := fx.manager.EvaluateDue(ctx)
		require.NoError(t, err)
	}

	counts, err := fx.store.Forecasts().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[contracts.StatusEvaluated])
	assert.Equal(t, 4, counts[contracts.StatusExpired])
	assert.Zero(t, counts[contracts.StatusActive])

	for _, id := range ids {
		f, err := fx.store.Forecasts().Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, f.Status.Terminal(), "forecast %d", id)
		assert.NoError(t, f.CheckLifecycle())
	}
}

func TestEvaluateDue_PendingRowsDoNotBlockLaterForecasts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.manager.cfg.BatchSize = 5

	// Oil 가격 피드 중단: 만기 이후 스냅샷 없음 → 배치 여러 개를 채우는 pending 행
	fx.price(t, "Oil", 78, t0.Add(-time.Minute))
	for i := 0; i < 12; i++ {
		sig := fx.signal(t, fmt.Sprintf("oil-%d", i), "energy", contracts.SentimentNegative, "Oil")
		fx.create(t, sig, "Oil", contracts.DirectionDown)
	}

	fx.clock.Advance(time.Minute)
	fx.price(t, "Gold", 2000, fx.clock.now)
	gold := fx.create(t, fx.signal(t, "gold", "inflation", contracts.SentimentPositive, "Gold"), "Gold", contracts.DirectionUp)
	fx.price(t, "Gold", 2010, gold.DueAt.Add(time.Minute))

	for _, at := range []time.Duration{2 * time.Hour, 6 * time.Hour} {
		fx.clock.Set(t0.Add(at))
		res, err := fx.manager.EvaluateDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, 12, res.Pending, "at t0+%s", at)
		if at == 2*time.Hour {
			assert.Equal(t, 13, res.Scanned)
			assert.Equal(t, 1, res.Evaluated)
		} else {
			assert.Equal(t, 12, res.Scanned)
		}
	}

	stored, err := fx.store.Forecasts().Get(ctx, gold.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusEvaluated, stored.Status)
	require.NotNil(t, stored.Outcome)
	assert.True(t, stored.Outcome.DirectionCorrect)
}

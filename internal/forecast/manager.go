package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/metrics"
)

// ErrNoPrice is returned by Create when the asset has no price snapshot yet
var ErrNoPrice = errors.New("no price snapshot for asset")

// Calibrator 평가 결과를 캘리브레이션 버킷에 반영
type Calibrator interface {
	RecordOutcome(ctx context.Context, tx contracts.Tx, f *contracts.Forecast, hit bool) (*contracts.CalibrationBucket, error)
	Invalidate(ctx context.Context, key contracts.BucketKey)
}

// Manager 예측 생명주기 관리자
// ⭐ SSOT: forecasts 상태 전이(active → evaluated/expired)는 여기서만
type Manager struct {
	store      contracts.Store
	calibrator Calibrator
	cfg        EvaluationConfig
	minConf    float64
	maxConf    float64
	metrics    *metrics.Recorder
	log        zerolog.Logger
	now        func() time.Time
}

// NewManager 새 관리자 생성 (metrics 는 nil 허용)
func NewManager(store contracts.Store, calibrator Calibrator, cfg EvaluationConfig, rec *metrics.Recorder, log zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		calibrator: calibrator,
		cfg:        cfg,
		minConf:    contracts.DefaultMinConfidence,
		maxConf:    contracts.DefaultMaxConfidence,
		metrics:    rec,
		log:        log.With().Str("component", "forecast.manager").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithConfidenceBounds overrides the platform confidence range
func (m *Manager) WithConfidenceBounds(lo, hi float64) *Manager {
	if lo > 0 && hi > lo {
		m.minConf, m.maxConf = lo, hi
	}
	return m
}

// Config returns the evaluation thresholds in use
func (m *Manager) Config() EvaluationConfig {
	return m.cfg
}

// Create opens an active forecast; a repeated (signal, asset, horizon) returns the existing one with created=false
func (m *Manager) Create(ctx context.Context, sig *contracts.Signal, asset string, h contracts.Horizon, pred Prediction) (*contracts.Forecast, bool, error) {
	if h.Minutes < 1 {
		return nil, false, fmt.Errorf("create forecast: horizon %q must be at least 1 minute", h.Key)
	}

	snap, err := m.store.Prices().Latest(ctx, asset)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest price %s: %w", asset, err)
	}
	if snap.Price <= 0 {
		return nil, false, fmt.Errorf("%w: %s has non-positive price %v", ErrNoPrice, asset, snap.Price)
	}

	// 저장소 정밀도(ms)에 맞춰 due_at = created_at + horizon 이 왕복 후에도 성립
	createdAt := m.now().Truncate(time.Millisecond)
	predicted := ProjectPrice(snap.Price, pred.ExpectedMovePct)

	f := &contracts.Forecast{
		SignalID:        &sig.ID,
		Asset:           asset,
		Direction:       pred.Direction,
		Confidence:      math.Max(m.minConf, math.Min(m.maxConf, pred.Confidence)),
		HorizonMinutes:  h.Minutes,
		HorizonKey:      h.Key,
		Category:        sig.Category,
		Sentiment:       sig.Sentiment,
		CreatedAt:       createdAt,
		DueAt:           createdAt.Add(h.Duration()),
		PriceAtCreation: snap.Price,
		PredictedPrice:  &predicted,
		Status:          contracts.StatusActive,
	}

	created, err := m.store.Forecasts().Insert(ctx, f)
	if err != nil {
		return nil, false, err
	}
	if created {
		m.metrics.ForecastCreated(asset)
		m.log.Debug().
			Int64("forecast_id", f.ID).
			Int64("signal_id", sig.ID).
			Str("asset", asset).
			Str("horizon", h.Key).
			Str("direction", string(f.Direction)).
			Float64("confidence", f.Confidence).
			Msg("forecast created")
	}
	return f, created, nil
}

// EvaluationResult 평가 패스 결과
type EvaluationResult struct {
	Scanned   int `json:"scanned"`
	Evaluated int `json:"evaluated"`
	Hits      int `json:"hits"`
	Expired   int `json:"expired"`
	Pending   int `json:"pending"`   // 가격 대기 중
	Skipped   int `json:"skipped"`   // 잘못된 시간/가격
	Conflicts int `json:"conflicts"` // 다른 경로가 먼저 종료
	Failed    int `json:"failed"`
}

type evalStatus int

const (
	evalEvaluated evalStatus = iota
	evalExpired
	evalPending
	evalSkipped
	evalConflict
)

// EvaluateDue resolves every active forecast whose due time has passed
func (m *Manager) EvaluateDue(ctx context.Context) (EvaluationResult, error) {
	var res EvaluationResult
	now := m.now()

	batch := m.cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}

	// keyset 페이지: 대기/스킵 행이 앞에 남아도 뒤쪽 예측까지 한 패스에 모두 확인
	var cursor *contracts.DueCursor
	for {
		due, err := m.store.Forecasts().ListDue(ctx, now, cursor, batch)
		if err != nil {
			return res, fmt.Errorf("list due forecasts: %w", err)
		}

		for i := range due {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			m.evaluateCounted(ctx, &due[i], now, &res)
		}

		if len(due) < batch {
			break
		}
		cursor = contracts.CursorOf(due[len(due)-1])
	}

	if res.Scanned > 0 {
		m.log.Info().
			Int("scanned", res.Scanned).
			Int("evaluated", res.Evaluated).
			Int("hits", res.Hits).
			Int("expired", res.Expired).
			Int("pending", res.Pending).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("evaluation pass finished")
	}
	return res, nil
}

// evaluateCounted evaluates one forecast and tallies the result
func (m *Manager) evaluateCounted(ctx context.Context, f *contracts.Forecast, now time.Time, res *EvaluationResult) {
	res.Scanned++

	status, hit, err := m.evaluateOne(ctx, f, now)
	if err != nil {
		res.Failed++
		m.log.Error().Err(err).Int64("forecast_id", f.ID).Str("asset", f.Asset).Msg("evaluate forecast failed")
		return
	}

	switch status {
	case evalEvaluated:
		res.Evaluated++
		if hit {
			res.Hits++
		}
	case evalExpired:
		res.Expired++
	case evalPending:
		res.Pending++
	case evalSkipped:
		res.Skipped++
	case evalConflict:
		res.Conflicts++
	}
}

func (m *Manager) evaluateOne(ctx context.Context, f *contracts.Forecast, now time.Time) (evalStatus, bool, error) {
	if err := f.CheckTimes(); err != nil {
		m.log.Warn().Err(err).Msg("skipping malformed forecast")
		return evalSkipped, false, nil
	}
	if f.PriceAtCreation <= 0 {
		m.log.Warn().Int64("forecast_id", f.ID).Float64("price_at_creation", f.PriceAtCreation).Msg("skipping forecast without creation price")
		return evalSkipped, false, nil
	}

	snap, err := m.store.Prices().FirstAtOrAfter(ctx, f.Asset, f.DueAt)
	if errors.Is(err, contracts.ErrNotFound) {
		if !m.cfg.Expired(f.DueAt, now) {
			return evalPending, false, nil
		}
		return m.expire(ctx, f, now)
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve price: %w", err)
	}

	outcome := m.cfg.Outcome(f, snap, now)

	err = m.store.InTx(ctx, func(tx contracts.Tx) error {
		ok, err := tx.Forecasts().MarkEvaluated(ctx, f.ID, outcome)
		if err != nil {
			return err
		}
		if !ok {
			return contracts.ErrAlreadyResolved
		}

		f.Status = contracts.StatusEvaluated
		f.Outcome = &outcome

		if _, err := m.calibrator.RecordOutcome(ctx, tx, f, outcome.DirectionCorrect); err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
		return enqueue(ctx, tx, f, contracts.EventForecastEvaluated, now)
	})
	if errors.Is(err, contracts.ErrAlreadyResolved) {
		return evalConflict, false, nil
	}
	if err != nil {
		f.Status, f.Outcome = contracts.StatusActive, nil
		return 0, false, err
	}

	// 커밋 이후에만 캐시 무효화
	m.calibrator.Invalidate(ctx, f.BucketKey())

	result := "miss"
	if outcome.DirectionCorrect {
		result = "hit"
	}
	m.metrics.ForecastResolved(f.Asset, result)

	m.log.Debug().
		Int64("forecast_id", f.ID).
		Str("asset", f.Asset).
		Str("direction", string(f.Direction)).
		Float64("pct_move", outcome.PctMove).
		Bool("hit", outcome.DirectionCorrect).
		Str("quality", string(outcome.Quality)).
		Msg("forecast evaluated")

	return evalEvaluated, outcome.DirectionCorrect, nil
}

func (m *Manager) expire(ctx context.Context, f *contracts.Forecast, now time.Time) (evalStatus, bool, error) {
	err := m.store.InTx(ctx, func(tx contracts.Tx) error {
		ok, err := tx.Forecasts().MarkExpired(ctx, f.ID, now, contracts.ExpiryReasonNoPrice)
		if err != nil {
			return err
		}
		if !ok {
			return contracts.ErrAlreadyResolved
		}

		f.Status = contracts.StatusExpired
		f.ExpiredAt = &now
		f.ExpiryReason = contracts.ExpiryReasonNoPrice
		return enqueue(ctx, tx, f, contracts.EventForecastExpired, now)
	})
	if errors.Is(err, contracts.ErrAlreadyResolved) {
		return evalConflict, false, nil
	}
	if err != nil {
		f.Status, f.ExpiredAt, f.ExpiryReason = contracts.StatusActive, nil, ""
		return 0, false, err
	}

	m.metrics.ForecastResolved(f.Asset, "expired")
	m.log.Info().
		Int64("forecast_id", f.ID).
		Str("asset", f.Asset).
		Time("due_at", f.DueAt).
		Msg("forecast expired without price")
	return evalExpired, false, nil
}

// enqueue writes the outbox event in the transition's transaction
func enqueue(ctx context.Context, tx contracts.Tx, f *contracts.Forecast, typ contracts.OutboxEventType, at time.Time) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return tx.Events().Enqueue(ctx, &contracts.OutboxEvent{
		ForecastID: f.ID,
		Type:       typ,
		Payload:    payload,
		CreatedAt:  at,
	})
}

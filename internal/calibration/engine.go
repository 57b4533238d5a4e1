package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/config"
	"github.com/wonny/signalcast/pkg/redis"
)

// Config 캘리브레이션 설정
type Config struct {
	Alpha         float64       // EWMA smoothing factor
	MinSamples    int           // 이보다 적으면 가중치 1.0
	LookupTimeout time.Duration // GetWeight upper bound
	CacheTTL      time.Duration
}

// DefaultConfig 기본 설정
func DefaultConfig() Config {
	return Config{
		Alpha:         0.05,
		MinSamples:    1,
		LookupTimeout: 2 * time.Second,
		CacheTTL:      redis.TTLShort,
	}
}

// ConfigFrom maps environment config onto the engine config
func ConfigFrom(cfg config.CalibrationConfig) Config {
	c := DefaultConfig()
	if cfg.Alpha > 0 {
		c.Alpha = cfg.Alpha
	}
	if cfg.MinSamples > 0 {
		c.MinSamples = cfg.MinSamples
	}
	if cfg.WeightLookupTimeout > 0 {
		c.LookupTimeout = cfg.WeightLookupTimeout
	}
	return c
}

// Engine 캘리브레이션 엔진
// ⭐ SSOT: calibration_buckets 쓰기는 RecordOutcome 만
type Engine struct {
	store contracts.Store
	cache kvCache
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// kvCache is the subset of redis.Cache the engine uses
type kvCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NewEngine creates an engine; rc may be nil
func NewEngine(store contracts.Store, rc *redis.Cache, cfg Config, log zerolog.Logger) *Engine {
	e := &Engine{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "calibration.engine").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	if rc != nil {
		e.cache = rc
	}
	return e
}

// ApplyOutcome folds one hit/miss into the bucket statistics
func ApplyOutcome(b contracts.CalibrationBucket, hit bool, alpha float64, at time.Time) contracts.CalibrationBucket {
	score := 0.0
	if hit {
		score = 100.0
		b.NHit++
	}
	b.NTotal++
	b.RollingAccuracy = alpha*score + (1-alpha)*b.RollingAccuracy
	b.WeightMultiplier = WeightFor(b.RollingAccuracy)
	b.UpdatedAt = at
	return b
}

// WeightFor maps rolling accuracy (0~100) to a confidence multiplier in [0.6, 1.4]
func WeightFor(rollingAccuracy float64) float64 {
	w := 0.75 + 0.5*rollingAccuracy/100.0
	return math.Max(contracts.MinWeightMultiplier, math.Min(contracts.MaxWeightMultiplier, w))
}

// RecordOutcome updates the forecast's bucket inside the caller's transaction.
// The caller must have won the active→evaluated transition in the same tx.
func (e *Engine) RecordOutcome(ctx context.Context, tx contracts.Tx, f *contracts.Forecast, hit bool) (*contracts.CalibrationBucket, error) {
	key := f.BucketKey()

	b, err := tx.Calibration().Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire bucket %s: %w", keyString(key), err)
	}

	updated := ApplyOutcome(*b, hit, e.cfg.Alpha, e.now())
	if err := tx.Calibration().Save(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Invalidate drops the cached weight after the bucket transaction committed
func (e *Engine) Invalidate(ctx context.Context, key contracts.BucketKey) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, cacheKey(key)); err != nil {
		e.log.Debug().Err(err).Str("bucket", keyString(key)).Msg("weight cache invalidate failed")
	}
}

// GetWeight returns the bucket multiplier, or 1.0 on missing/insufficient history or any failure
func (e *Engine) GetWeight(ctx context.Context, key contracts.BucketKey) float64 {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout)
	defer cancel()

	if e.cache != nil {
		var cached float64
		if found, err := e.cache.Get(ctx, cacheKey(key), &cached); err == nil && found {
			return cached
		}
	}

	w, ok := e.lookup(ctx, key)

	// 저장소 조회 실패로 얻은 1.0 은 캐시하지 않음
	if ok && e.cache != nil {
		if err := e.cache.Set(ctx, cacheKey(key), w, e.cfg.CacheTTL); err != nil {
			e.log.Debug().Err(err).Msg("weight cache set failed")
		}
	}
	return w
}

// lookup reads the bucket weight; ok is false when the store could not be read
func (e *Engine) lookup(ctx context.Context, key contracts.BucketKey) (w float64, ok bool) {
	b, err := e.store.Calibration().Get(ctx, key)
	if errors.Is(err, contracts.ErrNotFound) {
		return contracts.NeutralWeight, true
	}
	if err != nil {
		e.log.Warn().Err(err).Str("bucket", keyString(key)).Msg("weight lookup failed, using neutral weight")
		return contracts.NeutralWeight, false
	}
	if b.NTotal < e.cfg.MinSamples {
		return contracts.NeutralWeight, true
	}
	return clampWeight(b.WeightMultiplier), true
}

// Buckets lists every calibration bucket
func (e *Engine) Buckets(ctx context.Context) ([]contracts.CalibrationBucket, error) {
	return e.store.Calibration().List(ctx)
}

func clampWeight(w float64) float64 {
	if math.IsNaN(w) {
		return contracts.NeutralWeight
	}
	return math.Max(contracts.MinWeightMultiplier, math.Min(contracts.MaxWeightMultiplier, w))
}

func cacheKey(k contracts.BucketKey) string {
	return redis.WeightKey(k.Asset, k.HorizonMinutes, k.Category, string(k.Sentiment))
}

func keyString(k contracts.BucketKey) string {
	return fmt.Sprintf("%s/%d/%s/%s", k.Asset, k.HorizonMinutes, k.Category, k.Sentiment)
}

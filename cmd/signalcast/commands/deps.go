package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/calibration"
	"github.com/wonny/signalcast/internal/classifier"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/external/feeds"
	"github.com/wonny/signalcast/internal/external/prices"
	"github.com/wonny/signalcast/internal/external/publisher"
	"github.com/wonny/signalcast/internal/forecast"
	"github.com/wonny/signalcast/internal/forecastconfig"
	"github.com/wonny/signalcast/internal/scheduler"
	"github.com/wonny/signalcast/internal/scheduler/jobs"
	"github.com/wonny/signalcast/internal/store/postgres"
	"github.com/wonny/signalcast/internal/store/sqlite"
	"github.com/wonny/signalcast/pkg/config"
	"github.com/wonny/signalcast/pkg/database"
	"github.com/wonny/signalcast/pkg/httputil"
	"github.com/wonny/signalcast/pkg/logger"
	"github.com/wonny/signalcast/pkg/metrics"
	"github.com/wonny/signalcast/pkg/redis"
)

const keyPrefix = "signalcast"

// loadConfig reads config and applies the global flag overrides
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	switch env {
	case "":
	case "development", "staging", "production":
		cfg.Env = env
	default:
		return nil, nil, fmt.Errorf("--env must be one of: development, staging, production")
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, logger.New(cfg), nil
}

// app 커맨드 공용 의존성 묶음
// ⭐ SSOT: store/redis/엔진 조립은 여기서만
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   contracts.Store
	redis   *redis.Client
	model   *forecastconfig.Model
	metrics *metrics.Recorder
	engine  *calibration.Engine
	manager *forecast.Manager
}

// openApp opens the store and builds the forecasting core.
// Startup resource failures (store, model) are fatal; Redis degrades to disabled.
func openApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	model, err := forecastconfig.Load(cfg.ForecastConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = redis.Disabled()
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	engine := calibration.NewEngine(store, redis.NewCache(rc, keyPrefix), calibration.ConfigFrom(cfg.Calibration), log.Zerolog())
	manager := forecast.NewManager(store, engine, forecast.EvaluationConfigFrom(cfg.Evaluation), rec, log.Zerolog()).
		WithConfidenceBounds(cfg.Calibration.MinConfidence, cfg.Calibration.MaxConfidence)

	if hash, err := forecastconfig.Hash(model); err == nil {
		log.WithFields(map[string]interface{}{
			"driver":     cfg.Database.Driver,
			"model_hash": hash[:12],
			"assets":     len(model.Assets),
			"redis":      rc.Enabled(),
		}).Debug("Dependencies ready")
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		redis:   rc,
		model:   model,
		metrics: rec,
		engine:  engine,
		manager: manager,
	}, nil
}

// openStore opens the configured backend
func openStore(cfg *config.Config, log *logger.Logger) (contracts.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := database.New(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.New(db.Pool, log.Zerolog()), nil
	default:
		db, err := database.NewSQLite(cfg)
		if err != nil {
			return nil, err
		}
		return sqlite.New(db.DB, log.Zerolog()), nil
	}
}

// Close releases the store and Redis
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close store")
	}
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
}

// migrate applies pending migrations and logs what ran
func (a *app) migrate(ctx context.Context) ([]contracts.AppliedMigration, error) {
	applied, err := a.store.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, m := range applied {
		a.log.WithFields(map[string]interface{}{
			"version": m.Version,
			"name":    m.Name,
		}).Info("Migration applied")
	}
	return applied, nil
}

// publisher picks Kafka when brokers are configured, else the log fallback
func (a *app) publisher() publisher.Publisher {
	if len(a.cfg.Kafka.Brokers) > 0 {
		p, err := publisher.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.log)
		if err == nil {
			return p
		}
		a.log.WithError(err).Warn("Kafka publisher unavailable, logging events instead")
	}
	return publisher.NewLogPublisher(a.log)
}

// stages builds the cycle in its fixed order
func (a *app) stages(pub publisher.Publisher) []scheduler.StageSpec {
	t := a.cfg.Worker.StageTimeouts

	feedHTTP := httputil.NewWithTimeout(a.cfg, a.log, t.Ingest).
		WithRetry(1, 500*time.Millisecond).
		WithBreaker("feeds", time.Minute)

	priceHTTP := httputil.NewWithTimeout(a.cfg, a.log, 10*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithLimiter(a.cfg.Prices.RequestsPerSec, 1).
		WithRateLimiter(redis.NewRateLimiter(a.redis, keyPrefix), redis.RateLimitConfig{
			Key:    prices.Source,
			Limit:  rateLimit(a.cfg.Prices.RequestsPerSec),
			Window: time.Second,
		}).
		WithBreaker(prices.Source, time.Minute)

	zlog := a.log.Zerolog()
	predictor := forecast.NewPredictor(a.model, a.engine, zlog)
	generator := forecast.NewGenerator(a.store, a.manager, predictor, a.model, zlog)

	return []scheduler.StageSpec{
		{
			Stage: jobs.NewIngestStage(a.store.Signals(), feeds.NewClient(feedHTTP, a.log),
				classifier.New(a.model, zlog), a.cfg.Feeds.URLs, a.log),
			Timeout: t.Ingest,
		},
		{
			Stage:   jobs.NewPriceStage(a.store.Prices(), prices.NewYahooClient(priceHTTP, a.cfg.Prices.BaseURL, a.log), a.model.Assets, a.log),
			Timeout: t.Prices,
		},
		{Stage: jobs.NewGenerateStage(generator, a.log), Timeout: t.Generate},
		{Stage: jobs.NewEvaluateStage(a.manager, a.log), Timeout: t.Evaluate},
		{Stage: jobs.NewDownstreamStage(a.store.Events(), pub, a.metrics, a.log), Timeout: t.Downstream},
	}
}

// summaryJob builds the evaluation summary job for the configured window
func (a *app) summaryJob(windowDays int) *jobs.SummaryJob {
	return jobs.NewSummaryJob(a.engine, a.cfg.Worker.SummarySchedule, windowDays,
		a.model.AssetNames(), a.model.SummaryHorizons(), a.log)
}

// rateLimit converts a per-second rate into a whole-request window budget
func rateLimit(perSec float64) int {
	if perSec < 1 {
		return 1
	}
	return int(perSec)
}

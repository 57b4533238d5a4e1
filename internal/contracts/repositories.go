package contracts

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrAlreadyResolved is returned when a forecast already left the active state
	ErrAlreadyResolved = errors.New("forecast already resolved")
)

// =============================================================================
// Repositories
// ⭐ SSOT: 저장소 인터페이스는 여기서만 정의 (sqlite/postgres 구현 공유)
// =============================================================================

// SignalRepository 신호 저장소 (쓰기는 ingest 단계만)
type SignalRepository interface {
	// Insert stores a new signal; false when (source, external_id) already exists
	Insert(ctx context.Context, s *Signal) (bool, error)
	Get(ctx context.Context, id int64) (*Signal, error)
	ListUnconsumed(ctx context.Context, limit int) ([]Signal, error)
	MarkConsumed(ctx context.Context, id int64, at time.Time) error
}

// ForecastRepository 예측 저장소
type ForecastRepository interface {
	// Insert creates an active forecast; on a (signal_id, asset, horizon_key)
	// conflict it loads the existing row into f and returns false
	Insert(ctx context.Context, f *Forecast) (bool, error)
	Get(ctx context.Context, id int64) (*Forecast, error)
	List(ctx context.Context, filter ForecastFilter) ([]Forecast, error)
	// ListDue returns active forecasts due by now in (due_at, id) order,
	// starting strictly after the cursor (nil = from the start)
	ListDue(ctx context.Context, now time.Time, after *DueCursor, limit int) ([]Forecast, error)
	ListEvaluatedSince(ctx context.Context, since time.Time) ([]Forecast, error)
	CountByStatus(ctx context.Context) (map[ForecastStatus]int, error)
	CountForSignal(ctx context.Context, signalID int64) (int, error)
	// MarkEvaluated moves an active forecast to evaluated; false if it was not active
	MarkEvaluated(ctx context.Context, id int64, outcome Outcome) (bool, error)
	// MarkExpired moves an active forecast to expired; false if it was not active
	MarkExpired(ctx context.Context, id int64, at time.Time, reason string) (bool, error)
}

// PriceRepository 가격 스냅샷 저장소
type PriceRepository interface {
	Insert(ctx context.Context, p PriceSnapshot) error
	Latest(ctx context.Context, asset string) (*PriceSnapshot, error)
	FirstAtOrAfter(ctx context.Context, asset string, at time.Time) (*PriceSnapshot, error)
}

// CalibrationRepository 캘리브레이션 버킷 저장소
type CalibrationRepository interface {
	Get(ctx context.Context, key BucketKey) (*CalibrationBucket, error)
	// Acquire returns the bucket for update, creating a neutral one if missing
	Acquire(ctx context.Context, key BucketKey) (*CalibrationBucket, error)
	Save(ctx context.Context, b CalibrationBucket) error
	List(ctx context.Context) ([]CalibrationBucket, error)
}

// SummaryRepository 요약 스냅샷 저장소 (append-only)
type SummaryRepository interface {
	Append(ctx context.Context, rows []SummarySnapshot) error
	Latest(ctx context.Context) ([]SummarySnapshot, error)
}

// LivenessRepository 워커 생존 기록 저장소
type LivenessRepository interface {
	Heartbeat(ctx context.Context, at time.Time, pid int) error
	RecordCycle(ctx context.Context, report CycleReport) error
	RecordError(ctx context.Context, msg string, at time.Time) error
	Get(ctx context.Context) (*Liveness, error)
}

// EventRepository 아웃박스 이벤트 저장소
type EventRepository interface {
	Enqueue(ctx context.Context, e *OutboxEvent) error
	ListPending(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

// Tx 트랜잭션 범위의 저장소 묶음
type Tx interface {
	Forecasts() ForecastRepository
	Calibration() CalibrationRepository
	Events() EventRepository
}

// AppliedMigration 마이그레이션 원장 행
type AppliedMigration struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	AppliedAt time.Time `json:"applied_at"`
}

// Store 전체 저장소
type Store interface {
	Signals() SignalRepository
	Forecasts() ForecastRepository
	Prices() PriceRepository
	Calibration() CalibrationRepository
	Summaries() SummaryRepository
	Liveness() LivenessRepository
	Events() EventRepository

	// InTx runs fn in one commit-atomic transaction
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Migrate applies pending migrations and returns the newly applied ones
	Migrate(ctx context.Context) ([]AppliedMigration, error)
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)

	Ping(ctx context.Context) error
	Close() error
}

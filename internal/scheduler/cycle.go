package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/logger"
	"github.com/wonny/signalcast/pkg/metrics"
)

// Stage failure kinds (metrics label)
const (
	FailureError   = "error"
	FailurePanic   = "panic"
	FailureTimeout = "timeout"
)

// StageSpec 단계와 실행 예산
type StageSpec struct {
	Stage   Stage
	Timeout time.Duration
}

// CycleConfig 사이클 설정
type CycleConfig struct {
	Interval       time.Duration // 사이클 시작 간격
	DefaultTimeout time.Duration // StageSpec.Timeout 이 0 일 때
	PID            int
}

// StageResult 단계 실행 결과
type StageResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Failure  string        `json:"failure,omitempty"` // error | panic | timeout
}

// CycleResult 사이클 실행 결과
type CycleResult struct {
	CycleID     string        `json:"cycle_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Stages      []StageResult `json:"stages"`
	Interrupted bool          `json:"interrupted"` // 종료 신호로 남은 단계 생략
}

// Failed returns the number of failed stages
func (c CycleResult) Failed() int {
	n := 0
	for _, s := range c.Stages {
		if s.Err != nil {
			n++
		}
	}
	return n
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// CycleRunner 고정 순서 단계 실행기
// ⭐ SSOT: ingest → prices → generate → evaluate → downstream 순서는 등록 순서로만 결정
type CycleRunner struct {
	stages   []StageSpec
	liveness contracts.LivenessRepository
	cfg      CycleConfig
	metrics  *metrics.Recorder
	log      *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
	newID func() string
}

// NewCycleRunner creates a runner; stages run in the given order
func NewCycleRunner(liveness contracts.LivenessRepository, stages []StageSpec, cfg CycleConfig, rec *metrics.Recorder, log *logger.Logger) *CycleRunner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}
	return &CycleRunner{
		stages:   stages,
		liveness: liveness,
		cfg:      cfg,
		metrics:  rec,
		log:      log.WithModule("scheduler.cycle"),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
		newID:    uuid.NewString,
	}
}

// StageNames returns the configured stage order
func (r *CycleRunner) StageNames() []string {
	names := make([]string, 0, len(r.stages))
	for _, s := range r.stages {
		names = append(names, s.Stage.Name())
	}
	return names
}

// RunForever runs cycles until ctx is cancelled; shutdown is not an error
func (r *CycleRunner) RunForever(ctx context.Context) error {
	for ctx.Err() == nil {
		res := r.RunCycle(ctx)
		if !r.sleep(ctx, r.cfg.Interval-res.Duration) {
			break
		}
	}
	r.log.Info("cycle loop stopped")
	return nil
}

// RunCycles runs exactly n cycles (fewer on shutdown), sleeping between them
func (r *CycleRunner) RunCycles(ctx context.Context, n int) []CycleResult {
	results := make([]CycleResult, 0, n)
	for i := 0; i < n && ctx.Err() == nil; i++ {
		res := r.RunCycle(ctx)
		results = append(results, res)
		if i < n-1 && !r.sleep(ctx, r.cfg.Interval-res.Duration) {
			break
		}
	}
	return results
}

// RunCycle runs every stage once in order; failures are isolated per stage
func (r *CycleRunner) RunCycle(ctx context.Context) CycleResult {
	res := CycleResult{CycleID: r.newID(), StartedAt: r.now()}
	log := r.log.WithCycle(res.CycleID)
	start := time.Now()

	log.Debug("cycle started")

	for _, spec := range r.stages {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		res.Stages = append(res.Stages, r.runStage(ctx, res.CycleID, spec))
	}

	res.Duration = time.Since(start)
	r.metrics.ObserveCycle(res.Duration.Seconds())

	if res.Interrupted {
		log.Warn("cycle interrupted by shutdown")
		return res
	}

	report := contracts.CycleReport{
		CycleID:    res.CycleID,
		FinishedAt: r.now(),
		Duration:   res.Duration,
		PID:        r.cfg.PID,
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.liveness.RecordCycle(recordCtx, report); err != nil {
		log.WithError(err).Error("record cycle liveness failed")
	}

	log.WithFields(map[string]interface{}{
		"duration_ms": res.Duration.Milliseconds(),
		"failed":      res.Failed(),
	}).Info("cycle finished")
	return res
}

// RunStage runs one named stage outside the cycle (운영/테스트 훅)
func (r *CycleRunner) RunStage(ctx context.Context, name string) (StageResult, error) {
	for _, spec := range r.stages {
		if spec.Stage.Name() == name {
			return r.runStage(ctx, "manual-"+r.newID(), spec), nil
		}
	}
	return StageResult{}, fmt.Errorf("stage %s not found", name)
}

// runStage executes one stage in its own goroutine under its timeout.
// The stage context ignores shutdown so an in-flight stage gets its full budget.
func (r *CycleRunner) runStage(ctx context.Context, cycleID string, spec StageSpec) StageResult {
	name := spec.Stage.Name()
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	stageCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan error, 1)
	start := time.Now()

	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- &panicError{value: v, stack: debug.Stack()}
			}
		}()
		done <- spec.Stage.Run(stageCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-stageCtx.Done():
		err = fmt.Errorf("stage %s exceeded %s: %w", name, timeout, context.DeadlineExceeded)
	}

	result := StageResult{Name: name, Duration: time.Since(start), Err: err}
	r.metrics.ObserveStage(name, result.Duration.Seconds())

	if err != nil {
		result.Failure = classify(err)
		r.fail(ctx, cycleID, result)
	}
	return result
}

func (r *CycleRunner) fail(ctx context.Context, cycleID string, res StageResult) {
	r.metrics.StageFailed(res.Name, res.Failure)

	log := r.log.WithCycle(cycleID).WithFields(map[string]interface{}{
		"stage":       res.Name,
		"failure":     res.Failure,
		"duration_ms": res.Duration.Milliseconds(),
	}).WithError(res.Err)

	var pe *panicError
	if errors.As(res.Err, &pe) {
		log = log.WithField("stack", string(pe.stack))
	}
	log.Error("stage failed")

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	msg := fmt.Sprintf("cycle %s stage %s: %v", cycleID, res.Name, res.Err)
	if err := r.liveness.RecordError(recordCtx, msg, r.now()); err != nil {
		r.log.WithCycle(cycleID).WithError(err).Error("record last_error failed")
	}
}

func classify(err error) string {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return FailurePanic
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	default:
		return FailureError
	}
}

// sleepContext waits d or until ctx is done; false means shutdown
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

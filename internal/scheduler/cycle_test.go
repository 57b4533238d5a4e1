package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalcast/internal/store/storetest"
	"github.com/wonny/signalcast/pkg/logger"
	"github.com/wonny/signalcast/pkg/metrics"
)

type stageFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (s stageFunc) Name() string                  { return s.name }
func (s stageFunc) Run(ctx context.Context) error { return s.fn(ctx) }

func counting(name string, n *atomic.Int64) stageFunc {
	return stageFunc{name: name, fn: func(context.Context) error {
		n.Add(1)
		return nil
	}}
}

func failureKinds(t *testing.T, rec *metrics.Recorder) map[string]float64 {
	t.Helper()
	families, err := rec.Registry().Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "signalcast_stage_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "kind" {
					out[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}

func TestRunCycles_IsolatesStageFailures(t *testing.T) {
	store := storetest.NewSQLite(t)
	rec := metrics.New()

	var before, after atomic.Int64
	stages := []StageSpec{
		{Stage: counting("ingest", &before)},
		{Stage: stageFunc{name: "prices", fn: func(context.Context) error {
			return errors.New("feed unreachable")
		}}},
		{Stage: stageFunc{name: "generate", fn: func(context.Context) error {
			var m map[string]int
			m["boom"]++ // nil map write
			return nil
		}}},
		{Stage: stageFunc{name: "evaluate", fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}, Timeout: 5 * time.Millisecond},
		{Stage: counting("downstream", &after)},
	}

	r := NewCycleRunner(store.Liveness(), stages, CycleConfig{PID: 4242}, rec, logger.Nop())
	results := r.RunCycles(context.Background(), 100)

	require.Len(t, results, 100)
	assert.Equal(t, int64(100), before.Load())
	assert.Equal(t, int64(100), after.Load())

	for _, res := range results {
		require.Len(t, res.Stages, 5)
		assert.False(t, res.Interrupted)
		assert.Equal(t, 3, res.Failed())
		assert.Equal(t, FailureError, res.Stages[1].Failure)
		assert.Equal(t, FailurePanic, res.Stages[2].Failure)
		assert.Equal(t, FailureTimeout, res.Stages[3].Failure)
		assert.Empty(t, res.Stages[4].Failure)
	}

	assert.Equal(t, map[string]float64{
		FailureError:   100,
		FailurePanic:   100,
		FailureTimeout: 100,
	}, failureKinds(t, rec))

	live, err := store.Liveness().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, results[99].CycleID, live.LastCycleID)
	assert.Equal(t, 4242, live.PID)
	assert.NotNil(t, live.LastSuccessfulCycleAt)
	assert.NotNil(t, live.LastHeartbeatAt)
	assert.Contains(t, live.LastError, results[99].CycleID)
	assert.Contains(t, live.LastError, "evaluate")
}

func TestRunCycle_ShutdownBetweenStages(t *testing.T) {
	store := storetest.NewSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var second atomic.Int64
	stages := []StageSpec{
		{Stage: stageFunc{name: "ingest", fn: func(stageCtx context.Context) error {
			cancel()
			// 진행 중인 단계는 종료 신호와 무관하게 자기 예산을 유지
			if stageCtx.Err() != nil {
				return errors.New("stage context cancelled by shutdown")
			}
			return nil
		}}},
		{Stage: counting("prices", &second)},
	}

	r := NewCycleRunner(store.Liveness(), stages, CycleConfig{}, nil, logger.Nop())
	res := r.RunCycle(ctx)

	assert.True(t, res.Interrupted)
	require.Len(t, res.Stages, 1)
	assert.NoError(t, res.Stages[0].Err)
	assert.Zero(t, second.Load())

	live, err := store.Liveness().Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, live.LastCycleID)
	assert.Nil(t, live.LastSuccessfulCycleAt)
}

func TestRunCycles_SleepsRemainderOfInterval(t *testing.T) {
	store := storetest.NewSQLite(t)

	var ran atomic.Int64
	r := NewCycleRunner(store.Liveness(), []StageSpec{{Stage: counting("ingest", &ran)}},
		CycleConfig{Interval: time.Hour}, nil, logger.Nop())

	var sleeps []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) bool {
		sleeps = append(sleeps, d)
		return true
	}

	results := r.RunCycles(context.Background(), 3)
	assert.Len(t, results, 3)
	assert.Equal(t, int64(3), ran.Load())
	require.Len(t, sleeps, 2)
	for _, d := range sleeps {
		assert.Greater(t, d, 59*time.Minute)
		assert.LessOrEqual(t, d, time.Hour)
	}
}

func TestRunForever_StopsOnShutdown(t *testing.T) {
	store := storetest.NewSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int64
	stage := stageFunc{name: "ingest", fn: func(context.Context) error {
		if ran.Add(1) == 3 {
			cancel()
		}
		return nil
	}}

	ids := 0
	r := NewCycleRunner(store.Liveness(), []StageSpec{{Stage: stage}}, CycleConfig{}, nil, logger.Nop())
	r.newID = func() string {
		ids++
		return "cycle-" + string(rune('0'+ids))
	}

	require.NoError(t, r.RunForever(ctx))
	assert.Equal(t, int64(3), ran.Load())

	live, err := store.Liveness().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cycle-3", live.LastCycleID)
}

func TestRunStage(t *testing.T) {
	store := storetest.NewSQLite(t)

	var ran atomic.Int64
	r := NewCycleRunner(store.Liveness(), []StageSpec{
		{Stage: counting("ingest", &ran)},
		{Stage: counting("evaluate", &ran)},
	}, CycleConfig{}, nil, logger.Nop())

	assert.Equal(t, []string{"ingest", "evaluate"}, r.StageNames())

	res, err := r.RunStage(context.Background(), "evaluate")
	require.NoError(t, err)
	assert.Equal(t, "evaluate", res.Name)
	assert.NoError(t, res.Err)
	assert.Equal(t, int64(1), ran.Load())

	_, err = r.RunStage(context.Background(), "missing")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("x"), FailureError},
		{"panic", &panicError{value: "boom"}, FailurePanic},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"wrapped deadline", errors.Join(errors.New("stage"), context.DeadlineExceeded), FailureTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestSleepContext(t *testing.T) {
	assert.True(t, sleepContext(context.Background(), 0))
	assert.True(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepContext(ctx, time.Hour))
	assert.False(t, sleepContext(ctx, -time.Second))
}

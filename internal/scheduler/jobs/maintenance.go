package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wonny/signalcast/internal/calibration"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/pkg/logger"
)

// HeartbeatJob writes the worker heartbeat independently of cycle progress
type HeartbeatJob struct {
	liveness contracts.LivenessRepository
	schedule string
	pid      int
	logger   *logger.Logger
	now      func() time.Time
}

// NewHeartbeatJob creates the heartbeat job; schedule defaults to "@every 10s"
func NewHeartbeatJob(liveness contracts.LivenessRepository, schedule string, log *logger.Logger) *HeartbeatJob {
	if schedule == "" {
		schedule = "@every 10s"
	}
	return &HeartbeatJob{
		liveness: liveness,
		schedule: schedule,
		pid:      os.Getpid(),
		logger:   log.WithModule("jobs.heartbeat"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the job name
func (j *HeartbeatJob) Name() string {
	return "heartbeat"
}

// Schedule returns the cron schedule
func (j *HeartbeatJob) Schedule() string {
	return j.schedule
}

// Run writes one heartbeat
func (j *HeartbeatJob) Run(ctx context.Context) error {
	if err := j.liveness.Heartbeat(ctx, j.now(), j.pid); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

// SummaryJob appends an evaluation summary snapshot
type SummaryJob struct {
	engine     *calibration.Engine
	schedule   string
	windowDays int
	assets     []string
	horizons   []contracts.Horizon
	logger     *logger.Logger
}

// NewSummaryJob creates the evaluation summary job; schedule defaults to "@hourly"
func NewSummaryJob(engine *calibration.Engine, schedule string, windowDays int, assets []string, horizons []contracts.Horizon, log *logger.Logger) *SummaryJob {
	if schedule == "" {
		schedule = "@hourly"
	}
	if windowDays <= 0 {
		windowDays = 7
	}
	return &SummaryJob{
		engine:     engine,
		schedule:   schedule,
		windowDays: windowDays,
		assets:     assets,
		horizons:   horizons,
		logger:     log.WithModule("jobs.summary"),
	}
}

// Name returns the job name
func (j *SummaryJob) Name() string {
	return "evaluation_summary"
}

// Schedule returns the cron schedule
func (j *SummaryJob) Schedule() string {
	return j.schedule
}

// Run computes and stores one snapshot
func (j *SummaryJob) Run(ctx context.Context) error {
	rows, err := j.engine.ComputeSummary(ctx, j.windowDays, j.assets, j.horizons)
	if err != nil {
		return fmt.Errorf("compute summary: %w", err)
	}
	j.logger.WithField("rows", len(rows)).Debug("Summary job finished")
	return nil
}

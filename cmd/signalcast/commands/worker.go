package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signalcast/internal/scheduler"
	"github.com/wonny/signalcast/internal/scheduler/jobs"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "사이클 워커",
	Long: `신호 수집부터 예측 평가까지 고정 순서 사이클을 반복 실행하는 워커입니다.

이 워커는:
- 단일 인스턴스 잠금 (이미 실행 중이면 즉시 종료)
- 시작 시 마이그레이션 적용
- ingest → prices → generate → evaluate → downstream 사이클
- 사이클과 별개의 heartbeat / 평가 요약 스케줄
- Graceful shutdown 지원

Example:
  go run ./cmd/signalcast worker start
  go run ./cmd/signalcast worker start --once`,
}

// workerStartCmd represents the start subcommand
var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "워커 시작",
	Long: `워커 잠금을 획득하고 사이클을 시작합니다.

Features:
- 사이클 수 제한 (--cycles N, --once)
- 단계별 타임아웃 (STAGE_TIMEOUT_*)
- Graceful shutdown (Ctrl+C / SIGTERM): 진행 중인 단계는 타임아웃까지 기다림
- 선택적 /metrics 노출 (--metrics-port)

Example:
  go run ./cmd/signalcast worker start
  go run ./cmd/signalcast worker start --cycles 3
  go run ./cmd/signalcast worker start --metrics-port 9108`,
	RunE: runWorkerStart,
}

var (
	// Worker flags
	workerCycles      int
	workerOnce        bool
	workerMetricsPort string
)

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerStartCmd)

	// Flags
	workerStartCmd.Flags().IntVar(&workerCycles, "cycles", 0, "실행할 사이클 수 (0 = 무한)")
	workerStartCmd.Flags().BoolVar(&workerOnce, "once", false, "사이클 1회 실행 후 종료 (--cycles 1)")
	workerStartCmd.Flags().StringVar(&workerMetricsPort, "metrics-port", "", "/metrics 포트 (비우면 노출 안 함)")
}

func runWorkerStart(cmd *cobra.Command, args []string) error {
	cycles := workerCycles
	if workerOnce {
		cycles = 1
	}
	if cycles < 0 {
		return fmt.Errorf("--cycles must be >= 0")
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	// 잠금 실패 시 store 를 열기 전에 조용히 종료
	lock, err := scheduler.AcquireLock(cfg.Worker.LockPath)
	if errors.Is(err, scheduler.ErrLockHeld) {
		log.WithError(err).Info("Another worker is running, exiting")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire worker lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.WithError(err).Warn("Failed to release worker lock")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.migrate(ctx); err != nil {
		return err
	}

	pub := a.publisher()
	defer pub.Close()

	runner := scheduler.NewCycleRunner(a.store.Liveness(), a.stages(pub), scheduler.CycleConfig{
		Interval: cfg.Worker.CycleInterval,
	}, a.metrics, log)

	// heartbeat 를 먼저 한 번 써서 첫 사이클 전에도 alive
	heartbeat := jobs.NewHeartbeatJob(a.store.Liveness(), cfg.Worker.HeartbeatSchedule, log)
	if err := heartbeat.Run(ctx); err != nil {
		log.WithError(err).Warn("Initial heartbeat failed")
	}

	sched := scheduler.New(log).WithRetry(1, time.Second).WithJobTimeout(cfg.Worker.StageTimeouts.Evaluate)
	for _, job := range []scheduler.Job{heartbeat, a.summaryJob(cfg.Worker.SummaryWindowDays)} {
		if err := sched.AddJob(job); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	if workerMetricsPort != "" && a.metrics != nil {
		srv := &http.Server{
			Addr:              ":" + workerMetricsPort,
			Handler:           a.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	log.WithFields(map[string]interface{}{
		"lock":     lock.Path(),
		"interval": cfg.Worker.CycleInterval.String(),
		"stages":   runner.StageNames(),
		"cycles":   cycles,
	}).Info("Worker started")

	if cycles > 0 {
		out := cmd.OutOrStdout()
		for _, res := range runner.RunCycles(ctx, cycles) {
			printCycle(out, res)
		}
	} else if err := runner.RunForever(ctx); err != nil {
		return err
	}

	log.Info("Worker stopped")
	return nil
}

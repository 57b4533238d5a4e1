package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/signalcast/internal/api"
	"github.com/wonny/signalcast/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "HTTP API 서버 시작",
	Long: `조회용 HTTP API 서버를 시작합니다.

Endpoints:
  GET /health
  GET /api/liveness
  GET /api/forecasts?status=&asset=&limit=
  GET /api/forecasts/{id}
  GET /api/summary
  GET /api/calibration
  GET /ws/liveness
  GET /metrics

Example:
  go run ./cmd/signalcast api
  PORT=9000 go run ./cmd/signalcast api`,
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

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

	status := handlers.NewStatusHandler(a.store, cfg.Worker.StaleAfter, a.metrics, log)
	h := api.Handlers{
		Status:      status,
		Forecast:    handlers.NewForecastHandler(a.store.Forecasts(), log),
		Calibration: handlers.NewCalibrationHandler(a.store.Calibration(), a.engine, log),
		Stream:      handlers.NewStreamHandler(status, 0, log),
	}
	if a.metrics != nil {
		h.Metrics = a.metrics.Handler()
	}

	return api.New(cfg, log, api.NewRouter(h, log)).Run(ctx)
}

package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// evaluateCmd runs one immediate evaluation pass
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "만기 예측 즉시 평가",
	Long: `만기가 지난 active 예측을 한 번 평가합니다.

워커 사이클의 evaluate 단계와 같은 경로를 사용하며,
이미 종료된 예측은 다시 평가되지 않습니다.

Example:
  go run ./cmd/signalcast evaluate`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Worker.StageTimeouts.Evaluate)
	defer cancel()

	if _, err := a.migrate(ctx); err != nil {
		return err
	}

	start := time.Now()
	res, err := a.manager.EvaluateDue(ctx)
	if err != nil {
		return err
	}

	printEvaluation(cmd.OutOrStdout(), res, time.Since(start))
	if res.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

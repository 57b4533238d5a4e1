package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// summaryCmd computes and stores an evaluation summary snapshot
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "평가 요약 스냅샷 계산",
	Long: `최근 N일 평가 결과로 자산 × 기간별 정확도/오차/캘리브레이션 점수를 계산해
스냅샷으로 저장하고 출력합니다.

Example:
  go run ./cmd/signalcast summary
  go run ./cmd/signalcast summary --window-days 30`,
	RunE: runSummary,
}

var summaryWindowDays int

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().IntVar(&summaryWindowDays, "window-days", 0, "집계 기간 (일, 0 = WORKER_SUMMARY_WINDOW_DAYS)")
}

func runSummary(cmd *cobra.Command, args []string) error {
	if summaryWindowDays < 0 {
		return fmt.Errorf("--window-days must be >= 0")
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	window := summaryWindowDays
	if window == 0 {
		window = cfg.Worker.SummaryWindowDays
	}

	rows, err := a.engine.ComputeSummary(cmd.Context(), window, a.model.AssetNames(), a.model.SummaryHorizons())
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), rows)
	return nil
}

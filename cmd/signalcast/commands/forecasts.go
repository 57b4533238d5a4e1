package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/signalcast/internal/contracts"
)

// forecastsCmd lists recent forecasts
var forecastsCmd = &cobra.Command{
	Use:   "forecasts",
	Short: "예측 목록 조회",
	Long: `최근 예측을 상태/자산으로 필터링해 출력합니다.

Example:
  go run ./cmd/signalcast forecasts
  go run ./cmd/signalcast forecasts --status active --asset Gold --limit 20`,
	RunE: runForecasts,
}

var (
	forecastsStatus string
	forecastsAsset  string
	forecastsLimit  int
)

func init() {
	rootCmd.AddCommand(forecastsCmd)
	forecastsCmd.Flags().StringVar(&forecastsStatus, "status", "", "active | evaluated | expired")
	forecastsCmd.Flags().StringVar(&forecastsAsset, "asset", "", "자산 이름 (예: Gold)")
	forecastsCmd.Flags().IntVar(&forecastsLimit, "limit", 20, "최대 건수")
}

func runForecasts(cmd *cobra.Command, args []string) error {
	filter := contracts.ForecastFilter{
		Status: contracts.ForecastStatus(forecastsStatus),
		Asset:  forecastsAsset,
		Limit:  forecastsLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("--status must be one of: active, evaluated, expired")
	}
	if filter.Limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	a, err := openFromFlags()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	list, err := a.store.Forecasts().List(ctx, filter)
	if err != nil {
		return err
	}
	counts, err := a.store.Forecasts().CountByStatus(ctx)
	if err != nil {
		return err
	}

	printForecasts(cmd.OutOrStdout(), list, counts)
	return nil
}

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signalcast/internal/api/handlers"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/scheduler"
)

// statusCmd prints worker liveness
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "워커 생존 상태",
	Long: `마지막 heartbeat, 사이클, 에러를 출력합니다.

heartbeat 가 WORKER_STALE_AFTER 보다 오래되었거나 기록이 없으면 exit code 1.

Example:
  go run ./cmd/signalcast status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	l, err := a.store.Liveness().Get(cmd.Context())
	if err != nil {
		return fmt.Errorf("read liveness: %w", err)
	}

	holder, _ := scheduler.ReadLockInfo(cfg.Worker.LockPath)
	view := handlers.NewLivenessView(l, time.Now().UTC(), cfg.Worker.StaleAfter)
	printLiveness(cmd.OutOrStdout(), view, holder)

	if view.Status != contracts.WorkerAlive {
		return &exitError{code: 1}
	}
	return nil
}

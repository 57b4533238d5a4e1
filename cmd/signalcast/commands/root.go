package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// exitError carries a non-zero exit code without printing cobra usage
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "signalcast",
	Short: "signalcast - 뉴스 신호 기반 방향 예측 워커",
	Long: `signalcast Unified CLI

뉴스/가격 신호를 수집해 자산별 방향 예측을 만들고,
기간이 지나면 실제 가격으로 자동 평가합니다.
ingest → prices → generate → evaluate → downstream 순서의 사이클.

Usage:
  go run ./cmd/signalcast [command]

Examples:
  go run ./cmd/signalcast worker start
  go run ./cmd/signalcast worker start --once
  go run ./cmd/signalcast status
  go run ./cmd/signalcast summary --window-days 30
  go run ./cmd/signalcast api`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	return 1
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (LOG_LEVEL=debug)")
}

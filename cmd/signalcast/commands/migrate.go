package commands

import (
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 마이그레이션",
	Long: `store 스키마 마이그레이션을 관리합니다 (sqlite / postgres).

Example:
  go run ./cmd/signalcast migrate up
  go run ./cmd/signalcast migrate status`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "미적용 마이그레이션 적용",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openFromFlags()
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := a.migrate(cmd.Context())
		if err != nil {
			return err
		}
		printMigrations(cmd.OutOrStdout(), "Applied Now", applied)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "적용된 마이그레이션 조회",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openFromFlags()
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := a.store.AppliedMigrations(cmd.Context())
		if err != nil {
			return err
		}
		printMigrations(cmd.OutOrStdout(), "Migration Ledger", applied)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}

// openFromFlags loads config and opens the app in one step
func openFromFlags() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(cfg, log)
}

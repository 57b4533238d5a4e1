package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalcast/internal/contracts"
)

// Migration 버전이 매겨진 스키마 변경 (추가만 허용)
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Ledger is the backend half of the migration runner
type Ledger interface {
	// EnsureLedger creates schema_migrations if missing
	EnsureLedger(ctx context.Context) error
	Applied(ctx context.Context) ([]contracts.AppliedMigration, error)
	// Apply runs the statements and records the ledger row in one transaction
	Apply(ctx context.Context, m Migration, at time.Time) error
}

var destructivePattern = regexp.MustCompile(
	`(?i)\b(DROP\s+(TABLE|COLUMN|INDEX|CONSTRAINT)|RENAME\s+(TO|COLUMN)|TRUNCATE|DELETE\s+FROM|ALTER\s+COLUMN)\b`,
)

// Validate checks ordering and rejects destructive statements
func Validate(migrations []Migration) error {
	for i, m := range migrations {
		if m.Version != i+1 {
			return fmt.Errorf("migration %q: version %d out of order (want %d)", m.Name, m.Version, i+1)
		}
		if m.Name == "" {
			return fmt.Errorf("migration %d: name required", m.Version)
		}
		if len(m.Statements) == 0 {
			return fmt.Errorf("migration %d (%s): no statements", m.Version, m.Name)
		}
		for _, stmt := range m.Statements {
			if loc := destructivePattern.FindString(stmt); loc != "" {
				return fmt.Errorf("migration %d (%s): destructive statement %q", m.Version, m.Name, loc)
			}
		}
	}
	return nil
}

// Run applies every migration not yet recorded in the ledger, in version order
func Run(ctx context.Context, l Ledger, migrations []Migration, log zerolog.Logger) ([]contracts.AppliedMigration, error) {
	if err := Validate(migrations); err != nil {
		return nil, err
	}

	if err := l.EnsureLedger(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger: %w", err)
	}

	applied, err := l.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}

	var newly []contracts.AppliedMigration
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}

		at := time.Now().UTC()
		if err := l.Apply(ctx, m, at); err != nil {
			return newly, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}

		log.Info().
			Int("version", m.Version).
			Str("name", m.Name).
			Msg("migration applied")

		newly = append(newly, contracts.AppliedMigration{Version: m.Version, Name: m.Name, AppliedAt: at})
	}

	return newly, nil
}

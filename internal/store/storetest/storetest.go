// Package storetest opens migrated throwaway stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalcast/internal/store/sqlite"
	"github.com/wonny/signalcast/pkg/database"
)

// NewSQLite returns a migrated SQLite store in t.TempDir(), closed on cleanup
func NewSQLite(t testing.TB) *sqlite.Store {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"), 4)
	require.NoError(t, err)

	s := sqlite.New(db.DB, zerolog.Nop())
	_, err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wonny/signalcast/pkg/config"
)

// SQLite wraps an embedded database/sql handle
// ⭐ SSOT: SQLite 연결은 이 함수에서만 생성
type SQLite struct {
	DB   *sql.DB
	Path string
}

// NewSQLite opens the SQLite database configured in cfg
func NewSQLite(cfg *config.Config) (*SQLite, error) {
	return OpenSQLite(cfg.Database.SQLitePath, cfg.Database.MaxConns)
}

// OpenSQLite opens (creating if needed) the database file at path
// WAL + busy_timeout: 타임아웃으로 버려진 stage가 늦게 쓰더라도 다음 stage와 충돌하지 않음
func OpenSQLite(path string, maxConns int) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return &SQLite{DB: db, Path: path}, nil
}

// Close closes the database handle
func (s *SQLite) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

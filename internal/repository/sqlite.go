package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-sustainability/heron/internal/domain"
	_ "modernc.org/sqlite"
)

// newSQLite opens a SQLite-backed repository. Uses modernc.org/sqlite for a
// pure Go implementation (no CGO required).
func newSQLite(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./heron.db"
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL and a busy timeout keep concurrent badge grants from failing on
	// SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	applyPool(db, cfg)

	repo := &SQLRepository{db: db, driver: "sqlite"}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func applyPool(db *sql.DB, cfg domain.RepositoryConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

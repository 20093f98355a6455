package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	Path string // e.g. "~/.enxitry/enxitry.db", already expanded
}

// DSN builds the modernc.org/sqlite connection string with per-connection
// PRAGMAs: foreign keys on, WAL, synchronous NORMAL, and a busy timeout.
func DSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
}

// MemoryDSN names a private shared-cache in-memory database. Characters that
// are not safe in a URI path are replaced.
func MemoryDSN(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '?' || r == '#' || r == '&' || r == ' ' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	return OpenDSN(ctx, DSN(cfg.Path))
}

// OpenDSN opens dsn with a single connection, pings it, and applies the
// embedded migrations.
func OpenDSN(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// SQLite allows one writer; a single connection keeps it simple.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps the local sqlite profile database.
type DB struct {
	SQL *sql.DB
	log *zap.Logger
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string, log *zap.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open profile %s: %w", path, err)
	}
	// One writer; sqlite serialises anyway.
	sqlDB.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping profile: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		log.Warn("無法啟用 WAL 模式", zap.Error(err))
	}
	if _, err := RunMigrations(ctx, sqlDB, log); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Info("設定檔資料庫已開啟", zap.String("path", path))
	return &DB{SQL: sqlDB, log: log}, nil
}

func (db *DB) Close() error {
	return db.SQL.Close()
}

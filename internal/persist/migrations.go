package persist

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations brings the profile schema up to date and returns the
// versions it applied, oldest first. An up-to-date profile applies none.
func RunMigrations(ctx context.Context, db *sql.DB, log *zap.Logger) ([]int64, error) {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
		log.Info("設定檔結構已更新",
			zap.Int64("version", r.Source.Version),
			zap.Duration("took", r.Duration),
		)
	}
	return applied, nil
}

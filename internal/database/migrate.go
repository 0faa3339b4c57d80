package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"go-telemed/internal/dbx"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate brings the schema up to date with the embedded goose migrations
// for the connected dialect.
func (db *DB) Migrate(ctx context.Context) error {
	if db == nil || db.SQL == nil {
		return fmt.Errorf("database is not initialized")
	}

	dialect := goose.DialectSQLite3
	if db.Dialect == dbx.DialectPostgres {
		dialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrationsFS, "migrations/"+string(db.Dialect))
	if err != nil {
		return fmt.Errorf("locate migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.SQL, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, result := range results {
		slog.Info("migration applied", "version", result.Source.Version, "duration", result.Duration)
	}

	slog.Info("database schema ensured", "dialect", db.Dialect)
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"go-telemed/internal/dbx"
)

type Options struct {
	Driver   string
	URL      string
	MaxConns int32
	MinConns int32
}

// DB is the shared handle used by every repository. Postgres goes through a
// tuned pgx pool exposed as *sql.DB; SQLite uses a single connection so that
// in-memory databases are shared and writes are serialized.
type DB struct {
	SQL     *sql.DB
	Dialect dbx.Dialect
	pool    *pgxpool.Pool
}

func New(ctx context.Context, opts Options) (*DB, error) {
	switch opts.Driver {
	case string(dbx.DialectPostgres):
		return openPostgres(ctx, opts)
	case string(dbx.DialectSQLite):
		return openSQLite(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func openPostgres(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected", "driver", "postgres", "max_conns", cfg.MaxConns, "min_conns", cfg.MinConns)
	return &DB{SQL: stdlib.OpenDBFromPool(pool), Dialect: dbx.DialectPostgres, pool: pool}, nil
}

func openSQLite(ctx context.Context, url string) (*DB, error) {
	conn, err := sql.Open("sqlite", url)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("configure sqlite (%s): %w", pragma, err)
		}
	}

	slog.Info("database connected", "driver", "sqlite", "url", url)
	return &DB{SQL: conn, Dialect: dbx.DialectSQLite}, nil
}

func (db *DB) Close() {
	if db.SQL != nil {
		_ = db.SQL.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *DB) Health(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-telemed/internal/dbx"
	"go-telemed/internal/token"
)

var _ token.Denylist = (*RevokedTokenRepository)(nil)

// RevokedTokenRepository is the database-backed token deny-list. Rows are kept
// until the revoked token would have expired anyway.
type RevokedTokenRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
	now     token.Clock
}

func NewRevokedTokenRepository(db dbx.DBTX, dialect dbx.Dialect, now token.Clock) *RevokedTokenRepository {
	if now == nil {
		now = token.SystemClock
	}
	return &RevokedTokenRepository{db: db, dialect: dialect, now: now}
}

func (r *RevokedTokenRepository) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" || !until.After(r.now()) {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		dbx.Rebind(r.dialect, `INSERT INTO revoked_tokens (token_id, expires_at) VALUES (?, ?)
		 ON CONFLICT (token_id) DO UPDATE SET expires_at = excluded.expires_at`),
		tokenID, stamp(until))
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (r *RevokedTokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx,
		dbx.Rebind(r.dialect, `SELECT expires_at FROM revoked_tokens WHERE token_id = ?`), tokenID).
		Scan(&expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return r.now().Before(expiresAt), nil
}

func (r *RevokedTokenRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		dbx.Rebind(r.dialect, `DELETE FROM revoked_tokens WHERE expires_at <= ?`), stamp(r.now()))
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return res.RowsAffected()
}

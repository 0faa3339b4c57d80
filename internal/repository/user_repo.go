package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-telemed/internal/dbx"
	"go-telemed/internal/model"
)

const userColumns = `id, username, email, phone, role, password_hash,
	reset_token_hash, reset_token_expiry, created_at, updated_at`

type UserRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewUserRepository(db dbx.DBTX, dialect dbx.Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect}
}

// WithTx returns a copy bound to tx.
func (r *UserRepository) WithTx(tx dbx.DBTX) *UserRepository {
	return &UserRepository{db: tx, dialect: r.dialect}
}

func (r *UserRepository) q(query string) string {
	return dbx.Rebind(r.dialect, query)
}

func (r *UserRepository) findOne(ctx context.Context, op string, where string, arg any) (model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, r.q(`SELECT `+userColumns+` FROM users WHERE `+where), arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.Role, &u.PasswordHash,
			&u.ResetTokenHash, &u.ResetTokenExpiry, &u.CreatedAt, &u.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, "find user by id", `id = ?`, id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (model.User, error) {
	return r.findOne(ctx, "find user by username", `lower(username) = lower(?)`, strings.TrimSpace(username))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, "find user by email", `lower(email) = lower(?)`, strings.TrimSpace(email))
}

// FindByResetTokenHash looks up the user holding the given reset digest,
// regardless of whether it has expired.
func (r *UserRepository) FindByResetTokenHash(ctx context.Context, digest string) (model.User, error) {
	if digest == "" {
		return model.User{}, model.ErrUserNotFound
	}
	return r.findOne(ctx, "find user by reset token", `reset_token_hash = ?`, digest)
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username string, email string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		r.q(`SELECT COUNT(*) FROM users WHERE lower(username) = lower(?) OR lower(email) = lower(?)`),
		strings.TrimSpace(username), strings.TrimSpace(email)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return n > 0, nil
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := r.db.ExecContext(ctx,
		r.q(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Email, u.Phone, u.Role, u.PasswordHash,
		u.ResetTokenHash, stampPtr(u.ResetTokenExpiry), stamp(u.CreatedAt), stamp(u.UpdatedAt))
	if isUniqueViolation(err) {
		return model.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Register inserts u unless its username or email is already taken. The check
// and the insert share a transaction when the repository holds the pool.
func (r *UserRepository) Register(ctx context.Context, u model.User) error {
	return r.inTx(ctx, func(repo *UserRepository) error {
		exists, err := repo.ExistsByUsernameOrEmail(ctx, u.Username, u.Email)
		if err != nil {
			return err
		}
		if exists {
			return model.ErrUserAlreadyExists
		}
		return repo.Create(ctx, u)
	})
}

// inTx runs fn against a transaction-bound copy. A repository that is
// already bound to a transaction runs fn directly.
func (r *UserRepository) inTx(ctx context.Context, fn func(repo *UserRepository) error) error {
	db, ok := r.db.(*sql.DB)
	if !ok {
		return fn(r)
	}
	return dbx.WithTx(ctx, db, nil, func(_ context.Context, tx dbx.DBTX) error {
		return fn(r.WithTx(tx))
	})
}

// SetResetToken stores a reset digest and its expiry, replacing any previous
// pending reset for the user.
func (r *UserRepository) SetResetToken(ctx context.Context, userID string, digest string, expiry time.Time) error {
	res, err := r.db.ExecContext(ctx,
		r.q(`UPDATE users SET reset_token_hash = ?, reset_token_expiry = ?, updated_at = ? WHERE id = ?`),
		digest, stamp(expiry), stamp(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return requireAffected(res, model.ErrUserNotFound)
}

// RedeemResetToken replaces the password and clears the reset fields, but
// only while the row still holds digest. It reports false when another
// redemption got there first.
func (r *UserRepository) RedeemResetToken(ctx context.Context, userID string, digest string, passwordHash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.q(`UPDATE users
		     SET password_hash = ?, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = ?
		     WHERE id = ? AND reset_token_hash = ?`),
		passwordHash, stamp(now), userID, digest)
	if err != nil {
		return false, fmt.Errorf("redeem reset token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("redeem reset token: %w", err)
	}
	return n == 1, nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.AuthUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, phone, role FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.AuthUser, 0)
	for rows.Next() {
		var u model.AuthUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.Role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

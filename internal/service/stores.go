package service

import (
	"context"
	"time"

	"go-telemed/internal/model"
)

// UserStore is the identity persistence the auth services depend on.
// repository.UserRepository satisfies it.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByResetTokenHash(ctx context.Context, digest string) (model.User, error)
	// Register creates u, failing with model.ErrUserAlreadyExists when the
	// username or email is taken.
	Register(ctx context.Context, u model.User) error
	SetResetToken(ctx context.Context, userID string, digest string, expiry time.Time) error
	RedeemResetToken(ctx context.Context, userID string, digest string, passwordHash string, now time.Time) (bool, error)
	List(ctx context.Context) ([]model.AuthUser, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

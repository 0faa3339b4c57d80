package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go-telemed/internal/database"
	"go-telemed/internal/model"
)

var t0 = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.New(ctx, database.Options{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func seedUser(t *testing.T, repo *UserRepository, username string) model.User {
	t.Helper()

	u := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		Role:         model.RolePatient,
		PasswordHash: "hash-" + username,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-telemed/internal/database"
	"go-telemed/internal/event"
	"go-telemed/internal/metrics"
	"go-telemed/internal/model"
	"go-telemed/internal/password"
	"go-telemed/internal/repository"
	"go-telemed/internal/token"
)

var t0 = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db       *database.DB
	users    *repository.UserRepository
	audit    *repository.AuditRepository
	hasher   password.Hasher
	codec    *token.Codec
	issuer   *token.Issuer
	verifier *token.Verifier
	bus      *event.InMemoryBus
	auth     *AuthService
}

func newFixture(t *testing.T, verifierOpts ...token.VerifierOption) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := database.New(ctx, database.Options{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	codec, err := token.NewCodec([]byte("service-test-secret"), "HS256")
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		users:    repository.NewUserRepository(db.SQL, db.Dialect),
		audit:    repository.NewAuditRepository(db.SQL, db.Dialect),
		hasher:   password.NewBcryptHasher(bcrypt.MinCost),
		codec:    codec,
		issuer:   token.NewIssuer(codec, 30*time.Minute, 7*24*time.Hour, nil),
		verifier: token.NewVerifier(codec, verifierOpts...),
		bus:      event.NewBus(),
	}
	f.auth = NewAuthService(f.users, f.hasher, f.issuer, f.verifier, f.bus, metrics.NewNoop())
	return f
}

func (f *fixture) signup(t *testing.T, username string, pass string) model.AuthUser {
	t.Helper()

	user, err := f.auth.Signup(context.Background(), model.SignupRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: pass,
		Role:     model.RolePatient,
	}, "127.0.0.1")
	require.NoError(t, err)
	return user
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (model.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) FindByResetTokenHash(ctx context.Context, digest string) (model.User, error) {
	args := m.Called(ctx, digest)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) Register(ctx context.Context, u model.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserStore) SetResetToken(ctx context.Context, userID string, digest string, expiry time.Time) error {
	return m.Called(ctx, userID, digest, expiry).Error(0)
}

func (m *mockUserStore) RedeemResetToken(ctx context.Context, userID string, digest string, passwordHash string, now time.Time) (bool, error) {
	args := m.Called(ctx, userID, digest, passwordHash, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) List(ctx context.Context) ([]model.AuthUser, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.AuthUser), args.Error(1)
}

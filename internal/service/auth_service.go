package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-telemed/internal/event"
	"go-telemed/internal/metrics"
	"go-telemed/internal/model"
	"go-telemed/internal/password"
	"go-telemed/internal/token"
	"go-telemed/internal/util"
	"go-telemed/pkg/apierror"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
	maxUsernameLength = 50

	defaultAdminUsername = "admin"
	defaultAdminEmail    = "admin@example.com"

	revokeReasonLogout = "logout"
)

type AuthService struct {
	users    UserStore
	hasher   password.Hasher
	issuer   *token.Issuer
	verifier *token.Verifier
	denylist token.Denylist
	bus      event.Bus
	metrics  metrics.Recorder

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserStore, hasher password.Hasher, issuer *token.Issuer, verifier *token.Verifier, bus event.Bus, recorder metrics.Recorder) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthService{
		users:    users,
		hasher:   hasher,
		issuer:   issuer,
		verifier: verifier,
		bus:      bus,
		metrics:  recorder,
	}
}

// WithDenylist enables logout revocation. The verifier must be built with
// the same deny-list for revocations to take effect.
func (s *AuthService) WithDenylist(d token.Denylist) *AuthService {
	s.denylist = d
	return s
}

func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest, ip string) (model.AuthUser, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.ToLower(strings.TrimSpace(req.Role))

	if err := validateSignup(username, email, req.Password, role); err != nil {
		s.metrics.RecordSignup(false)
		return model.AuthUser{}, err
	}
	if role == "" {
		role = model.RoleUser
	}

	var phone *string
	if req.Phone != nil {
		if trimmed := strings.TrimSpace(*req.Phone); trimmed != "" {
			phone = &trimmed
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.metrics.RecordSignup(false)
		return model.AuthUser{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Phone:        phone,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Register(ctx, user); err != nil {
		s.metrics.RecordSignup(false)
		return model.AuthUser{}, err
	}

	s.metrics.RecordSignup(true)
	s.publish(event.Event{
		Type:      event.TypeUserRegistered,
		ActorID:   user.ID,
		ActorName: user.Username,
		IP:        ip,
		Status:    "success",
		Detail:    "role=" + user.Role,
	})
	slog.Info("user registered", "user_id", user.ID, "username", user.Username, "role", user.Role)

	return user.Public(), nil
}

// Login checks the password and mints a token pair. Unknown usernames and
// wrong passwords produce the same error after the same amount of hashing work.
func (s *AuthService) Login(ctx context.Context, username string, pass string, ip string) (model.TokenPair, error) {
	started := time.Now()
	username = strings.TrimSpace(username)

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, err
	}

	if err != nil {
		s.hasher.Verify(pass, s.dummyDigest())
		s.loginFailed(username, ip, started)
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if !s.hasher.Verify(pass, user.PasswordHash) {
		s.loginFailed(username, ip, started)
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	access, refresh, err := s.issuer.IssuePair(user.Username)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}

	s.metrics.RecordLogin(true, time.Since(started))
	s.metrics.RecordTokenIssued(string(token.KindAccess), "login")
	s.metrics.RecordTokenIssued(string(token.KindRefresh), "login")
	s.publish(event.Event{
		Type:      event.TypeUserLogin,
		ActorID:   user.ID,
		ActorName: user.Username,
		IP:        ip,
		Status:    "success",
	})

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
		User:         user.Public(),
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is neither rotated nor consumed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.AccessToken, error) {
	claims, ok := s.verifier.Verify(ctx, refreshToken, token.KindRefresh)
	if !ok {
		s.metrics.RecordTokenRefresh(false)
		return model.AccessToken{}, model.ErrTokenInvalid
	}

	access, err := s.issuer.IssueAccessToken(claims.Subject)
	if err != nil {
		s.metrics.RecordTokenRefresh(false)
		return model.AccessToken{}, fmt.Errorf("issue access token: %w", err)
	}

	s.metrics.RecordTokenRefresh(true)
	s.metrics.RecordTokenIssued(string(token.KindAccess), "refresh")

	return model.AccessToken{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// Authorize resolves a bearer access token to the identity it names. Every
// failure, including a failed identity lookup, is the same ErrTokenInvalid.
func (s *AuthService) Authorize(ctx context.Context, bearer string) (model.AuthUser, error) {
	user, _, err := s.Authenticate(ctx, bearer)
	return user, err
}

// Authenticate is Authorize that also returns the verified claims.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (model.AuthUser, token.Claims, error) {
	claims, ok := s.verifier.Verify(ctx, bearer, token.KindAccess)
	if !ok {
		return model.AuthUser{}, token.Claims{}, model.ErrTokenInvalid
	}

	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			slog.Warn("identity lookup failed during authorization", "error", err)
		}
		return model.AuthUser{}, token.Claims{}, model.ErrTokenInvalid
	}

	return user.Public(), claims, nil
}

// Logout revokes the presented access token and, when it belongs to the same
// subject, the refresh token. Without a deny-list it only acknowledges.
func (s *AuthService) Logout(ctx context.Context, user model.AuthUser, access token.Claims, refreshToken string, ip string) error {
	if s.denylist == nil {
		return nil
	}

	if err := s.revoke(ctx, access); err != nil {
		return err
	}

	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		refresh, ok := s.verifier.Verify(ctx, refreshToken, token.KindRefresh)
		if ok && refresh.Subject == access.Subject {
			if err := s.revoke(ctx, refresh); err != nil {
				return err
			}
		}
	}

	s.publish(event.Event{
		Type:      event.TypeTokenRevoked,
		ActorID:   user.ID,
		ActorName: user.Username,
		IP:        ip,
		Status:    "success",
		Detail:    revokeReasonLogout,
	})
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.AuthUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]model.AuthUser, error) {
	return s.users.List(ctx)
}

// SeedAdmin creates the default administrator when no account named admin
// exists yet.
func (s *AuthService) SeedAdmin(ctx context.Context, adminPassword string) error {
	_, err := s.users.FindByUsername(ctx, defaultAdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return fmt.Errorf("look up default admin: %w", err)
	}

	hash, err := s.hasher.Hash(adminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.users.Register(ctx, model.User{
		ID:           uuid.NewString(),
		Username:     defaultAdminUsername,
		Email:        defaultAdminEmail,
		Role:         model.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}

	slog.Info("default admin created", "username", defaultAdminUsername)
	return nil
}

func (s *AuthService) revoke(ctx context.Context, claims token.Claims) error {
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke %s token: %w", claims.Kind, err)
	}
	s.metrics.RecordTokenRevoked(revokeReasonLogout)
	return nil
}

func (s *AuthService) loginFailed(username string, ip string, started time.Time) {
	s.metrics.RecordLogin(false, time.Since(started))
	s.publish(event.Event{
		Type:      event.TypeUserLoginFailed,
		ActorName: util.StripInvisible(username),
		IP:        ip,
		Status:    "failure",
	})
}

func (s *AuthService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			slog.Error("prepare dummy password digest", "error", err)
		}
		s.dummyHash = digest
	})
	return s.dummyHash
}

func (s *AuthService) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func validateSignup(username string, email string, pass string, role string) error {
	if username == "" || email == "" || pass == "" {
		return apierror.BadRequest("username, email and password are required", "")
	}
	if err := util.ValidateUsername(username, maxUsernameLength); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apierror.BadRequest("invalid email address", email)
	}
	if err := validatePassword(pass); err != nil {
		return err
	}
	if role != "" && (!model.IsValidRole(role) || role == model.RoleAdmin) {
		return apierror.BadRequest("invalid role", role)
	}
	return nil
}

func validatePassword(pass string) error {
	if len(pass) < MinPasswordLength {
		return apierror.BadRequest("password is too short", fmt.Sprintf("min %d characters", MinPasswordLength))
	}
	if len(pass) > MaxPasswordLength {
		return apierror.BadRequest("password is too long", fmt.Sprintf("max %d bytes", MaxPasswordLength))
	}
	return nil
}

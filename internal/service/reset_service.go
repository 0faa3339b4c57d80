package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go-telemed/internal/event"
	"go-telemed/internal/metrics"
	"go-telemed/internal/model"
	"go-telemed/internal/password"
	"go-telemed/internal/token"
	"go-telemed/pkg/apierror"
)

const (
	resetTokenBytes = 32

	ResetResultSuccess = "success"
	ResetResultInvalid = "invalid"
	ResetResultExpired = "expired"
	ResetResultError   = "error"
)

// ResetRequest is what RequestReset hands back for out-of-band delivery. It is
// the zero value when the address is unknown.
type ResetRequest struct {
	Token     string
	Link      string
	ExpiresAt time.Time
}

// ResetService issues and redeems single-use password reset tokens. Only the
// SHA-256 digest of a token is stored.
type ResetService struct {
	users    UserStore
	hasher   password.Hasher
	ttl      time.Duration
	linkBase string
	now      token.Clock
	random   io.Reader
	bus      event.Bus
	metrics  metrics.Recorder
}

type ResetOption func(*ResetService)

func WithResetClock(now token.Clock) ResetOption {
	return func(s *ResetService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithResetRandom(r io.Reader) ResetOption {
	return func(s *ResetService) {
		if r != nil {
			s.random = r
		}
	}
}

func NewResetService(users UserStore, hasher password.Hasher, ttl time.Duration, linkBase string, bus event.Bus, recorder metrics.Recorder, opts ...ResetOption) *ResetService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	s := &ResetService{
		users:    users,
		hasher:   hasher,
		ttl:      ttl,
		linkBase: linkBase,
		now:      token.SystemClock,
		random:   rand.Reader,
		bus:      bus,
		metrics:  recorder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestReset mints a reset token for the account owning email. Callers must
// answer identically whether or not a token was produced.
func (s *ResetService) RequestReset(ctx context.Context, email string, ip string) (ResetRequest, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return ResetRequest{}, apierror.BadRequest("email is required", "")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.metrics.RecordResetRequested(false)
		slog.Debug("password reset requested for unknown address")
		return ResetRequest{}, nil
	}
	if err != nil {
		return ResetRequest{}, err
	}

	raw, err := s.generate()
	if err != nil {
		return ResetRequest{}, err
	}

	expiresAt := s.now().Add(s.ttl)
	if err := s.users.SetResetToken(ctx, user.ID, digest(raw), expiresAt); err != nil {
		return ResetRequest{}, err
	}

	req := ResetRequest{Token: raw, Link: s.link(raw), ExpiresAt: expiresAt}

	s.metrics.RecordResetRequested(true)
	s.publish(event.Event{
		Type:      event.TypePasswordResetRequest,
		ActorID:   user.ID,
		ActorName: user.Username,
		IP:        ip,
		Status:    "success",
		Payload: event.ResetLink{
			Email:     user.Email,
			Username:  user.Username,
			Link:      req.Link,
			ExpiresAt: expiresAt,
		},
	})

	return req, nil
}

// RedeemReset sets a new password if raw names a live reset token. An expired
// token is reported as such and left in place; it can never succeed and is
// replaced by the next request. Concurrent redemptions of one token succeed
// at most once.
func (s *ResetService) RedeemReset(ctx context.Context, raw string, newPassword string, ip string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		s.metrics.RecordResetRedeemed(ResetResultInvalid)
		return model.ErrResetTokenNotFound
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	tokenDigest := digest(raw)
	user, err := s.users.FindByResetTokenHash(ctx, tokenDigest)
	if errors.Is(err, model.ErrUserNotFound) {
		s.rejected(ResetResultInvalid, "", "", ip)
		return model.ErrResetTokenNotFound
	}
	if err != nil {
		s.metrics.RecordResetRedeemed(ResetResultError)
		return err
	}

	now := s.now()
	if user.ResetTokenExpiry == nil || !now.Before(*user.ResetTokenExpiry) {
		s.rejected(ResetResultExpired, user.ID, user.Username, ip)
		return model.ErrResetTokenExpired
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.metrics.RecordResetRedeemed(ResetResultError)
		return err
	}

	redeemed, err := s.users.RedeemResetToken(ctx, user.ID, tokenDigest, hash, now)
	if err != nil {
		s.metrics.RecordResetRedeemed(ResetResultError)
		return err
	}
	if !redeemed {
		s.rejected(ResetResultInvalid, user.ID, user.Username, ip)
		return model.ErrResetTokenNotFound
	}

	s.metrics.RecordResetRedeemed(ResetResultSuccess)
	s.publish(event.Event{
		Type:      event.TypePasswordResetComplete,
		ActorID:   user.ID,
		ActorName: user.Username,
		IP:        ip,
		Status:    "success",
	})
	slog.Info("password reset completed", "user_id", user.ID)

	return nil
}

func (s *ResetService) generate() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *ResetService) link(raw string) string {
	if s.linkBase == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.linkBase, "?") {
		sep = "&"
	}
	return s.linkBase + sep + "token=" + url.QueryEscape(raw)
}

func (s *ResetService) rejected(result string, userID string, username string, ip string) {
	s.metrics.RecordResetRedeemed(result)
	s.publish(event.Event{
		Type:      event.TypePasswordResetRejected,
		ActorID:   userID,
		ActorName: username,
		IP:        ip,
		Status:    "failure",
		Detail:    result,
	})
}

func (s *ResetService) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

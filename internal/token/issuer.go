package token

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEmptySubject = errors.New("token: subject is required")

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

type Issuer struct {
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        Clock
}

func NewIssuer(codec *Codec, accessTTL time.Duration, refreshTTL time.Duration, now Clock) *Issuer {
	if now == nil {
		now = SystemClock
	}
	return &Issuer{codec: codec, accessTTL: accessTTL, refreshTTL: refreshTTL, now: now}
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *Issuer) IssueAccessToken(subject string) (string, error) {
	return i.IssueAccessTokenAt(subject, i.now())
}

func (i *Issuer) IssueAccessTokenAt(subject string, now time.Time) (string, error) {
	return i.issue(subject, KindAccess, now, i.accessTTL)
}

func (i *Issuer) IssueRefreshToken(subject string) (string, error) {
	return i.IssueRefreshTokenAt(subject, i.now())
}

func (i *Issuer) IssueRefreshTokenAt(subject string, now time.Time) (string, error) {
	return i.issue(subject, KindRefresh, now, i.refreshTTL)
}

// IssuePair mints an access and a refresh token sharing the same issue time.
func (i *Issuer) IssuePair(subject string) (access string, refresh string, err error) {
	now := i.now()
	access, err = i.IssueAccessTokenAt(subject, now)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.IssueRefreshTokenAt(subject, now)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (i *Issuer) issue(subject string, kind Kind, now time.Time, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}

	return i.codec.Encode(Claims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Kind:      kind,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
}

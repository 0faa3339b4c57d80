// Package token mints and checks the signed bearer tokens used by the API.
//
// Access and refresh tokens are stateless JWTs signed with a process-wide HMAC
// secret. They carry a kind discriminator so one can never stand in for the
// other, and are never stored server side. The optional Denylist is the only
// way to retire a token before it expires.
package token

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims is the decoded payload of a token.
type Claims struct {
	ID        string
	Subject   string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the claims are no longer usable at now. A token is
// valid strictly before its expiry instant.
func (c Claims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// wireClaims shadows iat and exp from the registered claims so sub-second
// issue times survive encoding. jwt.NumericDate truncates to whole seconds,
// which would end a token's life up to a second early.
type wireClaims struct {
	jwt.RegisteredClaims
	IssuedAt  *instant `json:"iat,omitempty"`
	ExpiresAt *instant `json:"exp,omitempty"`
	Kind      Kind     `json:"type"`
}

func (w wireClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return w.ExpiresAt.numericDate(), nil
}

func (w wireClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return w.IssuedAt.numericDate(), nil
}

func (c Claims) toWire() wireClaims {
	return wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:      c.ID,
			Subject: c.Subject,
		},
		IssuedAt:  newInstant(c.IssuedAt),
		ExpiresAt: newInstant(c.ExpiresAt),
		Kind:      c.Kind,
	}
}

func (w wireClaims) toClaims() Claims {
	claims := Claims{
		ID:      w.ID,
		Subject: w.Subject,
		Kind:    w.Kind,
	}
	if w.IssuedAt != nil {
		claims.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		claims.ExpiresAt = w.ExpiresAt.Time
	}
	return claims
}

// instant is a NumericDate with nanosecond precision. Whole seconds encode
// as plain integers; anything finer is written as an exact decimal fraction.
type instant struct {
	time.Time
}

func newInstant(t time.Time) *instant {
	if t.IsZero() {
		return nil
	}
	return &instant{Time: t.UTC()}
}

func (i *instant) numericDate() *jwt.NumericDate {
	if i == nil {
		return nil
	}
	return jwt.NewNumericDate(i.Time)
}

func (i instant) MarshalJSON() ([]byte, error) {
	sec, nsec := i.Unix(), i.Nanosecond()
	if nsec == 0 || sec < 0 {
		return strconv.AppendInt(nil, sec, 10), nil
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", nsec), "0")
	return []byte(strconv.FormatInt(sec, 10) + "." + frac), nil
}

func (i *instant) UnmarshalJSON(b []byte) error {
	var number json.Number
	if err := json.Unmarshal(b, &number); err != nil {
		return fmt.Errorf("could not parse numeric date: %w", err)
	}

	text := number.String()
	if strings.ContainsAny(text, "eE") {
		f, err := number.Float64()
		if err != nil {
			return fmt.Errorf("could not parse numeric date: %w", err)
		}
		whole, frac := math.Modf(f)
		i.Time = time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
		return nil
	}

	whole, frac, _ := strings.Cut(text, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return fmt.Errorf("could not parse numeric date: %w", err)
	}

	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		nsec, err = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return fmt.Errorf("could not parse numeric date: %w", err)
		}
		if strings.HasPrefix(whole, "-") {
			nsec = -nsec
		}
	}

	i.Time = time.Unix(sec, nsec).UTC()
	return nil
}

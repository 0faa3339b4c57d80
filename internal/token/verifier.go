package token

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Validation outcomes reported to an Observer. They never leave the process
// through an API response.
const (
	ResultValid        = "valid"
	ResultMalformed    = "malformed"
	ResultBadSignature = "bad_signature"
	ResultWrongKind    = "wrong_kind"
	ResultExpired      = "expired"
	ResultRevoked      = "revoked"
)

type Observer interface {
	RecordTokenValidation(kind string, result string, duration time.Duration)
}

type VerifierOption func(*Verifier)

func WithClock(now Clock) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithDenylist(d Denylist) VerifierOption {
	return func(v *Verifier) {
		v.denylist = d
	}
}

func WithObserver(o Observer) VerifierOption {
	return func(v *Verifier) {
		v.observer = o
	}
}

// Verifier checks signature, kind and expiry. Every failure collapses into a
// single "not valid" answer.
type Verifier struct {
	codec    *Codec
	now      Clock
	denylist Denylist
	observer Observer
}

func NewVerifier(codec *Codec, opts ...VerifierOption) *Verifier {
	v := &Verifier{codec: codec, now: SystemClock}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) Verify(ctx context.Context, raw string, expected Kind) (Claims, bool) {
	return v.VerifyAt(ctx, raw, expected, v.now())
}

func (v *Verifier) VerifyAt(ctx context.Context, raw string, expected Kind, now time.Time) (Claims, bool) {
	started := time.Now()
	claims, result := v.check(ctx, raw, expected, now)
	if v.observer != nil {
		v.observer.RecordTokenValidation(string(expected), result, time.Since(started))
	}
	if result != ResultValid {
		slog.Debug("token rejected", "expected_kind", expected, "result", result)
		return Claims{}, false
	}
	return claims, true
}

func (v *Verifier) check(ctx context.Context, raw string, expected Kind, now time.Time) (Claims, string) {
	claims, err := v.codec.Decode(raw)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) && decodeErr.Reason == BadSignature {
			return Claims{}, ResultBadSignature
		}
		return Claims{}, ResultMalformed
	}

	if claims.Subject == "" {
		return Claims{}, ResultMalformed
	}

	if claims.Kind != expected {
		return Claims{}, ResultWrongKind
	}

	if claims.ExpiredAt(now) {
		return Claims{}, ResultExpired
	}

	if v.denylist != nil && claims.ID != "" {
		revoked, err := v.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			slog.Warn("deny-list lookup failed, rejecting token", "error", err)
			return Claims{}, ResultRevoked
		}
		if revoked {
			return Claims{}, ResultRevoked
		}
	}

	return claims, ResultValid
}

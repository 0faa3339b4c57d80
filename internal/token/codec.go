package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret        = errors.New("token: signing secret is empty")
	ErrUnsupportedAlgorithm = errors.New("token: unsupported signing algorithm")
)

type DecodeReason int

const (
	Malformed DecodeReason = iota + 1
	BadSignature
)

func (r DecodeReason) String() string {
	switch r {
	case Malformed:
		return "malformed"
	case BadSignature:
		return "bad_signature"
	default:
		return "unknown"
	}
}

// DecodeError is returned by Codec.Decode. Callers outside this package are
// expected to treat every reason the same way.
type DecodeError struct {
	Reason DecodeReason
	err    error
}

func (e *DecodeError) Error() string {
	return "token: " + e.Reason.String()
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

// Codec signs and parses tokens with a single HMAC algorithm fixed at
// construction. It is immutable and safe for concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	parser *jwt.Parser
}

func NewCodec(secret []byte, algorithm string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &Codec{
		secret: key,
		method: method,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithStrictDecoding(),
			// expiry is judged by the Verifier against its own clock
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

func (c *Codec) Encode(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(c.method, claims.toWire()).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) Decode(raw string) (Claims, error) {
	var wire wireClaims
	_, err := c.parser.ParseWithClaims(raw, &wire, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Claims{}, &DecodeError{Reason: BadSignature, err: err}
		}
		return Claims{}, &DecodeError{Reason: Malformed, err: err}
	}

	if wire.ExpiresAt == nil || !wire.Kind.Valid() {
		return Claims{}, &DecodeError{Reason: Malformed, err: errors.New("missing exp or type claim")}
	}

	return wire.toClaims(), nil
}

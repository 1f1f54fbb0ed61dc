// Package optiontoken implements the option token (C4): a self-contained,
// signed payload carrying a whole availability option across the
// client/server boundary. Grounded on the auth-service's
// pkg/jwt/jwt.go Manager + custom Claims pattern — same library
// (golang-jwt/jwt/v5), same HMAC-signed-claims shape, applied to an option
// payload instead of a user identity. This replaces the original Python
// source's django.core.signing-based booking/tokens.py.
package optiontoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BlockRef is one block inside a signed option, carrying just enough to
// reconstruct it for reservation: which worker, what window, which
// services.
type BlockRef struct {
	Sequence   int      `json:"sequence"`
	WorkerID   string   `json:"worker_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ServiceIDs []string `json:"service_ids"`
}

// Payload is the full option carried by a token.
type Payload struct {
	AppointmentStart time.Time  `json:"appointment_start"`
	AppointmentEnd   time.Time  `json:"appointment_end"`
	Blocks           []BlockRef `json:"blocks"`
}

// claims embeds the option payload inside standard registered claims so
// IssuedAt/ExpiresAt drive the TTL check for free.
type claims struct {
	Payload Payload `json:"option"`
	jwt.RegisteredClaims
}

// Manager signs and verifies option tokens with a single HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewManager builds a Manager. ttl is the option_token_ttl_seconds config
// key (§6), default 300s.
func NewManager(secret string, ttl time.Duration, issuer string) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// Sign produces a compact, URL-safe token string for payload.
func (m *Manager) Sign(payload Payload) (string, error) {
	now := time.Now()
	c := claims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(m.secret)
}

// Failure is the classified reason an option token failed to verify,
// mirroring §4.4's BAD_SIGNATURE/EXPIRED/MALFORMED failure modes.
type Failure string

const (
	FailureBadSignature Failure = "BAD_SIGNATURE"
	FailureExpired      Failure = "EXPIRED"
	FailureMalformed    Failure = "MALFORMED"
)

// VerifyError carries the classified failure so callers can map it to
// option_invalid without inspecting strings.
type VerifyError struct {
	Failure Failure
	Err     error
}

func (e *VerifyError) Error() string { return string(e.Failure) + ": " + e.Err.Error() }
func (e *VerifyError) Unwrap() error { return e.Err }

// Verify parses and validates tokenString, returning the carried Payload on
// success.
func (m *Manager) Verify(tokenString string) (Payload, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Payload{}, &VerifyError{Failure: FailureExpired, Err: err}
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Payload{}, &VerifyError{Failure: FailureBadSignature, Err: err}
		default:
			return Payload{}, &VerifyError{Failure: FailureMalformed, Err: err}
		}
	}
	if !token.Valid {
		return Payload{}, &VerifyError{Failure: FailureMalformed, Err: errors.New("token not valid")}
	}
	return c.Payload, nil
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is set on every token and required when parsing.
const Issuer = "museum-booking"

var (
	ErrTokenInvalid = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token expired")
)

// AdminClaims identifies the admin a token was issued to. The admin id travels as "sub".
type AdminClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AdminID returns the subject of the token.
func (c *AdminClaims) AdminID() string {
	return c.Subject
}

// AccessToken is a signed token and the instant it stops being accepted.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// JWTManager signs and verifies HS256 admin access tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

type JWTOption func(*JWTManager)

// WithLeeway tolerates clock skew when checking exp, iat and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(m *JWTManager) { m.leeway = d }
}

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) { m.now = now }
}

func NewJWTManager(secret string, ttl time.Duration, opts ...JWTOption) *JWTManager {
	m := &JWTManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue signs a token for the admin. Each token carries a fresh jti.
func (m *JWTManager) Issue(adminID, email string) (AccessToken, error) {
	if adminID == "" {
		return AccessToken{}, errors.New("admin id is required")
	}

	issuedAt := m.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(m.ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &AdminClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(m.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return AccessToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, issuer and lifetime. Failures are ErrTokenExpired or ErrTokenInvalid.
func (m *JWTManager) Verify(raw string) (*AdminClaims, error) {
	var claims AdminClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	case claims.AdminID() == "":
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return &claims, nil
}

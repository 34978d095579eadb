package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

const tokenIssuer = "storefront"

var (
	// ErrInvalidToken indicates the session cookie was unsigned, tampered with or expired.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrMissingSecret indicates the signer was built without a key.
	ErrMissingSecret = errors.New("session: signing secret is required")
)

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens carrying a ULID subject.
type Signer struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSigner returns a signer whose tokens expire after maxAge (no expiry when maxAge <= 0).
func NewSigner(secret string, maxAge time.Duration) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{key: []byte(secret), maxAge: maxAge, now: time.Now}, nil
}

// NewID returns a fresh session id.
func NewID() string {
	return ulid.Make().String()
}

// Sign encodes id into a signed token.
func (s *Signer) Sign(id string) (string, error) {
	now := s.now().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			Subject:  id,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.maxAge > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.maxAge))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse verifies token and returns the session id it carries.
func (s *Signer) Parse(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Issuer != tokenIssuer {
		return "", ErrInvalidToken
	}
	if _, err := ulid.ParseStrict(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

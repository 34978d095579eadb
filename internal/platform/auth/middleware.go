// Package auth verifies Firebase ID tokens and exposes the signed-in shopper on the request context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/aistore/storefront/internal/platform/httpx"
	"github.com/aistore/storefront/internal/platform/requestctx"
)

const defaultVerifyTimeout = 5 * time.Second

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// UserGetter retrieves Firebase user information.
type UserGetter interface {
	GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	users    UserGetter
	timeout  time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithUserGetter enables lazy user record loading via Firebase Admin APIs.
func WithUserGetter(getter UserGetter) Option {
	return func(a *Authenticator) {
		a.users = getter
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens and loading users.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			identity, err := a.authenticate(r.Context(), tokenStr)
			if err != nil {
				respondVerificationError(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalFirebaseAuth attaches an identity when a valid bearer token is present and otherwise
// lets the request through anonymously. Handlers decide how to treat anonymous callers.
func (a *Authenticator) OptionalFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := a.authenticate(r.Context(), tokenStr)
			if err != nil {
				requestctx.Logger(r.Context()).Debug("auth: ignoring unverifiable bearer token")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (a *Authenticator) authenticate(ctx context.Context, tokenStr string) (*Identity, error) {
	if a == nil || a.verifier == nil {
		return nil, errors.New("auth: verifier not configured")
	}
	verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
	if err != nil {
		return nil, err
	}
	if token == nil || strings.TrimSpace(token.UID) == "" {
		return nil, ErrTokenInvalid
	}

	identity := &Identity{
		UID:        token.UID,
		Email:      claimAsString(token.Claims, "email"),
		Name:       claimAsString(token.Claims, "name"),
		GivenName:  claimAsString(token.Claims, "given_name"),
		FamilyName: claimAsString(token.Claims, "family_name"),
		token:      token,
	}
	if a.users != nil {
		identity.userLoader = func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
			ctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			return a.users.GetUser(ctx, uid)
		}
	}
	return identity, nil
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		httpx.WriteError(ctx, w, httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized))
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "firebase id token verification failed", http.StatusUnauthorized))
	}
}

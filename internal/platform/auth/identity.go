package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// ErrUserLoaderUnavailable indicates that the identity was created without a user loader.
var ErrUserLoaderUnavailable = errors.New("auth: user loader not configured")

// Identity is the signed-in shopper extracted from a Firebase ID token.
type Identity struct {
	UID        string
	Email      string
	Name       string
	GivenName  string
	FamilyName string

	token *firebaseauth.Token

	userLoader UserLoader
	once       sync.Once
	userRecord *firebaseauth.UserRecord
	userErr    error
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// DisplayName is "given family" when either part is known, then the full name claim, then the email.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	if name := strings.TrimSpace(i.GivenName + " " + i.FamilyName); name != "" {
		return name
	}
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	return i.Email
}

// User resolves the Firebase user profile on first access and memoises the result.
func (i *Identity) User(ctx context.Context) (*firebaseauth.UserRecord, error) {
	if i == nil || i.userLoader == nil {
		return nil, ErrUserLoaderUnavailable
	}
	i.once.Do(func() {
		i.userRecord, i.userErr = i.userLoader(ctx, i.UID)
	})
	return i.userRecord, i.userErr
}

// PrimaryEmail returns the token email, falling back to the user record when the token carries none.
func (i *Identity) PrimaryEmail(ctx context.Context) (string, error) {
	if i == nil {
		return "", nil
	}
	if email := strings.TrimSpace(i.Email); email != "" {
		return email, nil
	}
	record, err := i.User(ctx)
	if errors.Is(err, ErrUserLoaderUnavailable) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if record == nil || record.UserInfo == nil {
		return "", nil
	}
	return strings.TrimSpace(record.Email), nil
}

// NewIdentity builds an identity outside the middleware, for background callers and tests.
func NewIdentity(uid, email, name string) *Identity {
	return &Identity{UID: uid, Email: email, Name: name}
}

type contextKey string

const identityContextKey contextKey = "storefront/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// UserLoader fetches the Firebase user profile corresponding to a UID.
type UserLoader func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)

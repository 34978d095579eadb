package session

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aistore/storefront/internal/platform/requestctx"
)

const defaultCookieName = "sf_session"

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Middleware attaches a visitor session id to every request. A missing or invalid cookie
// starts a new session and sets a fresh signed cookie.
func Middleware(signer *Signer, opts CookieOptions) func(http.Handler) http.Handler {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = defaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := ""
			if cookie, err := r.Cookie(name); err == nil {
				if parsed, err := signer.Parse(cookie.Value); err == nil {
					id = parsed
				}
			}
			if id == "" {
				id = NewID()
				token, err := signer.Sign(id)
				if err != nil {
					requestctx.Logger(ctx).Error("session cookie signing failed", zap.Error(err))
				} else {
					http.SetCookie(w, &http.Cookie{
						Name:     name,
						Value:    token,
						Path:     "/",
						MaxAge:   int(opts.MaxAge / time.Second),
						HttpOnly: true,
						Secure:   opts.Secure,
						SameSite: http.SameSiteLaxMode,
					})
				}
			}
			ctx = requestctx.WithSessionID(ctx, id)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("session_id", id)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

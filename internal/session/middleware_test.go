package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistore/storefront/internal/platform/requestctx"
)

func TestMiddlewareIssuesCookieForNewVisitor(t *testing.T) {
	signer, err := NewSigner("s3cret", 24*time.Hour)
	require.NoError(t, err)

	var seen string
	handler := Middleware(signer, CookieOptions{Name: "sid", Secure: true, MaxAge: 24 * time.Hour})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestctx.SessionID(r.Context())
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	require.NotEmpty(t, seen)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 86400, cookies[0].MaxAge)

	id, err := signer.Parse(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, seen, id)
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	signer, err := NewSigner("s3cret", time.Hour)
	require.NoError(t, err)
	id := NewID()
	token, err := signer.Sign(id)
	require.NoError(t, err)

	var seen string
	handler := Middleware(signer, CookieOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.SessionID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: defaultCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, id, seen)
	assert.Empty(t, rec.Result().Cookies())
}

func TestMiddlewareReplacesTamperedCookie(t *testing.T) {
	signer, err := NewSigner("s3cret", time.Hour)
	require.NoError(t, err)

	var seen string
	handler := Middleware(signer, CookieOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.SessionID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: defaultCookieName, Value: "not-a-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Len(t, rec.Result().Cookies(), 1)
	assert.NotEmpty(t, seen)
}

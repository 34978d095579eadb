package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	signer, err := NewSigner("s3cret", time.Hour)
	require.NoError(t, err)

	id := NewID()
	token, err := signer.Sign(id)
	require.NoError(t, err)

	got, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestSignerRejectsForeignAndExpiredTokens(t *testing.T) {
	signer, err := NewSigner("s3cret", time.Hour)
	require.NoError(t, err)
	other, err := NewSigner("different", time.Hour)
	require.NoError(t, err)

	foreign, err := other.Sign(NewID())
	require.NoError(t, err)
	_, err = signer.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	signer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := signer.Sign(NewID())
	require.NoError(t, err)
	signer.now = time.Now
	_, err = signer.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsNonULIDSubject(t *testing.T) {
	signer, err := NewSigner("s3cret", 0)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "../admin"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = signer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner(" ", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

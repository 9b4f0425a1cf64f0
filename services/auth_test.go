package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagicLinkIsSingleUse(t *testing.T) {
	auth := NewAuthService("test-secret", SMTPConfig{})

	link, err := auth.GenerateMagicLink(testUser, "http://localhost:3001")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/api/auth/magic-link", u.Path)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	email, err := auth.VerifyMagicLinkToken(token)
	require.NoError(t, err)
	assert.Equal(t, testUser, email)

	_, err = auth.VerifyMagicLinkToken(token)
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret", SMTPConfig{})

	token, err := auth.CreateJWT(testUser)
	require.NoError(t, err)

	userID, err := auth.VerifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, testUser, userID)

	other := NewAuthService("another-secret", SMTPConfig{})
	_, err = other.VerifyJWT(token)
	assert.Error(t, err)
}

func TestVerifyJWTRejectsExpiredAndLegacy(t *testing.T) {
	auth := NewAuthService("test-secret", SMTPConfig{})

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testUser,
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = auth.VerifyJWT(expired)
	assert.Error(t, err)

	legacy, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": testUser,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	userID, err := auth.VerifyJWT(legacy)
	require.NoError(t, err)
	assert.Equal(t, testUser, userID)
}

func TestUserFromContext(t *testing.T) {
	_, err := UserFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = UserFromContext(WithUser(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	userID, err := UserFromContext(userCtx())
	require.NoError(t, err)
	assert.Equal(t, testUser, userID)
}

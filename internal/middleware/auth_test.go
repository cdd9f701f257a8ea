package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware_GenerateAndValidate(t *testing.T) {
	auth := NewAuthMiddleware("secret", 2*time.Hour)
	issued := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }

	token, expiresAt, err := auth.GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, issued.Add(2*time.Hour), expiresAt)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestAuthMiddleware_Expired(t *testing.T) {
	auth := NewAuthMiddleware("secret", time.Minute)
	issued := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }

	token, _, err := auth.GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)

	auth.now = func() time.Time { return issued.Add(time.Hour) }
	_, err = auth.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestAuthMiddleware_RejectsOtherAlgorithms(t *testing.T) {
	auth := NewAuthMiddleware("secret", time.Hour)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{Role: RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = auth.ValidateToken(unsigned)
	assert.Error(t, err)
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	auth := NewAuthMiddleware("", 0)
	assert.False(t, auth.Enabled())
	assert.Equal(t, 24*time.Hour, auth.expiry)

	_, _, err := auth.GenerateToken("ops", RoleAdmin)
	assert.ErrorIs(t, err, ErrTokenSigningDisabled)
	_, err = auth.ValidateToken("anything")
	assert.ErrorIs(t, err, ErrTokenSigningDisabled)

	var nilAuth *AuthMiddleware
	assert.False(t, nilAuth.Enabled())
}

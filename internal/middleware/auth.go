package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role accepted on the write routes.
const RoleAdmin = "admin"

var ErrTokenSigningDisabled = errors.New("token signing is not configured")

// JWTClaims represents the JWT token claims.
type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware issues and validates HMAC-signed operator tokens.
type AuthMiddleware struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware. An empty secret
// disables token auth entirely; a non-positive expiry falls back to 24h.
func NewAuthMiddleware(secretKey string, expiry time.Duration) *AuthMiddleware {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthMiddleware{
		secretKey: []byte(secretKey),
		expiry:    expiry,
		now:       time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (am *AuthMiddleware) Enabled() bool {
	return am != nil && len(am.secretKey) > 0
}

// GenerateToken signs a token for subject carrying role.
func (am *AuthMiddleware) GenerateToken(subject, role string) (string, time.Time, error) {
	if !am.Enabled() {
		return "", time.Time{}, ErrTokenSigningDisabled
	}
	now := am.now()
	expiresAt := now.Add(am.expiry)
	claims := &JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(am.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns claims.
func (am *AuthMiddleware) ValidateToken(tokenString string) (*JWTClaims, error) {
	if !am.Enabled() {
		return nil, ErrTokenSigningDisabled
	}
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secretKey, nil
	}, jwt.WithTimeFunc(am.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// ContextKeyAdminSubject holds who passed the admin check.
const ContextKeyAdminSubject = "admin_subject"

// AdminMiddleware guards the write routes. A request passes with the admin
// API key (compared against its bcrypt hash) or with an admin-role JWT.
type AdminMiddleware struct {
	keyHash []byte
	auth    *AuthMiddleware
	logger  *logrus.Logger
}

// NewAdminMiddleware builds the guard. apiKeyHash wins over apiKey; a plain
// key is hashed once here with cost. auth may be nil.
func NewAdminMiddleware(apiKey, apiKeyHash string, cost int, auth *AuthMiddleware, logger *logrus.Logger) (*AdminMiddleware, error) {
	if logger == nil {
		logger = logrus.New()
	}
	am := &AdminMiddleware{auth: auth, logger: logger}

	switch {
	case apiKeyHash != "":
		if _, err := bcrypt.Cost([]byte(apiKeyHash)); err != nil {
			return nil, err
		}
		am.keyHash = []byte(apiKeyHash)
	case apiKey != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), cost)
		if err != nil {
			return nil, err
		}
		am.keyHash = hash
	}

	if am.keyHash == nil && !auth.Enabled() {
		logger.Warn("No admin credentials configured; write routes will reject every request")
	}
	return am, nil
}

// RequireAdminAuth middleware validates admin credentials.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := bearerToken(c.GetHeader("Authorization"))

		if subject, ok := am.authenticate(bearer, c.GetHeader("X-API-Key"), c.Query("api_key")); ok {
			c.Set(ContextKeyAdminSubject, subject)
			c.Next()
			return
		}

		am.logger.WithFields(logrus.Fields{
			"path":      c.Request.URL.Path,
			"client_ip": c.ClientIP(),
		}).Warn("Rejected admin request")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key or token required",
		})
		c.Abort()
	}
}

func (am *AdminMiddleware) authenticate(bearer, headerKey, queryKey string) (string, bool) {
	for _, key := range []string{bearer, headerKey, queryKey} {
		if key != "" && am.ValidateAdminKey(key) {
			return "api_key", true
		}
	}

	if bearer != "" && am.auth.Enabled() {
		claims, err := am.auth.ValidateToken(bearer)
		if err == nil && claims.Role == RoleAdmin {
			return claims.Subject, true
		}
	}
	return "", false
}

// ValidateAdminKey reports whether key matches the configured admin key.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if am.keyHash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(am.keyHash, []byte(key)) == nil
}

// Bearer prefix is case-insensitive as per RFC 6750.
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

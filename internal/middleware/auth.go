package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	SessionCookie = "session"

	ContextUserID   = "userID"
	ContextUsername = "username"
)

type TokenValidator interface {
	ValidateToken(token string) (userID string, username string, err error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Required aborts with 401 unless the request carries a valid session.
func (m *AuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
			return
		}

		userID, username, err := m.validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextUsername, username)
		c.Next()
	}
}

// Optional sets the session user when there is a valid one and lets every
// request through.
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if userID, username, err := m.validator.ValidateToken(token); err == nil {
				c.Set(ContextUserID, userID)
				c.Set(ContextUsername, username)
			}
		}
		c.Next()
	}
}

// UserID returns the session user set by the middleware, or "".
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func extractToken(c *gin.Context) string {
	if token := extractTokenFromHeader(c.GetHeader("Authorization")); token != "" {
		return token
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

func extractTokenFromHeader(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

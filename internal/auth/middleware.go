package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextUserID is the gin context key holding the authenticated user id
	ContextUserID = "user_id"
	// ContextEmail is the gin context key holding the authenticated email
	ContextEmail = "email"
)

// AuthMiddleware validates the bearer token (or session cookie) on protected routes
func AuthMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			if cookie, err := c.Cookie(SessionCookieName); err == nil {
				raw = cookie
			}
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthorized"})
			return
		}

		claims, err := issuer.ValidateToken(raw)
		if err != nil {
			message := "invalid session, please sign in again"
			if errors.Is(err, ErrExpiredToken) {
				message = "session expired, please sign in again"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "code": "unauthorized"})
			return
		}

		// Store user info in context for handlers to use
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// GetUserIDFromContext returns the authenticated user id, or "" outside protected routes
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

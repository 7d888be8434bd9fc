package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// SessionCookieName is the name of the cookie that mirrors the API session token
	SessionCookieName = "rv_session"
)

// SetSessionCookie stores the session token for browser clients
func SetSessionCookie(c *gin.Context, token string, expiresAt time.Time) {
	secure := gin.Mode() != gin.DebugMode && gin.Mode() != gin.TestMode
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		SessionCookieName,
		token,
		int(time.Until(expiresAt).Seconds()),
		"/",
		"",
		secure,
		true, // HttpOnly
	)
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(c *gin.Context) {
	c.SetCookie(SessionCookieName, "", -1, "/", "", false, true)
}

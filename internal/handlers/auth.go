package handlers

import (
	"net/http"

	"realtorvoice/internal/auth"
	"realtorvoice/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GoogleSignIn exchanges a Google ID token for an API session token
func (h *Handler) GoogleSignIn(c *gin.Context) {
	var req models.GoogleSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id_token is required")
		return
	}

	info, err := h.Verifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		h.logger.Debug("google sign-in rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid Google sign-in", "code": CodeUnauthorized})
		return
	}

	user, err := h.Accounts.SignIn(c.Request.Context(), info)
	if err != nil {
		h.handleError(c, err)
		return
	}

	token, expiresAt, err := h.Issuer.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.handleError(c, err)
		return
	}
	auth.SetSessionCookie(c, token, expiresAt)

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
	})
}

// Logout clears the session cookie. Bearer tokens simply expire.
func (h *Handler) Logout(c *gin.Context) {
	auth.ClearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logout successful"})
}

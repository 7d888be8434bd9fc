package auth

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// UserInfo represents the identity extracted from a verified Google ID token
type UserInfo struct {
	Sub           string `json:"sub"`            // Unique Google ID
	Email         string `json:"email"`          // User's email
	EmailVerified bool   `json:"email_verified"` // Whether the email is verified
	Name          string `json:"name"`           // Full name
	Picture       string `json:"picture"`        // Profile picture URL
}

// IdentityVerifier turns a Google Sign-In ID token into a verified identity
type IdentityVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*UserInfo, error)
}

// GoogleVerifier validates ID tokens against Google's published keys
type GoogleVerifier struct {
	audience string
}

// NewGoogleVerifier creates a verifier for tokens minted for the given OAuth client id
func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID must be set")
	}
	return &GoogleVerifier{audience: clientID}, nil
}

// Verify validates the token signature and audience and extracts the user info
func (v *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*UserInfo, error) {
	payload, err := idtoken.Validate(ctx, rawIDToken, v.audience)
	if err != nil {
		return nil, fmt.Errorf("failed to validate ID token: %w", err)
	}
	return extractUserInfoFromPayload(payload)
}

// extractUserInfoFromPayload extracts user info from the verified token payload
func extractUserInfoFromPayload(payload *idtoken.Payload) (*UserInfo, error) {
	email, ok := payload.Claims["email"].(string)
	if !ok || email == "" {
		return nil, fmt.Errorf("id token has no email claim")
	}

	userInfo := &UserInfo{
		Sub:   payload.Subject,
		Email: email,
	}
	if name, ok := payload.Claims["name"].(string); ok {
		userInfo.Name = name
	}
	if picture, ok := payload.Claims["picture"].(string); ok {
		userInfo.Picture = picture
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok {
		userInfo.EmailVerified = verified
	}
	return userInfo, nil
}

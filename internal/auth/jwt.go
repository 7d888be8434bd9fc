package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	issuer = "realtorvoice"

	// OAuth state tokens only need to survive the provider consent screen
	stateTokenExpiry = 10 * time.Minute
	stateAudience    = "crm-oauth-state"
	sessionAudience  = "api"
)

// TokenClaims represents the claims in an API session token
type TokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// StateClaims is carried through a CRM authorize redirect as the state parameter
type StateClaims struct {
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 tokens with one secret
type TokenIssuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer for API session and OAuth state tokens
func NewTokenIssuer(secret string, expiry time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret must not be empty")
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), expiry: expiry, now: time.Now}, nil
}

// GenerateToken creates a new session token for a user
func (i *TokenIssuer) GenerateToken(userID, email string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.expiry)

	claims := TokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{sessionAudience},
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates and parses a session token
func (i *TokenIssuer) ValidateToken(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if err := i.parse(tokenString, claims, sessionAudience); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateState creates the state parameter for a CRM authorize redirect.
// The user id travels inside the signed token so the callback needs no session.
func (i *TokenIssuer) GenerateState(userID, provider string) (string, error) {
	now := i.now()
	claims := StateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{stateAudience},
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// VerifyState checks a returned state parameter and yields the user id it was issued for
func (i *TokenIssuer) VerifyState(state, provider string) (string, error) {
	claims := &StateClaims{}
	if err := i.parse(state, claims, stateAudience); err != nil {
		return "", err
	}
	if claims.Provider != provider || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (i *TokenIssuer) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential carries the bearer token and identity used by both channels.
// It is injected explicitly at construction time rather than read from a
// shared global.
type Credential struct {
	UserID      string
	DisplayName string
	Token       string
}

// Claims represents the claims in a Vortex bearer token
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken generates a signed bearer token for a user
func IssueToken(secret []byte, userID, displayName string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates a bearer token and returns its claims
func ValidateToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token missing user_id claim")
	}
	return claims, nil
}

// NewCredential issues a token for the user and wraps it with the identity
// fields needed at connect time.
func NewCredential(secret []byte, userID, displayName string, ttl time.Duration) (Credential, error) {
	token, err := IssueToken(secret, userID, displayName, ttl)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to issue token: %w", err)
	}
	return Credential{UserID: userID, DisplayName: displayName, Token: token}, nil
}

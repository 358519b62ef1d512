// Package auth issues and validates the session tokens presented during
// the websocket handshake.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-relay/errors"
)

const issuer = "chat-relay"

// SessionClaims is the data carried inside a session token. The name is
// embedded so the handshake does not need a user lookup to greet peers.
type SessionClaims struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates session tokens with a shared HMAC
// secret loaded from configuration.
type TokenManager struct {
	secret   []byte
	lifetime time.Duration
}

func NewTokenManager(secret string, lifetime time.Duration) TokenManager {
	return TokenManager{secret: []byte(secret), lifetime: lifetime}
}

// Generate creates a signed token for a user session.
func (m TokenManager) Generate(userID, userName string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID:   userID,
		UserName: userName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses a token string and checks signature and expiration.
// Every failure mode collapses to ErrInvalidToken towards the caller; the
// handshake does not distinguish why a token was rejected.
func (m TokenManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}

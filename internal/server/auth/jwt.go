// Package auth mints and validates the HS256 session tokens issued by
// the service. Two scopes exist: a short-lived two-step token handed
// out after primary authentication, only good for the two-factor
// endpoints, and a full access token issued once the one-time code
// verifies.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zecrypt/vault/internal/common"
)

// Scope restricts what a token may be used for.
type Scope string

const (
	// ScopeTwoStep only grants access to 2FA provisioning/verification.
	ScopeTwoStep Scope = "two_step"
	// ScopeFull grants access to vault operations.
	ScopeFull Scope = "full"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Scope  Scope  `json:"scope"`
}

// GenerateToken signs a token for userID with the given scope and
// validity.
func GenerateToken(userID string, scope Scope, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Scope:  scope,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates a token string and returns its claims.
// Expired tokens yield common.ErrTokenExpired, anything else invalid
// yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

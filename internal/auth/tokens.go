package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL bounds how long a session token stays valid. There is no
// server-side session table, so expiry (or rotating the secret) is the only
// invalidation path.
const TokenTTL = 6 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// Claims keeps the token minimal: account id in the registered Subject plus
// the role. No account snapshot is embedded, so a role change is picked up
// as soon as the old token expires.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// GenerateToken signs a {sub, role} claim set with HS256.
func GenerateToken(userID, role string, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenTTL)),
		},
		Role: role,
	})

	return token.SignedString(secret)
}

// ParseToken verifies signature and expiry and returns the claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// TokenInfo adapts token verification to the middleware's TokenVerifier
// interface without the middleware importing jwt directly.
type TokenInfo struct {
	Secret []byte
}

func (t TokenInfo) VerifyToken(tokenString string) (userID, role string, err error) {
	claims, err := ParseToken(tokenString, t.Secret)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Role, nil
}

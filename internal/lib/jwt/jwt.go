// Package jwt issues and verifies the two credential classes: short-lived
// signed access tokens and long-lived opaque refresh tokens.
package jwt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// TypeAccess discriminates access tokens from other token classes this
// signer produces (e.g. email verification tokens).
const TypeAccess = "access"

const refreshTokenBytes = 32

type Claims struct {
	UserID    int64  `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewAccessToken signs a stateless access token for the user. Validity is
// determined entirely by signature and embedded expiry.
func NewAccessToken(userID int64, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    userID,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString(secret)
}

// ParseAccessToken verifies signature, expiry and token class, returning
// the embedded user ID. A token presented at exactly its expiry instant
// is already expired.
func ParseAccessToken(tokenStr string, secret []byte) (int64, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}

	if !token.Valid {
		return 0, ErrInvalidToken
	}

	if claims.TokenType != TypeAccess {
		return 0, ErrWrongTokenType
	}

	return claims.UserID, nil
}

// NewRefreshToken produces an opaque random token with no embedded
// structure: 32 bytes of entropy, hex-encoded.
func NewRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("jwt.NewRefreshToken: %w", err)
	}

	return hex.EncodeToString(b), nil
}

package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken(42, testSecret, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	uid, err := ParseAccessToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := NewAccessToken(42, testSecret, -time.Second)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, testSecret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessTokenRejectedAtExactExpiryInstant(t *testing.T) {
	// A token whose exp equals "now" must be rejected, not accepted.
	now := time.Now()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		UserID:    42,
		TokenType: TypeAccess,
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwtlib.NewNumericDate(now),
		},
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)

	_, err = ParseAccessToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := NewAccessToken(42, testSecret, time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, []byte("other-secret"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenWrongType(t *testing.T) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		UserID:    42,
		TokenType: "verify",
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)

	_, err = ParseAccessToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestAccessTokenGarbage(t *testing.T) {
	_, err := ParseAccessToken("not-a-token", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRefreshTokenEntropy(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		token, err := NewRefreshToken()
		require.NoError(t, err)
		assert.Len(t, token, refreshTokenBytes*2)

		_, dup := seen[token]
		require.False(t, dup, "refresh tokens must not repeat")
		seen[token] = struct{}{}
	}
}

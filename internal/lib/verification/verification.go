// Package verification builds signed email-verification links and hands
// them to the mail queue. Verification is advisory: login never depends
// on it.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicescribe/internal/lib/logger"
	"voicescribe/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const purposeEmailVerification = "email_verification"

var ErrInvalidVerificationToken = errors.New("invalid verification token")

type Publisher interface {
	PublishEmailEvent(ctx context.Context, event models.EmailEvent) error
}

// SendVerificationEmail publishes a verification link for a freshly
// registered user. Publishing is best-effort: a broker failure must not
// fail the registration.
func SendVerificationEmail(
	ctx context.Context,
	log *slog.Logger,
	pub Publisher,
	userID int64,
	email string,
	baseURL string,
	secret string,
	ttl time.Duration,
) {
	token, err := newVerificationToken(userID, secret, ttl)
	if err != nil {
		log.Error("failed to build verification token", logger.Err(err))
		return
	}

	event := models.EmailEvent{
		Email:   email,
		Link:    fmt.Sprintf("%s/auth/verify?token=%s", baseURL, token),
		Purpose: purposeEmailVerification,
	}

	if err := pub.PublishEmailEvent(ctx, event); err != nil {
		log.Error("failed to publish verification email", logger.Err(err))
	}
}

// ParseToken validates a verification token and returns the user it was
// issued for.
func ParseToken(tokenStr, secret string) (int64, error) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidVerificationToken
	}

	if purpose, ok := claims["purpose"].(string); !ok || purpose != purposeEmailVerification {
		return 0, ErrInvalidVerificationToken
	}

	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, ErrInvalidVerificationToken
	}

	return int64(sub), nil
}

func newVerificationToken(userID int64, secret string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     userID,
		"purpose": purposeEmailVerification,
		"exp":     time.Now().Add(ttl).Unix(),
	})

	return token.SignedString([]byte(secret))
}

// Package auth orchestrates the session protocol: registration, login,
// refresh rotation, logout and user resolution.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voicescribe/internal/lib/jwt"
	sl "voicescribe/internal/lib/logger"
	"voicescribe/internal/lib/verification"
	"voicescribe/internal/metrics"
	"voicescribe/internal/models"
	"voicescribe/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password
	// alike: the caller must not learn which one it was.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrUserNotFound        = errors.New("user not found")
)

// TokenPair is the result of any operation that establishes a session.
// The refresh token leaves the server only via the cookie.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Auth struct {
	log          *slog.Logger
	users        storage.UserRepository
	ledger       storage.RefreshTokenRepository
	secret       []byte
	verifySecret string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	maxSessions  int
}

// New builds the auth service. maxSessions caps live refresh tokens per
// user; zero means unlimited concurrent sessions.
func New(
	log *slog.Logger,
	users storage.UserRepository,
	ledger storage.RefreshTokenRepository,
	secret, verifySecret string,
	accessTTL, refreshTTL time.Duration,
	maxSessions int,
) *Auth {
	return &Auth{
		log:          log,
		users:        users,
		ledger:       ledger,
		secret:       []byte(secret),
		verifySecret: verifySecret,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		maxSessions:  maxSessions,
	}
}

// RefreshTokenExpiry is the expiry stamped onto new and rotated ledger
// entries.
func (a *Auth) RefreshTokenExpiry() time.Time {
	return time.Now().Add(a.refreshTTL)
}

func (a *Auth) Register(ctx context.Context, email, password, displayName string) (models.User, TokenPair, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	email = NormalizeEmail(email)

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return models.User{}, TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.users.SaveUser(ctx, email, displayName, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("email already registered")
			return models.User{}, TokenPair{}, ErrEmailTaken
		}

		log.Error("failed to save user", sl.Err(err))
		return models.User{}, TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.issueSession(ctx, user.ID)
	if err != nil {
		log.Error("failed to issue session", sl.Err(err))
		return models.User{}, TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RegistrationsTotal.Inc()
	log.Info("user registered", slog.Int64("uid", user.ID))

	return user, pair, nil
}

func (a *Auth) Login(ctx context.Context, email, password string) (models.User, TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.UserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("login for unknown email")
			return models.User{}, TokenPair{}, ErrInvalidCredentials
		}

		log.Error("failed to load user", sl.Err(err))
		return models.User{}, TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("password mismatch", slog.Int64("uid", user.ID))
		return models.User{}, TokenPair{}, ErrInvalidCredentials
	}

	if err := a.users.TouchLastLogin(ctx, user.ID); err != nil {
		log.Error("failed to stamp last login", sl.Err(err))
		return models.User{}, TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.issueSession(ctx, user.ID)
	if err != nil {
		log.Error("failed to issue session", sl.Err(err))
		return models.User{}, TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()
	user.LastLoginAt = &now

	metrics.LoginsTotal.Inc()
	log.Info("user logged in", slog.Int64("uid", user.ID))

	return user, pair, nil
}

// Refresh rotates the presented refresh token and mints a new access
// token. The old token value is permanently dead afterwards; a reuse
// (including the loser of a concurrent double-refresh) gets
// ErrInvalidRefreshToken.
func (a *Auth) Refresh(ctx context.Context, rawRefreshToken string) (TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	rt, err := a.ledger.FindValidRefreshToken(ctx, rawRefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			metrics.RefreshFailuresTotal.Inc()
			log.Warn("refresh token not found or expired")
			return TokenPair{}, ErrInvalidRefreshToken
		}

		log.Error("failed to look up refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	newRefresh, err := jwt.NewRefreshToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := a.RefreshTokenExpiry()

	err = a.ledger.RotateRefreshToken(ctx, rawRefreshToken, newRefresh, expiresAt)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			// Lost the race against a concurrent refresh of the same token.
			metrics.RefreshFailuresTotal.Inc()
			log.Warn("refresh token rotated away concurrently")
			return TokenPair{}, ErrInvalidRefreshToken
		}

		log.Error("failed to rotate refresh token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := jwt.NewAccessToken(rt.UserID, a.secret, a.accessTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RefreshRotationsTotal.Inc()
	log.Info("session refreshed", slog.Int64("uid", rt.UserID))

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     newRefresh,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// Logout revokes the presented refresh token. Best-effort and
// idempotent: an absent or already-revoked token is not an error.
func (a *Auth) Logout(ctx context.Context, rawRefreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if rawRefreshToken == "" {
		return nil
	}

	if err := a.ledger.RevokeRefreshToken(ctx, rawRefreshToken); err != nil {
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out")

	return nil
}

// CurrentUser resolves the user behind a verified access token. The
// token can outlive its subject, hence ErrUserNotFound.
func (a *Auth) CurrentUser(ctx context.Context, userID int64) (models.User, error) {
	const op = "auth.CurrentUser"

	user, err := a.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// VerifyEmail consumes a verification link token and flips the user's
// email_verified flag.
func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	userID, err := verification.ParseToken(token, a.verifySecret)
	if err != nil {
		log.Warn("invalid verification token", sl.Err(err))
		return err
	}

	if err := a.users.SetEmailVerified(ctx, userID); err != nil {
		log.Error("failed to mark email verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.Int64("uid", userID))

	return nil
}

// Secret exposes the signing secret to the bearer middleware.
func (a *Auth) Secret() []byte {
	return a.secret
}

func (a *Auth) issueSession(ctx context.Context, userID int64) (TokenPair, error) {
	accessToken, err := jwt.NewAccessToken(userID, a.secret, a.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := jwt.NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}

	expiresAt := a.RefreshTokenExpiry()

	// A colliding token value means broken entropy; surface it, never
	// retry with the same value.
	if err := a.ledger.CreateRefreshToken(ctx, refreshToken, userID, expiresAt); err != nil {
		return TokenPair{}, err
	}

	if a.maxSessions > 0 {
		if err := a.ledger.TrimUserRefreshTokens(ctx, userID, a.maxSessions); err != nil {
			return TokenPair{}, err
		}
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// NormalizeEmail lowercases and trims an address so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

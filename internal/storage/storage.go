package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"voicescribe/internal/models"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrDuplicateToken       = errors.New("refresh token already exists")
	ErrRecordingNotFound    = errors.New("recording not found")
)

// HashToken digests an opaque refresh token for storage and lookup.
// Every ledger implementation keys rows by this digest so the plaintext
// token only ever lives in the client's cookie.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type UserRepository interface {
	SaveUser(ctx context.Context, email, displayName string, passHash []byte) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	TouchLastLogin(ctx context.Context, id int64) error
	SetEmailVerified(ctx context.Context, id int64) error
}

// RefreshTokenRepository is the ledger of outstanding refresh tokens.
//
// RotateRefreshToken must be atomic with respect to FindValidRefreshToken:
// two concurrent rotations of the same token value yield exactly one
// success; the loser sees ErrRefreshTokenNotFound. Expired rows are
// treated as absent by all reads.
type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, rawToken string, userID int64, expiresAt time.Time) error
	FindValidRefreshToken(ctx context.Context, rawToken string) (models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldRawToken, newRawToken string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, rawToken string) error
	TrimUserRefreshTokens(ctx context.Context, userID int64, max int) error
	PurgeExpiredRefreshTokens(ctx context.Context) (int64, error)
}

type RecordingRepository interface {
	SaveRecording(ctx context.Context, rec *models.Recording) error
	RecordingByID(ctx context.Context, id uuid.UUID) (models.Recording, error)
	RecordingsByUser(ctx context.Context, userID int64) ([]models.Recording, error)
	UpdateRecording(ctx context.Context, rec *models.Recording) error
	DeleteRecording(ctx context.Context, id uuid.UUID) error
}

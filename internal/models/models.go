package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            int64
	Email         string
	DisplayName   string
	PassHash      []byte
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastLoginAt   *time.Time
}

// Public returns the outward-facing view of a user. The password hash
// never leaves the server.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}

type PublicUser struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// RefreshToken is a ledger row. TokenHash is the SHA-256 digest of the
// opaque token value; the plaintext is never stored.
type RefreshToken struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Recording struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int64           `json:"-"`
	Title       string          `json:"title"`
	DurationSec float64         `json:"duration_sec"`
	AudioKey    string          `json:"-"`
	Transcript  string          `json:"transcript,omitempty"`
	Analysis    json.RawMessage `json:"analysis,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EmailEvent is published to the mail queue for the sender worker.
type EmailEvent struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}

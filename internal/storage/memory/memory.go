// Package memory is the in-memory storage backend, interchangeable with
// postgres and selected by configuration. It backs the test suites and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"voicescribe/internal/models"
	"voicescribe/internal/storage"

	"github.com/google/uuid"
)

type Repo struct {
	mu         sync.Mutex
	nextUserID int64
	users      map[int64]models.User
	emails     map[string]int64
	tokens     map[string]models.RefreshToken
	recordings map[uuid.UUID]models.Recording
}

func New() *Repo {
	return &Repo{
		nextUserID: 1,
		users:      make(map[int64]models.User),
		emails:     make(map[string]int64),
		tokens:     make(map[string]models.RefreshToken),
		recordings: make(map[uuid.UUID]models.Recording),
	}
}

func (r *Repo) SaveUser(_ context.Context, email, displayName string, passHash []byte) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.emails[email]; taken {
		return models.User{}, storage.ErrUserExists
	}

	now := time.Now()
	u := models.User{
		ID:          r.nextUserID,
		Email:       email,
		DisplayName: displayName,
		PassHash:    append([]byte(nil), passHash...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.nextUserID++
	r.users[u.ID] = u
	r.emails[email] = u.ID

	return u, nil
}

func (r *Repo) UserByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.emails[email]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return r.users[id], nil
}

func (r *Repo) UserByID(_ context.Context, id int64) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (r *Repo) TouchLastLogin(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	now := time.Now()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	r.users[id] = u

	return nil
}

func (r *Repo) SetEmailVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.EmailVerified = true
	u.UpdatedAt = time.Now()
	r.users[id] = u

	return nil
}

func (r *Repo) CreateRefreshToken(_ context.Context, rawToken string, userID int64, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := storage.HashToken(rawToken)
	if _, exists := r.tokens[hash]; exists {
		return storage.ErrDuplicateToken
	}

	r.tokens[hash] = models.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}

	return nil
}

func (r *Repo) FindValidRefreshToken(_ context.Context, rawToken string) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.tokens[storage.HashToken(rawToken)]
	if !ok || !rt.ExpiresAt.After(time.Now()) {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}

	return rt, nil
}

// RotateRefreshToken swaps the token value under one lock acquisition,
// so of two concurrent rotations of the same value exactly one succeeds.
func (r *Repo) RotateRefreshToken(_ context.Context, oldRawToken, newRawToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldHash := storage.HashToken(oldRawToken)

	rt, ok := r.tokens[oldHash]
	if !ok || !rt.ExpiresAt.After(time.Now()) {
		return storage.ErrRefreshTokenNotFound
	}

	newHash := storage.HashToken(newRawToken)
	if _, exists := r.tokens[newHash]; exists {
		return storage.ErrDuplicateToken
	}

	delete(r.tokens, oldHash)
	rt.TokenHash = newHash
	rt.ExpiresAt = expiresAt
	r.tokens[newHash] = rt

	return nil
}

func (r *Repo) RevokeRefreshToken(_ context.Context, rawToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, storage.HashToken(rawToken))

	return nil
}

func (r *Repo) TrimUserRefreshTokens(_ context.Context, userID int64, max int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned []models.RefreshToken
	for _, rt := range r.tokens {
		if rt.UserID == userID {
			owned = append(owned, rt)
		}
	}

	if len(owned) <= max {
		return nil
	}

	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	for _, rt := range owned[max:] {
		delete(r.tokens, rt.TokenHash)
	}

	return nil
}

func (r *Repo) PurgeExpiredRefreshTokens(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	var purged int64
	for hash, rt := range r.tokens {
		if !rt.ExpiresAt.After(now) {
			delete(r.tokens, hash)
			purged++
		}
	}

	return purged, nil
}

func (r *Repo) SaveRecording(_ context.Context, rec *models.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	r.recordings[rec.ID] = *rec

	return nil
}

func (r *Repo) RecordingByID(_ context.Context, id uuid.UUID) (models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.recordings[id]
	if !ok {
		return models.Recording{}, storage.ErrRecordingNotFound
	}

	return rec, nil
}

func (r *Repo) RecordingsByUser(_ context.Context, userID int64) ([]models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var recs []models.Recording
	for _, rec := range r.recordings {
		if rec.UserID == userID {
			recs = append(recs, rec)
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	return recs, nil
}

func (r *Repo) UpdateRecording(_ context.Context, rec *models.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recordings[rec.ID]; !ok {
		return storage.ErrRecordingNotFound
	}

	rec.UpdatedAt = time.Now()
	r.recordings[rec.ID] = *rec

	return nil
}

func (r *Repo) DeleteRecording(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.recordings, id)

	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voicescribe/internal/models"
	"voicescribe/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repo is the durable store backing users, the refresh-token ledger and
// recording metadata.
type Repo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Repo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &Repo{pool: pool}, nil
}

func (r *Repo) SaveUser(ctx context.Context, email, displayName string, passHash []byte) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, display_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, display_name, password_hash, email_verified,
		          created_at, updated_at, last_login_at;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, email, displayName, passHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *Repo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, email_verified,
		       created_at, updated_at, last_login_at
		FROM users
		WHERE email = $1;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, err
}

func (r *Repo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, email_verified,
		       created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1;
	`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, err
}

func (r *Repo) TouchLastLogin(ctx context.Context, id int64) error {
	query := `UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)

	return err
}

func (r *Repo) SetEmailVerified(ctx context.Context, id int64) error {
	query := `UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)

	return err
}

func (r *Repo) CreateRefreshToken(ctx context.Context, rawToken string, userID int64, expiresAt time.Time) error {
	const op = "storage.postgres.CreateRefreshToken"

	query := `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.pool.Exec(ctx, query, storage.HashToken(rawToken), userID, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrDuplicateToken
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Repo) FindValidRefreshToken(ctx context.Context, rawToken string) (models.RefreshToken, error) {
	query := `
		SELECT token_hash, user_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > NOW();
	`

	var rt models.RefreshToken

	err := r.pool.QueryRow(ctx, query, storage.HashToken(rawToken)).Scan(
		&rt.TokenHash,
		&rt.UserID,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}

	return rt, err
}

// RotateRefreshToken replaces the token value on the existing row.
// The expiry guard in the WHERE clause makes the swap a compare-and-set:
// of two concurrent rotations of the same value exactly one updates a row,
// the other matches nothing and fails.
func (r *Repo) RotateRefreshToken(ctx context.Context, oldRawToken, newRawToken string, expiresAt time.Time) error {
	const op = "storage.postgres.RotateRefreshToken"

	query := `
		UPDATE refresh_tokens
		SET token_hash = $2, expires_at = $3
		WHERE token_hash = $1 AND expires_at > NOW()
	`

	tag, err := r.pool.Exec(ctx, query,
		storage.HashToken(oldRawToken), storage.HashToken(newRawToken), expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrDuplicateToken
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrRefreshTokenNotFound
	}

	return nil
}

func (r *Repo) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`

	_, err := r.pool.Exec(ctx, query, storage.HashToken(rawToken))

	return err
}

func (r *Repo) TrimUserRefreshTokens(ctx context.Context, userID int64, max int) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND token_hash NOT IN (
			SELECT token_hash FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)
	`

	_, err := r.pool.Exec(ctx, query, userID, max)

	return err
}

func (r *Repo) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (r *Repo) SaveRecording(ctx context.Context, rec *models.Recording) error {
	const op = "storage.postgres.SaveRecording"

	query := `
		INSERT INTO recordings (id, user_id, title, duration_sec, audio_key, transcript, analysis)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at;
	`

	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.UserID, rec.Title, rec.DurationSec,
		rec.AudioKey, rec.Transcript, rec.Analysis,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Repo) RecordingByID(ctx context.Context, id uuid.UUID) (models.Recording, error) {
	query := `
		SELECT id, user_id, title, duration_sec, audio_key, transcript, analysis,
		       created_at, updated_at
		FROM recordings
		WHERE id = $1;
	`

	rec, err := scanRecording(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Recording{}, storage.ErrRecordingNotFound
	}

	return rec, err
}

func (r *Repo) RecordingsByUser(ctx context.Context, userID int64) ([]models.Recording, error) {
	query := `
		SELECT id, user_id, title, duration_sec, audio_key, transcript, analysis,
		       created_at, updated_at
		FROM recordings
		WHERE user_id = $1
		ORDER BY created_at DESC;
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func (r *Repo) UpdateRecording(ctx context.Context, rec *models.Recording) error {
	query := `
		UPDATE recordings
		SET title = $2, duration_sec = $3, audio_key = $4, transcript = $5,
		    analysis = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at;
	`

	err := r.pool.QueryRow(ctx, query,
		rec.ID, rec.Title, rec.DurationSec, rec.AudioKey, rec.Transcript, rec.Analysis,
	).Scan(&rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrRecordingNotFound
	}

	return err
}

func (r *Repo) DeleteRecording(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM recordings WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)

	return err
}

func (r *Repo) Close() {
	r.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PassHash,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.LastLoginAt,
	)

	return u, err
}

func scanRecording(row rowScanner) (models.Recording, error) {
	var rec models.Recording

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Title,
		&rec.DurationSec,
		&rec.AudioKey,
		&rec.Transcript,
		&rec.Analysis,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	return rec, err
}

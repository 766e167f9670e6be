// Package redis is a refresh-token ledger backed by Redis. Expiry is
// storage-native: every row carries a TTL, so stale tokens vanish from
// all reads without a sweeper.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voicescribe/internal/models"
	"voicescribe/internal/storage"

	"github.com/redis/go-redis/v9"
)

type Ledger struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*Ledger, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Ledger{client: client}, nil
}

type tokenRow struct {
	UserID    int64 `json:"user_id"`
	ExpiresAt int64 `json:"expires_at"`
	CreatedAt int64 `json:"created_at"`
}

// rotateScript is the ledger's compare-and-set: delete-old plus set-new
// runs as one atomic unit, so a concurrent rotation of the same value
// loses cleanly (0) instead of minting a second live token.
//
// KEYS[1] = old token key, KEYS[2] = new token key
// ARGV[1] = new expiry, unix milliseconds
// Returns 1 on success, 0 if the old token is gone, -1 on new-key collision.
var rotateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return -1
end
local v = redis.call('GET', KEYS[1])
if not v then
	return 0
end
local row = cjson.decode(v)
row['expires_at'] = math.floor(tonumber(ARGV[1]) / 1000)
redis.call('DEL', KEYS[1])
redis.call('SET', KEYS[2], cjson.encode(row), 'PXAT', ARGV[1])
return 1
`)

func tokenKey(hash string) string {
	return "refresh:" + hash
}

func sessionsKey(userID int64) string {
	return fmt.Sprintf("sessions:%d", userID)
}

func (l *Ledger) CreateRefreshToken(ctx context.Context, rawToken string, userID int64, expiresAt time.Time) error {
	const op = "storage.redis.CreateRefreshToken"

	hash := storage.HashToken(rawToken)
	now := time.Now()

	body, err := json.Marshal(tokenRow{
		UserID:    userID,
		ExpiresAt: expiresAt.Unix(),
		CreatedAt: now.Unix(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := l.client.SetNX(ctx, tokenKey(hash), body, time.Until(expiresAt)).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return storage.ErrDuplicateToken
	}

	// Advisory per-user index for the session cap.
	err = l.client.ZAdd(ctx, sessionsKey(userID), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: hash,
	}).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (l *Ledger) FindValidRefreshToken(ctx context.Context, rawToken string) (models.RefreshToken, error) {
	const op = "storage.redis.FindValidRefreshToken"

	hash := storage.HashToken(rawToken)

	body, err := l.client.Get(ctx, tokenKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	var row tokenRow
	if err := json.Unmarshal(body, &row); err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	rt := models.RefreshToken{
		TokenHash: hash,
		UserID:    row.UserID,
		ExpiresAt: time.Unix(row.ExpiresAt, 0),
		CreatedAt: time.Unix(row.CreatedAt, 0),
	}

	// The TTL normally guarantees this, but clocks can disagree.
	if !rt.ExpiresAt.After(time.Now()) {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}

	return rt, nil
}

func (l *Ledger) RotateRefreshToken(ctx context.Context, oldRawToken, newRawToken string, expiresAt time.Time) error {
	const op = "storage.redis.RotateRefreshToken"

	oldHash := storage.HashToken(oldRawToken)
	newHash := storage.HashToken(newRawToken)

	res, err := rotateScript.Run(ctx, l.client,
		[]string{tokenKey(oldHash), tokenKey(newHash)},
		expiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch res {
	case 1:
	case -1:
		return storage.ErrDuplicateToken
	default:
		return storage.ErrRefreshTokenNotFound
	}

	// Re-point the per-user index at the new value.
	rt, err := l.FindValidRefreshToken(ctx, newRawToken)
	if err != nil {
		return nil
	}

	pipe := l.client.Pipeline()
	pipe.ZRem(ctx, sessionsKey(rt.UserID), oldHash)
	pipe.ZAdd(ctx, sessionsKey(rt.UserID), redis.Z{
		Score:  float64(rt.CreatedAt.UnixNano()),
		Member: newHash,
	})
	_, _ = pipe.Exec(ctx)

	return nil
}

func (l *Ledger) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	const op = "storage.redis.RevokeRefreshToken"

	hash := storage.HashToken(rawToken)

	rt, err := l.FindValidRefreshToken(ctx, rawToken)
	if err == nil {
		_ = l.client.ZRem(ctx, sessionsKey(rt.UserID), hash).Err()
	}

	if err := l.client.Del(ctx, tokenKey(hash)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (l *Ledger) TrimUserRefreshTokens(ctx context.Context, userID int64, max int) error {
	const op = "storage.redis.TrimUserRefreshTokens"

	// Oldest first; everything beyond the newest `max` goes.
	hashes, err := l.client.ZRange(ctx, sessionsKey(userID), 0, int64(-max-1)).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if len(hashes) == 0 {
		return nil
	}

	pipe := l.client.Pipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, tokenKey(hash))
		pipe.ZRem(ctx, sessionsKey(userID), hash)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PurgeExpiredRefreshTokens is a no-op: Redis TTLs remove rows natively.
func (l *Ledger) PurgeExpiredRefreshTokens(context.Context) (int64, error) {
	return 0, nil
}

func (l *Ledger) Close() {
	_ = l.client.Close()
}

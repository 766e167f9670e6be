package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"voicescribe/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUserEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := New()

	_, err := repo.SaveUser(ctx, "a@example.com", "A", []byte("hash"))
	require.NoError(t, err)

	_, err = repo.SaveUser(ctx, "a@example.com", "B", []byte("hash"))
	assert.ErrorIs(t, err, storage.ErrUserExists)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := New()

	err := repo.CreateRefreshToken(ctx, "tok-1", 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	rt, err := repo.FindValidRefreshToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.UserID)

	// Duplicate token value is a hard error.
	err = repo.CreateRefreshToken(ctx, "tok-1", 2, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrDuplicateToken)

	// Rotation: old value gone, new value live, same owner.
	err = repo.RotateRefreshToken(ctx, "tok-1", "tok-2", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = repo.FindValidRefreshToken(ctx, "tok-1")
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)

	rt, err = repo.FindValidRefreshToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.UserID)

	// Revoke is idempotent.
	require.NoError(t, repo.RevokeRefreshToken(ctx, "tok-2"))
	require.NoError(t, repo.RevokeRefreshToken(ctx, "tok-2"))
}

func TestExpiredTokenTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	repo := New()

	err := repo.CreateRefreshToken(ctx, "stale", 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = repo.FindValidRefreshToken(ctx, "stale")
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)

	err = repo.RotateRefreshToken(ctx, "stale", "fresh", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)

	purged, err := repo.PurgeExpiredRefreshTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestConcurrentRotationExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := New()

	err := repo.CreateRefreshToken(ctx, "shared", 1, time.Now().Add(time.Hour))
	require.NoError(t, err)

	results := make([]error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			newToken := "rotated-a"
			if i == 1 {
				newToken = "rotated-b"
			}
			results[i] = repo.RotateRefreshToken(ctx, "shared", newToken, time.Now().Add(time.Hour))
		}(i)
	}
	wg.Wait()

	var successes, failures int
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)
			failures++
		}
	}

	assert.Equal(t, 1, successes, "exactly one rotation must win")
	assert.Equal(t, 1, failures)

	// Exactly one live row remains, under the winner's value.
	live := 0
	for _, tok := range []string{"shared", "rotated-a", "rotated-b"} {
		if _, err := repo.FindValidRefreshToken(ctx, tok); err == nil {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestTrimUserRefreshTokens(t *testing.T) {
	ctx := context.Background()
	repo := New()

	for _, tok := range []string{"s1", "s2", "s3"} {
		require.NoError(t, repo.CreateRefreshToken(ctx, tok, 1, time.Now().Add(time.Hour)))
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, repo.TrimUserRefreshTokens(ctx, 1, 2))

	_, err := repo.FindValidRefreshToken(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound, "oldest session must be dropped")

	for _, tok := range []string{"s2", "s3"} {
		_, err := repo.FindValidRefreshToken(ctx, tok)
		assert.NoError(t, err)
	}
}

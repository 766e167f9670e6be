package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"voicescribe/internal/lib/jwt"
	"voicescribe/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret       = "access-secret"
	testVerifySecret = "verify-secret"
	testPassword     = "Abcd1234"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()

	repo := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(log, repo, repo, testSecret, testVerifySecret, 15*time.Minute, 7*24*time.Hour, 0)
}

func TestRegisterIssuesMatchingAccessToken(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	user, pair, err := a.Register(ctx, "a@x.com", testPassword, "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	uid, err := jwt.ParseAccessToken(pair.AccessToken, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, user.ID, uid)
}

func TestRegisterNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	_, _, err := a.Register(ctx, "  A@X.Com ", testPassword, "Alice")
	require.NoError(t, err)

	_, _, err = a.Register(ctx, "a@x.com", testPassword, "Imposter")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, _, err = a.Login(ctx, "A@x.COM", testPassword)
	assert.NoError(t, err)
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	_, _, err := a.Register(ctx, "a@x.com", testPassword, "Alice")
	require.NoError(t, err)

	_, _, wrongPass := a.Login(ctx, "a@x.com", "WrongPass1")
	_, _, unknownEmail := a.Login(ctx, "nobody@x.com", testPassword)

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPass.Error(), unknownEmail.Error())
}

func TestLoginStampsLastLogin(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	_, _, err := a.Register(ctx, "a@x.com", testPassword, "Alice")
	require.NoError(t, err)

	user, _, err := a.Login(ctx, "a@x.com", testPassword)
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)
	assert.WithinDuration(t, time.Now(), *user.LastLoginAt, time.Second)
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	_, pair, err := a.Register(ctx, "a@x.com", testPassword, "Alice")
	require.NoError(t, err)

	rotated, err := a.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The pre-rotation value is permanently dead.
	_, err = a.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// The rotated value works.
	_, err = a.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	_, err := a.Refresh(ctx, "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	_, pair, err := a.Register(ctx, "a@x.com", testPassword, "Alice")
	require.NoError(t, err)

	require.NoError(t, a.Logout(ctx, pair.RefreshToken))
	require.NoError(t, a.Logout(ctx, pair.RefreshToken))
	require.NoError(t, a.Logout(ctx, ""))

	_, err = a.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	user, _, err := a.Register(ctx, "a@x.com", testPassword, "Alice")
	require.NoError(t, err)

	got, err := a.CurrentUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = a.CurrentUser(ctx, user.ID+1000)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSessionCapTrimsOldest(t *testing.T) {
	ctx := context.Background()

	repo := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(log, repo, repo, testSecret, testVerifySecret, 15*time.Minute, 7*24*time.Hour, 2)

	_, first, err := a.Register(ctx, "a@x.com", testPassword, "Alice")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, _, err = a.Login(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, _, err = a.Login(ctx, "a@x.com", testPassword)
	require.NoError(t, err)

	// Third session pushed the registration session out.
	_, err = a.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

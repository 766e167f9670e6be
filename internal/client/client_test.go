package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unauthorized(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"status": "Error",
		"error":  "unauthorized",
		"code":   code,
	})
}

// waitForWaiters blocks until the session has a refresh in flight with
// n queued waiters, or the deadline passes.
func waitForWaiters(t *testing.T, s *session, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ok := s.refreshing && len(s.waiters) == n
		s.mu.Unlock()

		if ok {
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatal("refresh never reached the expected waiter count")
}

func TestConcurrentRenewalsCollapseToOneRefresh(t *testing.T) {
	var (
		refreshCalls atomic.Int64
		proceed      = make(chan struct{})
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			unauthorized(w, "UNAUTHENTICATED")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{"id": 1, "email": "a@x.com"},
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		<-proceed
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "fresh"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	c.sess.setLoggedIn("stale", time.Now())

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}()
	}

	// The refresh handler is parked on proceed, so the first caller is
	// mid-refresh; once the second caller is queued behind it both are
	// provably overlapping and the refresh may complete.
	waitForWaiters(t, c.sess, 1)
	close(proceed)

	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(1), refreshCalls.Load())
	assert.Equal(t, "fresh", c.sess.token())
}

func TestRenewalFailureExpiresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		unauthorized(w, "UNAUTHENTICATED")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		unauthorized(w, "INVALID_REFRESH_TOKEN")
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	statePath := filepath.Join(t.TempDir(), "session.json")
	expired := make(chan struct{})

	c, err := New(Options{
		BaseURL:          srv.URL,
		StatePath:        statePath,
		RedirectDelay:    time.Millisecond,
		OnSessionExpired: func() { close(expired) },
	})
	require.NoError(t, err)

	c.sess.setLoggedIn("stale", time.Now())
	c.persist()

	_, err = c.Me(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("session-expired hook never fired")
	}

	assert.Empty(t, c.sess.token())

	_, statErr := os.Stat(statePath)
	assert.True(t, os.IsNotExist(statErr), "state file should be removed")
}

func TestProtectedCallReplaysExactlyOnce(t *testing.T) {
	var meCalls, refreshCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		meCalls.Add(1)
		unauthorized(w, "UNAUTHENTICATED")
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "fresh"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	c.sess.setLoggedIn("stale", time.Now())

	_, err = c.Me(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	// one original attempt plus one replay, never a refresh loop
	assert.Equal(t, int64(2), meCalls.Load())
	assert.Equal(t, int64(1), refreshCalls.Load())
}

func TestTransportErrorDoesNotTriggerRefresh(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // leave a dead address behind

	c, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	c.sess.setLoggedIn("stale", time.Now())

	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, "stale", c.sess.token(), "token must survive transport failures")
}

func TestPersistedSessionRestoredOnStartup(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")

	require.NoError(t, saveState(statePath, persistedState{
		Version:     ProtocolVersion,
		AccessToken: "restored",
		LoggedInAt:  time.Now().Add(-time.Hour),
	}))

	c, err := New(Options{BaseURL: "http://localhost:0", StatePath: statePath})
	require.NoError(t, err)

	assert.Equal(t, "restored", c.sess.token())
}

func TestPersistedSessionDiscardedOnVersionMismatch(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")

	require.NoError(t, saveState(statePath, persistedState{
		Version:     "0",
		AccessToken: "ancient",
		LoggedInAt:  time.Now(),
	}))

	c, err := New(Options{BaseURL: "http://localhost:0", StatePath: statePath})
	require.NoError(t, err)

	assert.Empty(t, c.sess.token())

	_, statErr := os.Stat(statePath)
	assert.True(t, os.IsNotExist(statErr), "mismatched state file should be removed")
}

func TestPersistedSessionDiscardedPastCeiling(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "session.json")

	require.NoError(t, saveState(statePath, persistedState{
		Version:     ProtocolVersion,
		AccessToken: "over-the-hill",
		LoggedInAt:  time.Now().Add(-8 * 24 * time.Hour),
	}))

	c, err := New(Options{BaseURL: "http://localhost:0", StatePath: statePath})
	require.NoError(t, err)

	assert.Empty(t, c.sess.token())
}

func TestSessionCeilingDropsLiveToken(t *testing.T) {
	c, err := New(Options{BaseURL: "http://localhost:0", SessionMaxAge: time.Hour})
	require.NoError(t, err)

	c.sess.setLoggedIn("old", time.Now().Add(-2*time.Hour))

	assert.Empty(t, c.sess.token())
}

func TestWaiterHonorsContextCancellation(t *testing.T) {
	s := &session{maxAge: time.Hour}

	_, claimed := s.beginRefresh()
	require.True(t, claimed)

	wait, claimed := s.beginRefresh()
	require.False(t, claimed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	select {
	case <-ctx.Done():
	case <-wait:
		t.Fatal("waiter resolved before the refresh finished")
	}

	// the abandoned waiter must not wedge the finishing refresher
	done := make(chan struct{})
	go func() {
		s.finishRefresh("t", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("finishRefresh blocked on an abandoned waiter")
	}
}

package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voicescribe/internal/auth"
	"voicescribe/internal/clients/speech"
	httpserver "voicescribe/internal/http_server"
	"voicescribe/internal/lib/api/cookie"
	"voicescribe/internal/lib/jwt"
	"voicescribe/internal/storage/memory"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "test-signing-secret"
	validPassword = "Abcd1234"
)

type stubAudio struct {
	objects map[string][]byte
}

func (s *stubAudio) Put(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = data
	return nil
}

func (s *stubAudio) PresignGet(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key + "?signed=1", nil
}

func (s *stubAudio) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, io.Reader, string) (speech.Result, error) {
	return speech.Result{Text: "hello world", DurationSec: 1.5}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, string, string) (json.RawMessage, error) {
	return json.RawMessage(`{"clarity": 0.9}`), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()

	authService := auth.New(
		log, repo, repo,
		testSecret, "verify-secret",
		15*time.Minute, 7*24*time.Hour,
		0,
	)

	srv := httptest.NewServer(httpserver.NewRouter(httpserver.Deps{
		Log:         log,
		Auth:        authService,
		Recordings:  repo,
		Audio:       &stubAudio{},
		Transcriber: stubTranscriber{},
		Analyzer:    stubAnalyzer{},
	}))
	t.Cleanup(srv.Close)

	return srv
}

type envelope struct {
	Status      string          `json:"status"`
	Error       string          `json:"error"`
	Code        string          `json:"code"`
	Message     string          `json:"message"`
	AccessToken string          `json:"accessToken"`
	User        json.RawMessage `json:"user"`
}

func postJSON(t *testing.T, url string, body any, mod ...func(*http.Request)) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	for _, m := range mod {
		m(req)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	var env envelope
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	require.NoError(t, json.Unmarshal(data, &env))

	return res, env
}

func withRefreshCookie(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: cookie.RefreshName, Value: token})
	}
}

func refreshCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range res.Cookies() {
		if c.Name == cookie.RefreshName {
			return c
		}
	}

	t.Fatal("refresh cookie not set")
	return nil
}

func register(t *testing.T, srv *httptest.Server, email, password string) (env envelope, refresh string) {
	t.Helper()

	res, env := postJSON(t, srv.URL+"/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"nickname": gofakeit.Username(),
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NotEmpty(t, env.AccessToken)

	return env, refreshCookie(t, res).Value
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	email := gofakeit.Email()

	// registration opens a session: access token in the body, refresh
	// token only in an HTTP-only cookie scoped to /auth
	res, env := postJSON(t, srv.URL+"/auth/register", map[string]string{
		"email":    email,
		"password": validPassword,
		"nickname": "speaker",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NotEmpty(t, env.AccessToken)

	c := refreshCookie(t, res)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/auth", c.Path)
	assert.NotEmpty(t, c.Value)

	// wrong password and unknown email are indistinguishable
	res, env = postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email":    email,
		"password": "WrongPass1",
	})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Code)

	res, env = postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email":    gofakeit.Email(),
		"password": validPassword,
	})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Code)

	// refresh without the cookie
	res, env = postJSON(t, srv.URL+"/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "MISSING_TOKEN", env.Code)

	// a real login issues a fresh refresh token
	res, env = postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email":    email,
		"password": validPassword,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, env.AccessToken)
	r1 := refreshCookie(t, res).Value

	// rotation: R1 is consumed and replaced by R2
	res, env = postJSON(t, srv.URL+"/auth/refresh", nil, withRefreshCookie(r1))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, env.AccessToken)
	r2 := refreshCookie(t, res).Value
	require.NotEqual(t, r1, r2)

	// replaying the consumed token is rejected and the cookie is cleared
	res, env = postJSON(t, srv.URL+"/auth/refresh", nil, withRefreshCookie(r1))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", env.Code)

	cleared := refreshCookie(t, res)
	assert.Less(t, cleared.MaxAge, 0)

	// the rotation's successor still works
	res, _ = postJSON(t, srv.URL+"/auth/refresh", nil, withRefreshCookie(r2))
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	srv := newTestServer(t)

	_, refresh := register(t, srv, gofakeit.Email(), validPassword)

	res, _ := postJSON(t, srv.URL+"/auth/logout", nil, withRefreshCookie(refresh))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Less(t, refreshCookie(t, res).MaxAge, 0)

	// revoked token is gone for good
	res, env := postJSON(t, srv.URL+"/auth/refresh", nil, withRefreshCookie(refresh))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", env.Code)

	// logout is idempotent, with or without a cookie
	res, _ = postJSON(t, srv.URL+"/auth/logout", nil, withRefreshCookie(refresh))
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = postJSON(t, srv.URL+"/auth/logout", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRegisterValidationListsEveryViolation(t *testing.T) {
	srv := newTestServer(t)

	res, env := postJSON(t, srv.URL+"/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	// every violated rule is reported at once, not just the first
	assert.Contains(t, env.Error, "email")
	assert.Contains(t, env.Error, "8 characters")
	assert.Contains(t, env.Error, "upper-case")
	assert.Contains(t, env.Error, "digit")
}

func TestRegisterDuplicateEmailIsCaseInsensitive(t *testing.T) {
	srv := newTestServer(t)

	register(t, srv, "taken@example.com", validPassword)

	res, env := postJSON(t, srv.URL+"/auth/register", map[string]string{
		"email":    "TAKEN@Example.COM",
		"password": validPassword,
	})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "EMAIL_TAKEN", env.Code)
}

func TestMe(t *testing.T) {
	srv := newTestServer(t)
	email := gofakeit.Email()

	env, _ := register(t, srv, email, validPassword)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.AccessToken)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, email, body.User.Email)
}

func TestBearerRejectionDiscriminators(t *testing.T) {
	srv := newTestServer(t)

	expired, err := jwt.NewAccessToken(1, []byte(testSecret), -time.Minute)
	require.NoError(t, err)

	wrongKey, err := jwt.NewAccessToken(1, []byte("some-other-secret"), time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "UNAUTHENTICATED"},
		{"not a bearer scheme", "Basic abc", "UNAUTHENTICATED"},
		{"garbage token", "Bearer not.a.jwt", "UNAUTHENTICATED"},
		{"wrong signing key", "Bearer " + wrongKey, "UNAUTHENTICATED"},
		{"expired token", "Bearer " + expired, "TOKEN_EXPIRED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
			require.NoError(t, err)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			res, err := http.DefaultClient.Do(req)
			require.NoError(t, err)

			var env envelope
			require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
			require.NoError(t, res.Body.Close())

			assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
			assert.Equal(t, tc.code, env.Code)
		})
	}
}

func TestRecordingsAreOwnerScoped(t *testing.T) {
	srv := newTestServer(t)

	alice, _ := register(t, srv, gofakeit.Email(), validPassword)
	bob, _ := register(t, srv, gofakeit.Email(), validPassword)

	// alice creates a recording
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/recordings",
		bytes.NewReader([]byte(`{"title":"standup","duration_sec":42.5}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+alice.AccessToken)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	var created struct {
		Recording struct {
			ID string `json:"id"`
		} `json:"recording"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	require.NoError(t, res.Body.Close())
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NotEmpty(t, created.Recording.ID)

	get := func(token string) (*http.Response, envelope) {
		req, err := http.NewRequest(http.MethodGet,
			fmt.Sprintf("%s/api/recordings/%s", srv.URL, created.Recording.ID), nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var env envelope
		require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
		require.NoError(t, res.Body.Close())

		return res, env
	}

	res, _ = get(alice.AccessToken)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// someone else's recording is indistinguishable from a missing one
	res, env := get(bob.AccessToken)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "RECORDING_NOT_FOUND", env.Code)
}

func TestAnalyzeRequiresText(t *testing.T) {
	srv := newTestServer(t)

	user, _ := register(t, srv, gofakeit.Email(), validPassword)
	bearer := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+user.AccessToken)
	}

	res, env := postJSON(t, srv.URL+"/api/analyze", map[string]string{"scenario": "interview"}, bearer)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	res, _ = postJSON(t, srv.URL+"/api/analyze", map[string]string{"text": "hello"}, bearer)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

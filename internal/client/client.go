// Package client is the API client for a voicescribe server. It keeps
// the session alive transparently: the access token is attached to
// every protected call, a 401 triggers exactly one refresh per request,
// and concurrent refreshes collapse into a single /auth/refresh call so
// the rotating refresh token is never raced.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"voicescribe/internal/models"
)

// ProtocolVersion marks the client/server contract generation. Bumping
// it invalidates every persisted session, regardless of token validity.
const ProtocolVersion = "1"

const (
	defaultSessionMaxAge = 7 * 24 * time.Hour
	defaultRedirectDelay = 2 * time.Second
)

// ErrSessionExpired is returned when renewal itself fails: the caller
// must re-authenticate.
var ErrSessionExpired = errors.New("session expired, re-authentication required")

// APIError is a server-side rejection. Callers branch on Code, never on
// the message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type Options struct {
	BaseURL string
	Log     *slog.Logger

	// StatePath persists the session across process restarts; empty
	// disables persistence.
	StatePath string

	// SessionMaxAge is the client-side absolute session ceiling.
	SessionMaxAge time.Duration

	// OnSessionExpired runs (after RedirectDelay) when renewal fails
	// terminally; UIs hook their re-authentication navigation here.
	OnSessionExpired func()
	RedirectDelay    time.Duration
}

type Client struct {
	baseURL       string
	http          *http.Client
	log           *slog.Logger
	sess          *session
	statePath     string
	onExpired     func()
	redirectDelay time.Duration
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("client: base URL required")
	}

	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.SessionMaxAge == 0 {
		opts.SessionMaxAge = defaultSessionMaxAge
	}
	if opts.RedirectDelay == 0 {
		opts.RedirectDelay = defaultRedirectDelay
	}

	// The refresh token lives in an HTTP-only cookie the client never
	// reads; the jar carries it to /auth/refresh and /auth/logout.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	c := &Client{
		baseURL: opts.BaseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		log:           opts.Log,
		sess:          &session{maxAge: opts.SessionMaxAge},
		statePath:     opts.StatePath,
		onExpired:     opts.OnSessionExpired,
		redirectDelay: opts.RedirectDelay,
	}

	if st, ok := loadState(opts.StatePath, ProtocolVersion, opts.SessionMaxAge); ok {
		c.sess.setLoggedIn(st.AccessToken, st.LoggedInAt)
	}

	return c, nil
}

type authResponse struct {
	Message     string            `json:"message"`
	User        models.PublicUser `json:"user"`
	AccessToken string            `json:"accessToken"`
}

func (c *Client) Register(ctx context.Context, email, password, nickname string) (models.PublicUser, error) {
	var res authResponse

	err := c.doJSON(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"nickname": nickname,
	}, &res, false)
	if err != nil {
		return models.PublicUser{}, err
	}

	c.establishSession(res.AccessToken)

	return res.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (models.PublicUser, error) {
	var res authResponse

	err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &res, false)
	if err != nil {
		return models.PublicUser{}, err
	}

	c.establishSession(res.AccessToken)

	return res.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, false)

	c.sess.clear()
	clearState(c.statePath)

	return err
}

func (c *Client) Me(ctx context.Context) (models.PublicUser, error) {
	var res struct {
		User models.PublicUser `json:"user"`
	}

	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &res, true); err != nil {
		return models.PublicUser{}, err
	}

	return res.User, nil
}

func (c *Client) Recordings(ctx context.Context) ([]models.Recording, error) {
	var res struct {
		Recordings []models.Recording `json:"recordings"`
	}

	if err := c.doJSON(ctx, http.MethodGet, "/api/recordings", nil, &res, true); err != nil {
		return nil, err
	}

	return res.Recordings, nil
}

func (c *Client) CreateRecording(ctx context.Context, title string, durationSec float64) (models.Recording, error) {
	var res struct {
		Recording models.Recording `json:"recording"`
	}

	err := c.doJSON(ctx, http.MethodPost, "/api/recordings", map[string]any{
		"title":        title,
		"duration_sec": durationSec,
	}, &res, true)
	if err != nil {
		return models.Recording{}, err
	}

	return res.Recording, nil
}

func (c *Client) Analyze(ctx context.Context, text, scenario string) (json.RawMessage, error) {
	var res struct {
		Analysis json.RawMessage `json:"analysis"`
	}

	err := c.doJSON(ctx, http.MethodPost, "/api/analyze", map[string]string{
		"text":     text,
		"scenario": scenario,
	}, &res, true)
	if err != nil {
		return nil, err
	}

	return res.Analysis, nil
}

// doJSON runs one API call. For protected calls a 401 response triggers
// the renewal protocol and exactly one replay; a second 401 on the
// replayed request is surfaced as-is, never another refresh. Transport
// errors (no response at all) never trigger renewal.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, out any, protected bool) error {
	var payload []byte
	if reqBody != nil {
		var err error
		if payload, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("client: %w", err)
		}
	}

	res, err := c.send(ctx, method, path, payload, protected)
	if err != nil {
		return err
	}

	if protected && res.StatusCode == http.StatusUnauthorized {
		drain(res)

		if err := c.renew(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}

		if res, err = c.send(ctx, method, path, payload, protected); err != nil {
			return err
		}
	}

	defer drain(res)

	if res.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(res)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, protected bool) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if protected {
		if token := c.sess.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return c.http.Do(req)
}

// renew obtains a fresh access token, collapsing concurrent callers
// into one /auth/refresh round trip. Losers of the claim suspend until
// the in-flight refresh settles and share its outcome.
func (c *Client) renew(ctx context.Context) error {
	wait, claimed := c.sess.beginRefresh()
	if !claimed {
		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	token, err := c.callRefresh(ctx)
	c.sess.finishRefresh(token, err)

	if err != nil {
		c.log.Warn("session renewal failed", slog.String("err", err.Error()))
		clearState(c.statePath)
		c.scheduleExpiry()
		return err
	}

	c.persist()

	return nil
}

func (c *Client) callRefresh(ctx context.Context) (string, error) {
	res, err := c.send(ctx, http.MethodPost, "/auth/refresh", nil, false)
	if err != nil {
		return "", err
	}
	defer drain(res)

	if res.StatusCode != http.StatusOK {
		return "", decodeAPIError(res)
	}

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("client: decode refresh response: %w", err)
	}

	return body.AccessToken, nil
}

func (c *Client) establishSession(token string) {
	c.sess.setLoggedIn(token, time.Now())
	c.persist()
}

func (c *Client) persist() {
	c.sess.mu.Lock()
	st := persistedState{
		Version:     ProtocolVersion,
		AccessToken: c.sess.accessToken,
		LoggedInAt:  c.sess.loggedInAt,
	}
	c.sess.mu.Unlock()

	if err := saveState(c.statePath, st); err != nil {
		c.log.Warn("failed to persist session state", slog.String("err", err.Error()))
	}
}

// scheduleExpiry defers the re-authentication hook briefly so a UI can
// show a notice before navigating. The timer is not cancelable; a login
// racing it just causes one redundant navigation.
func (c *Client) scheduleExpiry() {
	if c.onExpired == nil {
		return
	}

	time.AfterFunc(c.redirectDelay, c.onExpired)
}

func decodeAPIError(res *http.Response) error {
	apiErr := &APIError{StatusCode: res.StatusCode}

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}

	return apiErr
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

package client

import (
	"sync"
	"time"
)

// session owns all mutable client auth state: the cached access token
// and the single-flight refresh bookkeeping. One instance per Client;
// nothing here is package-global.
type session struct {
	mu          sync.Mutex
	accessToken string
	loggedInAt  time.Time
	maxAge      time.Duration

	refreshing bool
	waiters    []chan error
}

// token returns the cached access token, enforcing the client-side
// absolute session ceiling: a login older than maxAge is discarded even
// if the server would still accept its refresh token.
func (s *session) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && !s.loggedInAt.IsZero() && time.Since(s.loggedInAt) > s.maxAge {
		s.accessToken = ""
	}

	return s.accessToken
}

func (s *session) setLoggedIn(token string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = token
	s.loggedInAt = at
}

func (s *session) setToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = token
}

func (s *session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = ""
	s.loggedInAt = time.Time{}
}

// beginRefresh claims the single refresh slot. If another refresh is
// already in flight it returns a channel the caller must wait on; the
// channel resolves with that refresh's outcome.
func (s *session) beginRefresh() (wait chan error, claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshing {
		ch := make(chan error, 1)
		s.waiters = append(s.waiters, ch)
		return ch, false
	}

	s.refreshing = true
	return nil, true
}

// finishRefresh publishes the refresh outcome: stores (or discards) the
// token and releases every queued waiter with the same result.
func (s *session) finishRefresh(token string, err error) {
	s.mu.Lock()

	s.refreshing = false
	if err == nil {
		s.accessToken = token
	} else {
		s.accessToken = ""
	}

	waiters := s.waiters
	s.waiters = nil

	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"context"
	"net/url"
	"sync"

	"github.com/timetracker/authbridge/idp"
)

// mockClient records the calls a Bridge makes.
type mockClient struct {
	mu sync.Mutex

	authenticated bool
	user          *idp.UserProfile
	token         *idp.Token

	callbackErr error
	authErr     error
	userErr     error
	loginErr    error
	logoutErr   error

	calls         []string
	callbackQuery url.Values
	loginOpts     []idp.LoginOptions
	logoutOpts    []idp.LogoutOptions
	done          bool
}

var _ IdentityClient = (*mockClient)(nil)

func (m *mockClient) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockClient) HandleRedirectCallback(_ context.Context, _ idp.Session, query url.Values) error {
	m.record("HandleRedirectCallback")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbackQuery = query
	return m.callbackErr
}

func (m *mockClient) IsAuthenticated(context.Context, idp.Session) (bool, error) {
	m.record("IsAuthenticated")
	return m.authenticated, m.authErr
}

func (m *mockClient) GetUser(context.Context, idp.Session) (*idp.UserProfile, error) {
	m.record("GetUser")
	return m.user, m.userErr
}

func (m *mockClient) LoginWithRedirect(_ context.Context, _ idp.Session, opts idp.LoginOptions) (string, error) {
	m.record("LoginWithRedirect")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginOpts = append(m.loginOpts, opts)
	if m.loginErr != nil {
		return "", m.loginErr
	}
	return "https://tenant.example.com/authorize?screen_hint=" + opts.ScreenHint, nil
}

func (m *mockClient) Logout(s idp.Session, opts idp.LogoutOptions) (string, error) {
	m.record("Logout")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutOpts = append(m.logoutOpts, opts)
	if m.logoutErr != nil {
		return "", m.logoutErr
	}
	s.Clear()
	return "https://tenant.example.com/v2/logout?returnTo=" + url.QueryEscape(opts.ReturnTo), nil
}

func (m *mockClient) Token(context.Context, idp.Session) (*idp.Token, error) {
	m.record("Token")
	if m.token == nil {
		return nil, idp.ErrNotAuthenticated
	}
	return m.token, nil
}

func (m *mockClient) Done() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = true
}

// mockFactory returns a ClientFactory handing out m and counting calls.
func mockFactory(m *mockClient, calls *int) ClientFactory {
	return func(context.Context, string, string) (IdentityClient, error) {
		*calls++
		return m, nil
	}
}

// mockSession is a minimal idp.Session.
type mockSession struct {
	mu       sync.Mutex
	requests map[string]*idp.Request
	token    *idp.Token
	user     *idp.UserProfile
	taken    []string
}

func newMockSession() *mockSession {
	return &mockSession{requests: map[string]*idp.Request{}}
}

func (s *mockSession) AddRequest(r *idp.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.State()] = r
}

func (s *mockSession) TakeRequest(state string) (*idp.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken = append(s.taken, state)
	r, ok := s.requests[state]
	delete(s.requests, state)
	return r, ok
}

func (s *mockSession) SetToken(t *idp.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = t
}

func (s *mockSession) Token() *idp.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *mockSession) SetUser(u *idp.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

func (s *mockSession) User() *idp.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *mockSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.user = nil, nil
}

// SPDX-License-Identifier: MPL-2.0

package idp

// testSession is a minimal Session used by this package's tests.
type testSession struct {
	requests map[string]*Request
	token    *Token
	user     *UserProfile
}

var _ Session = (*testSession)(nil)

func newTestSession() *testSession {
	return &testSession{requests: map[string]*Request{}}
}

func (s *testSession) AddRequest(r *Request) { s.requests[r.State()] = r }

func (s *testSession) TakeRequest(state string) (*Request, bool) {
	r, ok := s.requests[state]
	delete(s.requests, state)
	return r, ok
}

func (s *testSession) SetToken(t *Token)      { s.token = t }
func (s *testSession) Token() *Token          { return s.token }
func (s *testSession) SetUser(u *UserProfile) { s.user = u }
func (s *testSession) User() *UserProfile     { return s.user }
func (s *testSession) Clear()                 { s.token, s.user = nil, nil }

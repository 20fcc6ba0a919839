// SPDX-License-Identifier: MPL-2.0

package session

import (
	"sync"
	"time"

	"github.com/timetracker/authbridge/idp"
)

// DefaultMaxPendingRequests bounds the login attempts a single browser can
// have in flight, ie: several tabs each clicking "log in".
const DefaultMaxPendingRequests = 10

// Session is one browser's auth state. It's concurrently safe.
type Session struct {
	id string

	mu         sync.Mutex
	requests   map[string]*idp.Request
	order      []string
	maxPending int
	token      *idp.Token
	user       *idp.UserProfile
	lastAccess time.Time
}

var _ idp.Session = (*Session)(nil)

func newSession(id string, maxPending int, now time.Time) *Session {
	return &Session{
		id:         id,
		requests:   map[string]*idp.Request{},
		maxPending: maxPending,
		lastAccess: now,
	}
}

// ID returns the session's id, which is also the value of its cookie.
func (s *Session) ID() string { return s.id }

// LastAccess returns when the session was last read from its Store.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = now
}

// AddRequest records a pending login attempt. Expired attempts are dropped,
// and when the session is full the oldest attempt is evicted.
func (s *Session) AddRequest(r *idp.Request) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, st := range s.order {
		if pending, ok := s.requests[st]; ok && !pending.IsExpired() {
			kept = append(kept, st)
			continue
		}
		delete(s.requests, st)
	}
	s.order = kept
	for len(s.order) >= s.maxPending {
		delete(s.requests, s.order[0])
		s.order = s.order[1:]
	}
	s.requests[r.State()] = r
	s.order = append(s.order, r.State())
}

// TakeRequest returns and removes the pending login attempt for state.
func (s *Session) TakeRequest(state string) (*idp.Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[state]
	if !ok {
		return nil, false
	}
	delete(s.requests, state)
	for i, st := range s.order {
		if st == state {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return r, true
}

// PendingRequests returns the number of login attempts in flight.
func (s *Session) PendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Session) SetToken(t *idp.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = t
}

func (s *Session) Token() *idp.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) SetUser(u *idp.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

func (s *Session) User() *idp.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Clear forgets the session's token and user. Pending login attempts are
// kept, so a login started in another tab can still complete.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	s.user = nil
}

// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"
)

// DefaultTTL is how long a session may stay idle before it's forgotten.
const DefaultTTL = 24 * time.Hour

// Store is a repository of sessions.
type Store interface {
	// Get returns the session for id, or ErrNotFound when there isn't one
	// or it has expired.
	Get(ctx context.Context, id string) (*Session, error)

	// New creates and stores an empty session with a fresh id.
	New(ctx context.Context) (*Session, error)

	// Delete removes the session for id. Deleting an unknown id isn't an
	// error.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl        time.Duration
	maxPending int
	nowFunc    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
//
// Supported options: WithTTL, WithNow, WithMaxPendingRequests
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getStoreOpts(opt...)
	return &MemoryStore{
		sessions:   map[string]*Session{},
		ttl:        opts.withTTL,
		maxPending: opts.withMaxPending,
		nowFunc:    opts.withNowFunc,
	}
}

// Get implements Store. A successful Get extends the session's idle TTL.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	const op = "MemoryStore.Get"
	if id == "" {
		return nil, fmt.Errorf("%s: missing id: %w", op, ErrInvalidParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	now := m.nowFunc()
	if m.expired(s, now) {
		delete(m.sessions, id)
		return nil, fmt.Errorf("%s: session expired: %w", op, ErrNotFound)
	}
	s.touch(now)
	return s, nil
}

// New implements Store.
func (m *MemoryStore) New(ctx context.Context) (*Session, error) {
	const op = "MemoryStore.New"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIDGeneratorFailed, err)
	}
	s := newSession(id, m.maxPending, m.nowFunc())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
	return s, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep removes every expired session and returns how many were removed.
func (m *MemoryStore) Sweep(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	var removed int
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// TTL returns the store's idle TTL.
func (m *MemoryStore) TTL() time.Duration { return m.ttl }

func (m *MemoryStore) expired(s *Session, now time.Time) bool {
	return s.LastAccess().Add(m.ttl).Before(now)
}

type storeOptions struct {
	withTTL        time.Duration
	withMaxPending int
	withNowFunc    func() time.Time
}

func storeDefaults() storeOptions {
	return storeOptions{
		withTTL:        DefaultTTL,
		withMaxPending: DefaultMaxPendingRequests,
		withNowFunc:    time.Now,
	}
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

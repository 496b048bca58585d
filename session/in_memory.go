package session

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/ragmesh/core"
)

// DefaultMaxSessions bounds the number of sessions kept by InMemoryStore.
const DefaultMaxSessions = 10000

// InMemoryStore is a volatile TurnStore keeping sessions in a process local
// LRU cache. It is safe for concurrent access. Sessions handed out are
// cloned so callers never share internal state.
type InMemoryStore struct {
	mu       sync.Mutex // serializes appends against eviction
	sessions *lru.Cache[string, *core.Session]
}

// NewInMemoryStore creates a store holding at most maxSessions sessions
// (DefaultMaxSessions when <= 0).
func NewInMemoryStore(maxSessions int) (*InMemoryStore, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	cache, err := lru.New[string, *core.Session](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &InMemoryStore{sessions: cache}, nil
}

// AppendTurn implements core.TurnStore.
func (s *InMemoryStore) AppendTurn(ctx context.Context, sessionID string, turn core.Turn, maxTurns int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		sess = core.NewSession(sessionID, maxTurns)
		s.sessions.Add(sessionID, sess)
	}
	sess.AddTurn(turn)
	return nil
}

// RecentTurns implements core.TurnStore.
func (s *InMemoryStore) RecentTurns(ctx context.Context, sessionID string, n int) ([]core.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return []core.Turn{}, nil
	}
	return sess.Recent(n), nil
}

// DeleteSession implements core.TurnStore.
func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Remove(sessionID)
	return nil
}

// Get returns a clone of a session, if present.
func (s *InMemoryStore) Get(sessionID string) (*core.Session, bool) {
	sess, ok := s.sessions.Peek(sessionID)
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Len returns the number of retained sessions.
func (s *InMemoryStore) Len() int { return s.sessions.Len() }

var _ core.TurnStore = (*InMemoryStore)(nil)

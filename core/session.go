package core

import (
	"context"
	"sync"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Name      string    `json:"name,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn stamped with the current UTC time.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Text: text, Timestamp: time.Now().UTC()}
}

// Session is a bounded, ordered turn history. It is safe for concurrent
// access.
//
// Contract:
//   - AddTurn evicts the oldest turns once MaxTurns is exceeded
//   - Recent and Turns return defensive copies
//   - Clone performs a deep copy for safe divergence
type Session struct {
	ID       string    `json:"id"`
	MaxTurns int       `json:"max_turns"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`

	mu    sync.RWMutex
	turns []Turn
}

// NewSession creates an empty session. maxTurns <= 0 means unbounded.
func NewSession(id string, maxTurns int) *Session {
	now := time.Now()
	return &Session{ID: id, MaxTurns: maxTurns, Created: now, Updated: now}
}

// AddTurn appends a turn and trims the history to MaxTurns.
func (s *Session) AddTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	s.evictOldestLocked()
	s.Updated = time.Now()
}

// evictOldestLocked drops turns from the front until the cap holds.
func (s *Session) evictOldestLocked() {
	if s.MaxTurns <= 0 || len(s.turns) <= s.MaxTurns {
		return
	}
	drop := len(s.turns) - s.MaxTurns
	kept := make([]Turn, s.MaxTurns)
	copy(kept, s.turns[drop:])
	s.turns = kept
}

// Recent returns up to n most recent turns, oldest first. A history shorter
// than n yields every turn; n <= 0 yields none.
func (s *Session) Recent(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return LastTurns(s.turns, n)
}

// Turns returns a copy of the full history.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of retained turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clone returns a deep copy safe for independent reads.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, MaxTurns: s.MaxTurns, Created: s.Created, Updated: s.Updated, turns: make([]Turn, len(s.turns))}
	copy(clone.turns, s.turns)
	return clone
}

// LastTurns returns a copy of the last n turns, oldest first.
func LastTurns(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) == 0 {
		return []Turn{}
	}
	if n > len(turns) {
		n = len(turns)
	}
	out := make([]Turn, n)
	copy(out, turns[len(turns)-n:])
	return out
}

// TurnStore persists per-session turn histories. Implementations must be
// safe for concurrent use across sessions; serialization of writers within a
// session is the caller's job (see session.Manager).
type TurnStore interface {
	// AppendTurn adds a turn, creating the session lazily and evicting the
	// oldest turns beyond maxTurns.
	AppendTurn(ctx context.Context, sessionID string, turn Turn, maxTurns int) error
	// RecentTurns returns up to n most recent turns, oldest first. Unknown
	// sessions yield an empty slice.
	RecentTurns(ctx context.Context, sessionID string, n int) ([]Turn, error)
	// DeleteSession drops all history of a session.
	DeleteSession(ctx context.Context, sessionID string) error
}

package session

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
)

// DefaultMaxTurns caps the history kept per session.
const DefaultMaxTurns = 50

// DefaultMaxClosed bounds how many closed session ids are remembered.
const DefaultMaxClosed = 10000

// Options configures a Manager.
type Options struct {
	MaxTurns int
	// MaxClosed bounds the closed marks; the least recently closed id is
	// forgotten first and behaves like a fresh session again.
	MaxClosed int
	Logger    *logging.MeshLogger
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

// Manager is the ContextManager: the only writer of session history.
type Manager struct {
	store core.TurnStore
	opts  Options

	mu     sync.Mutex
	locks  map[string]*sessionLock
	closed *lru.Cache[string, struct{}]
}

// NewManager creates a Manager persisting into store.
func NewManager(store core.TurnStore, optFns ...func(o *Options)) *Manager {
	opts := Options{MaxTurns: DefaultMaxTurns, MaxClosed: DefaultMaxClosed}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MaxClosed <= 0 {
		opts.MaxClosed = DefaultMaxClosed
	}
	opts.Logger = opts.Logger.WithComponent("context")
	closed, _ := lru.New[string, struct{}](opts.MaxClosed) // size is positive
	return &Manager{
		store:  store,
		opts:   opts,
		locks:  make(map[string]*sessionLock),
		closed: closed,
	}
}

// MaxTurns returns the per-session history cap.
func (m *Manager) MaxTurns() int { return m.opts.MaxTurns }

// Begin acquires the session's writer lock, waiting until the current
// holder releases it or ctx is done. The returned release func is
// idempotent.
func (m *Manager) Begin(ctx context.Context, sessionID string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{ch: make(chan struct{}, 1)}
		m.locks[sessionID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(sessionID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.unref(sessionID, l)
		})
	}, nil
}

func (m *Manager) unref(sessionID string, l *sessionLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, sessionID)
	}
}

// Append adds a turn, creating the session lazily. It fails with
// core.ErrSessionNotFound when the session was closed.
func (m *Manager) Append(ctx context.Context, sessionID string, turn core.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.isClosed(sessionID) {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	if turn.Timestamp.IsZero() {
		turn = core.NewTurn(turn.Role, turn.Text)
	}
	return m.store.AppendTurn(ctx, sessionID, turn, m.opts.MaxTurns)
}

// RecentTurns returns up to n most recent turns, most recent last. Short,
// unknown and closed sessions never fail; they yield fewer turns.
func (m *Manager) RecentTurns(ctx context.Context, sessionID string, n int) ([]core.Turn, error) {
	if n <= 0 || m.isClosed(sessionID) {
		return []core.Turn{}, nil
	}
	return m.store.RecentTurns(ctx, sessionID, n)
}

// Close ends a session: its history is dropped and further appends fail
// until Open is called. It waits for the turn in flight on the session,
// so it must not be called between Begin and its release.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	release, err := m.Begin(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	m.closed.Add(sessionID, struct{}{})
	m.opts.Logger.Info("Session closed", "session_id", sessionID)
	return m.store.DeleteSession(ctx, sessionID)
}

// Open clears a closed mark so the session is created afresh on the next append.
func (m *Manager) Open(sessionID string) {
	m.closed.Remove(sessionID)
}

// ClosedLen returns the number of remembered closed sessions.
func (m *Manager) ClosedLen() int { return m.closed.Len() }

func (m *Manager) isClosed(sessionID string) bool {
	return m.closed.Contains(sessionID)
}

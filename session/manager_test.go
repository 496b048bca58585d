package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func newManager(t *testing.T, maxTurns int) *Manager {
	t.Helper()
	store, err := NewInMemoryStore(0)
	require.NoError(t, err)
	return NewManager(store, func(o *Options) { o.MaxTurns = maxTurns })
}

func TestManager_LazyCreateAndEvict(t *testing.T) {
	m := newManager(t, 3)
	ctx := context.Background()

	turns, err := m.RecentTurns(ctx, "new", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(ctx, "s", core.Turn{Role: core.RoleUser, Text: string(rune('a' + i))}))
	}
	turns, err = m.RecentTurns(ctx, "s", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "c", turns[0].Text)
	assert.Equal(t, "e", turns[2].Text)
	assert.False(t, turns[0].Timestamp.IsZero())

	turns, err = m.RecentTurns(ctx, "s", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestManager_CloseAndOpen(t *testing.T) {
	m := newManager(t, 10)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s", core.NewTurn(core.RoleUser, "hi")))

	require.NoError(t, m.Close(ctx, "s"))
	err := m.Append(ctx, "s", core.NewTurn(core.RoleUser, "again"))
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	turns, err := m.RecentTurns(ctx, "s", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)

	m.Open("s")
	require.NoError(t, m.Append(ctx, "s", core.NewTurn(core.RoleUser, "fresh")))
	turns, err = m.RecentTurns(ctx, "s", 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "fresh", turns[0].Text)
}

func TestManager_ClosedSessionsAreBounded(t *testing.T) {
	store, err := NewInMemoryStore(0)
	require.NoError(t, err)
	m := NewManager(store, func(o *Options) { o.MaxClosed = 2 })
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Close(ctx, id))
	}
	assert.Equal(t, 2, m.ClosedLen())

	require.NoError(t, m.Append(ctx, "a", core.NewTurn(core.RoleUser, "back")))
	assert.ErrorIs(t, m.Append(ctx, "c", core.NewTurn(core.RoleUser, "x")), core.ErrSessionNotFound)
}

func TestManager_CloseWaitsForTurnInFlight(t *testing.T) {
	m := newManager(t, 10)
	ctx := context.Background()

	release, err := m.Begin(ctx, "s")
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- m.Close(ctx, "s") }()

	select {
	case <-closed:
		t.Fatal("Close returned while a turn was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, m.Append(ctx, "s", core.NewTurn(core.RoleUser, "in flight")))
	release()
	require.NoError(t, <-closed)

	turns, err := m.RecentTurns(ctx, "s", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestManager_CloseRespectsContext(t *testing.T) {
	m := newManager(t, 10)
	release, err := m.Begin(context.Background(), "s")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Close(ctx, "s"), context.DeadlineExceeded)
	assert.Equal(t, 0, m.ClosedLen())
}

func TestManager_AppendHonoursCancellation(t *testing.T) {
	m := newManager(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Append(ctx, "s", core.NewTurn(core.RoleUser, "x")), context.Canceled)

	turns, err := m.RecentTurns(context.Background(), "s", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestManager_BeginSerializesPerSession(t *testing.T) {
	m := newManager(t, 100)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Begin(ctx, "shared")
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, m.locks, "lock entries are dropped once unused")
}

func TestManager_BeginDifferentSessionsDoNotBlock(t *testing.T) {
	m := newManager(t, 10)
	releaseA, err := m.Begin(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := m.Begin(ctx, "b")
	require.NoError(t, err)
	releaseB()
	releaseB()
}

func TestManager_BeginRespectsContext(t *testing.T) {
	m := newManager(t, 10)
	release, err := m.Begin(context.Background(), "s")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Begin(ctx, "s")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

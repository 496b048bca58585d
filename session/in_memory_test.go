package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func TestInMemoryStore_AppendAndRecent(t *testing.T) {
	s, err := NewInMemoryStore(0)
	require.NoError(t, err)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.AppendTurn(ctx, "s1", core.NewTurn(core.RoleUser, text), 2))
	}
	turns, err := s.RecentTurns(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "two", turns[0].Text)
	assert.Equal(t, "three", turns[1].Text)

	turns, err = s.RecentTurns(ctx, "unknown", 3)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestInMemoryStore_EvictsLeastRecentlyUsedSession(t *testing.T) {
	s, err := NewInMemoryStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "a", core.NewTurn(core.RoleUser, "x"), 10))
	require.NoError(t, s.AppendTurn(ctx, "b", core.NewTurn(core.RoleUser, "x"), 10))
	_, _ = s.RecentTurns(ctx, "a", 1) // touch a
	require.NoError(t, s.AppendTurn(ctx, "c", core.NewTurn(core.RoleUser, "x"), 10))

	assert.Equal(t, 2, s.Len())
	_, okA := s.Get("a")
	_, okB := s.Get("b")
	assert.True(t, okA)
	assert.False(t, okB)
}

func TestInMemoryStore_GetReturnsClone(t *testing.T) {
	s, err := NewInMemoryStore(1)
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(context.Background(), "a", core.NewTurn(core.RoleUser, "x"), 10))

	clone, ok := s.Get("a")
	require.True(t, ok)
	clone.AddTurn(core.NewTurn(core.RoleUser, "y"))

	turns, err := s.RecentTurns(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestInMemoryStore_ConcurrentAppendAndEvict(t *testing.T) {
	s, err := NewInMemoryStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("s%d", g)
			for i := 0; i < 50; i++ {
				text := fmt.Sprintf("%s-%d", id, i)
				if !assert.NoError(t, s.AppendTurn(ctx, id, core.NewTurn(core.RoleUser, text), 100)) {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 2)

	// Whatever survived eviction holds an unbroken run ending at the last
	// turn its writer appended.
	for g := 0; g < 8; g++ {
		id := fmt.Sprintf("s%d", g)
		sess, ok := s.Get(id)
		if !ok {
			continue
		}
		turns := sess.Turns()
		require.NotEmpty(t, turns)
		assert.Equal(t, fmt.Sprintf("%s-49", id), turns[len(turns)-1].Text)
		for i := 1; i < len(turns); i++ {
			var prev, cur int
			_, _ = fmt.Sscanf(turns[i-1].Text, id+"-%d", &prev)
			_, _ = fmt.Sscanf(turns[i].Text, id+"-%d", &cur)
			assert.Equal(t, prev+1, cur)
		}
	}
}

func TestInMemoryStore_AppendAfterEvictionRecreates(t *testing.T) {
	s, err := NewInMemoryStore(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "a", core.NewTurn(core.RoleUser, "first"), 10))
	require.NoError(t, s.AppendTurn(ctx, "b", core.NewTurn(core.RoleUser, "evicts a"), 10))
	require.NoError(t, s.AppendTurn(ctx, "a", core.NewTurn(core.RoleUser, "second"), 10))

	turns, err := s.RecentTurns(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "second", turns[0].Text)
}

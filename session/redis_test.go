package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ragmesh/core"
)

func newRedisStore(t *testing.T, optFns ...func(o *RedisOptions)) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, optFns...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_AppendTrimAndRecent(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.AppendTurn(ctx, "s1", core.NewTurn(core.RoleUser, text), 2))
	}
	list, err := mr.List("ragmesh:session:s1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	turns, err := s.RecentTurns(ctx, "s1", 5)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "two", turns[0].Text)
	assert.Equal(t, core.RoleUser, turns[1].Role)

	turns, err = s.RecentTurns(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "three", turns[0].Text)
}

func TestRedisStore_TTLAndDelete(t *testing.T) {
	s, mr := newRedisStore(t, func(o *RedisOptions) {
		o.KeyPrefix = "test:"
		o.TTL = time.Minute
	})
	ctx := context.Background()

	require.NoError(t, s.AppendTurn(ctx, "s1", core.NewTurn(core.RoleUser, "hi"), 10))
	assert.Equal(t, time.Minute, mr.TTL("test:s1"))

	mr.FastForward(2 * time.Minute)
	turns, err := s.RecentTurns(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, s.AppendTurn(ctx, "s2", core.NewTurn(core.RoleUser, "hi"), 10))
	require.NoError(t, s.DeleteSession(ctx, "s2"))
	assert.False(t, mr.Exists("test:s2"))
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStoreFromURL("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendTurn(context.Background(), "x", core.NewTurn(core.RoleAssistant, "ok"), 0))
	turns, err := s.RecentTurns(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", turns[0].Text)

	_, err = NewRedisStoreFromURL("::not a url")
	assert.Error(t, err)
}

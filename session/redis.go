package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/ragmesh/core"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// KeyPrefix namespaces session keys.
	KeyPrefix string
	// TTL expires idle sessions (0 keeps them forever).
	TTL time.Duration
}

// RedisStore persists each session as a Redis list of JSON encoded turns.
type RedisStore struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{KeyPrefix: "ragmesh:session:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, opts: opts}
}

// NewRedisStoreFromURL parses a redis:// URL and connects lazily.
func NewRedisStoreFromURL(url string, optFns ...func(o *RedisOptions)) (*RedisStore, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(ro), optFns...), nil
}

func (s *RedisStore) key(sessionID string) string { return s.opts.KeyPrefix + sessionID }

// AppendTurn implements core.TurnStore.
func (s *RedisStore) AppendTurn(ctx context.Context, sessionID string, turn core.Turn, maxTurns int) error {
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, raw)
		if maxTurns > 0 {
			p.LTrim(ctx, key, int64(-maxTurns), -1)
		}
		if s.opts.TTL > 0 {
			p.Expire(ctx, key, s.opts.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append turn %s: %w", sessionID, err)
	}
	return nil
}

// RecentTurns implements core.TurnStore.
func (s *RedisStore) RecentTurns(ctx context.Context, sessionID string, n int) ([]core.Turn, error) {
	if n <= 0 {
		return []core.Turn{}, nil
	}
	vals, err := s.client.LRange(ctx, s.key(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent turns %s: %w", sessionID, err)
	}
	turns := make([]core.Turn, 0, len(vals))
	for _, v := range vals {
		var t core.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// DeleteSession implements core.TurnStore.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

var _ core.TurnStore = (*RedisStore)(nil)

package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ModelLimiter caps the model calls made on behalf of one query. Every agent
// taking part in the query draws from the same limiter, which travels in the
// context. A zero max means unlimited.
type ModelLimiter struct {
	max   int64
	calls atomic.Int64
}

// NewModelLimiter creates a limiter allowing max calls.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: int64(max)}
}

// Acquire books one call to modelID. Once the limit is exhausted it fails
// with a GenerationError of kind unavailable; the refused call still counts.
func (ml *ModelLimiter) Acquire(modelID string) error {
	n := ml.calls.Add(1)
	if ml.max > 0 && n > ml.max {
		return &GenerationError{
			Model: modelID,
			Kind:  GenerationUnavailable,
			Err:   fmt.Errorf("model call budget of %d exhausted", ml.max),
		}
	}
	return nil
}

// Count returns the number of calls booked so far.
func (ml *ModelLimiter) Count() int { return int(ml.calls.Load()) }

// Remaining returns the calls left, or -1 when unlimited.
func (ml *ModelLimiter) Remaining() int {
	if ml.max == 0 {
		return -1
	}
	if left := ml.max - ml.calls.Load(); left > 0 {
		return int(left)
	}
	return 0
}

type limiterKey struct{}

// WithModelLimiter attaches a per-query limiter to ctx.
func WithModelLimiter(ctx context.Context, l *ModelLimiter) context.Context {
	return context.WithValue(ctx, limiterKey{}, l)
}

// ModelLimiterFrom returns the limiter attached to ctx, or nil.
func ModelLimiterFrom(ctx context.Context) *ModelLimiter {
	l, _ := ctx.Value(limiterKey{}).(*ModelLimiter)
	return l
}

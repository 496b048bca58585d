package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/metrics"
)

// Default circuit breaker settings.
const (
	DefaultBreakerMaxFailures uint32        = 5
	DefaultBreakerTimeout     time.Duration = 30 * time.Second
	DefaultBreakerInterval    time.Duration = 60 * time.Second
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger *logging.MeshLogger
	// BreakerMaxFailures is the number of consecutive failures that opens a
	// model's circuit.
	BreakerMaxFailures uint32
	// BreakerTimeout is how long an open circuit waits before probing.
	BreakerTimeout time.Duration
	// BreakerInterval clears failure counts while the circuit is closed.
	BreakerInterval time.Duration
}

// EndpointOptions configures a single registered model.
type EndpointOptions struct {
	// RequestsPerSecond enables a token bucket limit (0 disables).
	RequestsPerSecond float64
	Burst             int
	// Timeout bounds a single call (0 uses the caller's deadline only).
	Timeout time.Duration
}

type endpoint struct {
	model   Model
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
	timeout time.Duration
}

// Registry maps model configuration ids to Models and implements
// core.ModelClient on top of them.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint
	opts      RegistryOptions
}

// NewRegistry creates an empty Registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		BreakerMaxFailures: DefaultBreakerMaxFailures,
		BreakerTimeout:     DefaultBreakerTimeout,
		BreakerInterval:    DefaultBreakerInterval,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	opts.Logger = opts.Logger.WithComponent("model")
	return &Registry{endpoints: make(map[string]*endpoint), opts: opts}
}

// Register binds id to m, replacing any previous binding.
func (r *Registry) Register(id string, m Model, optFns ...func(o *EndpointOptions)) {
	var eo EndpointOptions
	for _, fn := range optFns {
		fn(&eo)
	}
	ep := &endpoint{model: m, timeout: eo.Timeout, breaker: r.newBreaker(id)}
	if eo.RequestsPerSecond > 0 {
		burst := eo.Burst
		if burst <= 0 {
			burst = 1
		}
		ep.limiter = rate.NewLimiter(rate.Limit(eo.RequestsPerSecond), burst)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[id] = ep
}

func (r *Registry) newBreaker(id string) *gobreaker.CircuitBreaker[string] {
	maxFailures := r.opts.BreakerMaxFailures
	logger := r.opts.Logger
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "model:" + id,
		MaxRequests: 1,
		Interval:    r.opts.BreakerInterval,
		Timeout:     r.opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// A caller giving up says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[id]
	return ok
}

// IDs returns the registered model ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BreakerState returns the circuit state of a registered model.
func (r *Registry) BreakerState(id string) (gobreaker.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[id]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return ep.breaker.State(), true
}

// Generate implements core.ModelClient.
func (r *Registry) Generate(ctx context.Context, modelID string, prompt core.Prompt) (string, error) {
	start := time.Now()
	text, usage, err := r.generate(ctx, modelID, prompt)
	tokens := 0
	if usage != nil {
		tokens = usage.TotalTokens
	}
	result := "success"
	if err != nil {
		result = string(Classify(err))
		if errors.Is(err, context.Canceled) {
			result = "cancelled"
		}
	}
	metrics.ModelCalls.WithLabelValues(modelID, result).Inc()
	r.opts.Logger.LogModelCall(modelID, tokens, time.Since(start), err)
	return text, err
}

func (r *Registry) generate(ctx context.Context, modelID string, prompt core.Prompt) (string, *TokenUsage, error) {
	r.mu.RLock()
	ep, ok := r.endpoints[modelID]
	r.mu.RUnlock()
	if !ok {
		return "", nil, &core.GenerationError{Model: modelID, Kind: core.GenerationUnavailable, Err: fmt.Errorf("%w: %s", core.ErrUnknownModel, modelID)}
	}
	if l := core.ModelLimiterFrom(ctx); l != nil {
		if err := l.Acquire(modelID); err != nil {
			return "", nil, err
		}
	}
	if ep.limiter != nil {
		if err := ep.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", nil, wrap(modelID, ctx.Err())
			}
			return "", nil, &core.GenerationError{Model: modelID, Kind: core.GenerationRateLimited, Err: err}
		}
	}
	if ep.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.timeout)
		defer cancel()
	}
	var usage *TokenUsage
	text, err := ep.breaker.Execute(func() (string, error) {
		t, u, err := Collect(ctx, ep.model, NewRequest(prompt))
		usage = u
		return t, err
	})
	if err != nil {
		return "", usage, wrap(modelID, err)
	}
	return text, usage, nil
}

var _ core.ModelClient = (*Registry)(nil)

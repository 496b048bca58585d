package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/ragmesh/agent"
	"github.com/hupe1980/ragmesh/citation"
	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/tracing"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/metrics"
	"github.com/hupe1980/ragmesh/router"
	"github.com/hupe1980/ragmesh/session"
)

// Config defines tuning parameters for query orchestration.
type Config struct {
	// SpecialistTimeout bounds one specialist (retrieval plus generation).
	// A specialist exceeding it counts as a generation timeout and is
	// excluded from the merge; siblings keep running.
	SpecialistTimeout time.Duration

	// HistoryWindow is how many recent turns are folded into agent
	// prompts. The engine reads deeper history when the router's context
	// turns or a profile's retrieval window reach further back.
	HistoryWindow int

	// MaxModelCallsPerQuery caps model calls across all agents of one
	// query. Set to 0 for unlimited.
	MaxModelCallsPerQuery int

	// MaxConcurrentQueries limits queries running at once across all
	// sessions. Set to 0 for unlimited.
	MaxConcurrentQueries int
}

// DefaultConfig provides production-ready default values.
var DefaultConfig = Config{
	SpecialistTimeout:     30 * time.Second,
	HistoryWindow:         10,
	MaxModelCallsPerQuery: 0,
	MaxConcurrentQueries:  0,
}

// Answerer produces a candidate answer for one agent profile.
type Answerer interface {
	Answer(ctx context.Context, query string, history []core.Turn, p *core.AgentProfile) (core.CandidateAnswer, error)
}

// Merger combines candidate answers into the final answer.
type Merger interface {
	Merge(ctx context.Context, query string, candidates []core.CandidateAnswer, p *core.AgentProfile) (core.FinalAnswer, error)
}

var (
	_ Answerer = (*agent.Specialist)(nil)
	_ Answerer = (*agent.Fallback)(nil)
	_ Merger   = (*agent.Summarizer)(nil)
)

// Options configures an Engine using the functional options pattern.
//
// Every component has a default built from the knowledge and model clients
// passed to New, so only the parts that differ need to be set.
type Options struct {
	Config Config

	// Router selects specialists. Defaults to router.New().
	Router *router.Router

	// Sessions is the ContextManager. Defaults to an in-memory store.
	Sessions *session.Manager

	// Mapper resolves shared citation rule sets for the default specialist.
	Mapper *citation.Mapper

	// Specialist, Fallback and Summarizer override the default agents.
	Specialist Answerer
	Fallback   Answerer
	Summarizer Merger

	Callbacks *CallbackManager
	Logger    *logging.MeshLogger
}

// Engine is the Orchestrator. It routes each query to retrieval
// specialists, runs them concurrently, falls back when nothing usable comes
// back, merges the candidates and records the turn in the session.
//
// Concurrency Model:
//   - Queries on different sessions run fully in parallel
//   - Queries on one session are serialized by the ContextManager
//   - Selected specialists of a query run concurrently, each with its own
//     timeout, and are all awaited before merging
//
// The profile table is read-only after New and shared by every query.
type Engine struct {
	specialists []*core.AgentProfile
	profiles    map[string]*core.AgentProfile
	fallback    *core.AgentProfile
	summarizer  *core.AgentProfile

	router       *router.Router
	sessions     *session.Manager
	specialist   Answerer
	fallbackAg   Answerer
	summarizerAg Merger
	callbacks    *CallbackManager
	logger       *logging.MeshLogger
	config       Config
	sem          *semaphore.Weighted
	// historyDepth is how many turns HandleQuery reads per query.
	historyDepth int

	invocationsMu     sync.Mutex
	activeInvocations map[string]context.CancelFunc
}

// New creates an Engine for the given profiles, which must be in
// declaration order (it breaks routing ties). The first Fallback and
// Summarizer profiles configure those agents; Router and ContextManager
// profiles are consumed by whoever builds Options.Router and
// Options.Sessions.
func New(profiles []*core.AgentProfile, kc core.KnowledgeClient, mc core.ModelClient, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{Config: DefaultConfig}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	logger := opts.Logger.WithComponent("engine")

	if opts.Config.SpecialistTimeout <= 0 {
		opts.Config.SpecialistTimeout = DefaultConfig.SpecialistTimeout
	}
	if opts.Config.HistoryWindow < 0 {
		opts.Config.HistoryWindow = 0
	}
	if opts.Router == nil {
		opts.Router = router.New(func(o *router.Options) { o.Logger = opts.Logger })
	}
	if opts.Sessions == nil {
		store, err := session.NewInMemoryStore(session.DefaultMaxSessions)
		if err != nil {
			return nil, err
		}
		opts.Sessions = session.NewManager(store, func(o *session.Options) { o.Logger = opts.Logger })
	}
	if opts.Specialist == nil {
		if kc == nil || mc == nil {
			return nil, errors.New("engine: knowledge and model clients are required without a custom specialist")
		}
		opts.Specialist = agent.NewSpecialist(kc, mc, opts.Mapper, func(o *agent.SpecialistOptions) {
			o.Logger = opts.Logger
			o.PromptTurns = opts.Config.HistoryWindow
		})
	}
	if opts.Fallback == nil {
		opts.Fallback = agent.NewFallback(mc, func(o *agent.FallbackOptions) { o.Logger = opts.Logger })
	}
	if opts.Summarizer == nil {
		opts.Summarizer = agent.NewSummarizer(mc, func(o *agent.SummarizerOptions) { o.Logger = opts.Logger })
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	e := &Engine{
		profiles:          make(map[string]*core.AgentProfile, len(profiles)),
		router:            opts.Router,
		sessions:          opts.Sessions,
		specialist:        opts.Specialist,
		fallbackAg:        opts.Fallback,
		summarizerAg:      opts.Summarizer,
		callbacks:         opts.Callbacks,
		logger:            logger,
		config:            opts.Config,
		activeInvocations: make(map[string]context.CancelFunc),
	}
	if opts.Config.MaxConcurrentQueries > 0 {
		e.sem = semaphore.NewWeighted(int64(opts.Config.MaxConcurrentQueries))
	}

	for _, p := range profiles {
		if _, dup := e.profiles[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate agent id %q", core.ErrInvalidProfile, p.ID)
		}
		e.profiles[p.ID] = p
		switch p.Class {
		case core.ClassRetrievalSpecialist:
			e.specialists = append(e.specialists, p)
		case core.ClassFallback:
			if e.fallback == nil {
				e.fallback = p
			}
		case core.ClassSummarizer:
			if e.summarizer == nil {
				e.summarizer = p
			}
		}
	}

	e.historyDepth = max(opts.Config.HistoryWindow, opts.Router.ContextTurns())
	for _, p := range e.specialists {
		e.historyDepth = max(e.historyDepth, p.RecentTurnsForRetrieval)
	}
	return e, nil
}

// Sessions returns the ContextManager.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Specialists returns the specialist profiles in declaration order.
func (e *Engine) Specialists() []*core.AgentProfile {
	return append([]*core.AgentProfile(nil), e.specialists...)
}

// Profile looks up a profile by agent id.
func (e *Engine) Profile(id string) (*core.AgentProfile, bool) {
	p, ok := e.profiles[id]
	return p, ok
}

// StopInvocation cancels a running query by its invocation id.
func (e *Engine) StopInvocation(invocationID string) error {
	e.invocationsMu.Lock()
	cancel, exists := e.activeInvocations[invocationID]
	e.invocationsMu.Unlock()

	if !exists {
		return fmt.Errorf("invocation %s not found", invocationID)
	}

	cancel()
	return nil
}

// HandleQuery answers text within a session. It fails only when every
// selected specialist and the fallback agent failed (core.ErrAllAgentsFailed),
// when a CallbackBeforeQuery hook rejects the query, or when ctx is done.
// A cancelled query never records its turns.
func (e *Engine) HandleQuery(ctx context.Context, sessionID, text string) (fa core.FinalAnswer, err error) {
	start := time.Now()
	invocationID := core.NewID()
	log := e.logger.WithSession(sessionID, invocationID)

	ctx, span := tracing.StartSpan(ctx, "ragmesh.HandleQuery",
		attribute.String("session.id", sessionID),
		attribute.String("invocation.id", invocationID),
	)
	defer func() {
		metrics.QueriesTotal.WithLabelValues(outcome(fa, err)).Inc()
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Bool("fallback.used", fa.FallbackUsed))
		tracing.End(span, err)
	}()

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return core.FinalAnswer{}, err
		}
		defer e.sem.Release(1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.invocationsMu.Lock()
	e.activeInvocations[invocationID] = cancel
	e.invocationsMu.Unlock()
	defer func() {
		e.invocationsMu.Lock()
		delete(e.activeInvocations, invocationID)
		e.invocationsMu.Unlock()
	}()

	ctx = core.WithModelLimiter(ctx, core.NewModelLimiter(e.config.MaxModelCallsPerQuery))

	release, err := e.sessions.Begin(ctx, sessionID)
	if err != nil {
		return core.FinalAnswer{}, err
	}
	defer release()

	cbCtx := CallbackContext{SessionID: sessionID, InvocationID: invocationID, Query: text, State: StateIdle}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeQuery, &cbCtx); err != nil {
		return core.FinalAnswer{}, err
	}

	history, herr := e.sessions.RecentTurns(ctx, sessionID, e.historyDepth)
	if herr != nil {
		log.Warn("Reading session history failed, continuing without it", "error", herr.Error())
		history = nil
	}

	cbCtx.State = StateRouting
	plan := e.router.Select(ctx, text, history, e.specialists)
	cbCtx.Plan = &plan
	e.runCallbacks(ctx, log, CallbackAfterRoute, cbCtx)

	var candidates []core.CandidateAnswer
	if !plan.UseFallback {
		cbCtx.State = StateRetrieving
		candidates = e.runSpecialists(ctx, log, cbCtx, history, plan.Specialists)
	}
	if err := ctx.Err(); err != nil {
		return core.FinalAnswer{}, err
	}

	fallbackUsed := false
	if len(candidates) == 0 {
		cbCtx.State = StateRetrievingFallback
		reason := "all_failed"
		if plan.UseFallback {
			reason = "no_selection"
		}
		metrics.FallbackTotal.WithLabelValues(reason).Inc()
		log.Info("Using fallback agent", "reason", reason)
		cbCtx.Err = errors.New(reason)
		e.runCallbacks(ctx, log, CallbackOnFallback, cbCtx)
		cbCtx.Err = nil

		ca, ferr := e.fallbackAg.Answer(ctx, text, core.LastTurns(history, e.config.HistoryWindow), e.fallback)
		if ferr != nil {
			if ctx.Err() != nil {
				return core.FinalAnswer{}, ctx.Err()
			}
			log.Error("Fallback agent failed", "error", ferr.Error())
			return core.FinalAnswer{}, fmt.Errorf("%w: %w", core.ErrAllAgentsFailed, ferr)
		}
		candidates = []core.CandidateAnswer{ca}
		fallbackUsed = true
	}

	cbCtx.State = StateMerging
	fa, err = e.summarizerAg.Merge(ctx, text, candidates, e.summarizer)
	if err != nil {
		return core.FinalAnswer{}, fmt.Errorf("merge answers: %w", err)
	}
	fa.FallbackUsed = fallbackUsed
	fa.InvocationID = invocationID

	if err := ctx.Err(); err != nil {
		return core.FinalAnswer{}, err
	}
	if err := e.record(ctx, sessionID, text, fa.Text); err != nil {
		if ctx.Err() != nil {
			return core.FinalAnswer{}, ctx.Err()
		}
		log.Warn("Recording turn failed", "error", err.Error())
	}

	cbCtx.State = StateResponded
	cbCtx.Answer = &fa
	e.runCallbacks(ctx, log, CallbackOnResponded, cbCtx)

	log.Info("Query answered", "agents", fa.Agents, "citations", len(fa.Citations), "fallback", fa.FallbackUsed, "duration_ms", time.Since(start).Milliseconds())
	return fa, nil
}

// runSpecialists runs every selected specialist concurrently and returns
// the successful candidates in plan order.
func (e *Engine) runSpecialists(ctx context.Context, log *logging.MeshLogger, cbCtx CallbackContext, history []core.Turn, ids []string) []core.CandidateAnswer {
	results := make([]*core.CandidateAnswer, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		p, ok := e.profiles[id]
		if !ok {
			log.Warn("Router selected unknown agent", "agent", id)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ca, err := e.runSpecialist(ctx, cbCtx.Query, history, p)
			if err != nil {
				log.Warn("Specialist failed", "agent", p.ID, "error", err.Error())
			} else {
				results[i] = &ca
			}
			sc := cbCtx
			sc.AgentID, sc.Candidate, sc.Err = p.ID, results[i], err
			e.runCallbacks(ctx, log, CallbackAfterSpecialist, sc)
		}()
	}
	wg.Wait()

	candidates := make([]core.CandidateAnswer, 0, len(results))
	for _, r := range results {
		if r != nil {
			candidates = append(candidates, *r)
		}
	}
	return candidates
}

func (e *Engine) runSpecialist(ctx context.Context, query string, history []core.Turn, p *core.AgentProfile) (ca core.CandidateAnswer, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "ragmesh.specialist", attribute.String("agent.id", p.ID))
	defer func() {
		metrics.RecordSpecialist(p.ID, resultLabel(err), time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	sctx, cancel := context.WithTimeout(ctx, e.config.SpecialistTimeout)
	defer cancel()

	type result struct {
		ca  core.CandidateAnswer
		err error
	}
	done := make(chan result, 1)
	go func() {
		ca, err := e.specialist.Answer(sctx, query, history, p)
		done <- result{ca, err}
	}()

	// A specialist whose backends ignore sctx is abandoned at the deadline;
	// its goroutine finishes into the buffered channel.
	select {
	case r := <-done:
		ca, err = r.ca, r.err
	case <-sctx.Done():
		err = sctx.Err()
	}
	if err != nil && ctx.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
		err = &core.GenerationError{Model: p.PrimaryModel, Kind: core.GenerationTimeout, Err: err}
	}
	return ca, err
}

// record appends the user and assistant turns. A closed session is
// reopened once.
func (e *Engine) record(ctx context.Context, sessionID, query, answer string) error {
	err := e.appendTurns(ctx, sessionID, query, answer)
	if errors.Is(err, core.ErrSessionNotFound) {
		e.sessions.Open(sessionID)
		err = e.appendTurns(ctx, sessionID, query, answer)
	}
	return err
}

func (e *Engine) appendTurns(ctx context.Context, sessionID, query, answer string) error {
	if err := e.sessions.Append(ctx, sessionID, core.NewTurn(core.RoleUser, query)); err != nil {
		return err
	}
	return e.sessions.Append(ctx, sessionID, core.NewTurn(core.RoleAssistant, answer))
}

func (e *Engine) runCallbacks(ctx context.Context, log *logging.MeshLogger, t CallbackType, cbCtx CallbackContext) {
	if err := e.callbacks.ExecuteCallbacks(ctx, t, &cbCtx); err != nil {
		log.Warn("Callback failed", "type", string(t), "error", err.Error())
	}
}

func resultLabel(err error) string {
	var (
		re *core.RetrievalError
		ge *core.GenerationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &re):
		return "retrieval_" + string(re.Kind)
	case errors.As(err, &ge):
		return string(ge.Kind)
	default:
		return "error"
	}
}

func outcome(fa core.FinalAnswer, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case err != nil:
		return "failed"
	case fa.FallbackUsed:
		return "fallback"
	default:
		return "answered"
	}
}

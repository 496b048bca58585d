// Package engine implements the Orchestrator of a RAGMesh: the per-query
// control loop wiring Router, retrieval Specialists, Fallback, Summarizer
// and the ContextManager.
//
// # Query Lifecycle
//
// Every call to HandleQuery walks the state machine once:
//
//	Idle -> Routing -> Retrieving -> Merging -> Responded
//
// with one error edge: when the router selects nothing, or every selected
// specialist fails or times out, the query moves to RetrievingFallback and
// the fallback agent's answer is merged alone. There are no retry loops
// besides the single primary to secondary model failover inside a
// specialist.
//
// # Concurrency
//
//   - Selected specialists run concurrently, each bounded by
//     Config.SpecialistTimeout; a slow specialist never cancels its siblings
//   - All specialists are awaited before merging, so merges are deterministic
//   - Queries on one session are serialized through session.Manager.Begin;
//     queries on different sessions never block each other
//   - Cancelling the query context aborts in-flight calls and skips the
//     history append for that turn
//
// # Error Handling
//
// Specialist failures (retrieval or generation) are logged, counted and
// excluded from the merge. HandleQuery returns core.ErrAllAgentsFailed only
// when the fallback agent fails as well.
//
// # Callbacks
//
// A CallbackManager observes the lifecycle (before_query, after_route,
// after_specialist, on_fallback, on_responded). Only before_query hooks can
// reject a query:
//
//	cm := engine.NewCallbackManager()
//	cm.RegisterCallback(engine.NewQueryValidationCallback(func(q string) error {
//	    if strings.TrimSpace(q) == "" {
//	        return errors.New("empty query")
//	    }
//	    return nil
//	}))
//
//	e, err := engine.New(profiles, kc, models, func(o *engine.Options) {
//	    o.Callbacks = cm
//	})
//	answer, err := e.HandleQuery(ctx, "session-1", "How do I configure the model wrapper?")
package engine

// Package agent implements the answering agents of a mesh: the retrieval
// Specialist, the Fallback agent and the Summarizer.
//
// All three are stateless with respect to a query. Per-agent behavior comes
// from the immutable core.AgentProfile passed to each call, so one instance
// of each type serves every configured agent of its class:
//
//	sp := agent.NewSpecialist(kc, models, mapper)
//	ca, err := sp.Answer(ctx, "How do I configure the model wrapper?", history, profile)
//
// A Specialist retrieves from every knowledge base of its profile in
// parallel, grounds the prompt in the merged passages and cites the passages
// the model references with [n] markers.
package agent

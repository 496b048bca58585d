// Package core defines the shared data model and the downstream service
// contracts of RAGMesh.
//
// The package is intentionally dependency light: agents, the router, the
// orchestrator and the backend adapters all import core, never each other's
// internals. It contains:
//
//   - AgentProfile / PathRewriteRule: the immutable, normalized agent table
//   - Session / Turn: rolling conversation history (mutated only through a TurnStore)
//   - Passage / RetrievalResult: ranked similarity search output
//   - CandidateAnswer / FinalAnswer: per-specialist and merged answers
//   - KnowledgeClient, ModelClient, Embedder, TurnStore: downstream interfaces
//   - the error taxonomy shared by all components
package core

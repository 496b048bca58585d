// Package knowledge provides KnowledgeClient backends.
//
//   - InMemoryStore: process-local lexical index, loadable from a directory
//   - QdrantClient: Qdrant similarity search over HTTP with a pluggable Embedder
//   - Mux: routes knowledge ids to backends so one client spans several stores
//
// Merge combines per-knowledge results into a single ranked list.
package knowledge

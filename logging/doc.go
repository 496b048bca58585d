// Package logging provides a minimal logging interface and adapters for RAGMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the orchestrator, router and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - MeshLogger with component/session scoping and retrieval/model/routing helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := ragmesh.New(table, func(o *ragmesh.Options) { o.Logger = logger })
package logging

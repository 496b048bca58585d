// Package model defines the provider agnostic generation interface and the
// Registry that turns named model configurations into a core.ModelClient.
//
// Providers (openai, anthropic, ollama) implement Model. The Registry adds
// what every call needs regardless of vendor:
//   - a circuit breaker per model so a failing backend fails fast
//   - an optional token bucket rate limit per model
//   - the per-query call budget carried in the context (core.ModelLimiter)
//   - classification of failures into *core.GenerationError
//
// MockModel is a lightweight in-memory Model for tests and examples.
package model

// Package session houses the ContextManager (Manager) and the concrete
// core.TurnStore backends it persists turns into.
//
// Manager owns the single-writer-per-session discipline: the orchestrator
// holds a session lock from the first history read until the turn pair is
// appended, so concurrent queries on one session are serialized while
// different sessions never block each other.
//
// Backends:
//   - InMemoryStore keeps sessions in a bounded LRU; the least recently used
//     session is dropped once MaxSessions is exceeded.
//   - RedisStore keeps one list per session with an optional idle TTL.
package session

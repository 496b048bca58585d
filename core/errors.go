package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when appending to an explicitly closed session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRoutingAmbiguous marks a routing decision with tied top scores. It is
	// informational only and never returned to callers of HandleQuery.
	ErrRoutingAmbiguous = errors.New("routing ambiguous")
	// ErrAllAgentsFailed is the only fatal query error: every selected
	// specialist and the fallback agent failed.
	ErrAllAgentsFailed = errors.New("all agents failed")
	// ErrInvalidProfile is returned by the config builder for malformed agents.
	ErrInvalidProfile = errors.New("invalid agent profile")
	// ErrUnknownModel is returned for a model id without a registered backend.
	ErrUnknownModel = errors.New("unknown model")
	// ErrUnknownKnowledge is returned for a knowledge id without a backend.
	ErrUnknownKnowledge = errors.New("unknown knowledge base")
)

// RetrievalErrorKind classifies retrieval failures.
type RetrievalErrorKind string

const (
	RetrievalEmpty              RetrievalErrorKind = "empty"
	RetrievalBackendUnavailable RetrievalErrorKind = "backend_unavailable"
)

// RetrievalError reports a specialist that could not ground its answer.
type RetrievalError struct {
	Agent string
	Kind  RetrievalErrorKind
	Err   error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieval %s for agent %q: %v", e.Kind, e.Agent, e.Err)
	}
	return fmt.Sprintf("retrieval %s for agent %q", e.Kind, e.Agent)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Is matches another *RetrievalError with the same Kind (Agent ignored).
func (e *RetrievalError) Is(target error) bool {
	t, ok := target.(*RetrievalError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrRetrievalEmpty       = &RetrievalError{Kind: RetrievalEmpty}
	ErrRetrievalUnavailable = &RetrievalError{Kind: RetrievalBackendUnavailable}
)

// GenerationErrorKind classifies model call failures.
type GenerationErrorKind string

const (
	GenerationTimeout     GenerationErrorKind = "timeout"
	GenerationUnavailable GenerationErrorKind = "unavailable"
	GenerationRateLimited GenerationErrorKind = "rate_limited"
)

// GenerationError reports a failed model call.
type GenerationError struct {
	Model string
	Kind  GenerationErrorKind
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation %s for model %q: %v", e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("generation %s for model %q", e.Kind, e.Model)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches another *GenerationError with the same Kind (Model ignored).
func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*GenerationError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrGenerationTimeout     = &GenerationError{Kind: GenerationTimeout}
	ErrGenerationUnavailable = &GenerationError{Kind: GenerationUnavailable}
	ErrGenerationRateLimited = &GenerationError{Kind: GenerationRateLimited}
)

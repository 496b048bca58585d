package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/hupe1980/ragmesh/core"
)

// StatusError carries the HTTP status a provider answered with so the
// Registry can classify it without importing vendor SDKs.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api error %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Classify maps a raw provider error onto a GenerationError kind.
func Classify(err error) core.GenerationErrorKind {
	var ge *core.GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.GenerationTimeout
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			return core.GenerationRateLimited
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return core.GenerationTimeout
		}
	}
	return core.GenerationUnavailable
}

// wrap returns err as a *core.GenerationError for modelID.
func wrap(modelID string, err error) error {
	if err == nil {
		return nil
	}
	var ge *core.GenerationError
	if errors.As(err, &ge) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &core.GenerationError{Model: modelID, Kind: core.GenerationUnavailable, Err: fmt.Errorf("circuit open: %w", err)}
	}
	return &core.GenerationError{Model: modelID, Kind: Classify(err), Err: err}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
	"github.com/hupe1980/ragmesh/router"
)

// CallbackType defines the lifecycle points of a query where callbacks run.
//
// Callbacks hook into the orchestration pipeline without modifying it. Only
// CallbackBeforeQuery can influence execution: an error returned there
// rejects the query. Errors from every other type are logged and ignored so
// that an answer is always produced.
type CallbackType string

const (
	// CallbackBeforeQuery runs before routing. Use for validation or
	// content checks.
	CallbackBeforeQuery CallbackType = "before_query"

	// CallbackAfterRoute runs once the routing plan is known.
	CallbackAfterRoute CallbackType = "after_route"

	// CallbackAfterSpecialist runs for every finished specialist, including
	// failed ones. It may run concurrently for different specialists.
	CallbackAfterSpecialist CallbackType = "after_specialist"

	// CallbackOnFallback runs when the fallback agent is invoked.
	CallbackOnFallback CallbackType = "on_fallback"

	// CallbackOnResponded runs after the final answer was recorded.
	CallbackOnResponded CallbackType = "on_responded"
)

// CallbackContext carries what a callback may inspect. Fields not
// relevant to the callback type are zero.
type CallbackContext struct {
	SessionID    string
	InvocationID string
	Query        string
	State        State

	// AgentID identifies the specialist for CallbackAfterSpecialist.
	AgentID   string
	Plan      *router.Plan
	Candidate *core.CandidateAnswer
	Answer    *core.FinalAnswer
	// Err is the specialist failure or the fallback reason.
	Err error

	CallbackType CallbackType
}

// Callback is a lifecycle hook. Implementations must be fast and safe for
// concurrent use.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts a function to Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback from a function.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, callbackCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds registered callbacks by type. It is safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback; callbacks of one type run in
// registration order.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback of a type and stops at the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// LoggingCallback writes one structured record per callback it sees.
type LoggingCallback struct {
	callbackType CallbackType
	logger       *logging.MeshLogger
}

// NewLoggingCallback creates a LoggingCallback. A nil logger discards.
func NewLoggingCallback(callbackType CallbackType, logger *logging.MeshLogger) *LoggingCallback {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LoggingCallback{callbackType: callbackType, logger: logger.WithComponent("callback")}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{
		"callback", string(c.callbackType),
		"session_id", callbackCtx.SessionID,
		"invocation_id", callbackCtx.InvocationID,
		"state", callbackCtx.State.String(),
	}
	if callbackCtx.AgentID != "" {
		args = append(args, "agent", callbackCtx.AgentID)
	}
	if callbackCtx.Plan != nil {
		args = append(args, "selected", callbackCtx.Plan.Specialists, "use_fallback", callbackCtx.Plan.UseFallback)
	}
	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
	}
	c.logger.Info("Query lifecycle", args...)
	return nil
}

// QueryValidationCallback rejects queries before routing.
type QueryValidationCallback struct {
	validator func(query string) error
}

// NewQueryValidationCallback creates a CallbackBeforeQuery hook.
func NewQueryValidationCallback(validator func(query string) error) *QueryValidationCallback {
	return &QueryValidationCallback{validator: validator}
}

// MaxQueryLength rejects empty queries and queries longer than n runes.
func MaxQueryLength(n int) *QueryValidationCallback {
	return NewQueryValidationCallback(func(query string) error {
		switch l := utf8.RuneCountInString(strings.TrimSpace(query)); {
		case l == 0:
			return errors.New("query is empty")
		case n > 0 && l > n:
			return fmt.Errorf("query has %d characters, limit is %d", l, n)
		}
		return nil
	})
}

// Type implements Callback.
func (c *QueryValidationCallback) Type() CallbackType { return CallbackBeforeQuery }

// Execute implements Callback.
func (c *QueryValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator != nil {
		return c.validator(callbackCtx.Query)
	}
	return nil
}

package model

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/ragmesh/core"
)

// Request captures the normalized model input.
type Request struct {
	Instructions string         `json:"instructions"`
	Messages     []core.Message `json:"messages"`
	Stream       bool           `json:"stream,omitempty"`
}

// NewRequest converts a core.Prompt into a Request.
func NewRequest(p core.Prompt) Request {
	msgs := make([]core.Message, len(p.Messages))
	copy(msgs, p.Messages)
	return Request{Instructions: p.Instructions, Messages: msgs}
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "ollama", "mock"
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call. The final response text wins; when a
// provider only streams partials their concatenation is returned.
func Collect(ctx context.Context, m Model, req Request) (string, *TokenUsage, error) {
	respCh, errCh := m.Generate(ctx, req)
	var (
		partial  strings.Builder
		final    string
		gotFinal bool
		usage    *TokenUsage
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Usage != nil {
				usage = r.Usage
			}
			if r.Partial {
				partial.WriteString(r.Text)
				continue
			}
			final, gotFinal = r.Text, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return "", usage, err
			}
		}
	}
	if !gotFinal {
		final = partial.String()
	}
	if strings.TrimSpace(final) == "" {
		return "", usage, errors.New("model returned no text")
	}
	return final, usage, nil
}

package core

import "context"

// Message is one role-tagged prompt message.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Prompt is the provider independent generation input.
type Prompt struct {
	Instructions string    `json:"instructions"`
	Messages     []Message `json:"messages"`
}

// ModelClient generates text with a named model configuration. Failures are
// reported as *GenerationError.
type ModelClient interface {
	Generate(ctx context.Context, modelID string, prompt Prompt) (string, error)
}

package core

import "context"

// Passage is one ranked hit from a similarity search.
type Passage struct {
	ID         string         `json:"id,omitempty"`
	SourcePath string         `json:"source_path"`
	Score      float64        `json:"score"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RetrievalResult is a ranked passage list: scores are non-increasing and the
// length never exceeds the requested topK.
type RetrievalResult struct {
	KnowledgeID string    `json:"knowledge_id,omitempty"`
	Passages    []Passage `json:"passages"`
}

// Empty reports whether the result has no passages.
func (r RetrievalResult) Empty() bool { return len(r.Passages) == 0 }

// TopScore returns the score of the best passage or 0 for an empty result.
func (r RetrievalResult) TopScore() float64 {
	if len(r.Passages) == 0 {
		return 0
	}
	return r.Passages[0].Score
}

// KnowledgeClient is the uniform similarity search contract over one or
// more knowledge bases. Implementations must be safe for concurrent use.
type KnowledgeClient interface {
	Search(ctx context.Context, knowledgeID string, query string, topK int) (RetrievalResult, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/ragmesh/core"
)

// MockKnowledge is a testify mock implementing core.KnowledgeClient.
type MockKnowledge struct{ mock.Mock }

var _ core.KnowledgeClient = (*MockKnowledge)(nil)

// Search implements core.KnowledgeClient.
func (m *MockKnowledge) Search(ctx context.Context, knowledgeID string, query string, topK int) (core.RetrievalResult, error) {
	args := m.Called(ctx, knowledgeID, query, topK)
	res, _ := args.Get(0).(core.RetrievalResult)
	return res, args.Error(1)
}

// MockModelClient is a testify mock implementing core.ModelClient.
type MockModelClient struct{ mock.Mock }

var _ core.ModelClient = (*MockModelClient)(nil)

// Generate implements core.ModelClient.
func (m *MockModelClient) Generate(ctx context.Context, modelID string, prompt core.Prompt) (string, error) {
	args := m.Called(ctx, modelID, prompt)
	return args.String(0), args.Error(1)
}

// Result builds a retrieval result from already ranked passages.
func Result(knowledgeID string, hits ...core.Passage) core.RetrievalResult {
	return core.RetrievalResult{KnowledgeID: knowledgeID, Passages: hits}
}

// Hit builds a passage.
func Hit(path string, score float64, text string) core.Passage {
	return core.Passage{SourcePath: path, Score: score, Text: text}
}
